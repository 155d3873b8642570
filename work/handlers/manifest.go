package handlers

import (
	"net/http"
	"strings"

	"tvvoo-addon/work/config"

	"github.com/gorilla/mux"
)

const (
	addonID      = "org.addon.tvvoo"
	addonVersion = "1.1.23"
	addonName    = "TvVoo"

	// catalogIDPrefix and streamIDPrefix form the id scheme shared with
	// clients: catalogs are "vavoo_tv_{country}", items are
	// "vavoo_{name}|{locator}" with both parts URL-escaped.
	catalogIDPrefix = "vavoo_tv_"
	streamIDPrefix  = "vavoo_"
)

type manifestCatalog struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Extra []any  `json:"extra"`
}

type manifest struct {
	ID            string            `json:"id"`
	Version       string            `json:"version"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Background    string            `json:"background,omitempty"`
	Logo          string            `json:"logo,omitempty"`
	Types         []string          `json:"types"`
	IDPrefixes    []string          `json:"idPrefixes"`
	Catalogs      []manifestCatalog `json:"catalogs"`
	Resources     []string          `json:"resources"`
	BehaviorHints map[string]any    `json:"behaviorHints"`
}

// buildManifest renders the addon manifest for the given country subset.
func (a *App) buildManifest(countries []config.Country) manifest {
	catalogs := make([]manifestCatalog, 0, len(countries))
	for _, c := range countries {
		catalogs = append(catalogs, manifestCatalog{
			ID:    catalogIDPrefix + c.ID,
			Type:  "tv",
			Name:  addonName + " TV • " + c.Name,
			Extra: []any{},
		})
	}

	return manifest{
		ID:          addonID,
		Version:     addonVersion,
		Name:        addonName,
		Description: "Lists backend TV channels and resolves clean HLS using the viewer's IP.",
		Background:  a.Config.FallbackArtwork,
		Logo:        a.Config.FallbackArtwork,
		Types:       []string{"tv"},
		IDPrefixes:  []string{"vavoo", "vavoo_"},
		Catalogs:    catalogs,
		Resources:   []string{"catalog", "meta", "stream"},
		BehaviorHints: map[string]any{
			"configurable":          true,
			"configurationRequired": false,
		},
	}
}

// filterCountries applies include/exclude id lists to the reference table.
// An empty include list means "all".
func filterCountries(include, exclude []string) []config.Country {
	inc := make(map[string]bool, len(include))
	for _, id := range include {
		if config.CountryByID(id) != nil {
			inc[id] = true
		}
	}
	exc := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		exc[id] = true
	}

	var out []config.Country
	for _, c := range config.Countries() {
		if len(inc) > 0 && !inc[c.ID] {
			continue
		}
		if exc[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// splitList splits a comma-separated id list, dropping empties.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HandleManifest serves the manifest with optional query-based country
// selection: /manifest.json?include=it,uk&exclude=de
func (a *App) HandleManifest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		include := splitList(r.URL.Query().Get("include"))
		exclude := splitList(r.URL.Query().Get("exclude"))
		writeJSON(w, http.StatusOK, a.buildManifest(filterCountries(include, exclude)))
	}
}

// HandleConfiguredManifest serves the path-configured manifest:
// /cfg-it-uk/manifest.json or /cfg-it-uk-ex-de/manifest.json, where the part
// after "-ex-" lists exclusions.
func (a *App) HandleConfiguredManifest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.ToLower(mux.Vars(r)["cfg"])
		incPart, excPart, _ := strings.Cut(raw, "-ex-")

		include := splitNonEmpty(incPart, "-")
		exclude := splitNonEmpty(excPart, "-")
		writeJSON(w, http.StatusOK, a.buildManifest(filterCountries(include, exclude)))
	}
}

// splitNonEmpty splits on sep and drops empty elements.
func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
