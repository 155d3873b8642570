package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"tvvoo-addon/work/clientip"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logos"
	"tvvoo-addon/work/probe"

	"github.com/gorilla/mux"
	"github.com/grafana/regexp"
)

// trailingIndexPattern matches the " 2" style suffix NumberDuplicates adds,
// so logo lookups see the undecorated name again.
var trailingIndexPattern = regexp.MustCompile(`\s\d+$`)

type catalogMeta struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Poster      string `json:"poster,omitempty"`
	PosterShape string `json:"posterShape,omitempty"`
	Background  string `json:"background,omitempty"`
	Logo        string `json:"logo,omitempty"`
	Description string `json:"description,omitempty"`
}

type catalogResponse struct {
	Metas []catalogMeta `json:"metas"`
}

type metaResponse struct {
	Meta catalogMeta `json:"meta"`
}

type streamEntry struct {
	URL           string         `json:"url"`
	Title         string         `json:"title,omitempty"`
	Name          string         `json:"name,omitempty"`
	BehaviorHints map[string]any `json:"behaviorHints,omitempty"`
}

type streamResponse struct {
	Streams []streamEntry `json:"streams"`
}

// itemID encodes a catalog item into its addressable id. Both halves are
// query-escaped so the "|" separator stays unambiguous.
func itemID(name, locator string) string {
	return streamIDPrefix + url.QueryEscape(name) + "|" + url.QueryEscape(locator)
}

// parseItemID is the inverse of itemID. Returns ok=false for ids outside the
// scheme or with undecodable halves.
func parseItemID(id string) (name, locator string, ok bool) {
	if !strings.HasPrefix(id, streamIDPrefix) {
		return "", "", false
	}
	encName, encURL, found := strings.Cut(id[len(streamIDPrefix):], "|")
	if !found {
		return "", "", false
	}
	name, err := url.QueryUnescape(encName)
	if err != nil {
		return "", "", false
	}
	locator, err = url.QueryUnescape(encURL)
	if err != nil {
		return "", "", false
	}
	return name, locator, true
}

// HandleCatalog serves one country's channel list as addon metas: display
// names cleaned of backend dot-codes, duplicates numbered, logos matched from
// the logo table with the fallback artwork filling the gaps.
func (a *App) HandleCatalog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !strings.HasPrefix(id, catalogIDPrefix) {
			writeJSON(w, http.StatusOK, catalogResponse{Metas: []catalogMeta{}})
			return
		}
		countryID := strings.TrimPrefix(id, catalogIDPrefix)
		country := config.CountryByID(countryID)
		if country == nil {
			writeJSON(w, http.StatusOK, catalogResponse{Metas: []catalogMeta{}})
			return
		}

		items := a.Catalog.CountryItems(countryID)

		cleaned := make([]string, len(items))
		for i, it := range items {
			cleaned[i] = logos.CleanupDisplayName(it.Name)
		}
		display := logos.NumberDuplicates(cleaned)

		metas := make([]catalogMeta, 0, len(items))
		for i, it := range items {
			art := a.Logos.BestLogoForCountry(countryID, cleaned[i])
			if art == "" {
				art = it.Poster
			}
			if art == "" {
				art = a.Config.FallbackArtwork
			}
			metas = append(metas, catalogMeta{
				ID:          itemID(display[i], it.URL),
				Type:        "tv",
				Name:        display[i],
				Poster:      art,
				PosterShape: "square",
				Logo:        art,
				Description: country.Name + " live channel",
			})
		}

		a.Logger.Debug("{handlers - HandleCatalog} served %s with %d metas", countryID, len(metas))
		writeJSON(w, http.StatusOK, catalogResponse{Metas: metas})
	}
}

// HandleMeta serves the meta object for one item id. The owning country is
// recovered by scanning the snapshot for the item's locator; the logo lookup
// strips any duplicate-numbering suffix first and widens to all countries
// when the scoped match misses.
func (a *App) HandleMeta() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		name, locator, ok := parseItemID(id)
		if !ok {
			writeJSON(w, http.StatusOK, metaResponse{Meta: catalogMeta{ID: id, Type: "tv"}})
			return
		}

		countryID := a.countryForLocator(locator)
		lookupName := trailingIndexPattern.ReplaceAllString(name, "")

		art := ""
		if countryID != "" {
			art = a.Logos.BestLogoForCountry(countryID, lookupName)
		}
		if art == "" {
			art = a.Logos.BestLogoAny(lookupName)
		}
		if art == "" {
			art = a.Config.FallbackArtwork
		}

		writeJSON(w, http.StatusOK, metaResponse{Meta: catalogMeta{
			ID:          id,
			Type:        "tv",
			Name:        name,
			Poster:      art,
			PosterShape: "square",
			Logo:        art,
			Background:  art,
		}})
	}
}

// countryForLocator finds which country's cached list carries the given
// locator. Returns "" when no country does.
func (a *App) countryForLocator(locator string) string {
	snap := a.Catalog.Snapshot()
	for countryID, items := range snap.Countries {
		for _, it := range items {
			if it.URL == locator {
				return countryID
			}
		}
	}
	return ""
}

// HandleStream resolves one item id to a playable stream. The viewer's IP
// comes from the request headers, falling back to the memo entry captured by
// the middleware earlier in the same session; a private or missing IP means
// the backend geolocates the server instead.
func (a *App) HandleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		name, locator, ok := parseItemID(id)
		if !ok {
			writeJSON(w, http.StatusOK, streamResponse{Streams: []streamEntry{}})
			return
		}

		a.Memo.Prune()

		clientIP := clientip.Resolve(r)
		if clientIP == "" {
			clientIP = a.Memo.Lookup(id)
		}

		desc := a.Signatures.ResolveClean(r.Context(), locator, clientIP)
		if desc == nil {
			a.Logger.Warn("{handlers - HandleStream} resolve failed for %s", a.Config.LogURL(locator))
			writeJSON(w, http.StatusOK, streamResponse{Streams: []streamEntry{}})
			return
		}

		writeJSON(w, http.StatusOK, streamResponse{Streams: []streamEntry{{
			URL:   desc.URL,
			Title: name,
			Name:  addonName,
			BehaviorHints: map[string]any{
				"notWebReady": true,
				"headers":     desc.Headers,
				"proxyHeaders": map[string]any{
					"request": desc.Headers,
				},
				"proxyUseFallback": true,
			},
		}}})
	}
}

// CaptureClientIP records the viewer's public IP against the stream id before
// routing, so a later resolution of the same id can reuse it when the
// triggering request arrives without usable forwarding headers.
func (a *App) CaptureClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m := streamIDPattern.FindStringSubmatch(r.URL.Path); m != nil {
			if ip := clientip.Resolve(r); ip != "" {
				a.Memo.Remember(m[1], ip)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleHealth answers liveness checks.
func (a *App) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// HandleCacheStatus reports the snapshot's age and per-country item counts.
func (a *App) HandleCacheStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := a.Catalog.Snapshot()
		counts := make(map[string]int, len(snap.Countries))
		total := 0
		for id, items := range snap.Countries {
			counts[id] = len(items)
			total += len(items)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"updatedAt":  snap.UpdatedAt,
			"refreshing": a.Catalog.Refreshing(),
			"countries":  counts,
			"totalItems": total,
			"logoCount":  a.Logos.Len(),
		})
	}
}

// HandleDebugIP echoes what the resolver extracted from the caller's request,
// for diagnosing proxy header chains in a deployment.
func (a *App) HandleDebugIP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientip.Resolve(r)
		writeJSON(w, http.StatusOK, map[string]any{
			"clientIp":   ip,
			"private":    ip == "" || clientip.IsPrivate(ip),
			"remoteAddr": r.RemoteAddr,
		})
	}
}

// HandleDebugResolve runs the ping and resolve steps uncomposed for one
// locator (?url=...), reporting each stage. ?ip= overrides the resolved client
// IP; with ?probe=1 the resolved URL is additionally fetched and classified as
// an HLS playlist.
func (a *App) HandleDebugResolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locator := r.URL.Query().Get("url")
		if locator == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing url parameter"})
			return
		}

		clientIP := r.URL.Query().Get("ip")
		if clientIP == "" {
			clientIP = clientip.Resolve(r)
		}
		out := map[string]any{"clientIp": clientIP}

		sig := a.Signatures.Ping(r.Context(), clientIP)
		out["pingOk"] = sig != ""
		if sig == "" {
			writeJSON(w, http.StatusOK, out)
			return
		}

		desc := a.Signatures.ResolveClean(r.Context(), locator, clientIP)
		out["resolveOk"] = desc != nil
		if desc == nil {
			writeJSON(w, http.StatusOK, out)
			return
		}
		out["url"] = a.Config.LogURL(desc.URL)
		out["headers"] = desc.Headers

		if r.URL.Query().Get("probe") != "" {
			out["probe"] = probe.Classify(r.Context(), a.Client, a.Logger, desc.URL, desc.Headers)
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// HandleRefresh triggers a catalog refresh in the background. A refresh
// already in flight makes this a no-op; either way the call returns
// immediately.
func (a *App) HandleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go a.Catalog.Refresh(context.Background())
		writeJSON(w, http.StatusAccepted, map[string]any{
			"started":    true,
			"refreshing": a.Catalog.Refreshing(),
		})
	}
}
