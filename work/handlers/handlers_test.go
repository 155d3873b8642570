package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tvvoo-addon/work/catalog"
	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/logos"
	"tvvoo-addon/work/memo"
	"tvvoo-addon/work/signature"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 1000
	}
	cfg.Language = "de"
	cfg.Region = "AT"
	cfg.ClientVersion = "3.1.21"
	cfg.PingTimeout = 5 * time.Second
	cfg.CatalogTimeout = 5 * time.Second
	cfg.ResolveTimeout = 5 * time.Second
	cfg.FallbackArtwork = "http://artwork/fallback.png"

	log := logger.New("ERROR")
	bc := client.New(cfg)
	ls := logos.NewStore(cfg, bc, nil, log)
	sigs := signature.New(cfg, bc, log)
	cm := catalog.New(cfg, bc, sigs, ls, log)

	return &App{
		Config:     cfg,
		Logger:     log,
		Client:     bc,
		Signatures: sigs,
		Catalog:    cm,
		Logos:      ls,
		Memo:       memo.New(),
	}
}

// seedCatalog writes a snapshot to disk and loads it into the manager.
func seedCatalog(t *testing.T, a *App, countries map[string][]catalog.Item) {
	t.Helper()
	cache := catalog.Cache{UpdatedAt: time.Now().UnixMilli(), Countries: countries}
	data, err := json.Marshal(cache)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(a.Config.DataDir, "catalog_cache.json"), data, 0644))
	a.Catalog.Load()
}

func testRouter(a *App) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/manifest.json", a.HandleManifest())
	r.HandleFunc("/cfg-{cfg}/manifest.json", a.HandleConfiguredManifest())
	r.HandleFunc("/catalog/tv/{id}.json", a.HandleCatalog())
	r.HandleFunc("/meta/tv/{id}.json", a.HandleMeta())
	r.HandleFunc("/stream/tv/{id}.json", a.HandleStream())
	r.HandleFunc("/health", a.HandleHealth())
	r.HandleFunc("/cache/status", a.HandleCacheStatus())
	r.HandleFunc("/debug/ip", a.HandleDebugIP())
	return r
}

func get(t *testing.T, router *mux.Router, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func TestItemID_RoundTrip(t *testing.T) {
	id := itemID("Rai Uno 2", "https://backend/ch?x=1&y=2")
	name, locator, ok := parseItemID(id)
	require.True(t, ok)
	assert.Equal(t, "Rai Uno 2", name)
	assert.Equal(t, "https://backend/ch?x=1&y=2", locator)
}

func TestParseItemID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"wrong prefix", "other_abc|def"},
		{"no separator", "vavoo_just-a-name"},
		{"bad escape", "vavoo_%zz|http"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := parseItemID(tt.id)
			assert.False(t, ok)
		})
	}
}

func TestFilterCountries(t *testing.T) {
	t.Run("no filters returns all", func(t *testing.T) {
		assert.Len(t, filterCountries(nil, nil), len(config.Countries()))
	})

	t.Run("include narrows", func(t *testing.T) {
		got := filterCountries([]string{"it", "uk"}, nil)
		require.Len(t, got, 2)
		assert.Equal(t, "it", got[0].ID)
		assert.Equal(t, "uk", got[1].ID)
	})

	t.Run("exclude removes", func(t *testing.T) {
		got := filterCountries(nil, []string{"it"})
		assert.Len(t, got, len(config.Countries())-1)
		for _, c := range got {
			assert.NotEqual(t, "it", c.ID)
		}
	})

	t.Run("unknown includes ignored", func(t *testing.T) {
		got := filterCountries([]string{"xx"}, nil)
		assert.Len(t, got, len(config.Countries()))
	})
}

func TestHandleManifest(t *testing.T) {
	router := testRouter(testApp(t, nil))

	var m manifest
	w := get(t, router, "/manifest.json", &m)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, addonID, m.ID)
	assert.Contains(t, m.Types, "tv")
	assert.Contains(t, m.Resources, "stream")
	assert.Len(t, m.Catalogs, len(config.Countries()))
	assert.Equal(t, "vavoo_tv_it", m.Catalogs[0].ID)
}

func TestHandleManifest_QueryFilters(t *testing.T) {
	router := testRouter(testApp(t, nil))

	var m manifest
	get(t, router, "/manifest.json?include=it,uk&exclude=uk", &m)
	require.Len(t, m.Catalogs, 1)
	assert.Equal(t, "vavoo_tv_it", m.Catalogs[0].ID)
}

func TestHandleConfiguredManifest(t *testing.T) {
	router := testRouter(testApp(t, nil))

	t.Run("include only", func(t *testing.T) {
		var m manifest
		get(t, router, "/cfg-it-uk/manifest.json", &m)
		require.Len(t, m.Catalogs, 2)
		assert.Equal(t, "vavoo_tv_it", m.Catalogs[0].ID)
		assert.Equal(t, "vavoo_tv_uk", m.Catalogs[1].ID)
	})

	t.Run("with exclusions", func(t *testing.T) {
		var m manifest
		get(t, router, "/cfg-it-uk-ex-uk/manifest.json", &m)
		require.Len(t, m.Catalogs, 1)
		assert.Equal(t, "vavoo_tv_it", m.Catalogs[0].ID)
	})
}

func TestHandleCatalog(t *testing.T) {
	a := testApp(t, nil)
	seedCatalog(t, a, map[string][]catalog.Item{
		"it": {
			{Name: "Rai Uno .c", URL: "http://backend/rai-uno"},
			{Name: "Sky .c", URL: "http://backend/sky-1"},
			{Name: "Sky .s", URL: "http://backend/sky-2"},
		},
	})
	a.Logos.Add(logos.Key("it", "Rai Uno"), "http://logos/rai-uno.png")
	router := testRouter(a)

	var resp catalogResponse
	get(t, router, "/catalog/tv/vavoo_tv_it.json", &resp)
	require.Len(t, resp.Metas, 3)

	// cleaned display name, matched logo
	assert.Equal(t, "Rai Uno", resp.Metas[0].Name)
	assert.Equal(t, "http://logos/rai-uno.png", resp.Metas[0].Poster)

	// duplicates numbered, fallback artwork when no logo matches
	assert.Equal(t, "Sky 1", resp.Metas[1].Name)
	assert.Equal(t, "Sky 2", resp.Metas[2].Name)
	assert.Equal(t, "http://artwork/fallback.png", resp.Metas[1].Poster)

	// item ids resolve back to the backend locator
	name, locator, ok := parseItemID(resp.Metas[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Rai Uno", name)
	assert.Equal(t, "http://backend/rai-uno", locator)
}

func TestHandleCatalog_UnknownCountry(t *testing.T) {
	router := testRouter(testApp(t, nil))

	var resp catalogResponse
	w := get(t, router, "/catalog/tv/vavoo_tv_xx.json", &resp)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Metas)
}

func TestHandleMeta(t *testing.T) {
	a := testApp(t, nil)
	seedCatalog(t, a, map[string][]catalog.Item{
		"it": {{Name: "Sky .c", URL: "http://backend/sky-1"}},
	})
	a.Logos.Add(logos.Key("it", "Sky"), "http://logos/sky.png")
	router := testRouter(a)

	// duplicate-numbered display name still finds the logo
	id := itemID("Sky 1", "http://backend/sky-1")
	var resp metaResponse
	get(t, router, "/meta/tv/"+url.PathEscape(id)+".json", &resp)

	assert.Equal(t, id, resp.Meta.ID)
	assert.Equal(t, "Sky 1", resp.Meta.Name)
	assert.Equal(t, "http://logos/sky.png", resp.Meta.Logo)
}

func TestHandleMeta_FallbackArtwork(t *testing.T) {
	a := testApp(t, nil)
	router := testRouter(a)

	id := itemID("Unknown Channel", "http://backend/unknown")
	var resp metaResponse
	get(t, router, "/meta/tv/"+url.PathEscape(id)+".json", &resp)
	assert.Equal(t, "http://artwork/fallback.png", resp.Meta.Logo)
}

func TestHandleStream_InvalidID(t *testing.T) {
	router := testRouter(testApp(t, nil))

	var resp streamResponse
	w := get(t, router, "/stream/tv/not-a-valid-id.json", &resp)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Streams)
}

func TestHandleStream_EndToEnd(t *testing.T) {
	// backend stub: ping issues a rewritable signature, resolve checks that
	// the spent signature carries the viewer's IP first
	data, err := json.Marshal(map[string]any{"ips": []string{"9.9.9.9"}})
	require.NoError(t, err)
	envelope, err := json.Marshal(map[string]any{"data": string(data)})
	require.NoError(t, err)
	sig := base64.StdEncoding.EncodeToString(envelope)

	var spentIPs []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			_ = json.NewEncoder(w).Encode(map[string]string{"addonSig": sig})
		case "/resolve":
			raw, _ := base64.StdEncoding.DecodeString(r.Header.Get(signature.SignatureHeader))
			var env map[string]any
			_ = json.Unmarshal(raw, &env)
			var payload map[string]any
			_ = json.Unmarshal([]byte(env["data"].(string)), &payload)
			spentIPs, _ = payload["ips"].([]any)
			_ = json.NewEncoder(w).Encode([]map[string]string{{"url": "http://cdn/stream.m3u8"}})
		}
	}))
	defer srv.Close()

	cfg := &config.Config{
		PingURL:    srv.URL + "/ping",
		ResolveURL: srv.URL + "/resolve",
	}
	a := testApp(t, cfg)
	router := testRouter(a)

	id := itemID("Rai Uno", "http://backend/rai-uno")
	r := httptest.NewRequest(http.MethodGet, "/stream/tv/"+url.PathEscape(id)+".json", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	var resp streamResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Streams, 1)

	s := resp.Streams[0]
	assert.Equal(t, "http://cdn/stream.m3u8", s.URL)
	assert.Equal(t, "Rai Uno", s.Title)
	assert.Equal(t, true, s.BehaviorHints["notWebReady"])

	// the viewer's IP was written into the signature before resolving
	require.NotEmpty(t, spentIPs)
	assert.Equal(t, "203.0.113.7", spentIPs[0])
}

func TestCaptureClientIP(t *testing.T) {
	a := testApp(t, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := a.CaptureClientIP(next)

	id := itemID("Rai Uno", "http://backend/rai-uno")
	r := httptest.NewRequest(http.MethodGet, "/stream/tv/"+url.PathEscape(id)+".json", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), r)

	// the decoded path segment is what both middleware and handler see
	assert.Equal(t, "203.0.113.7", a.Memo.Lookup(id))
}

func TestCaptureClientIP_IgnoresOtherPaths(t *testing.T) {
	a := testApp(t, nil)
	h := a.CaptureClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/manifest.json", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, 0, a.Memo.Len())
}

func TestHandleHealth(t *testing.T) {
	router := testRouter(testApp(t, nil))
	w := get(t, router, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHandleCacheStatus(t *testing.T) {
	a := testApp(t, nil)
	seedCatalog(t, a, map[string][]catalog.Item{
		"it": {{Name: "Rai Uno", URL: "http://backend/rai-uno"}},
		"uk": {},
	})
	router := testRouter(a)

	var status struct {
		UpdatedAt  int64          `json:"updatedAt"`
		Refreshing bool           `json:"refreshing"`
		Countries  map[string]int `json:"countries"`
		TotalItems int            `json:"totalItems"`
	}
	get(t, router, "/cache/status", &status)

	assert.NotZero(t, status.UpdatedAt)
	assert.False(t, status.Refreshing)
	assert.Equal(t, 1, status.Countries["it"])
	assert.Equal(t, 0, status.Countries["uk"])
	assert.Equal(t, 1, status.TotalItems)
}

func TestHandleDebugIP(t *testing.T) {
	router := testRouter(testApp(t, nil))

	r := httptest.NewRequest(http.MethodGet, "/debug/ip", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	var resp struct {
		ClientIP string `json:"clientIp"`
		Private  bool   `json:"private"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "203.0.113.7", resp.ClientIP)
	assert.False(t, resp.Private)
}
