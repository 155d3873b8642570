package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/signature"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:        t.TempDir(),
		Language:       "de",
		Region:         "AT",
		ClientVersion:  "3.1.21",
		PingTimeout:    5 * time.Second,
		CatalogTimeout: 5 * time.Second,
		ResolveTimeout: 5 * time.Second,
		RequestsPerSec: 1000,
	}
}

func testManager(cfg *config.Config) *Manager {
	log := logger.New("ERROR")
	bc := client.New(cfg)
	return New(cfg, bc, signature.New(cfg, bc, log), nil, log)
}

// catalogRequest is the subset of the page request body the tests inspect.
type catalogRequest struct {
	Filter struct {
		Group string `json:"group"`
	} `json:"filter"`
	Cursor any `json:"cursor"`
}

func TestFalsy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"false", false, true},
		{"true", true, false},
		{"empty string", "", true},
		{"non-empty string", "abc", false},
		{"zero float", float64(0), true},
		{"non-zero float", float64(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, falsy(tt.in))
		})
	}
}

func TestFetchCountryCatalog_Pagination(t *testing.T) {
	// three pages: cursors 0 -> 10 -> 20 -> done (nextCursor null)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req catalogRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "Italy", req.Filter.Group)

		cursor := 0
		if f, ok := req.Cursor.(float64); ok {
			cursor = int(f)
		}

		page := map[string]any{
			"items": []map[string]string{
				{"name": "Channel " + strconv.Itoa(cursor), "url": "http://backend/" + strconv.Itoa(cursor)},
			},
		}
		if cursor < 20 {
			page["nextCursor"] = cursor + 10
		} else {
			page["nextCursor"] = nil
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.CatalogURL = srv.URL
	m := testManager(cfg)

	items := m.FetchCountryCatalog(context.Background(), "Italy", "sig")
	require.Len(t, items, 3)
	assert.Equal(t, "Channel 0", items[0].Name)
	assert.Equal(t, "Channel 20", items[2].Name)
}

func TestFetchCountryCatalog_FailedPageKeepsCollected(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":      []map[string]string{{"name": "A", "url": "http://backend/a"}},
			"nextCursor": 10,
		})
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.CatalogURL = srv.URL
	m := testManager(cfg)

	items := m.FetchCountryCatalog(context.Background(), "Italy", "sig")
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].Name)
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			_ = json.NewEncoder(w).Encode(map[string]string{"addonSig": "sig"})
			return
		}

		var req catalogRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		// only Italy has channels; every other group errors out
		if req.Filter.Group != "Italy" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":      []map[string]string{{"name": "Rai Uno .c", "url": "http://backend/rai-uno"}},
			"nextCursor": nil,
		})
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.PingURL = srv.URL + "/ping"
	cfg.CatalogURL = srv.URL + "/catalog"
	m := testManager(cfg)

	m.Refresh(context.Background())

	snap := m.Snapshot()
	assert.NotZero(t, snap.UpdatedAt)

	// every country is present after a refresh, failed ones as empty lists
	assert.Len(t, snap.Countries, len(config.Countries()))
	require.Len(t, snap.Countries["it"], 1)
	assert.Equal(t, "Rai Uno .c", snap.Countries["it"][0].Name)
	assert.Empty(t, snap.Countries["de"])

	// and the snapshot was persisted
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "catalog_cache.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "rai-uno")
}

func TestRefresh_NoSignatureKeepsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.PingURL = srv.URL
	m := testManager(cfg)

	prev := &Cache{UpdatedAt: 42, Countries: map[string][]Item{"it": {{Name: "Kept"}}}}
	m.mu.Lock()
	m.cache = prev
	m.mu.Unlock()

	m.Refresh(context.Background())
	assert.Same(t, prev, m.Snapshot())
}

func TestRefresh_ConcurrentRunsCollapse(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.PingURL = srv.URL
	m := testManager(cfg)

	// simulate an in-flight refresh
	m.refreshing.Store(true)
	assert.True(t, m.Refreshing())

	m.Refresh(context.Background())
	assert.Zero(t, requests.Load(), "second refresh must be a no-op")

	m.refreshing.Store(false)
	assert.False(t, m.Refreshing())
}

func TestLoad(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		cfg := testConfig(t)
		cache := &Cache{UpdatedAt: 1700000000000, Countries: map[string][]Item{
			"it": {{Name: "Rai Uno", URL: "http://backend/rai-uno"}},
		}}
		data, err := json.Marshal(cache)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "catalog_cache.json"), data, 0644))

		m := testManager(cfg)
		m.Load()
		assert.Equal(t, int64(1700000000000), m.Snapshot().UpdatedAt)
		require.Len(t, m.CountryItems("it"), 1)
	})

	t.Run("missing file stays empty", func(t *testing.T) {
		m := testManager(testConfig(t))
		m.Load()
		assert.Zero(t, m.Snapshot().UpdatedAt)
	})

	t.Run("corrupt file stays empty", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "catalog_cache.json"), []byte("{broken"), 0644))

		m := testManager(cfg)
		m.Load()
		assert.Zero(t, m.Snapshot().UpdatedAt)
		assert.Empty(t, m.CountryItems("it"))
	})
}

func TestNextRun(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	t.Run("later today", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 1, 0, 0, 0, rome)
		next := nextRun(now, "02:00", rome)
		assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, rome), next)
	})

	t.Run("already passed rolls to tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 14, 30, 0, 0, rome)
		next := nextRun(now, "02:00", rome)
		assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, rome), next)
	})

	t.Run("exact boundary rolls forward", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 2, 0, 0, 0, rome)
		next := nextRun(now, "02:00", rome)
		assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, rome), next)
	})

	t.Run("dst spring forward still lands on the next day", func(t *testing.T) {
		// last Sunday of March 2026: clocks jump 02:00 -> 03:00
		now := time.Date(2026, 3, 28, 12, 0, 0, 0, rome)
		next := nextRun(now, "02:00", rome)
		assert.Equal(t, 29, next.Day())
		assert.True(t, next.After(now))
	})
}
