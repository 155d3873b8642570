// Package catalog owns the persisted snapshot of all countries' channel
// lists. A background schedule drives Refresh, which fetches every country's
// catalog from the backend with per-country failure isolation and replaces
// the snapshot atomically on success.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/logos"
	"tvvoo-addon/work/metrics"
	"tvvoo-addon/work/signature"
)

// Item is one channel entry as returned by the backend catalog call. URL is
// the opaque backend stream locator, not a playable URL.
type Item struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Poster      string `json:"poster,omitempty"`
	Description string `json:"description,omitempty"`
}

// Cache is the process-wide catalog snapshot. After any successful refresh
// every known country id has an entry, possibly an empty list.
type Cache struct {
	UpdatedAt int64             `json:"updatedAt"` // Unix milliseconds of the last successful refresh, 0 = never
	Countries map[string][]Item `json:"countries"`
}

// Manager orchestrates scheduled catalog refreshes and serves snapshot reads.
// The snapshot is replaced whole-object under the write lock; readers never
// observe a half-built refresh. The refreshing flag collapses concurrent
// refresh triggers to at most one active run.
type Manager struct {
	Config     *config.Config
	Client     *client.BackendClient
	Signatures *signature.Service
	Logos      *logos.Store
	Logger     *logger.Logger

	mu         sync.RWMutex
	cache      *Cache
	refreshing atomic.Bool
	stopChan   chan struct{}
}

// New creates a Manager with an empty cache. Call Load to pick up a persisted
// snapshot before serving.
func New(cfg *config.Config, bc *client.BackendClient, sigs *signature.Service, ls *logos.Store, log *logger.Logger) *Manager {
	return &Manager{
		Config:     cfg,
		Client:     bc,
		Signatures: sigs,
		Logos:      ls,
		Logger:     log,
		cache:      &Cache{Countries: map[string][]Item{}},
		stopChan:   make(chan struct{}),
	}
}

// Snapshot returns the current cache. The returned value is treated as
// immutable by all readers; Refresh replaces it rather than mutating it.
func (m *Manager) Snapshot() *Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache
}

// CountryItems returns the cached items for one country id (nil when the
// country is unknown or was never fetched).
func (m *Manager) CountryItems(id string) []Item {
	return m.Snapshot().Countries[id]
}

// catalogPage is the decoded shape of one catalog response page. The cursor
// is backend-defined (number or string) and only inspected for falsiness.
type catalogPage struct {
	Items      []Item `json:"items"`
	NextCursor any    `json:"nextCursor"`
}

// FetchCountryCatalog pages through the backend catalog for one group,
// starting at the zero cursor and appending items until the response's
// nextCursor is falsy or a page request fails. A failed page stops pagination
// without discarding items already collected.
func (m *Manager) FetchCountryCatalog(ctx context.Context, group, sig string) []Item {
	var out []Item
	var cursor any = 0

	for {
		page, ok := m.fetchPage(ctx, group, sig, cursor)
		if !ok {
			return out
		}
		out = append(out, page.Items...)
		if falsy(page.NextCursor) {
			return out
		}
		cursor = page.NextCursor
	}
}

// fetchPage issues a single catalog page request.
func (m *Manager) fetchPage(ctx context.Context, group, sig string, cursor any) (*catalogPage, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.Config.CatalogTimeout)
	defer cancel()

	payload := map[string]any{
		"language":      m.Config.Language,
		"region":        m.Config.Region,
		"catalogId":     "iptv",
		"id":            "iptv",
		"adult":         false,
		"search":        "",
		"sort":          "name",
		"filter":        map[string]string{"group": group},
		"cursor":        cursor,
		"clientVersion": m.Config.ClientVersion,
	}

	req, err := client.NewJSONRequest(ctx, m.Config.CatalogURL, client.AppUserAgent, payload, map[string]string{
		signature.SignatureHeader: sig,
	})
	if err != nil {
		m.Logger.Error("{catalog - fetchPage} failed to build request: %v", err)
		return nil, false
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		m.Logger.Warn("{catalog - fetchPage} request failed for group %s: %v", group, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.Logger.Warn("{catalog - fetchPage} backend answered %d for group %s", resp.StatusCode, group)
		return nil, false
	}

	var page catalogPage
	if err := client.DecodeJSON(resp, &page); err != nil {
		m.Logger.Warn("{catalog - fetchPage} undecodable response for group %s: %v", group, err)
		return nil, false
	}

	return &page, true
}

// falsy mirrors the backend's loose cursor semantics: absent, null, zero,
// empty string and false all terminate pagination.
func falsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0
	case json.Number:
		return t.String() == "0"
	default:
		return false
	}
}

// Refresh rebuilds the whole catalog snapshot. A second call while one is
// running returns immediately: no queuing, no overlap. One country's failure
// never blanks or aborts the others; the failing country is recorded with an
// empty list. On completion the snapshot is swapped atomically, persisted,
// and the logo enrichment passes run best-effort.
func (m *Manager) Refresh(ctx context.Context) {
	if !m.refreshing.CompareAndSwap(false, true) {
		m.Logger.Debug("{catalog - Refresh} refresh already running, skipping")
		return
	}
	defer m.refreshing.Store(false)

	started := time.Now()
	m.Logger.Info("{catalog - Refresh} refreshing catalog cache")

	sig := m.Signatures.Ping(ctx, "")
	if sig == "" {
		m.Logger.Error("{catalog - Refresh} no signature, keeping previous snapshot")
		metrics.CatalogRefreshes.WithLabelValues("no_signature").Inc()
		return
	}

	countries := make(map[string][]Item, len(config.Countries()))
	for _, c := range config.Countries() {
		items := m.fetchCountry(ctx, c, sig)
		countries[c.ID] = items
		metrics.CatalogItems.WithLabelValues(c.ID).Set(float64(len(items)))
		m.Logger.Debug("{catalog - Refresh} fetched %s: %d items", c.ID, len(items))
	}

	fresh := &Cache{UpdatedAt: time.Now().UnixMilli(), Countries: countries}

	m.mu.Lock()
	m.cache = fresh
	m.mu.Unlock()

	m.persist(fresh)

	metrics.CatalogRefreshes.WithLabelValues("ok").Inc()
	metrics.CatalogRefreshDuration.Set(time.Since(started).Seconds())
	m.Logger.Info("{catalog - Refresh} refresh complete in %s", time.Since(started).Round(time.Millisecond))

	// Logo enrichment is strictly best-effort and add-only; failures here
	// never affect the fresh snapshot.
	if m.Logos != nil {
		m.Logos.EnrichFromRepo(ctx)
		m.Logos.EnrichFromFeed(ctx)
	}
}

// fetchCountry tries the primary group, then any alternates, stopping at the
// first non-empty result. A still-empty result gets one more primary attempt
// to guard against a single transient empty response.
func (m *Manager) fetchCountry(ctx context.Context, c config.Country, sig string) []Item {
	groups := append([]string{c.Group}, c.AltGroups...)

	var items []Item
	for _, g := range groups {
		items = m.FetchCountryCatalog(ctx, g, sig)
		if len(items) > 0 {
			return items
		}
	}

	// lightweight retry on the primary group
	items = m.FetchCountryCatalog(ctx, c.Group, sig)
	return items
}

// Refreshing reports whether a refresh run is currently active.
func (m *Manager) Refreshing() bool {
	return m.refreshing.Load()
}
