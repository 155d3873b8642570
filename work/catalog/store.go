package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// cacheFileName is the snapshot file inside the data directory. The shape on
// disk is exactly the Cache struct: {"updatedAt": n, "countries": {...}}.
const cacheFileName = "catalog_cache.json"

// cachePath returns the full path of the persisted snapshot.
func (m *Manager) cachePath() string {
	return filepath.Join(m.Config.DataDir, cacheFileName)
}

// Load reads the persisted snapshot from the data directory. A missing or
// corrupt file yields an empty cache (UpdatedAt 0) and never a startup
// failure.
func (m *Manager) Load() {
	data, err := os.ReadFile(m.cachePath())
	if err != nil {
		m.Logger.Info("{catalog - Load} no cache on disk, starting empty")
		return
	}

	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil || cache.Countries == nil {
		m.Logger.Warn("{catalog - Load} unreadable cache file, starting empty: %v", err)
		return
	}

	m.mu.Lock()
	m.cache = &cache
	m.mu.Unlock()

	m.Logger.Info("{catalog - Load} cache loaded, %d countries, updated %d", len(cache.Countries), cache.UpdatedAt)
}

// persist writes the snapshot to the data directory. Write failures are
// logged and otherwise ignored; the next successful refresh retries the
// write.
func (m *Manager) persist(cache *Cache) {
	if err := os.MkdirAll(m.Config.DataDir, 0755); err != nil {
		m.Logger.Error("{catalog - persist} cannot create data dir: %v", err)
		return
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		m.Logger.Error("{catalog - persist} cannot encode cache: %v", err)
		return
	}

	if err := os.WriteFile(m.cachePath(), data, 0644); err != nil {
		m.Logger.Error("{catalog - persist} cache write error: %v", err)
	}
}
