package logos

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/metrics"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// logoFileName is the flat persisted table inside the data directory: a JSON
// object mapping "{countryID}:{normalizedName}" to a logo URL.
const logoFileName = "logos_map.json"

// Store is the process-wide logo table. Entries are only added, never
// evicted by refresh; the enrichment passes run concurrently on the worker
// pool, hence the concurrent map.
type Store struct {
	Config    *config.Config
	Client    *client.BackendClient
	Logger    *logger.Logger
	Pool      *ants.Pool
	Threshold float64 // minimum similarity for a fuzzy match

	entries *xsync.MapOf[string, string]
}

// NewStore creates an empty logo store. Call Load to pick up the persisted
// table before serving.
func NewStore(cfg *config.Config, bc *client.BackendClient, pool *ants.Pool, log *logger.Logger) *Store {
	return &Store{
		Config:    cfg,
		Client:    bc,
		Logger:    log,
		Pool:      pool,
		Threshold: DefaultSimilarityThreshold,
		entries:   xsync.NewMapOf[string, string](),
	}
}

// Key builds the table key for a country and raw channel name.
func Key(countryID, name string) string {
	return countryID + ":" + Normalize(name)
}

// Add inserts an entry unless the key is already present. Reports whether
// the entry was added; the table is add-only by contract.
func (s *Store) Add(key, url string) bool {
	if key == "" || url == "" {
		return false
	}
	_, loaded := s.entries.LoadOrStore(key, url)
	return !loaded
}

// Len returns the current number of entries.
func (s *Store) Len() int {
	return s.entries.Size()
}

// BestLogoForCountry returns the logo URL for a channel name within one
// country: exact key lookup first, then a fuzzy scan over all keys sharing
// the country prefix, accepting the best score only at or above the
// threshold. Returns "" when nothing matches.
func (s *Store) BestLogoForCountry(countryID, name string) string {
	norm := Normalize(name)

	if url, ok := s.entries.Load(countryID + ":" + norm); ok {
		return url
	}

	prefix := countryID + ":"
	best := 0.0
	bestURL := ""
	s.entries.Range(func(key, url string) bool {
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		if score := BigramSimilarity(norm, key[len(prefix):]); score > best {
			best = score
			bestURL = url
		}
		return true
	})

	if best >= s.Threshold {
		return bestURL
	}
	return ""
}

// BestLogoAny is BestLogoForCountry without the country scope: the fuzzy
// scan covers every entry regardless of prefix.
func (s *Store) BestLogoAny(name string) string {
	norm := Normalize(name)

	best := 0.0
	bestURL := ""
	s.entries.Range(func(key, url string) bool {
		_, part, found := strings.Cut(key, ":")
		if !found {
			return true
		}
		if score := BigramSimilarity(norm, part); score > best {
			best = score
			bestURL = url
		}
		return true
	})

	if best >= s.Threshold {
		return bestURL
	}
	return ""
}

// logoPath returns the full path of the persisted table.
func (s *Store) logoPath() string {
	return filepath.Join(s.Config.DataDir, logoFileName)
}

// Load reads the persisted table. A missing or corrupt file yields an empty
// table, never a startup failure.
func (s *Store) Load() {
	data, err := os.ReadFile(s.logoPath())
	if err != nil {
		s.Logger.Info("{logos - Load} no logo map on disk, starting empty")
		return
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		s.Logger.Warn("{logos - Load} unreadable logo map, starting empty: %v", err)
		return
	}

	for k, v := range flat {
		s.entries.Store(k, v)
	}
	metrics.LogoMapEntries.Set(float64(s.entries.Size()))
	s.Logger.Info("{logos - Load} logo map loaded with %d entries", s.entries.Size())
}

// Persist writes the table to the data directory. Write failures are logged
// and otherwise ignored.
func (s *Store) Persist() {
	flat := make(map[string]string, s.entries.Size())
	s.entries.Range(func(k, v string) bool {
		flat[k] = v
		return true
	})

	if err := os.MkdirAll(s.Config.DataDir, 0755); err != nil {
		s.Logger.Error("{logos - Persist} cannot create data dir: %v", err)
		return
	}

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		s.Logger.Error("{logos - Persist} cannot encode logo map: %v", err)
		return
	}

	if err := os.WriteFile(s.logoPath(), data, 0644); err != nil {
		s.Logger.Error("{logos - Persist} logo map write error: %v", err)
	}

	metrics.LogoMapEntries.Set(float64(s.entries.Size()))
}
