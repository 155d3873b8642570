package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SignaturePings counts ping calls against the backend by result
// ("ok", "empty", "error"). Counter, only increases.
var SignaturePings = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tvvoo_signature_pings_total",
	Help: "Backend ping calls by result",
}, []string{"result"})

// StreamResolves counts composed stream resolutions by outcome
// ("attempt", "ok", "no_signature", "failed").
var StreamResolves = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tvvoo_stream_resolves_total",
	Help: "Stream resolve operations by outcome",
}, []string{"result"})

// CatalogRefreshes counts catalog refresh runs by result
// ("ok", "no_signature", "skipped").
var CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tvvoo_catalog_refreshes_total",
	Help: "Catalog refresh runs by result",
}, []string{"result"})

// CatalogRefreshDuration records the duration of the most recent completed
// refresh run in seconds.
var CatalogRefreshDuration = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tvvoo_catalog_refresh_duration_seconds",
	Help: "Duration of the last catalog refresh",
})

// CatalogItems tracks the number of cached catalog items per country after
// the most recent refresh.
var CatalogItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "tvvoo_catalog_items",
	Help: "Cached catalog items per country",
}, []string{"country"})

// LogoMapEntries tracks the current size of the persisted logo map.
var LogoMapEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tvvoo_logo_map_entries",
	Help: "Entries in the logo map",
})
