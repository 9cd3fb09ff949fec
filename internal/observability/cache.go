package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-id/aegis/internal/platform/cache"
)

// CacheStatsSource is satisfied by any cache.Store regardless of value type.
type CacheStatsSource interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// cacheStatsCollector exports the cache store counters on scrape.
type cacheStatsCollector struct {
	source  CacheStatsSource
	logger  *slog.Logger
	timeout time.Duration

	entries *prometheus.Desc
	hits    *prometheus.Desc
	misses  *prometheus.Desc
}

// RegisterCacheStats wires a cache store's Stats() into the metrics registry.
func (m *Metrics) RegisterCacheStats(source CacheStatsSource, logger *slog.Logger) {
	if m == nil || source == nil {
		return
	}
	labels := []string{"backend"}
	m.Registerer().MustRegister(&cacheStatsCollector{
		source:  source,
		logger:  logger,
		timeout: 2 * time.Second,
		entries: prometheus.NewDesc("aegis_cache_entries", "Live entries in the cache store.", labels, nil),
		hits:    prometheus.NewDesc("aegis_cache_hits_total", "Cache lookups that found a live entry.", labels, nil),
		misses:  prometheus.NewDesc("aegis_cache_misses_total", "Cache lookups that missed or hit an expired entry.", labels, nil),
	})
}

func (c *cacheStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.hits
	ch <- c.misses
}

func (c *cacheStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("collect cache stats", slog.Any("error", err))
		}
		return
	}
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(stats.Entries), stats.Backend)
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits), stats.Backend)
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses), stats.Backend)
}
