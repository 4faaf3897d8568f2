package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/types"
)

// Source provides cache metrics. *wasmvm.VM implements it.
type Source interface {
	GetMetrics() (*types.Metrics, error)
}

// Collector exports the cache metrics of a Source. Values are read on
// every scrape.
type Collector struct {
	src Source
	log *zap.Logger

	hits     *prometheus.Desc
	misses   *prometheus.Desc
	elements *prometheus.Desc
	size     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector. namespace prefixes every metric name.
func NewCollector(namespace string, src Source, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		src: src,
		log: log,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Module lookups served by a cache tier.",
			[]string{"tier"}, nil,
		),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Module lookups for unknown checksums.",
			nil, nil,
		),
		elements: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "elements"),
			"Compiled modules held in a memory tier.",
			[]string{"tier"}, nil,
		),
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "size_bytes"),
			"Estimated size of the compiled modules in a memory tier.",
			[]string{"tier"}, nil,
		),
	}
}

// Register creates a collector and registers it with reg.
func Register(reg prometheus.Registerer, namespace string, src Source, log *zap.Logger) (*Collector, error) {
	c := NewCollector(namespace, src, log)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.elements
	ch <- c.size
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m, err := c.src.GetMetrics()
	if err != nil {
		c.log.Warn("collect cache metrics", zap.Error(err))
		ch <- prometheus.NewInvalidMetric(c.misses, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(m.HitsPinnedMemoryCache), "pinned")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(m.HitsMemoryCache), "memory")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(m.HitsFsCache), "fs")
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(m.Misses))
	ch <- prometheus.MustNewConstMetric(c.elements, prometheus.GaugeValue, float64(m.ElementsPinnedMemoryCache), "pinned")
	ch <- prometheus.MustNewConstMetric(c.elements, prometheus.GaugeValue, float64(m.ElementsMemoryCache), "memory")
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(m.SizePinnedMemoryCache), "pinned")
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(m.SizeMemoryCache), "memory")
}
