package loader

import (
	"io"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/woozymasta/hydroview/internal/geo"
)

// Metrics counts asset loads.
type Metrics struct {
	Registry metrics.Registry

	fetchOK     metrics.Counter
	fetchFailed metrics.Counter
	fetchTime   metrics.Timer
	transform   metrics.Timer
}

func newMetrics(cache *geo.TransformCache) *Metrics {
	r := metrics.NewRegistry()

	m := &Metrics{
		Registry:    r,
		fetchOK:     metrics.NewRegisteredCounter("asset.fetch.ok", r),
		fetchFailed: metrics.NewRegisteredCounter("asset.fetch.failed", r),
		fetchTime:   metrics.NewRegisteredTimer("asset.fetch.time", r),
		transform:   metrics.NewRegisteredTimer("geometry.transform.time", r),
	}

	metrics.NewRegisteredFunctionalGauge("geometry.cache.hits", r, func() int64 {
		return int64(cache.Metrics().Hits)
	})
	metrics.NewRegisteredFunctionalGauge("geometry.cache.misses", r, func() int64 {
		return int64(cache.Metrics().Misses)
	})
	metrics.NewRegisteredFunctionalGauge("geometry.cache.size", r, func() int64 {
		return int64(cache.Len())
	})

	return m
}

// WriteJSON dumps the registry.
func (m *Metrics) WriteJSON(w io.Writer) {
	metrics.WriteJSONOnce(m.Registry, w)
}

// Loaded returns the number of successful fetches.
func (m *Metrics) Loaded() int64 {
	return m.fetchOK.Count()
}

// Failed returns the number of failed fetches.
func (m *Metrics) Failed() int64 {
	return m.fetchFailed.Count()
}
