// Package metrics wires pkg/engine's narrow Sink interface to Prometheus: a
// single vector per metric shape (counter or gauge), labeled rather than one
// Prometheus object per named metric, so adding a new engine.MetricXxx
// constant never requires touching this file.
//
// Registry also satisfies internal/dispatch.StatsSource for the ASCII
// `stats` command, via an atomic mirror kept alongside every Prometheus
// update — Prometheus counters do not expose a cheap synchronous read, and
// the wire protocol's STAT lines need one.
//
// © 2025 cuckoomc authors. MIT License.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuckoomc/cuckoomc/pkg/engine"
)

// Registry implements engine.Sink and dispatch.StatsSource over a
// Prometheus registry.
type Registry struct {
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec

	mu      sync.RWMutex
	mirror  map[string]*atomic.Uint64
	gaugeMu sync.RWMutex
	gauge   map[string]float64

	liveFn func() float64
}

// New builds a Registry and registers its collectors with reg. liveItems is
// polled on every Prometheus scrape to report engine.MetricItemsLive without
// requiring the table to push gauge updates itself.
func New(reg *prometheus.Registry, liveItems func() float64) *Registry {
	r := &Registry{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuckoomc",
			Name:      "events_total",
			Help:      "Count of cache engine events, labeled by event name.",
		}, []string{"event"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cuckoomc",
			Name:      "gauge",
			Help:      "Point-in-time engine gauges, labeled by gauge name.",
		}, []string{"gauge"}),
		mirror: make(map[string]*atomic.Uint64),
		gauge:  make(map[string]float64),
		liveFn: liveItems,
	}

	reg.MustRegister(r.counters, r.gauges)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "cuckoomc",
		Name:      "items_live",
		Help:      "Number of currently occupied table slots.",
	}, liveItems))

	return r
}

// Incr satisfies engine.Sink.
func (r *Registry) Incr(name string, delta int64) {
	r.counters.WithLabelValues(name).Add(float64(delta))
	r.counterFor(name).Add(uint64(delta))
}

// Set satisfies engine.Sink.
func (r *Registry) Set(name string, value float64) {
	r.gauges.WithLabelValues(name).Set(value)
	r.gaugeMu.Lock()
	r.gauge[name] = value
	r.gaugeMu.Unlock()
}

func (r *Registry) counterFor(name string) *atomic.Uint64 {
	r.mu.RLock()
	c, ok := r.mirror[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.mirror[name]; ok {
		return c
	}
	c = &atomic.Uint64{}
	r.mirror[name] = c
	return c
}

// Snapshot satisfies internal/dispatch.StatsSource, rendering every counter
// and gauge observed so far as decimal strings, plus the live item count.
func (r *Registry) Snapshot() map[string]string {
	out := make(map[string]string)

	r.mu.RLock()
	for name, c := range r.mirror {
		out[name] = strconv.FormatUint(c.Load(), 10)
	}
	r.mu.RUnlock()

	r.gaugeMu.RLock()
	for name, v := range r.gauge {
		out[name] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	r.gaugeMu.RUnlock()

	out[engine.MetricItemsLive] = strconv.FormatFloat(r.liveFn(), 'f', 0, 64)
	return out
}
