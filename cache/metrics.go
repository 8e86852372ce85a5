package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a Store.
type Metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	evictions prometheus.Counter
}

// NewMetrics creates and registers the cache collectors. backend labels the
// series so in-process and distributed stores stay distinguishable.
func NewMetrics(reg prometheus.Registerer, backend string) *Metrics {
	labels := prometheus.Labels{"backend": backend}
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cache_hits_total",
			Help:        "Number of cache lookups that returned a value.",
			ConstLabels: labels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cache_misses_total",
			Help:        "Number of cache lookups that found nothing.",
			ConstLabels: labels,
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cache_sets_total",
			Help:        "Number of cache writes.",
			ConstLabels: labels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cache_tag_evictions_total",
			Help:        "Number of tag evictions performed.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.sets, m.evictions)
	}
	return m
}

// Instrumented decorates a Store with hit/miss/set/eviction counters.
type Instrumented struct {
	next Store
	m    *Metrics
}

// NewInstrumented wraps next with the given metrics.
func NewInstrumented(next Store, m *Metrics) *Instrumented {
	return &Instrumented{next: next, m: m}
}

// Get counts hits and misses.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := i.next.Get(ctx, key)
	if ok {
		i.m.hits.Inc()
	} else {
		i.m.misses.Inc()
	}
	return val, ok, err
}

// Set counts writes.
func (i *Instrumented) Set(ctx context.Context, key string, val []byte, tags []string, ttl time.Duration) error {
	i.m.sets.Inc()
	return i.next.Set(ctx, key, val, tags, ttl)
}

// EvictByTag counts evictions.
func (i *Instrumented) EvictByTag(ctx context.Context, tag string) error {
	i.m.evictions.Inc()
	return i.next.EvictByTag(ctx, tag)
}
