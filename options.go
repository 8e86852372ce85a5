package gorawrcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrCache/cache"
	"github.com/Keksclan/goRawrCache/httpcache"
)

// Option configures a Pipeline.
type Option func(*settings)

type settings struct {
	cfg       Config
	cfgSet    bool
	log       zerolog.Logger
	store     cache.Store
	policies  []*httpcache.RouteBuilder
	registry  prometheus.Registerer
	tp        trace.TracerProvider
	traced    bool
	noHTTP    bool
	noHTTPSet bool
}

// WithConfig supplies the configuration. Without it the pipeline uses
// DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.cfg = cfg
		s.cfgSet = true
	}
}

// WithLogger sets the logger for the whole pipeline. Defaults to a no-op
// logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithStore injects a pre-built store, bypassing backend selection. Useful
// for tests and for sharing one store across pipelines.
func WithStore(store cache.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithPolicies declares the per-resource response cache policies.
func WithPolicies(routes ...*httpcache.RouteBuilder) Option {
	return func(s *settings) { s.policies = append(s.policies, routes...) }
}

// WithMetrics registers cache hit/miss/set/eviction counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registry = reg }
}

// WithTracing wraps the store with OpenTelemetry spans. tp may be nil to use
// the global provider.
func WithTracing(tp trace.TracerProvider) Option {
	return func(s *settings) {
		s.tp = tp
		s.traced = true
	}
}

// WithoutResponseCache disables the HTTP response cache layer regardless of
// configuration, for deterministic tests.
func WithoutResponseCache() Option {
	return func(s *settings) {
		s.noHTTP = true
		s.noHTTPSet = true
	}
}
