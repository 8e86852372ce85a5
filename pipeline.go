package gorawrcache

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Keksclan/goRawrCache/cache"
	"github.com/Keksclan/goRawrCache/conditional"
	"github.com/Keksclan/goRawrCache/httpcache"
	"github.com/Keksclan/goRawrCache/invalidate"
)

// Pipeline assembles the caching layers around an application's handlers.
//
// The read path runs, outermost first: conditional evaluator → response
// cache → application handler; the response is stored on the way out and
// fingerprinted before it leaves. Mutating requests bypass both caches and,
// on success, evict the tags of the resource they changed.
type Pipeline struct {
	cfg      Config
	log      zerolog.Logger
	store    cache.Store
	base     cache.Store // unwrapped backend, for Close
	keys     *cache.KeyGenerator
	resolver *httpcache.Resolver
	inval    *invalidate.Service

	disableHTTP bool
}

// New creates a Pipeline by applying the supplied functional options and
// selecting a cache backend per the configuration.
//
// Example:
//
//	p, err := gorawrcache.New(
//		gorawrcache.WithConfig(cfg),
//		gorawrcache.WithLogger(logger),
//		gorawrcache.WithPolicies(
//			httpcache.Route("People.List").Exact("/api/people").Policy(httpcache.Policy{
//				TTL: time.Minute, VaryByQuery: []string{"page"}, Tag: "People",
//			}),
//		),
//	)
//	handler := p.Handler(router)
func New(opts ...Option) (*Pipeline, error) {
	s := settings{log: zerolog.Nop()}
	for _, o := range opts {
		o(&s)
	}
	if !s.cfgSet {
		s.cfg = DefaultConfig()
	}

	store := s.store
	if store == nil {
		var err error
		store, err = cache.NewStore(cache.BackendConfig{
			Distributed:   s.cfg.Distributed,
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			MaxBytes:      s.cfg.MaxBytes,
			MaxEntryBytes: s.cfg.MaxEntryBytes,
		}, s.log)
		if err != nil {
			return nil, err
		}
	}

	base := store
	if s.registry != nil {
		store = cache.NewInstrumented(store, cache.NewMetrics(s.registry, backendName(store)))
	}
	if s.traced {
		store = cache.NewTraced(store, s.tp)
	}

	disableHTTP := s.cfg.DisableResponseCache
	if s.noHTTPSet {
		disableHTTP = s.noHTTP
	}

	return &Pipeline{
		cfg:         s.cfg,
		log:         s.log,
		store:       store,
		base:        base,
		keys:        cache.NewKeyGenerator(s.cfg.KeyPrefix),
		resolver:    httpcache.NewResolver(s.policies...),
		inval:       invalidate.NewService(store, s.log),
		disableHTTP: disableHTTP,
	}, nil
}

// Handler wraps next with the full caching pipeline.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	h := invalidate.Middleware(p.inval, p.resolver)(next)

	httpOpts := []httpcache.Option{
		httpcache.WithLogger(p.log),
		httpcache.WithMaxEntryBytes(p.cfg.MaxEntryBytes),
		httpcache.WithDefaultTTL(p.cfg.DefaultTTL()),
	}
	if p.disableHTTP {
		httpOpts = append(httpOpts, httpcache.Disabled())
	}
	h = httpcache.New(p.store, p.keys, p.resolver, httpOpts...)(h)

	return conditional.Middleware()(h)
}

// Store returns the selected cache store, with any metrics/tracing wrappers
// applied. Application code uses it for query-result caching stages.
func (p *Pipeline) Store() cache.Store {
	return p.store
}

// Keys returns the pipeline's key generator.
func (p *Pipeline) Keys() *cache.KeyGenerator {
	return p.keys
}

// Invalidator returns the invalidation service for manual eviction from
// application code (e.g. bulk imports that bypass the HTTP surface).
func (p *Pipeline) Invalidator() *invalidate.Service {
	return p.inval
}

// Close releases the underlying store's resources, if any.
func (p *Pipeline) Close() error {
	if c, ok := p.base.(cache.Closer); ok {
		return c.Close()
	}
	return nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (p *Pipeline) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// backendName labels metrics series by the concrete backend.
func backendName(s cache.Store) string {
	switch s.(type) {
	case *cache.Redis:
		return "redis"
	case *cache.Memory:
		return "memory"
	default:
		return "custom"
	}
}
