package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Traced decorates a Store with an OpenTelemetry span per operation. Tracing
// is entirely optional: with a nil TracerProvider the global provider is
// used, which is a no-op unless the application configured one.
type Traced struct {
	next Store
	tp   trace.TracerProvider
}

// NewTraced wraps next with span creation. tp may be nil.
func NewTraced(next Store, tp trace.TracerProvider) *Traced {
	return &Traced{next: next, tp: tp}
}

func (t *Traced) tracer() trace.Tracer {
	tp := t.tp
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer("github.com/Keksclan/goRawrCache/cache")
}

// Get traces a lookup and records whether it hit.
func (t *Traced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := t.tracer().Start(ctx, "cache.Get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	val, ok, err := t.next.Get(ctx, key)
	span.SetAttributes(
		attribute.String("cache.key", key),
		attribute.Bool("cache.hit", ok),
	)
	return val, ok, err
}

// Set traces a write.
func (t *Traced) Set(ctx context.Context, key string, val []byte, tags []string, ttl time.Duration) error {
	ctx, span := t.tracer().Start(ctx, "cache.Set", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.key", key),
		attribute.Int("cache.value_size", len(val)),
		attribute.StringSlice("cache.tags", tags),
	)
	return t.next.Set(ctx, key, val, tags, ttl)
}

// EvictByTag traces a tag eviction.
func (t *Traced) EvictByTag(ctx context.Context, tag string) error {
	ctx, span := t.tracer().Start(ctx, "cache.EvictByTag", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(attribute.String("cache.tag", tag))
	return t.next.EvictByTag(ctx, tag)
}
