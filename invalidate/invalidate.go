// Package invalidate evicts cache entries when the underlying data mutates.
package invalidate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Keksclan/goRawrCache/cache"
)

// Service performs tag-based cache invalidation. Every method logs and
// swallows failures: the mutation that triggered the eviction has already
// committed, so at worst stale entries linger until their TTL.
type Service struct {
	store cache.Store
	log   zerolog.Logger
}

// NewService creates an invalidation service over the given store.
func NewService(store cache.Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// InvalidateEntity evicts the collection-level tag for entityType and, for
// each id given, the specific-resource tag "entityType:id", clearing both
// list and detail views in one call.
func (s *Service) InvalidateEntity(ctx context.Context, entityType string, ids ...string) {
	tags := make([]string, 0, len(ids)+1)
	tags = append(tags, entityType)
	for _, id := range ids {
		tags = append(tags, entityType+":"+id)
	}
	s.InvalidateByTags(ctx, tags...)
}

// InvalidateByTags evicts every entry carrying any of the given tags.
func (s *Service) InvalidateByTags(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		if err := s.store.EvictByTag(ctx, tag); err != nil {
			s.log.Warn().Err(err).Str("tag", tag).Msg("invalidate: eviction failed, stale entries persist until TTL")
		}
	}
}
