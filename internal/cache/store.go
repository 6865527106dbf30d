package cache

import (
	"context"
	"log/slog"
	"time"
)

// Store wraps a BytesCache with the degradation policy: the backend being
// down must never fail a request, so every backend error here turns into a
// miss or a no-op and a log line, and the caller falls through to the source
// of truth.
type Store struct {
	c BytesCache
}

func NewStore(c BytesCache) *Store {
	return &Store{c: c}
}

// Get never blocks on population; a miss is the caller's cue to compute.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.c == nil {
		return nil, false
	}
	b, ok, err := s.c.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get degraded to miss", "key", key, "error", err.Error())
		return nil, false
	}
	return b, ok
}

// GetOrSet computes on miss and caches the result. Population races are
// allowed: concurrent writers of the same key are idempotent, and duplicate
// recomputation beats lock contention.
func (s *Store) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if b, ok := s.Get(ctx, key); ok {
		return b, nil
	}
	b, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if s != nil && s.c != nil {
		if err := s.c.Set(ctx, key, b, ttl); err != nil {
			slog.Warn("cache set failed", "key", key, "error", err.Error())
		}
	}
	return b, nil
}

func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if s == nil || s.c == nil || len(keys) == 0 {
		return
	}
	if err := s.c.Delete(ctx, keys...); err != nil {
		slog.Warn("cache invalidate failed", "keys", keys, "error", err.Error())
	}
}

func (s *Store) InvalidatePrefix(ctx context.Context, prefix string) {
	if s == nil || s.c == nil || prefix == "" {
		return
	}
	if err := s.c.DeletePrefix(ctx, prefix); err != nil {
		slog.Warn("cache invalidate prefix failed", "prefix", prefix, "error", err.Error())
	}
}
