package cache

import (
	"context"
	"time"
)

// Фиксированные ярусы TTL по классам сущностей: одиночные сущности — MEDIUM,
// списки/выборки — SHORT (высокая кардинальность фильтров), агрегаты — LONG
// и VERY_LONG.
const (
	TTLShort    = 5 * time.Minute
	TTLMedium   = 30 * time.Minute
	TTLLong     = time.Hour
	TTLVeryLong = 24 * time.Hour
)

// BytesCache is the backend contract. Implementations must make single-key
// operations atomic; the callers rely on nothing stronger.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix drops every key with the given prefix, O(matching keys).
	DeletePrefix(ctx context.Context, prefix string) error
}
