package cache

import (
	"context"
	"time"
)

// Store holds encoded search results for a bounded time. A miss is reported
// as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
