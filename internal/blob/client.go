package blob

import (
	"context"
	"time"
)

// Presigner mints time-limited GET URLs for objects in a single bucket.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
