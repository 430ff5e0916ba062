// Package cache provides the small key/value stores used for exchange-rate
// quotes and provider certificates.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key/value store. A miss is reported as ok == false, not as an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
