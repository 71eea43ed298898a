// Package dedup provides a fast-path webhook deduplication filter using a
// Redis SET with TTL. Providers deliver at least once; this filter drops most
// redeliveries before they reach the pipeline. The authoritative guard
// remains the conditional message insert, so a Redis miss is never a
// correctness problem.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen provider message id is remembered.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "beya:seen:"
)

// Filter tracks which provider message ids have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the id has NOT been seen before. When true, the id is
// marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, id)

	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}
