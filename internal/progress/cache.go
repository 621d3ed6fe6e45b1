package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "doneratio:"

// CachedSource is a Redis read-through layer in front of another
// Source. Hits are served from cache; the misses still go to the
// underlying source in one batched call, and resolved values are
// written back with a TTL. Unknown ids are not cached.
type CachedSource struct {
	client *redis.Client
	source Source
	ttl    time.Duration
}

func NewCachedSource(client *redis.Client, source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{client: client, source: source, ttl: ttl}
}

func cacheKey(id int64) string {
	return cacheKeyPrefix + strconv.FormatInt(id, 10)
}

func (c *CachedSource) DoneRatios(ctx context.Context, ids []int64) (map[int64]int, error) {
	ratios := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return ratios, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		// Cache trouble must not break reads; fall through to the source.
		cached = make([]any, len(ids))
	}

	missing := make([]int64, 0)
	for i, id := range ids {
		raw, ok := cached[i].(string)
		if !ok {
			missing = append(missing, id)
			continue
		}
		ratio, err := strconv.Atoi(raw)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		ratios[id] = ratio
	}
	if len(missing) == 0 {
		return ratios, nil
	}

	resolved, err := c.source.DoneRatios(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve done ratios: %w", err)
	}

	pipe := c.client.Pipeline()
	for id, ratio := range resolved {
		ratios[id] = ratio
		pipe.Set(ctx, cacheKey(id), strconv.Itoa(ratio), c.ttl)
	}
	// Writeback failure only costs a future cache hit.
	_, _ = pipe.Exec(ctx)
	return ratios, nil
}
