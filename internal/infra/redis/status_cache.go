package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"anyquiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// StatusLoader fetches quiz status from the backing store.
type StatusLoader interface {
	LoadStatus(ctx context.Context, key domain.QuizKey) (domain.Status, error)
}

// storeIfLater only overwrites a cached status with a later one.
// KEYS[1] status key, ARGV[1] status, ARGV[2] ttl in milliseconds (0 keeps it forever).
var storeIfLater = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// StatusCache caches quiz status in Redis so every instance polls the same
// value. Keys look like quiz:status:{source}:{keyword}.
type StatusCache struct {
	client *redis.Client
	loader StatusLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewStatusCache(client *redis.Client, loader StatusLoader, ttl time.Duration) *StatusCache {
	return &StatusCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *StatusCache) Status(ctx context.Context, key domain.QuizKey) (domain.Status, error) {
	if status, ok := c.lookup(ctx, key); ok {
		return status, nil
	}

	result, err, _ := c.sf.Do(key.String(), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if status, ok := c.lookup(ctx, key); ok {
			return status, nil
		}

		status, err := c.loader.LoadStatus(ctx, key)
		if err != nil {
			return domain.Status(0), err
		}
		_ = c.Store(ctx, key, status)
		return status, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(domain.Status), nil
}

func (c *StatusCache) Store(ctx context.Context, key domain.QuizKey, status domain.Status) error {
	ttl := c.ttlWithJitter()
	err := storeIfLater.Run(ctx, c.client, []string{c.key(key)}, int(status), ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store status %s: %w", key, err)
	}
	return nil
}

func (c *StatusCache) Forget(ctx context.Context, key domain.QuizKey) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *StatusCache) lookup(ctx context.Context, key domain.QuizKey) (domain.Status, bool) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !domain.Status(n).Valid() {
		return 0, false
	}
	return domain.Status(n), true
}

func (c *StatusCache) key(key domain.QuizKey) string {
	return "quiz:status:" + key.String()
}

func (c *StatusCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
