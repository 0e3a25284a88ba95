package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"anyquiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// StatusLoader fetches quiz status from the backing store.
type StatusLoader interface {
	LoadStatus(ctx context.Context, key domain.QuizKey) (domain.Status, error)
}

// StatusCache caches quiz status with TTL to keep polling off the database.
type StatusCache struct {
	loader StatusLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[domain.QuizKey]cachedStatus
}

type cachedStatus struct {
	status    domain.Status
	expiresAt time.Time
}

func NewStatusCache(loader StatusLoader, ttl time.Duration) *StatusCache {
	return &StatusCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.QuizKey]cachedStatus),
	}
}

func (c *StatusCache) Status(ctx context.Context, key domain.QuizKey) (domain.Status, error) {
	if status, ok := c.lookup(key); ok {
		return status, nil
	}

	result, err, _ := c.sf.Do(key.String(), func() (interface{}, error) {
		if status, ok := c.lookup(key); ok {
			return status, nil
		}

		status, err := c.loader.LoadStatus(ctx, key)
		if err != nil {
			return domain.Status(0), err
		}
		c.put(key, status)
		return status, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(domain.Status), nil
}

// Store keeps the later of the cached and given status.
func (c *StatusCache) Store(_ context.Context, key domain.QuizKey, status domain.Status) error {
	c.put(key, status)
	return nil
}

func (c *StatusCache) Forget(_ context.Context, key domain.QuizKey) error {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
	return nil
}

func (c *StatusCache) lookup(key domain.QuizKey) (domain.Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return 0, false
	}
	return entry.status, true
}

func (c *StatusCache) put(key domain.QuizKey, status domain.Status) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) && entry.status > status {
		return
	}
	c.cache[key] = cachedStatus{status: status, expiresAt: now.Add(c.ttlWithJitter())}
}

// ttlWithJitter must be called with mu held; rnd is not safe for concurrent use.
func (c *StatusCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
