package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// feedChannelPrefix namespaces the pub/sub channels, one per quiz key.
const feedChannelPrefix = "quiz:feed:"

// FeedStore implements app.FeedRepository across instances. Watchers are
// held in local feeds; status changes travel over Redis pub/sub so a watcher
// on one instance sees advances made on another.
type FeedStore struct {
	client *redis.Client
	pubsub *redis.PubSub
	done   chan struct{}

	mu    sync.RWMutex
	feeds map[string]*app.StatusFeed
}

// NewFeedStore subscribes to status changes from every instance sharing the
// Redis server. Close releases the subscription.
func NewFeedStore(ctx context.Context, client *redis.Client) (*FeedStore, error) {
	pubsub := client.PSubscribe(ctx, feedChannelPrefix+"*")
	// wait for the confirmation so no publish after construction is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to status feeds: %w", err)
	}

	s := &FeedStore{
		client: client,
		pubsub: pubsub,
		done:   make(chan struct{}),
		feeds:  make(map[string]*app.StatusFeed),
	}
	go s.listen()
	return s, nil
}

func (s *FeedStore) listen() {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		n, err := strconv.Atoi(msg.Payload)
		if err != nil || !domain.Status(n).Valid() {
			log.Printf("ignoring status event %q on %s", msg.Payload, msg.Channel)
			continue
		}
		s.deliver(strings.TrimPrefix(msg.Channel, feedChannelPrefix), domain.Status(n))
	}
}

func (s *FeedStore) GetOrCreate(key string) *app.StatusFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[key]; ok {
		return feed
	}
	feed := app.NewStatusFeed(key)
	s.feeds[key] = feed
	return feed
}

func (s *FeedStore) Get(key string) (*app.StatusFeed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[key]
	return feed, ok
}

func (s *FeedStore) DeleteIfEmpty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[key]; ok && feed.IsEmpty() {
		delete(s.feeds, key)
	}
}

// Publish delivers locally right away and announces the change to the other
// instances. The echo of our own message is a no-op since feeds never move back.
func (s *FeedStore) Publish(ctx context.Context, key string, status domain.Status) {
	s.deliver(key, status)
	if err := s.client.Publish(ctx, feedChannelPrefix+key, int(status)).Err(); err != nil {
		log.Printf("publish status %s: %v", key, err)
	}
}

func (s *FeedStore) deliver(key string, status domain.Status) {
	if feed, ok := s.Get(key); ok {
		feed.Publish(status)
	}
}

// Close stops listening for status events.
func (s *FeedStore) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}
