package memory

import (
	"context"
	"sync"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
)

// FeedStore is an in-memory implementation of app.FeedRepository.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[string]*app.StatusFeed
}

func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds: make(map[string]*app.StatusFeed),
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
	feed, ok := s.feeds[key]
	if !ok {
		return
	}
	if feed.IsEmpty() {
		delete(s.feeds, key)
	}
}

// Publish hands status to the local feed for key, if anyone is watching.
func (s *FeedStore) Publish(_ context.Context, key string, status domain.Status) {
	if feed, ok := s.Get(key); ok {
		feed.Publish(status)
	}
}
