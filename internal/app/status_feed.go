package app

import (
	"sync"

	"anyquiz-service/internal/domain"
)

// unsent marks a subscriber that has not received any status yet.
const unsent = domain.Status(-1)

// StatusFeed fans status changes for one quiz key out to websocket subscribers.
// Each subscriber sees a strictly increasing sequence of statuses.
type StatusFeed struct {
	key         string
	mu          sync.Mutex
	last        domain.Status
	seen        bool
	subscribers map[chan domain.QuizStatus]domain.Status
}

// NewStatusFeed is exported for infrastructure layers that keep feeds.
func NewStatusFeed(key string) *StatusFeed {
	return &StatusFeed{
		key:         key,
		subscribers: make(map[chan domain.QuizStatus]domain.Status),
	}
}

// Key returns the quiz key the feed belongs to.
func (f *StatusFeed) Key() string {
	return f.key
}

// subscribe registers a subscriber. It only receives something once the feed
// has a status, either from Publish or from seed.
func (f *StatusFeed) subscribe() (chan domain.QuizStatus, func()) {
	ch := make(chan domain.QuizStatus, 8)

	f.mu.Lock()
	f.subscribers[ch] = unsent
	if f.seen {
		f.fanOutLocked()
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// seed folds in a status read from the store after subscribing, so an advance
// racing with the read is never lost.
func (f *StatusFeed) seed(current domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seen || current > f.last {
		f.last = current
		f.seen = true
	}
	f.fanOutLocked()
}

// Publish delivers status to subscribers unless it is not later than the last one.
func (f *StatusFeed) Publish(status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen && status <= f.last {
		return
	}
	f.last = status
	f.seen = true
	f.fanOutLocked()
}

func (f *StatusFeed) fanOutLocked() {
	view := f.last.View()
	for ch, sent := range f.subscribers {
		if sent >= f.last {
			continue
		}
		select {
		case ch <- view:
		default:
			// drop the stale update so a slow client never blocks the tracker
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
		f.subscribers[ch] = f.last
	}
}

// IsEmpty reports whether the feed has no subscribers.
func (f *StatusFeed) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers) == 0
}
