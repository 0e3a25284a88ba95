package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"anyquiz-service/internal/domain"
)

// StatusCache is a read-through cache of quiz status (in-memory, Redis).
type StatusCache interface {
	Status(ctx context.Context, key domain.QuizKey) (domain.Status, error)
	// Store records status unless a later one is already cached.
	Store(ctx context.Context, key domain.QuizKey, status domain.Status) error
	Forget(ctx context.Context, key domain.QuizKey) error
}

// FeedRepository abstracts where live status feeds are kept and how status
// changes reach them.
type FeedRepository interface {
	GetOrCreate(key string) *StatusFeed
	DeleteIfEmpty(key string)
	// Publish delivers status to the feed for key, wherever its watchers are.
	Publish(ctx context.Context, key string, status domain.Status)
}

// StatusTracker owns the quiz status state machine.
type StatusTracker struct {
	quizzes QuizRepository
	cache   StatusCache
	feeds   FeedRepository
}

// NewStatusTracker builds a tracker. cache and feeds may be nil.
func NewStatusTracker(quizzes QuizRepository, cache StatusCache, feeds FeedRepository) *StatusTracker {
	return &StatusTracker{quizzes: quizzes, cache: cache, feeds: feeds}
}

// Advance moves a quiz to target. Targets at or below the current status
// fail with ErrInvalidTransition.
func (t *StatusTracker) Advance(ctx context.Context, quizID int64, target domain.Status) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %d", domain.ErrInvalidTransition, int(target))
	}
	quiz, err := t.quizzes.AdvanceStatus(ctx, quizID, target)
	if err != nil {
		return err
	}
	t.observe(ctx, quiz.Key, quiz.Status)
	verboseLog("quiz %d (%s) advanced to %s", quizID, quiz.Key, quiz.Status)
	return nil
}

// Track records the status of a freshly reserved quiz.
func (t *StatusTracker) Track(ctx context.Context, quiz domain.Quiz) {
	t.observe(ctx, quiz.Key, quiz.Status)
}

// Query is the polling read path. It never triggers acquisition.
func (t *StatusTracker) Query(ctx context.Context, key domain.QuizKey) (domain.QuizStatus, error) {
	status, err := t.current(ctx, key)
	if err != nil {
		return domain.QuizStatus{}, err
	}
	return status.View(), nil
}

// Forget drops cached state for a key whose record was rolled back.
func (t *StatusTracker) Forget(ctx context.Context, key domain.QuizKey) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Forget(ctx, key); err != nil {
		log.Printf("forget cached status %s: %v", key, err)
	}
}

// Watch subscribes to status changes for key. The first value is the
// current status. The caller must invoke the returned cancel function.
func (t *StatusTracker) Watch(ctx context.Context, key domain.QuizKey) (<-chan domain.QuizStatus, func(), error) {
	if t.feeds == nil {
		return nil, nil, errors.New("status feeds not configured")
	}

	// Subscribe before reading so an advance in between still reaches us.
	feed, ch, unsubscribe := t.subscribe(key.String())
	cancel := func() {
		unsubscribe()
		t.feeds.DeleteIfEmpty(key.String())
	}

	current, err := t.current(ctx, key)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	feed.seed(current)
	return ch, cancel, nil
}

// subscribe retries when the feed was dropped as empty before the
// subscription landed.
func (t *StatusTracker) subscribe(key string) (*StatusFeed, chan domain.QuizStatus, func()) {
	for {
		feed := t.feeds.GetOrCreate(key)
		ch, unsubscribe := feed.subscribe()
		if t.feeds.GetOrCreate(key) == feed {
			return feed, ch, unsubscribe
		}
		unsubscribe()
	}
}

func (t *StatusTracker) current(ctx context.Context, key domain.QuizKey) (domain.Status, error) {
	if t.cache != nil {
		return t.cache.Status(ctx, key)
	}
	quiz, err := t.quizzes.FindByKey(ctx, key)
	if err != nil {
		return 0, err
	}
	return quiz.Status, nil
}

func (t *StatusTracker) observe(ctx context.Context, key domain.QuizKey, status domain.Status) {
	if t.cache != nil {
		if err := t.cache.Store(ctx, key, status); err != nil {
			log.Printf("cache status %s: %v", key, err)
		}
	}
	if t.feeds != nil {
		t.feeds.Publish(ctx, key.String(), status)
	}
}

// StatusLoader adapts a QuizRepository into the loader the status caches fill from.
type StatusLoader struct {
	quizzes QuizRepository
}

func NewStatusLoader(quizzes QuizRepository) *StatusLoader {
	return &StatusLoader{quizzes: quizzes}
}

func (l *StatusLoader) LoadStatus(ctx context.Context, key domain.QuizKey) (domain.Status, error) {
	quiz, err := l.quizzes.FindByKey(ctx, key)
	if err != nil {
		return 0, err
	}
	return quiz.Status, nil
}
