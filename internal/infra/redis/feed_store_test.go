package redis

import (
	"context"
	"testing"
	"time"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	"anyquiz-service/internal/infra/memory"
)

func TestFeedStoreCarriesStatusAcrossInstances(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	feedsA, err := NewFeedStore(ctx, client)
	if err != nil {
		t.Fatalf("feed store a: %v", err)
	}
	defer feedsA.Close()
	feedsB, err := NewFeedStore(ctx, client)
	if err != nil {
		t.Fatalf("feed store b: %v", err)
	}
	defer feedsB.Close()

	// two instances over one quiz store, each with its own feeds
	repo := memory.NewQuizRepository()
	instanceA := app.NewStatusTracker(repo, nil, feedsA)
	instanceB := app.NewStatusTracker(repo, nil, feedsB)

	key := domain.QuizKey{Keyword: "Go", Source: domain.SourceWiki}
	quiz, _ := repo.Reserve(ctx, key)

	ch, cancel, err := instanceB.Watch(ctx, key)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()
	if first := <-ch; first.Progress != int(domain.StatusRequestReceived) {
		t.Fatalf("expected initial status, got %+v", first)
	}

	if err := instanceA.Advance(ctx, quiz.ID, domain.StatusMediaRetrieved); err != nil {
		t.Fatalf("advance: %v", err)
	}
	select {
	case update := <-ch:
		if update.Progress != int(domain.StatusMediaRetrieved) {
			t.Fatalf("expected media retrieved, got %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("advance on another instance never reached the watcher")
	}
}

func TestFeedStoreIgnoresBadEventsAndDropsEmptyFeeds(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	feeds, err := NewFeedStore(ctx, client)
	if err != nil {
		t.Fatalf("feed store: %v", err)
	}
	defer feeds.Close()

	feed := feeds.GetOrCreate("wiki:Go")
	if err := client.Publish(ctx, feedChannelPrefix+"wiki:Go", "garbage").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	feeds.Publish(ctx, "wiki:Go", domain.StatusMediaSplit)

	if again := feeds.GetOrCreate("wiki:Go"); again != feed {
		t.Fatalf("expected the same feed for the same key")
	}
	feeds.DeleteIfEmpty("wiki:Go")
	if _, ok := feeds.Get("wiki:Go"); ok {
		t.Fatalf("expected feed removed when empty")
	}
}
