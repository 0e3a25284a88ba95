package memory

import (
	"context"
	"testing"

	"anyquiz-service/internal/domain"
)

func TestFeedStoreLifecycle(t *testing.T) {
	store := NewFeedStore()

	feed := store.GetOrCreate("wiki:Go")
	if feed == nil {
		t.Fatalf("expected feed")
	}
	if again := store.GetOrCreate("wiki:Go"); again != feed {
		t.Fatalf("expected the same feed for the same key")
	}
	if _, ok := store.Get("wiki:Go"); !ok {
		t.Fatalf("expected feed present")
	}

	store.DeleteIfEmpty("wiki:Go")
	if _, ok := store.Get("wiki:Go"); ok {
		t.Fatalf("expected feed removed when empty")
	}
}

func TestFeedStorePublishWithoutWatchers(t *testing.T) {
	store := NewFeedStore()

	// no feed yet: nothing to deliver and nothing created
	store.Publish(context.Background(), "wiki:Go", domain.StatusReady)
	if _, ok := store.Get("wiki:Go"); ok {
		t.Fatalf("publish must not create feeds")
	}
}
