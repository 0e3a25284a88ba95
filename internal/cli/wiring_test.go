package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/config"
	"anyquiz-service/internal/domain"
)

func TestBuildComponentsServesQuizFromSQLite(t *testing.T) {
	wiki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary_text": ["Gophers dig.", "Gophers eat roots."]}`))
	}))
	defer wiki.Close()

	var triggered int32
	generator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keyword") == "Gopher" {
			atomic.AddInt32(&triggered, 1)
		}
	}))
	defer generator.Close()

	var cfg config.Config
	cfg.Storage.Driver = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "quiz.db")
	cfg.Content.WikiURL = wiki.URL
	cfg.Generation.Driver = "http"
	cfg.Generation.HTTPURL = generator.URL
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	comps, err := buildComponents(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer comps.Close()

	key := domain.QuizKey{Keyword: "Gopher", Source: domain.SourceWiki}
	quiz, err := comps.service.FindOrCreate(context.Background(), key)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if len(quiz.Paragraphs) != 2 || quiz.Image != app.DefaultImage {
		t.Fatalf("unexpected quiz %+v", quiz)
	}

	comps.queue.Wait()
	if atomic.LoadInt32(&triggered) != 1 {
		t.Fatalf("expected generation to be triggered once, got %d", triggered)
	}
	status, err := comps.service.Status(context.Background(), key)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Progress != int(domain.StatusReady) {
		t.Fatalf("expected READY, got %+v", status)
	}
}

func TestBuildComponentsRejectsUnreachableSQLitePath(t *testing.T) {
	var cfg config.Config
	cfg.Storage.Driver = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "missing", "\x00", "quiz.db")

	if _, err := buildComponents(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for invalid sqlite path")
	}
}
