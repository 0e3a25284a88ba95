package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/config"
	"anyquiz-service/internal/domain"
	"anyquiz-service/internal/infra/content"
	"anyquiz-service/internal/infra/generation"
	"anyquiz-service/internal/infra/imagesearch"
	"anyquiz-service/internal/infra/memory"
	pgstore "anyquiz-service/internal/infra/postgres"
	rediscache "anyquiz-service/internal/infra/redis"
	"anyquiz-service/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// quizStore is what every storage backend provides.
type quizStore interface {
	app.QuizRepository
	app.QuestionRepository
	app.AnswerPool
	generation.QuestionWriter
}

// components holds the wired service and what must be released on shutdown.
type components struct {
	service *app.QuizService
	queue   *app.GenerationQueue
	closers []func()
}

func (c *components) Close() {
	if c.queue != nil {
		c.queue.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.Config, c *components) (quizStore, error) {
	switch cfg.StorageDriver() {
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		log.Printf("using postgres quiz store")
		return pgstore.NewQuizRepository(pool), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		repo, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		c.closers = append(c.closers, func() { _ = repo.Close() })
		log.Printf("using sqlite quiz store at %s", cfg.SQLite.Path)
		return repo, nil
	default:
		log.Printf("using in-memory quiz store")
		return memory.NewQuizRepository(), nil
	}
}

func newContentFetcher(cfg config.Config) app.ContentFetcher {
	client := &http.Client{Timeout: config.TTLDuration(cfg.Content.Timeout, content.DefaultTimeout)}
	router := content.NewRouter()

	var wiki content.Fallback
	if cfg.Content.WikiURL != "" {
		wiki = append(wiki, content.NewWikiClient(cfg.Content.WikiURL, client))
	}
	if cfg.Content.WikiPageURL != "" {
		wiki = append(wiki, content.NewWikiPageClient(cfg.Content.WikiPageURL, client))
	}
	if len(wiki) > 0 {
		router.Register(domain.SourceWiki, wiki)
	}
	if cfg.Content.SolrURL != "" {
		router.Register(domain.SourceSolrURL, content.NewSolrClient(cfg.Content.SolrURL, client))
	}
	return router
}

func newImageSelector(cfg config.Config) *app.ImageSelector {
	if cfg.Images.APIKey == "" || cfg.Images.SearchEngine == "" {
		log.Printf("image search not configured, using %s", cfg.Images.Default)
		return app.NewImageSelector(nil, nil, cfg.Images.MinBytes, cfg.Images.MaxTries, cfg.Images.Default)
	}
	endpoint := cfg.Images.Endpoint
	if endpoint == "" {
		endpoint = imagesearch.DefaultEndpoint
	}
	client := &http.Client{Timeout: 10 * time.Second}
	searcher := imagesearch.NewGoogleClient(endpoint, cfg.Images.APIKey, cfg.Images.SearchEngine, client)
	return app.NewImageSelector(searcher, imagesearch.NewHeadSizer(client), cfg.Images.MinBytes, cfg.Images.MaxTries, cfg.Images.Default)
}

// noopGenerator leaves quizzes at GENERATION_BEGUN when generation is disabled.
type noopGenerator struct{}

func (noopGenerator) Generate(context.Context, app.GenerationJob) error { return nil }

func newGenerator(cfg config.Config, store quizStore) app.Generator {
	switch cfg.Generation.Driver {
	case "openai":
		return generation.NewOpenAIGenerator(generation.OpenAIConfig{
			APIKey:    cfg.Generation.OpenAI.APIKey,
			BaseURL:   cfg.Generation.OpenAI.BaseURL,
			Model:     cfg.Generation.OpenAI.Model,
			Questions: cfg.Generation.OpenAI.Questions,
		}, store)
	case "http":
		return generation.NewHTTPTrigger(cfg.Generation.HTTPURL, nil)
	default:
		return noopGenerator{}
	}
}

// buildComponents wires the quiz service from config. The caller owns the
// returned components and must Close them.
func buildComponents(ctx context.Context, cfg config.Config) (*components, error) {
	app.SetVerbose(cfg.Verbose)
	c := &components{}

	store, err := openStore(ctx, cfg, c)
	if err != nil {
		c.Close()
		return nil, err
	}

	statusTTL := config.TTLDuration(cfg.Status.TTL, 30*time.Second)
	loader := app.NewStatusLoader(store)
	var tracker *app.StatusTracker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = client.Close() })
		feeds, err := rediscache.NewFeedStore(ctx, client)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = feeds.Close() })
		tracker = app.NewStatusTracker(store, rediscache.NewStatusCache(client, loader, statusTTL), feeds)
		log.Printf("status cache backed by redis at %s", cfg.Redis.Addr)
	} else {
		tracker = app.NewStatusTracker(store, memory.NewStatusCache(loader, statusTTL), memory.NewFeedStore())
	}

	c.queue = app.NewGenerationQueue(newGenerator(cfg, store),
		cfg.Generation.Workers, cfg.Generation.QueueSize,
		config.TTLDuration(cfg.Generation.Timeout, 5*time.Minute))
	c.queue.SetEnqueueWait(config.TTLDuration(cfg.Generation.EnqueueWait, app.DefaultEnqueueWait))
	c.queue.Start(ctx)

	pipeline := app.NewAcquisitionPipeline(store, tracker, newContentFetcher(cfg), newImageSelector(cfg), c.queue, app.ReadyPolicy(cfg.Generation.ReadyPolicy))
	builder := app.NewQuestionSetBuilder(store, app.NewDistractorEngine(store, cfg.Distractors.MaxDraws))
	c.service = app.NewQuizService(store, store, pipeline, tracker, builder)
	return c, nil
}
