package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	"anyquiz-service/internal/infra/memory"
)

type stubContent struct {
	chunks []string
	err    error
	delay  time.Duration
	calls  int32
}

func (c *stubContent) Fetch(_ context.Context, _ domain.QuizKey) ([]string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.chunks, c.err
}

// stubGenerator stores one multiple-choice question per paragraph.
type stubGenerator struct {
	repo *memory.QuizRepository
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, job app.GenerationJob) error {
	if g.err != nil {
		return g.err
	}
	questions := make([]domain.Question, 0, len(job.Paragraphs))
	for i, p := range job.Paragraphs {
		pid := p.ID
		questions = append(questions, domain.Question{
			Prompt:      fmt.Sprintf("What does paragraph %d of %s say?", i, job.Key.Keyword),
			Answer:      fmt.Sprintf("%s fact %d", job.Key.Keyword, i),
			Type:        domain.QuestionMultipleChoice,
			ParagraphID: &pid,
		})
	}
	return g.repo.AddQuestions(ctx, job.QuizID, questions)
}

// faultyRepository fails chosen writes to exercise rollback.
type faultyRepository struct {
	*memory.QuizRepository
	failParagraphs bool
	failDelete     bool
}

var errDiskFull = errors.New("disk full")

func (r *faultyRepository) AddParagraphs(ctx context.Context, quizID int64, texts []string) ([]domain.Paragraph, error) {
	if r.failParagraphs {
		return nil, errDiskFull
	}
	return r.QuizRepository.AddParagraphs(ctx, quizID, texts)
}

func (r *faultyRepository) Delete(ctx context.Context, quizID int64) error {
	if r.failDelete {
		return errDiskFull
	}
	return r.QuizRepository.Delete(ctx, quizID)
}

// recordingCache wraps the memory cache and records every stored status.
type recordingCache struct {
	*memory.StatusCache
	mu     sync.Mutex
	stored []domain.Status
}

func (c *recordingCache) Store(ctx context.Context, key domain.QuizKey, status domain.Status) error {
	c.mu.Lock()
	c.stored = append(c.stored, status)
	c.mu.Unlock()
	return c.StatusCache.Store(ctx, key, status)
}

func (c *recordingCache) history() []domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Status(nil), c.stored...)
}

type harness struct {
	repo    *memory.QuizRepository
	cache   *recordingCache
	tracker *app.StatusTracker
	content *stubContent
	queue   *app.GenerationQueue
	service *app.QuizService
}

type harnessOptions struct {
	repo      app.QuizRepository
	policy    app.ReadyPolicy
	generator app.Generator
}

func newHarness(t *testing.T, content *stubContent, opts harnessOptions) *harness {
	t.Helper()
	repo := memory.NewQuizRepository()
	var quizzes app.QuizRepository = repo
	if opts.repo != nil {
		quizzes = opts.repo
	}

	cache := &recordingCache{StatusCache: memory.NewStatusCache(app.NewStatusLoader(quizzes), time.Minute)}
	tracker := app.NewStatusTracker(quizzes, cache, memory.NewFeedStore())

	generator := opts.generator
	if generator == nil {
		generator = &stubGenerator{repo: repo}
	}
	queue := app.NewGenerationQueue(generator, 2, 8, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	t.Cleanup(func() {
		queue.Close()
		cancel()
	})

	images := app.NewImageSelector(nil, nil, 0, 0, "")
	pipeline := app.NewAcquisitionPipeline(quizzes, tracker, content, images, queue, opts.policy)
	engine := app.NewDistractorEngine(repo, 0)
	builder := app.NewQuestionSetBuilder(repo, engine)

	return &harness{
		repo:    repo,
		cache:   cache,
		tracker: tracker,
		content: content,
		queue:   queue,
		service: app.NewQuizService(quizzes, repo, pipeline, tracker, builder),
	}
}
