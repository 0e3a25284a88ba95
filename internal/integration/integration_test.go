package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	pgstore "anyquiz-service/internal/infra/postgres"
	pgmigrations "anyquiz-service/internal/infra/postgres/migrations"
	infraredis "anyquiz-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

type staticContent []string

func (c staticContent) Fetch(_ context.Context, _ domain.QuizKey) ([]string, error) {
	return c, nil
}

// writerGenerator stores one multiple-choice question per paragraph.
type writerGenerator struct {
	repo *pgstore.QuizRepository
}

func (g writerGenerator) Generate(ctx context.Context, job app.GenerationJob) error {
	questions := make([]domain.Question, 0, len(job.Paragraphs))
	for i, p := range job.Paragraphs {
		pid := p.ID
		questions = append(questions, domain.Question{
			Prompt:      fmt.Sprintf("Fact %d about %s?", i, job.Key.Keyword),
			Answer:      fmt.Sprintf("%s answer %d", job.Key.Keyword, i),
			Type:        domain.QuestionMultipleChoice,
			ParagraphID: &pid,
		})
	}
	return g.repo.AddQuestions(ctx, job.QuizID, questions)
}

func TestAcquireQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateStore(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	repo := pgstore.NewQuizRepository(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	feeds, err := infraredis.NewFeedStore(ctx, redisClient)
	if err != nil {
		t.Fatalf("feed store: %v", err)
	}
	defer feeds.Close()

	loader := app.NewStatusLoader(repo)
	tracker := app.NewStatusTracker(repo, infraredis.NewStatusCache(redisClient, loader, time.Minute), feeds)
	queue := app.NewGenerationQueue(writerGenerator{repo: repo}, 2, 4, 30*time.Second)
	queue.Start(ctx)
	defer queue.Close()

	content := staticContent{"Postgres stores rows.", "Redis caches status."}
	pipeline := app.NewAcquisitionPipeline(repo, tracker, content, app.NewImageSelector(nil, nil, 0, 0, ""), queue, app.ReadyOnCompletion)
	builder := app.NewQuestionSetBuilder(repo, app.NewDistractorEngine(repo, 0))
	service := app.NewQuizService(repo, repo, pipeline, tracker, builder)

	key := domain.QuizKey{Keyword: "Databases", Source: domain.SourceWiki}
	if _, err := service.Status(ctx, key); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found before acquisition, got %v", err)
	}

	quiz, err := service.FindOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if quiz.ReadCount != 1 || len(quiz.Paragraphs) != 2 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	queue.Wait()

	status, err := service.Status(ctx, key)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Progress != int(domain.StatusReady) {
		t.Fatalf("expected READY from redis cache, got %+v", status)
	}

	again, err := service.FindOrCreate(ctx, key)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if again.ID != quiz.ID || again.ReadCount != 2 {
		t.Fatalf("expected cache hit with read count 2, got %+v", again)
	}

	views, paragraphs, err := service.Study(ctx, key)
	if err != nil {
		t.Fatalf("study: %v", err)
	}
	if len(views) != 2 || len(paragraphs) != 2 || views[0].ParagraphID == nil {
		t.Fatalf("unexpected study set %+v %+v", views, paragraphs)
	}

	ok, err := service.GradeAnswer(ctx, views[0].ID, "Databases answer 0")
	if err != nil || !ok {
		t.Fatalf("expected correct grade, got %v %v", ok, err)
	}
	edit, err := service.EditQuestion(ctx, views[0].ID, "Which store?", "Postgres")
	if err != nil || edit.PrevAnswer != "Databases answer 0" {
		t.Fatalf("unexpected edit %+v %v", edit, err)
	}
	if err := service.DeleteQuestion(ctx, views[0].ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if _, err := service.GradeAnswer(ctx, views[0].ID, "Postgres"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}

	page, err := service.ListQuizzes(ctx, 0, -1, domain.SortAlpha)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Quizzes) != 1 || page.End != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestPostgresRepositoryRules(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateStore(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	repo := pgstore.NewQuizRepository(pool)

	keys := []string{"beta", "Alpha", "alpha"}
	ids := make(map[string]int64)
	for _, kw := range keys {
		quiz, err := repo.Reserve(ctx, domain.QuizKey{Keyword: kw, Source: domain.SourceWiki})
		if err != nil {
			t.Fatalf("reserve %s: %v", kw, err)
		}
		ids[kw] = quiz.ID
		for s := domain.StatusMediaRetrieved; s <= domain.StatusReady; s++ {
			if _, err := repo.AdvanceStatus(ctx, quiz.ID, s); err != nil {
				t.Fatalf("advance %s to %s: %v", kw, s, err)
			}
		}
	}

	if _, err := repo.Reserve(ctx, domain.QuizKey{Keyword: "beta", Source: domain.SourceWiki}); !errors.Is(err, domain.ErrDuplicateQuiz) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := repo.Reserve(ctx, domain.QuizKey{Keyword: "beta", Source: domain.SourceSolrURL}); err != nil {
		t.Fatalf("same keyword under another source must be allowed: %v", err)
	}
	if _, err := repo.AdvanceStatus(ctx, ids["beta"], domain.StatusMediaSplit); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := repo.AddParagraphs(ctx, 999999, []string{"orphan"}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found for orphan paragraph, got %v", err)
	}

	quizzes, err := repo.ListReady(ctx, domain.SortAlpha, 0, -1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := make([]string, 0, len(quizzes))
	for _, q := range quizzes {
		got = append(got, q.Key.Keyword)
	}
	if strings.Join(got, ",") != "Alpha,alpha,beta" {
		t.Fatalf("expected byte order listing, got %v", got)
	}
	if n, _ := repo.CountReady(ctx); n != 3 {
		t.Fatalf("expected 3 ready quizzes, got %d", n)
	}

	paragraphs, err := repo.AddParagraphs(ctx, ids["alpha"], []string{"one", "two"})
	if err != nil {
		t.Fatalf("paragraphs: %v", err)
	}
	pid := paragraphs[1].ID
	err = repo.AddQuestions(ctx, ids["alpha"], []domain.Question{
		{Prompt: "Q1", Answer: "Kelvin", Type: domain.QuestionMultipleChoice, ParagraphID: &pid},
		{Prompt: "Q2", Answer: "K", Type: domain.QuestionMultipleChoice},
		{Prompt: "Q3", Answer: "free", Type: domain.QuestionFreeText},
	})
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	answers, err := repo.RandomAnswers(ctx, 10)
	if err != nil {
		t.Fatalf("random answers: %v", err)
	}
	if len(answers) != 1 || answers[0] != "Kelvin" {
		t.Fatalf("expected only multi-character multiple choice answers, got %v", answers)
	}

	if err := repo.Delete(ctx, ids["alpha"]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	questions, err := repo.QuestionsForQuiz(ctx, ids["alpha"], 10)
	if err != nil {
		t.Fatalf("questions after delete: %v", err)
	}
	if len(questions) != 0 {
		t.Fatalf("expected questions removed with quiz, got %+v", questions)
	}
}

func migrateStore(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
