package postgres

import (
	"context"
	"errors"
	"fmt"

	"anyquiz-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const quizColumns = `id, keyword, source, image, created_at, total_read_count, status`

// QuizRepository stores quizzes, paragraphs and questions in Postgres.
type QuizRepository struct {
	pool *pgxpool.Pool
}

func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

func (r *QuizRepository) FindByKey(ctx context.Context, key domain.QuizKey) (domain.Quiz, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE keyword=$1 AND source=$2`, key.Keyword, string(key.Source))
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("find quiz %s: %w", key, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, position, text FROM paragraphs WHERE quiz_id=$1 ORDER BY position`, quiz.ID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load paragraphs: %w", err)
	}
	defer rows.Close()
	quiz.Paragraphs = []domain.Paragraph{}
	for rows.Next() {
		p := domain.Paragraph{QuizID: quiz.ID}
		if err := rows.Scan(&p.ID, &p.Position, &p.Text); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan paragraph: %w", err)
		}
		quiz.Paragraphs = append(quiz.Paragraphs, p)
	}
	return quiz, rows.Err()
}

func (r *QuizRepository) Reserve(ctx context.Context, key domain.QuizKey) (domain.Quiz, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (keyword, source, status) VALUES ($1, $2, $3) RETURNING `+quizColumns,
		key.Keyword, string(key.Source), int(domain.StatusRequestReceived))
	quiz, err := scanQuiz(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Quiz{}, domain.ErrDuplicateQuiz
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	return quiz, nil
}

func (r *QuizRepository) IncrementReadCount(ctx context.Context, quizID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `UPDATE quizzes SET total_read_count = total_read_count + 1 WHERE id=$1 RETURNING total_read_count`, quizID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrQuizNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment read count: %w", err)
	}
	return count, nil
}

// AdvanceStatus is a conditional update, so concurrent writers can never
// move a quiz backwards.
func (r *QuizRepository) AdvanceStatus(ctx context.Context, quizID int64, status domain.Status) (domain.Quiz, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE quizzes SET status=$2 WHERE id=$1 AND status < $2 RETURNING `+quizColumns,
		quizID, int(status))
	quiz, err := scanQuiz(row)
	if err == nil {
		return quiz, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("advance status: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id=$1)`, quizID).Scan(&exists); err != nil {
		return domain.Quiz{}, fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return domain.Quiz{}, domain.ErrInvalidTransition
}

func (r *QuizRepository) SetImage(ctx context.Context, quizID int64, image string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quizzes SET image=$2 WHERE id=$1`, quizID, image)
	if err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (r *QuizRepository) AddParagraphs(ctx context.Context, quizID int64, texts []string) ([]domain.Paragraph, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var offset int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM paragraphs WHERE quiz_id=$1`, quizID).Scan(&offset); err != nil {
		return nil, fmt.Errorf("count paragraphs: %w", err)
	}

	paragraphs := make([]domain.Paragraph, 0, len(texts))
	for i, text := range texts {
		p := domain.Paragraph{QuizID: quizID, Position: offset + i, Text: text}
		err := tx.QueryRow(ctx,
			`INSERT INTO paragraphs (quiz_id, position, text) VALUES ($1, $2, $3) RETURNING id`,
			quizID, p.Position, text).Scan(&p.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return nil, domain.ErrQuizNotFound
			}
			return nil, fmt.Errorf("insert paragraph: %w", err)
		}
		paragraphs = append(paragraphs, p)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit paragraphs: %w", err)
	}
	return paragraphs, nil
}

func (r *QuizRepository) Delete(ctx context.Context, quizID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (r *QuizRepository) CountReady(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quizzes WHERE status=$1`, int(domain.StatusReady)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count quizzes: %w", err)
	}
	return count, nil
}

// ListReady pages READY quizzes; limit < 0 means no limit.
func (r *QuizRepository) ListReady(ctx context.Context, sort domain.SortKey, offset, limit int) ([]domain.Quiz, error) {
	var limitArg *int
	if limit >= 0 {
		limitArg = &limit
	}
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE status=$1 ORDER BY ` + orderBy(sort) + ` LIMIT $2 OFFSET $3`
	return r.queryQuizzes(ctx, query, int(domain.StatusReady), limitArg, offset)
}

func (r *QuizRepository) RandomReady(ctx context.Context, n int) ([]domain.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE status=$1 ORDER BY random() LIMIT $2`
	return r.queryQuizzes(ctx, query, int(domain.StatusReady), n)
}

func (r *QuizRepository) queryQuizzes(ctx context.Context, query string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := []domain.Quiz{}
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

// orderBy sorts keywords by byte order regardless of the database collation.
func orderBy(sort domain.SortKey) string {
	switch sort {
	case domain.SortNew:
		return `created_at DESC, id`
	case domain.SortMostRead:
		return `total_read_count DESC, id`
	default:
		return `keyword COLLATE "C", id`
	}
}

func (r *QuizRepository) AddQuestions(ctx context.Context, quizID int64, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range questions {
		batch.Queue(`INSERT INTO quiz_questions (quiz_id, p_id, question, answer, q_type) VALUES ($1, $2, $3, $4, $5)`,
			quizID, q.ParagraphID, q.Prompt, q.Answer, int(q.Type))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	results := tx.SendBatch(ctx, batch)
	for range questions {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return domain.ErrQuizNotFound
			}
			return fmt.Errorf("insert question: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *QuizRepository) QuestionsForQuiz(ctx context.Context, quizID int64, limit int) ([]domain.Question, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, question, answer, q_type, p_id FROM quiz_questions WHERE quiz_id=$1 ORDER BY id LIMIT $2`,
		quizID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *QuizRepository) Question(ctx context.Context, questionID int64) (domain.Question, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, quiz_id, question, answer, q_type, p_id FROM quiz_questions WHERE id=$1`, questionID)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

func (r *QuizRepository) UpdateQuestion(ctx context.Context, questionID int64, prompt, answer string) (string, error) {
	var prev string
	// the sub-select reads the pre-update snapshot
	err := r.pool.QueryRow(ctx,
		`UPDATE quiz_questions q SET question=$2, answer=$3
		 FROM (SELECT id, answer FROM quiz_questions WHERE id=$1 FOR UPDATE) old
		 WHERE q.id = old.id RETURNING old.answer`,
		questionID, prompt, answer).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrQuestionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("update question: %w", err)
	}
	return prev, nil
}

func (r *QuizRepository) DeleteQuestion(ctx context.Context, questionID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM quiz_questions WHERE id=$1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuizRepository) RandomAnswers(ctx context.Context, n int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT answer FROM quiz_questions WHERE q_type=$1 AND char_length(answer) > 1 ORDER BY random() LIMIT $2`,
		int(domain.QuestionMultipleChoice), n)
	if err != nil {
		return nil, fmt.Errorf("draw answers: %w", err)
	}
	defer rows.Close()

	answers := make([]string, 0, n)
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz   domain.Quiz
		source string
		status int
	)
	if err := row.Scan(&quiz.ID, &quiz.Key.Keyword, &source, &quiz.Image, &quiz.CreatedAt, &quiz.ReadCount, &status); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Key.Source = domain.Source(source)
	quiz.Status = domain.Status(status)
	return quiz, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q     domain.Question
		qType int
		pid   *int64
	)
	if err := row.Scan(&q.ID, &q.QuizID, &q.Prompt, &q.Answer, &qType, &pid); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qType)
	q.ParagraphID = pid
	return q, nil
}
