package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"anyquiz-service/internal/domain"
	"github.com/mattn/go-sqlite3"
)

const quizColumns = `id, keyword, source, image, created_at, total_read_count, status`

// QuizRepository keeps the quiz store in a local SQLite file.
type QuizRepository struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the database file if needed and its tables.
func Open(path string) (*QuizRepository, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single writer avoids SQLITE_BUSY under concurrent acquisitions
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &QuizRepository{db: db, clock: time.Now}, nil
}

func (r *QuizRepository) Close() error {
	return r.db.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS quizzes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword TEXT NOT NULL,
			source TEXT NOT NULL,
			image TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			total_read_count INTEGER NOT NULL DEFAULT 0,
			status INTEGER NOT NULL DEFAULT 0,
			UNIQUE (keyword, source)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS paragraphs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_id INTEGER NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			text TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS quiz_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_id INTEGER NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
			p_id INTEGER REFERENCES paragraphs (id) ON DELETE SET NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			q_type INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

func (r *QuizRepository) FindByKey(ctx context.Context, key domain.QuizKey) (domain.Quiz, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE keyword = ? AND source = ?`, key.Keyword, string(key.Source))
	quiz, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("find quiz %s: %w", key, err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, position, text FROM paragraphs WHERE quiz_id = ? ORDER BY position`, quiz.ID)
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
	createdAt := r.clock().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO quizzes (keyword, source, created_at, status) VALUES (?, ?, ?, ?)",
		key.Keyword, string(key.Source), createdAt.UnixNano(), int(domain.StatusRequestReceived),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return domain.Quiz{}, domain.ErrDuplicateQuiz
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Quiz{}, err
	}
	return domain.Quiz{
		ID:        id,
		Key:       key,
		CreatedAt: time.Unix(0, createdAt.UnixNano()).UTC(),
		Status:    domain.StatusRequestReceived,
	}, nil
}

func (r *QuizRepository) IncrementReadCount(ctx context.Context, quizID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE quizzes SET total_read_count = total_read_count + 1 WHERE id = ?", quizID)
	if err != nil {
		return 0, fmt.Errorf("increment read count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, domain.ErrQuizNotFound
	}
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT total_read_count FROM quizzes WHERE id = ?", quizID).Scan(&count); err != nil {
		return 0, fmt.Errorf("read count: %w", err)
	}
	return count, nil
}

func (r *QuizRepository) AdvanceStatus(ctx context.Context, quizID int64, status domain.Status) (domain.Quiz, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE quizzes SET status = ? WHERE id = ? AND status < ?", int(status), quizID, int(status))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("advance status: %w", err)
	}
	n, _ := res.RowsAffected()

	quiz, err := scanQuiz(r.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if n == 0 {
		return domain.Quiz{}, domain.ErrInvalidTransition
	}
	return quiz, nil
}

func (r *QuizRepository) SetImage(ctx context.Context, quizID int64, image string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE quizzes SET image = ? WHERE id = ?", image, quizID)
	if err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (r *QuizRepository) AddParagraphs(ctx context.Context, quizID int64, texts []string) ([]domain.Paragraph, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	var offset int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM paragraphs WHERE quiz_id = ?", quizID).Scan(&offset); err != nil {
		return nil, fmt.Errorf("count paragraphs: %w", err)
	}

	paragraphs := make([]domain.Paragraph, 0, len(texts))
	for i, text := range texts {
		p := domain.Paragraph{QuizID: quizID, Position: offset + i, Text: text}
		res, err := tx.ExecContext(ctx, "INSERT INTO paragraphs (quiz_id, position, text) VALUES (?, ?, ?)", quizID, p.Position, text)
		if isForeignKeyError(err) {
			return nil, domain.ErrQuizNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("insert paragraph: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		paragraphs = append(paragraphs, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit paragraphs: %w", err)
	}
	return paragraphs, nil
}

func (r *QuizRepository) Delete(ctx context.Context, quizID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM quizzes WHERE id = ?", quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (r *QuizRepository) CountReady(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM quizzes WHERE status = ?", int(domain.StatusReady)).Scan(&count)
	return count, err
}

// ListReady pages READY quizzes. SQLite's default BINARY collation already
// orders keywords by bytes; LIMIT -1 means no limit.
func (r *QuizRepository) ListReady(ctx context.Context, sort domain.SortKey, offset, limit int) ([]domain.Quiz, error) {
	if limit < 0 {
		limit = -1
	}
	order := "keyword, id"
	switch sort {
	case domain.SortNew:
		order = "created_at DESC, id"
	case domain.SortMostRead:
		order = "total_read_count DESC, id"
	}
	return r.queryQuizzes(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE status = ? ORDER BY `+order+` LIMIT ? OFFSET ?`,
		int(domain.StatusReady), limit, offset)
}

func (r *QuizRepository) RandomReady(ctx context.Context, n int) ([]domain.Quiz, error) {
	return r.queryQuizzes(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE status = ? ORDER BY RANDOM() LIMIT ?`,
		int(domain.StatusReady), n)
}

func (r *QuizRepository) queryQuizzes(ctx context.Context, query string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func (r *QuizRepository) AddQuestions(ctx context.Context, quizID int64, questions []domain.Question) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range questions {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO quiz_questions (quiz_id, p_id, question, answer, q_type) VALUES (?, ?, ?, ?, ?)",
			quizID, q.ParagraphID, q.Prompt, q.Answer, int(q.Type),
		)
		if isForeignKeyError(err) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return tx.Commit()
}

func (r *QuizRepository) QuestionsForQuiz(ctx context.Context, quizID int64, limit int) ([]domain.Question, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, quiz_id, question, answer, q_type, p_id FROM quiz_questions WHERE quiz_id = ? ORDER BY id LIMIT ?",
		quizID, limit)
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
	q, err := scanQuestion(r.db.QueryRowContext(ctx,
		"SELECT id, quiz_id, question, answer, q_type, p_id FROM quiz_questions WHERE id = ?", questionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

func (r *QuizRepository) UpdateQuestion(ctx context.Context, questionID int64, prompt, answer string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	var prev string
	err = tx.QueryRowContext(ctx, "SELECT answer FROM quiz_questions WHERE id = ?", questionID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrQuestionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load question: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE quiz_questions SET question = ?, answer = ? WHERE id = ?", prompt, answer, questionID); err != nil {
		return "", fmt.Errorf("update question: %w", err)
	}
	return prev, tx.Commit()
}

func (r *QuizRepository) DeleteQuestion(ctx context.Context, questionID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM quiz_questions WHERE id = ?", questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuizRepository) RandomAnswers(ctx context.Context, n int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT answer FROM quiz_questions WHERE q_type = ? AND length(answer) > 1 ORDER BY RANDOM() LIMIT ?",
		int(domain.QuestionMultipleChoice), n)
	if err != nil {
		return nil, fmt.Errorf("draw answers: %w", err)
	}
	defer rows.Close()

	answers := make([]string, 0, n)
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanQuiz(row scanner) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		source    string
		createdAt int64
		status    int
	)
	if err := row.Scan(&quiz.ID, &quiz.Key.Keyword, &source, &quiz.Image, &createdAt, &quiz.ReadCount, &status); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Key.Source = domain.Source(source)
	quiz.CreatedAt = time.Unix(0, createdAt).UTC()
	quiz.Status = domain.Status(status)
	return quiz, nil
}

func scanQuestion(row scanner) (domain.Question, error) {
	var (
		q     domain.Question
		qType int
		pid   sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.QuizID, &q.Prompt, &q.Answer, &qType, &pid); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qType)
	if pid.Valid {
		id := pid.Int64
		q.ParagraphID = &id
	}
	return q, nil
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
