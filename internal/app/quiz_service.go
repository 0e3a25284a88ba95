package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"anyquiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizRepository persists quiz records (in-memory, SQLite, Postgres).
type QuizRepository interface {
	// FindByKey returns the record with its paragraphs, without side effects.
	FindByKey(ctx context.Context, key domain.QuizKey) (domain.Quiz, error)
	// Reserve inserts a placeholder at StatusRequestReceived; ErrDuplicateQuiz if the key exists.
	Reserve(ctx context.Context, key domain.QuizKey) (domain.Quiz, error)
	IncrementReadCount(ctx context.Context, quizID int64) (int64, error)
	// AdvanceStatus moves the status forward only; ErrInvalidTransition otherwise.
	AdvanceStatus(ctx context.Context, quizID int64, status domain.Status) (domain.Quiz, error)
	SetImage(ctx context.Context, quizID int64, image string) error
	AddParagraphs(ctx context.Context, quizID int64, texts []string) ([]domain.Paragraph, error)
	Delete(ctx context.Context, quizID int64) error
	CountReady(ctx context.Context) (int, error)
	ListReady(ctx context.Context, sort domain.SortKey, offset, limit int) ([]domain.Quiz, error)
	RandomReady(ctx context.Context, n int) ([]domain.Quiz, error)
}

// QuestionRepository persists generated questions.
type QuestionRepository interface {
	AnswerPool
	AddQuestions(ctx context.Context, quizID int64, questions []domain.Question) error
	QuestionsForQuiz(ctx context.Context, quizID int64, limit int) ([]domain.Question, error)
	Question(ctx context.Context, questionID int64) (domain.Question, error)
	// UpdateQuestion returns the answer stored before the update.
	UpdateQuestion(ctx context.Context, questionID int64, prompt, answer string) (string, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
}

// QuizService contains the quiz store use cases.
type QuizService struct {
	quizzes   QuizRepository
	questions QuestionRepository
	pipeline  *AcquisitionPipeline
	tracker   *StatusTracker
	builder   *QuestionSetBuilder
	sf        singleflight.Group
}

func NewQuizService(quizzes QuizRepository, questions QuestionRepository, pipeline *AcquisitionPipeline, tracker *StatusTracker, builder *QuestionSetBuilder) *QuizService {
	return &QuizService{
		quizzes:   quizzes,
		questions: questions,
		pipeline:  pipeline,
		tracker:   tracker,
		builder:   builder,
	}
}

// FindOrCreate returns the cached quiz for key, running the acquisition
// pipeline on a miss. Every successful lookup bumps the read counter,
// including the one right after creation.
func (s *QuizService) FindOrCreate(ctx context.Context, key domain.QuizKey) (domain.Quiz, error) {
	if _, err := domain.ParseSource(string(key.Source)); err != nil {
		return domain.Quiz{}, err
	}

	// Concurrent misses for the same key collapse into one acquisition.
	result, err, _ := s.sf.Do(key.String(), func() (interface{}, error) {
		quiz, err := s.quizzes.FindByKey(ctx, key)
		if err == nil {
			return quiz, nil
		}
		if !errors.Is(err, domain.ErrQuizNotFound) {
			return domain.Quiz{}, fmt.Errorf("find quiz %s: %w", key, err)
		}

		quiz, err = s.pipeline.Acquire(ctx, key)
		if errors.Is(err, domain.ErrDuplicateQuiz) {
			// another instance won the reservation
			return s.quizzes.FindByKey(ctx, key)
		}
		if err != nil {
			return domain.Quiz{}, err
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := result.(domain.Quiz)
	count, err := s.quizzes.IncrementReadCount(ctx, quiz.ID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("increment read count: %w", err)
	}
	quiz.ReadCount = count
	return quiz, nil
}

// Status reports pipeline progress for a key without triggering acquisition.
func (s *QuizService) Status(ctx context.Context, key domain.QuizKey) (domain.QuizStatus, error) {
	return s.tracker.Query(ctx, key)
}

// WatchStatus streams status changes for a key until the caller cancels.
func (s *QuizService) WatchStatus(ctx context.Context, key domain.QuizKey) (<-chan domain.QuizStatus, func(), error) {
	return s.tracker.Watch(ctx, key)
}

// Questions materializes a fresh question set for the quiz behind key.
func (s *QuizService) Questions(ctx context.Context, key domain.QuizKey) ([]domain.QuestionView, error) {
	quiz, err := s.FindOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, quiz)
}

// Study returns the question set with paragraph back-references plus the paragraphs.
func (s *QuizService) Study(ctx context.Context, key domain.QuizKey) ([]domain.QuestionView, []domain.Paragraph, error) {
	quiz, err := s.FindOrCreate(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	views, err := s.builder.BuildStudy(ctx, quiz)
	if err != nil {
		return nil, nil, err
	}
	return views, quiz.Paragraphs, nil
}

// ListQuizzes pages READY quizzes. end is an exclusive upper bound; -1 means all.
func (s *QuizService) ListQuizzes(ctx context.Context, start, end int, sort domain.SortKey) (domain.QuizPage, error) {
	sort = domain.ParseSortKey(string(sort))
	total, err := s.quizzes.CountReady(ctx)
	if err != nil {
		return domain.QuizPage{}, fmt.Errorf("count quizzes: %w", err)
	}

	if start < 0 {
		start = 0
	}
	if end < 0 || end > total {
		end = total
	}

	page := domain.QuizPage{Quizzes: []domain.Quiz{}, Sort: sort, Start: start, End: end}
	if start >= end {
		return page, nil
	}

	quizzes, err := s.quizzes.ListReady(ctx, sort, start, end-start)
	if err != nil {
		return domain.QuizPage{}, fmt.Errorf("list quizzes: %w", err)
	}
	page.Quizzes = quizzes
	return page, nil
}

// RandomQuizzes picks up to n READY quizzes at random.
func (s *QuizService) RandomQuizzes(ctx context.Context, n int) ([]domain.Quiz, error) {
	if n <= 0 {
		return []domain.Quiz{}, nil
	}
	return s.quizzes.RandomReady(ctx, n)
}

// GradeAnswer reports whether submitted is byte-equal to the stored answer.
func (s *QuizService) GradeAnswer(ctx context.Context, questionID int64, submitted string) (bool, error) {
	question, err := s.questions.Question(ctx, questionID)
	if err != nil {
		return false, err
	}
	return question.Answer == submitted, nil
}

// EditQuestion replaces a question's prompt and answer.
func (s *QuizService) EditQuestion(ctx context.Context, questionID int64, prompt, answer string) (domain.AnswerEdit, error) {
	prev, err := s.questions.UpdateQuestion(ctx, questionID, prompt, answer)
	if err != nil {
		return domain.AnswerEdit{}, err
	}
	log.Printf("question %d edited", questionID)
	return domain.AnswerEdit{PrevAnswer: prev, NewAnswer: answer}, nil
}

// DeleteQuestion removes a question; quizzes and status are untouched.
func (s *QuizService) DeleteQuestion(ctx context.Context, questionID int64) error {
	if err := s.questions.DeleteQuestion(ctx, questionID); err != nil {
		return err
	}
	log.Printf("question %d deleted", questionID)
	return nil
}
