package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"anyquiz-service/internal/domain"
)

// MaxQuestionsPerQuiz caps every materialized question set.
const MaxQuestionsPerQuiz = 10

// QuestionSetBuilder turns persisted questions into per-request views.
// Nothing it produces is cached.
type QuestionSetBuilder struct {
	questions QuestionRepository
	engine    *DistractorEngine

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionSetBuilder(questions QuestionRepository, engine *DistractorEngine) *QuestionSetBuilder {
	return NewQuestionSetBuilderWithRand(questions, engine, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewQuestionSetBuilderWithRand is test-only for deterministic ordering.
func NewQuestionSetBuilderWithRand(questions QuestionRepository, engine *DistractorEngine, rnd *rand.Rand) *QuestionSetBuilder {
	return &QuestionSetBuilder{questions: questions, engine: engine, rnd: rnd}
}

// Build returns up to MaxQuestionsPerQuiz questions in random order.
func (b *QuestionSetBuilder) Build(ctx context.Context, quiz domain.Quiz) ([]domain.QuestionView, error) {
	return b.build(ctx, quiz, false)
}

// BuildStudy is Build plus each question's paragraph back-reference.
func (b *QuestionSetBuilder) BuildStudy(ctx context.Context, quiz domain.Quiz) ([]domain.QuestionView, error) {
	return b.build(ctx, quiz, true)
}

func (b *QuestionSetBuilder) build(ctx context.Context, quiz domain.Quiz, study bool) ([]domain.QuestionView, error) {
	questions, err := b.questions.QuestionsForQuiz(ctx, quiz.ID, MaxQuestionsPerQuiz)
	if err != nil {
		return nil, fmt.Errorf("load questions for quiz %d: %w", quiz.ID, err)
	}

	views := make([]domain.QuestionView, 0, len(questions))
	for _, q := range questions {
		view := domain.QuestionView{
			Prompt:        q.Prompt,
			Type:          q.Type,
			ID:            q.ID,
			AnswerOptions: []string{},
		}
		if study {
			view.ParagraphID = q.ParagraphID
		}

		if q.Type == domain.QuestionMultipleChoice {
			options, err := b.engine.AnswerOptions(ctx, q.Answer)
			switch {
			case errors.Is(err, domain.ErrDistractorsExhausted):
				log.Printf("question %d: %v, serving without options", q.ID, err)
			case err != nil:
				return nil, fmt.Errorf("answer options for question %d: %w", q.ID, err)
			default:
				view.AnswerOptions = options
			}
		}
		views = append(views, view)
	}

	b.mu.Lock()
	b.rnd.Shuffle(len(views), func(i, j int) { views[i], views[j] = views[j], views[i] })
	b.mu.Unlock()
	return views, nil
}
