package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"anyquiz-service/internal/domain"
)

// QuizRepository is an in-process implementation of app.QuizRepository and
// app.QuestionRepository (useful for tests/demos).
type QuizRepository struct {
	clock func() time.Time

	mu         sync.RWMutex
	rnd        *rand.Rand
	nextID     int64
	quizzes    map[int64]*domain.Quiz
	byKey      map[domain.QuizKey]int64
	paragraphs map[int64][]domain.Paragraph
	questions  map[int64]*domain.Question
}

func NewQuizRepository() *QuizRepository {
	return NewQuizRepositoryWithClock(time.Now)
}

// NewQuizRepositoryWithClock allows deterministic timestamps in tests.
func NewQuizRepositoryWithClock(now func() time.Time) *QuizRepository {
	return &QuizRepository{
		clock:      now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes:    make(map[int64]*domain.Quiz),
		byKey:      make(map[domain.QuizKey]int64),
		paragraphs: make(map[int64][]domain.Paragraph),
		questions:  make(map[int64]*domain.Question),
	}
}

func (r *QuizRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *QuizRepository) FindByKey(_ context.Context, key domain.QuizKey) (domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz := *r.quizzes[id]
	quiz.Paragraphs = append([]domain.Paragraph(nil), r.paragraphs[id]...)
	return quiz, nil
}

func (r *QuizRepository) Reserve(_ context.Context, key domain.QuizKey) (domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; ok {
		return domain.Quiz{}, domain.ErrDuplicateQuiz
	}
	quiz := &domain.Quiz{
		ID:        r.id(),
		Key:       key,
		CreatedAt: r.clock(),
		Status:    domain.StatusRequestReceived,
	}
	r.quizzes[quiz.ID] = quiz
	r.byKey[key] = quiz.ID
	return *quiz, nil
}

func (r *QuizRepository) IncrementReadCount(_ context.Context, quizID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return 0, domain.ErrQuizNotFound
	}
	quiz.ReadCount++
	return quiz.ReadCount, nil
}

func (r *QuizRepository) AdvanceStatus(_ context.Context, quizID int64, status domain.Status) (domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if status <= quiz.Status {
		return domain.Quiz{}, domain.ErrInvalidTransition
	}
	quiz.Status = status
	return *quiz, nil
}

func (r *QuizRepository) SetImage(_ context.Context, quizID int64, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Image = image
	return nil
}

func (r *QuizRepository) AddParagraphs(_ context.Context, quizID int64, texts []string) ([]domain.Paragraph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	existing := r.paragraphs[quizID]
	added := make([]domain.Paragraph, 0, len(texts))
	for _, text := range texts {
		p := domain.Paragraph{ID: r.id(), QuizID: quizID, Position: len(existing), Text: text}
		existing = append(existing, p)
		added = append(added, p)
	}
	r.paragraphs[quizID] = existing
	return added, nil
}

func (r *QuizRepository) Delete(_ context.Context, quizID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	delete(r.byKey, quiz.Key)
	delete(r.quizzes, quizID)
	delete(r.paragraphs, quizID)
	for id, q := range r.questions {
		if q.QuizID == quizID {
			delete(r.questions, id)
		}
	}
	return nil
}

func (r *QuizRepository) CountReady(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readyLocked()), nil
}

func (r *QuizRepository) ListReady(_ context.Context, sortKey domain.SortKey, offset, limit int) ([]domain.Quiz, error) {
	r.mu.RLock()
	ready := r.readyLocked()
	r.mu.RUnlock()

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		switch sortKey {
		case domain.SortNew:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case domain.SortMostRead:
			if a.ReadCount != b.ReadCount {
				return a.ReadCount > b.ReadCount
			}
		default:
			if a.Key.Keyword != b.Key.Keyword {
				return a.Key.Keyword < b.Key.Keyword
			}
		}
		return a.ID < b.ID
	})

	if offset >= len(ready) {
		return []domain.Quiz{}, nil
	}
	end := len(ready)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return ready[offset:end], nil
}

func (r *QuizRepository) RandomReady(_ context.Context, n int) ([]domain.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ready := r.readyLocked()
	r.rnd.Shuffle(len(ready), func(i, j int) { ready[i], ready[j] = ready[j], ready[i] })
	if n < len(ready) {
		ready = ready[:n]
	}
	return ready, nil
}

func (r *QuizRepository) readyLocked() []domain.Quiz {
	ready := make([]domain.Quiz, 0, len(r.quizzes))
	for _, quiz := range r.quizzes {
		if quiz.Status == domain.StatusReady {
			ready = append(ready, *quiz)
		}
	}
	return ready
}

func (r *QuizRepository) AddQuestions(_ context.Context, quizID int64, questions []domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	for _, q := range questions {
		q.ID = r.id()
		q.QuizID = quizID
		stored := q
		r.questions[q.ID] = &stored
	}
	return nil
}

func (r *QuizRepository) QuestionsForQuiz(_ context.Context, quizID int64, limit int) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	questions := make([]domain.Question, 0)
	for _, q := range r.questions {
		if q.QuizID == quizID {
			questions = append(questions, *q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	if limit > 0 && len(questions) > limit {
		questions = questions[:limit]
	}
	return questions, nil
}

func (r *QuizRepository) Question(_ context.Context, questionID int64) (domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[questionID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return *q, nil
}

func (r *QuizRepository) UpdateQuestion(_ context.Context, questionID int64, prompt, answer string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[questionID]
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	prev := q.Answer
	q.Prompt = prompt
	q.Answer = answer
	return prev, nil
}

func (r *QuizRepository) DeleteQuestion(_ context.Context, questionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(r.questions, questionID)
	return nil
}

// RandomAnswers draws n distinct multiple-choice answer rows longer than one character.
func (r *QuizRepository) RandomAnswers(_ context.Context, n int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := make([]string, 0, len(r.questions))
	for _, q := range r.questions {
		if q.Type == domain.QuestionMultipleChoice && utf8.RuneCountInString(q.Answer) > 1 {
			pool = append(pool, q.Answer)
		}
	}
	// map iteration order is not uniform, so sort before shuffling
	sort.Strings(pool)
	r.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}
