package app

import (
	"context"
	"math/rand"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"anyquiz-service/internal/domain"
)

// AnswerPool draws candidate wrong answers: n multiple-choice answers longer
// than one character, uniformly at random.
type AnswerPool interface {
	RandomAnswers(ctx context.Context, n int) ([]string, error)
}

const (
	distractorCount = 3
	// DefaultMaxDraws bounds the redraw loop for small answer pools.
	DefaultMaxDraws = 50
)

// DistractorEngine builds shuffled answer option sets around a correct answer.
type DistractorEngine struct {
	pool     AnswerPool
	maxDraws int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDistractorEngine(pool AnswerPool, maxDraws int) *DistractorEngine {
	return NewDistractorEngineWithRand(pool, maxDraws, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewDistractorEngineWithRand is test-only for deterministic shuffles.
func NewDistractorEngineWithRand(pool AnswerPool, maxDraws int, rnd *rand.Rand) *DistractorEngine {
	if maxDraws <= 0 {
		maxDraws = DefaultMaxDraws
	}
	return &DistractorEngine{pool: pool, maxDraws: maxDraws, rnd: rnd}
}

// AnswerOptions returns the correct answer plus three case-matched
// distractors in random order. The whole triple is redrawn whenever it
// contains the correct answer or the options would collide; after maxDraws
// attempts ErrDistractorsExhausted is returned.
func (e *DistractorEngine) AnswerOptions(ctx context.Context, correct string) ([]string, error) {
	for draw := 0; draw < e.maxDraws; draw++ {
		candidates, err := e.pool.RandomAnswers(ctx, distractorCount)
		if err != nil {
			return nil, err
		}
		if len(candidates) < distractorCount || contains(candidates, correct) {
			continue
		}

		options := make([]string, 0, distractorCount+1)
		options = append(options, correct)
		for _, candidate := range candidates {
			options = append(options, matchLeadingCase(correct, candidate))
		}
		if !distinct(options) {
			continue
		}

		e.shuffle(options)
		return options, nil
	}
	return nil, domain.ErrDistractorsExhausted
}

func (e *DistractorEngine) shuffle(options []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
}

// matchLeadingCase gives distractor the leading-letter case of correct.
func matchLeadingCase(correct, distractor string) string {
	lead, _ := utf8.DecodeRuneInString(correct)
	upper := lead != utf8.RuneError && unicode.ToLower(lead) != lead

	first, size := utf8.DecodeRuneInString(distractor)
	if first == utf8.RuneError {
		return distractor
	}
	if upper {
		first = unicode.ToUpper(first)
	} else {
		first = unicode.ToLower(first)
	}
	return string(first) + distractor[size:]
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func distinct(values []string) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
	}
	return true
}
