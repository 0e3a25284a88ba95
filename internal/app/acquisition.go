package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"anyquiz-service/internal/domain"
	"github.com/google/uuid"
)

// ContentFetcher is the external content-fetch collaborator. It returns the
// content as ordered text chunks; a flat summary is a single chunk.
type ContentFetcher interface {
	Fetch(ctx context.Context, key domain.QuizKey) ([]string, error)
}

// ReadyPolicy decides when a quiz is marked READY.
type ReadyPolicy string

const (
	// ReadyOnCompletion advances to READY when the generation job reports success.
	ReadyOnCompletion ReadyPolicy = "on_completion"
	// ReadyOptimistic advances to READY right after the generation job is dispatched.
	ReadyOptimistic ReadyPolicy = "optimistic"
)

// AcquisitionPipeline builds a new quiz on a cache miss.
type AcquisitionPipeline struct {
	quizzes    QuizRepository
	tracker    *StatusTracker
	content    ContentFetcher
	images     *ImageSelector
	dispatcher Dispatcher
	policy     ReadyPolicy
}

func NewAcquisitionPipeline(quizzes QuizRepository, tracker *StatusTracker, content ContentFetcher, images *ImageSelector, dispatcher Dispatcher, policy ReadyPolicy) *AcquisitionPipeline {
	if policy == "" {
		policy = ReadyOnCompletion
	}
	return &AcquisitionPipeline{
		quizzes:    quizzes,
		tracker:    tracker,
		content:    content,
		images:     images,
		dispatcher: dispatcher,
		policy:     policy,
	}
}

// Acquire reserves key, fetches and stores its content and image, and starts
// question generation. Persistence failures roll the placeholder back and
// return ErrAcquisitionFailed.
func (p *AcquisitionPipeline) Acquire(ctx context.Context, key domain.QuizKey) (domain.Quiz, error) {
	quiz, err := p.quizzes.Reserve(ctx, key)
	if errors.Is(err, domain.ErrDuplicateQuiz) {
		return domain.Quiz{}, err
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: reserve %s: %w", domain.ErrAcquisitionFailed, key, err)
	}
	p.tracker.Track(ctx, quiz)
	log.Printf("acquiring quiz %d for %s", quiz.ID, key)

	quiz, err = p.populate(ctx, quiz)
	if err != nil {
		p.rollback(ctx, quiz)
		return domain.Quiz{}, fmt.Errorf("%w: %s: %w", domain.ErrAcquisitionFailed, key, err)
	}

	p.startGeneration(ctx, &quiz)
	return quiz, nil
}

func (p *AcquisitionPipeline) populate(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	chunks, err := p.content.Fetch(ctx, quiz.Key)
	if err != nil {
		log.Printf("fetch content for %s: %v, continuing without paragraphs", quiz.Key, err)
		chunks = nil
	}
	if err := p.advance(ctx, &quiz, domain.StatusMediaRetrieved); err != nil {
		return quiz, err
	}

	texts := splitParagraphs(chunks)
	if err := p.advance(ctx, &quiz, domain.StatusMediaSplit); err != nil {
		return quiz, err
	}

	image := p.images.Select(ctx, quiz.Key.Keyword)
	if err := p.quizzes.SetImage(ctx, quiz.ID, image); err != nil {
		return quiz, fmt.Errorf("store image: %w", err)
	}
	quiz.Image = image

	paragraphs, err := p.quizzes.AddParagraphs(ctx, quiz.ID, texts)
	if err != nil {
		return quiz, fmt.Errorf("store paragraphs: %w", err)
	}
	quiz.Paragraphs = paragraphs

	if err := p.advance(ctx, &quiz, domain.StatusGenerationBegun); err != nil {
		return quiz, err
	}
	return quiz, nil
}

func (p *AcquisitionPipeline) startGeneration(ctx context.Context, quiz *domain.Quiz) {
	job := GenerationJob{
		ID:         uuid.NewString(),
		QuizID:     quiz.ID,
		Key:        quiz.Key,
		Paragraphs: quiz.Paragraphs,
	}

	err := p.dispatcher.Dispatch(ctx, job, func(err error) {
		p.complete(job, err)
	})
	if err != nil {
		log.Printf("dispatch generation for %s: %v, quiz stays at %s", quiz.Key, err, quiz.Status)
		return
	}

	if p.policy == ReadyOptimistic {
		if err := p.advance(ctx, quiz, domain.StatusReady); err != nil {
			log.Printf("mark quiz %d ready: %v", quiz.ID, err)
		}
	}
}

// complete is the generation completion event.
func (p *AcquisitionPipeline) complete(job GenerationJob, err error) {
	if err != nil {
		return
	}
	if p.policy != ReadyOnCompletion {
		return
	}
	// the request that dispatched the job may be gone by now
	if err := p.tracker.Advance(context.Background(), job.QuizID, domain.StatusReady); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		log.Printf("mark quiz %d ready: %v", job.QuizID, err)
	}
}

func (p *AcquisitionPipeline) advance(ctx context.Context, quiz *domain.Quiz, status domain.Status) error {
	if err := p.tracker.Advance(ctx, quiz.ID, status); err != nil {
		return fmt.Errorf("advance to %s: %w", status, err)
	}
	quiz.Status = status
	return nil
}

func (p *AcquisitionPipeline) rollback(ctx context.Context, quiz domain.Quiz) {
	if err := p.quizzes.Delete(ctx, quiz.ID); err != nil {
		log.Printf("roll back quiz %d (%s): %v, left at %s", quiz.ID, quiz.Key, err, quiz.Status)
		return
	}
	p.tracker.Forget(ctx, quiz.Key)
	log.Printf("rolled back quiz %d (%s)", quiz.ID, quiz.Key)
}

// splitParagraphs normalizes fetched chunks into paragraph texts.
func splitParagraphs(chunks []string) []string {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		text := strings.TrimSpace(chunk)
		if text == "" {
			continue
		}
		texts = append(texts, text)
	}
	return texts
}
