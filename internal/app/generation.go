package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"anyquiz-service/internal/domain"
)

// GenerationJob asks the question-generation collaborator to populate a quiz.
type GenerationJob struct {
	ID         string
	QuizID     int64
	Key        domain.QuizKey
	Paragraphs []domain.Paragraph
}

// Generator is the external question-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, job GenerationJob) error
}

// Dispatcher hands a job off for asynchronous execution; done runs once the
// job finishes.
type Dispatcher interface {
	Dispatch(ctx context.Context, job GenerationJob, done func(error)) error
}

type queuedJob struct {
	job  GenerationJob
	done func(error)
}

// DefaultEnqueueWait bounds how long Dispatch waits for room in a full queue.
const DefaultEnqueueWait = 5 * time.Second

// GenerationQueue runs generation jobs on a fixed pool of workers.
type GenerationQueue struct {
	generator   Generator
	workers     int
	timeout     time.Duration
	enqueueWait time.Duration
	jobs        chan queuedJob

	mu      sync.RWMutex
	closed  bool
	running sync.WaitGroup
	pending sync.WaitGroup
}

func NewGenerationQueue(generator Generator, workers, size int, timeout time.Duration) *GenerationQueue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	return &GenerationQueue{
		generator:   generator,
		workers:     workers,
		timeout:     timeout,
		enqueueWait: DefaultEnqueueWait,
		jobs:        make(chan queuedJob, size),
	}
}

// SetEnqueueWait changes the Dispatch bound; zero waits as long as ctx allows.
// Call it before the queue is shared.
func (q *GenerationQueue) SetEnqueueWait(d time.Duration) {
	q.enqueueWait = d
}

// Start launches the workers. Jobs run under ctx, each bounded by the queue timeout.
func (q *GenerationQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.running.Add(1)
		go func() {
			defer q.running.Done()
			for item := range q.jobs {
				q.run(ctx, item)
			}
		}()
	}
}

func (q *GenerationQueue) run(ctx context.Context, item queuedJob) {
	defer q.pending.Done()

	jobCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := q.generator.Generate(jobCtx, item.job)
	if err != nil {
		log.Printf("generation job %s for %s failed: %v", item.job.ID, item.job.Key, err)
	}
	if item.done != nil {
		item.done(err)
	}
}

// Dispatch enqueues a job, blocking until there is room, the enqueue wait
// runs out, or ctx is done.
func (q *GenerationQueue) Dispatch(ctx context.Context, job GenerationJob, done func(error)) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrQueueClosed
	}

	if q.enqueueWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.enqueueWait)
		defer cancel()
	}

	q.pending.Add(1)
	select {
	case q.jobs <- queuedJob{job: job, done: done}:
		verboseLog("generation job %s queued for %s", job.ID, job.Key)
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return fmt.Errorf("enqueue generation job %s: %w", job.ID, ctx.Err())
	}
}

// Wait blocks until every dispatched job has finished.
func (q *GenerationQueue) Wait() {
	q.pending.Wait()
}

// Close stops accepting jobs and waits for the workers to drain the queue.
func (q *GenerationQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.running.Wait()
}
