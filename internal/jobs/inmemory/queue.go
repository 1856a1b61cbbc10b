package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/wa-finance/internal/jobs"
	"github.com/dvloznov/wa-finance/internal/logger"
	"github.com/dvloznov/wa-finance/internal/metrics"
	"github.com/google/uuid"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses a buffered channel for job distribution and is safe for concurrent
// use. Jobs are handled at most once; a failed job is recorded, not retried.
type Queue struct {
	jobChan   chan *jobs.EventJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	closed    bool
	started   bool
	now       func() time.Time
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishEvent blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *jobs.EventJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		now:       time.Now,
	}
}

// PublishEvent implements the Publisher interface.
func (q *Queue) PublishEvent(ctx context.Context, job *jobs.EventJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishEvent: save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		metrics.SetQueueDepth(len(q.jobChan))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface. It launches the configured number
// of workers; each handles one job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}
	if q.started {
		return fmt.Errorf("Start: queue already started")
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			q.drain(ctx, handler)
			return
		case job := <-q.jobChan:
			metrics.SetQueueDepth(len(q.jobChan))
			q.processJob(ctx, job, handler)
		}
	}
}

// drain handles whatever is still buffered once the queue is stopped.
func (q *Queue) drain(ctx context.Context, handler jobs.JobHandler) {
	for {
		select {
		case job := <-q.jobChan:
			metrics.SetQueueDepth(len(q.jobChan))
			q.processJob(ctx, job, handler)
		default:
			return
		}
	}
}

func (q *Queue) processJob(ctx context.Context, job *jobs.EventJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("message_id", job.Event.MessageID).
		Logger()

	started := q.now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	q.save(ctx, job)

	err := q.run(logger.WithContext(ctx, log), job, handler)

	completed := q.now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("event job failed")
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Debug().Dur("elapsed", completed.Sub(started)).Msg("event job completed")
	}
	q.save(ctx, job)
}

// run calls handler, turning a panic into a job failure so one bad event
// cannot take a worker down.
func (q *Queue) run(ctx context.Context, job *jobs.EventJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.EventJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to save job state")
	}
}

// Len returns the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.jobChan)
}

// Stop implements the Consumer interface. Buffered jobs are handled before the
// workers exit unless ctx expires first.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
