// Package jobs defines the queue contracts used to hand inbound webhook
// events to background workers.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/wa-finance/internal/domain"
)

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is being handled.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the handler returned without error.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the handler returned an error. Failed jobs are
	// not retried.
	JobStatusFailed JobStatus = "failed"
)

// EventJob is one inbound WhatsApp message waiting to be routed.
type EventJob struct {
	JobID string              `json:"job_id"`
	Event domain.InboundEvent `json:"event"`

	// ArchiveURI points at the raw envelope the event came from, when archived.
	ArchiveURI string `json:"archive_uri,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Outcome and Branch are filled from the router result.
	Outcome string `json:"outcome,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// Publisher enqueues events for asynchronous handling.
type Publisher interface {
	// PublishEvent enqueues an event job. It assigns JobID and CreatedAt when empty.
	PublishEvent(ctx context.Context, job *EventJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs workers over queued events.
type Consumer interface {
	// Start launches the workers; handler is called once per job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. The handler may set Outcome and Branch on the
// job; a returned error marks the job failed.
type JobHandler func(ctx context.Context, job *EventJob) error

// JobStore keeps job state for inspection.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *EventJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*EventJob, error)

	// ListJobs retrieves jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*EventJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// SenderID filters jobs by WhatsApp sender.
	SenderID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
