package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/wa-finance/internal/jobs"
)

// Store is an in-memory implementation of JobStore, safe for concurrent use.
// It keeps at most max jobs and evicts the oldest first; data is lost on
// restart.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*jobs.EventJob
	order []string
	max   int
}

// NewStore creates a new in-memory job store. max <= 0 keeps every job.
func NewStore(max int) *Store {
	return &Store{
		jobs: make(map[string]*jobs.EventJob),
		max:  max,
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.EventJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; !ok {
		s.order = append(s.order, job.JobID)
	}
	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy

	for s.max > 0 && len(s.order) > s.max {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.EventJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, jobs.ErrJobNotFound)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.EventJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*jobs.EventJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.SenderID != "" && job.Event.SenderID != filter.SenderID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID > result[j].JobID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.EventJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.JobStore = (*Store)(nil)
