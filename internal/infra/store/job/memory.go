package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/you-humble/mybook/internal/domain"
)

// memoryJobStore mirrors the redis store semantics without a server.
// Used by tests and single-process setups.
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func NewMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]domain.Job)}
}

func (s *memoryJobStore) Create(ctx context.Context, id string, inputKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.jobs[id] = domain.Job{
		ID:        id,
		Status:    domain.StatusPending,
		InputKeys: append([]string(nil), inputKeys...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *memoryJobStore) Job(ctx context.Context, id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *memoryJobStore) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return domain.ErrJobTerminal
	}

	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Progress != nil {
		job.Progress = *patch.Progress
	}
	if patch.ResultKey != nil {
		job.ResultKey = *patch.ResultKey
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	job.UpdatedAt = time.Now()

	s.jobs[id] = job
	return nil
}

func (s *memoryJobStore) StaleJobIDs(ctx context.Context, now time.Time, ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() && now.Sub(job.UpdatedAt) > ttl {
			stale = append(stale, id)
		}
	}
	return stale
}

func (s *memoryJobStore) DeleteOlderThan(ctx context.Context, now time.Time, age time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, job := range s.jobs {
		if now.Sub(job.CreatedAt) > age {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted
}
