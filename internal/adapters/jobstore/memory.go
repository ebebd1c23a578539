// Package jobstore persists pipeline jobs.
package jobstore

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/retention/internal/domain/job"
)

// MemoryStore keeps jobs in a map. Callers always receive copies, so a job
// handed out can be mutated without racing the store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*job.Job)}
}

func clone(j *job.Job) *job.Job {
	c := *j
	c.Request.EmployeeIDs = append([]string(nil), j.Request.EmployeeIDs...)
	if j.Request.IncludeExplanations != nil {
		v := *j.Request.IncludeExplanations
		c.Request.IncludeExplanations = &v
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Create stores a new job.
func (s *MemoryStore) Create(ctx context.Context, j *job.Job) error {
	if j == nil {
		return ErrNilJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return ErrDuplicate
	}
	s.jobs[j.ID] = clone(j)
	return nil
}

// Get returns a copy of the job.
func (s *MemoryStore) Get(ctx context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return clone(j), nil
}

// Update replaces a stored job.
func (s *MemoryStore) Update(ctx context.Context, j *job.Job) error {
	if j == nil {
		return ErrNilJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return job.ErrNotFound
	}
	s.jobs[j.ID] = clone(j)
	return nil
}

// List returns up to limit jobs, newest first. limit <= 0 returns all.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*job.Job, error) {
	s.mu.RLock()
	out := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, clone(j))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindByIdempotencyKey returns the job created with key.
func (s *MemoryStore) FindByIdempotencyKey(ctx context.Context, key string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if key != "" && j.Request.IdempotencyKey == key {
			return clone(j), nil
		}
	}
	return nil, job.ErrNotFound
}
