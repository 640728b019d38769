package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/strategy"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// memoryPollInterval is how often blocking pops re-check an empty queue.
const memoryPollInterval = 10 * time.Millisecond

// MemoryStore is the in-process Store. One-shot local runs and tests use it;
// it mirrors the Redis store's semantics, including single-consumer kill
// entries and blocking pops.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	queues  map[Queue][]string
	states  map[string]strategy.State
	kills   map[string]bool
	workers map[string]WorkerInfo
	updates []Notification
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*Job),
		queues:  make(map[Queue][]string),
		states:  make(map[string]strategy.State),
		kills:   make(map[string]bool),
		workers: make(map[string]WorkerInfo),
	}
}

// Enqueue implements Store. The job id is claimed under the store lock,
// matching the Redis store's transactional claim.
func (s *MemoryStore) Enqueue(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok && !existing.Status.Terminal() {
		return errors.Newf(errors.ErrCodeDuplicateJob, "job %s is already in flight", job.ID)
	}

	job.Status = StatusQueued
	job.EnqueuedAt = time.Now().UTC()

	stored := *job
	s.jobs[job.ID] = &stored
	s.queues[job.Queue] = append(s.queues[job.Queue], job.ID)

	return nil
}

// Dequeue implements Store. Polls the queues in order until one yields a job
// or the timeout elapses.
func (s *MemoryStore) Dequeue(ctx context.Context, queues []Queue, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if job := s.tryPop(queues); job != nil {
			return job, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		timer := time.NewTimer(memoryPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *MemoryStore) tryPop(queues []Queue) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range queues {
		ids := s.queues[q]
		if len(ids) == 0 {
			continue
		}

		id := ids[0]
		s.queues[q] = ids[1:]

		if job, ok := s.jobs[id]; ok {
			copied := *job

			return &copied
		}
	}

	return nil
}

// Requeue implements Store.
func (s *MemoryStore) Requeue(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.Status = StatusQueued

	stored := *job
	s.jobs[job.ID] = &stored
	s.queues[job.Queue] = append(s.queues[job.Queue], job.ID)

	return nil
}

// Job implements Store.
func (s *MemoryStore) Job(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeJobNotFound, "job %s not found", id)
	}

	copied := *job

	return &copied, nil
}

// UpdateStatus implements Store.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return s.mutate(id, func(job *Job) {
		job.Status = status

		switch status {
		case StatusStarted:
			job.StartedAt = time.Now().UTC()
		case StatusFinished, StatusFailed:
			job.EndedAt = time.Now().UTC()
		case StatusQueued, StatusPaused:
		}
	})
}

// UpdateMeta implements Store.
func (s *MemoryStore) UpdateMeta(ctx context.Context, id string, meta Meta) error {
	return s.mutate(id, func(job *Job) {
		job.Meta = meta
	})
}

// SaveResult implements Store.
func (s *MemoryStore) SaveResult(ctx context.Context, id string, result broker.Result) error {
	return s.mutate(id, func(job *Job) {
		job.Result = optional.Some(result)
	})
}

// SaveRunState implements Store and strategy.StatePersister.
func (s *MemoryStore) SaveRunState(ctx context.Context, runID string, state strategy.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[runID] = state

	return nil
}

// LoadRunState implements Store.
func (s *MemoryStore) LoadRunState(ctx context.Context, runID string) (strategy.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[runID]

	return state, ok, nil
}

// RequestKill implements Store.
func (s *MemoryStore) RequestKill(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kills[runID] = true

	return nil
}

// ConsumeKill implements Store.
func (s *MemoryStore) ConsumeKill(ctx context.Context, runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.kills[runID] {
		return false, nil
	}

	delete(s.kills, runID)

	return true, nil
}

// RegisterWorker implements Store.
func (s *MemoryStore) RegisterWorker(ctx context.Context, info WorkerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info.LastBeat = time.Now().UTC()
	s.workers[info.ID] = info

	return nil
}

// Heartbeat implements Store.
func (s *MemoryStore) Heartbeat(ctx context.Context, workerID, currentJob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.workers[workerID]
	if !ok {
		return errors.Newf(errors.ErrCodeWorkerNotFound, "worker %s not registered", workerID)
	}

	info.CurrentJob = currentJob
	info.LastBeat = time.Now().UTC()
	s.workers[workerID] = info

	return nil
}

// Workers implements Store.
func (s *MemoryStore) Workers(ctx context.Context) ([]WorkerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workers := make([]WorkerInfo, 0, len(s.workers))
	for _, info := range s.workers {
		workers = append(workers, info)
	}

	return workers, nil
}

// DeregisterWorker implements Store.
func (s *MemoryStore) DeregisterWorker(ctx context.Context, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.workers, workerID)

	return nil
}

// QueueDepth implements Store.
func (s *MemoryStore) QueueDepth(ctx context.Context, queue Queue) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queues[queue]), nil
}

// PushUpdate implements Store.
func (s *MemoryStore) PushUpdate(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, n)

	return nil
}

// PopUpdate implements Store.
func (s *MemoryStore) PopUpdate(ctx context.Context, timeout time.Duration) (*Notification, error) {
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if len(s.updates) > 0 {
			n := s.updates[0]
			s.updates = s.updates[1:]
			s.mu.Unlock()

			return &n, nil
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}

		time.Sleep(memoryPollInterval)
	}
}

func (s *MemoryStore) mutate(id string, mutate func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errors.Newf(errors.ErrCodeJobNotFound, "job %s not found", id)
	}

	mutate(job)

	return nil
}
