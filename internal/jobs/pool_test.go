package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/stretchr/testify/suite"
)

type PoolTestSuite struct {
	suite.Suite
	store *MemoryStore
}

func TestPoolSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (s *PoolTestSuite) SetupTest() {
	s.store = NewMemoryStore()
}

func (s *PoolTestSuite) newPool(cfg PoolConfig) *Pool {
	if len(cfg.Queues) == 0 {
		cfg.Queues = []Queue{QueueBacktest}
	}

	// A real path keeps NewPool away from os.Executable; nothing is spawned
	// because these tests never call Run.
	cfg.WorkerBinary = "/bin/true"

	pool, err := NewPool(cfg, s.store, logger.NewNopLogger())
	s.Require().NoError(err)

	return pool
}

// seedWorker plants a registry entry verbatim, bypassing the beat stamp that
// RegisterWorker applies.
func (s *PoolTestSuite) seedWorker(info WorkerInfo) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	s.store.workers[info.ID] = info
}

// startedJob enqueues a job and moves it in flight, the state a crashed
// worker would leave behind.
func (s *PoolTestSuite) startedJob(id string) {
	ctx := context.Background()

	s.Require().NoError(s.store.Enqueue(ctx, &Job{ID: id, Queue: QueueBacktest}))

	popped, err := s.store.Dequeue(ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(popped)

	s.Require().NoError(s.store.UpdateStatus(ctx, id, StatusStarted))
}

func (s *PoolTestSuite) TestZombieWorkerIsReapedAndJobRetried() {
	ctx := context.Background()
	s.startedJob("run-a")

	s.seedWorker(WorkerInfo{ID: "w-zombie", CurrentJob: "run-a", LastBeat: time.Now().UTC()})

	pool := s.newPool(PoolConfig{})
	pool.cleanupWorkers(ctx)

	workers, err := s.store.Workers(ctx)
	s.Require().NoError(err)
	s.Empty(workers)

	job, err := s.store.Job(ctx, "run-a")
	s.Require().NoError(err)
	s.Equal(StatusQueued, job.Status)
	s.Equal(1, job.Meta.Failures)

	depth, err := s.store.QueueDepth(ctx, QueueBacktest)
	s.Require().NoError(err)
	s.Equal(1, depth)
}

func (s *PoolTestSuite) TestZombieWithoutJobIsJustDeregistered() {
	ctx := context.Background()

	s.seedWorker(WorkerInfo{ID: "w-zombie", LastBeat: time.Now().UTC()})

	pool := s.newPool(PoolConfig{})
	pool.cleanupWorkers(ctx)

	workers, err := s.store.Workers(ctx)
	s.Require().NoError(err)
	s.Empty(workers)
}

func (s *PoolTestSuite) TestHealthyWorkerIsLeftAlone() {
	ctx := context.Background()

	s.seedWorker(WorkerInfo{
		ID:       "w-live",
		Queues:   []Queue{QueueBacktest},
		LastBeat: time.Now().UTC(),
	})

	pool := s.newPool(PoolConfig{})
	pool.cleanupWorkers(ctx)

	workers, err := s.store.Workers(ctx)
	s.Require().NoError(err)
	s.Len(workers, 1)
}

func (s *PoolTestSuite) TestStaleWorkerSurvivesByDefault() {
	ctx := context.Background()

	s.seedWorker(WorkerInfo{
		ID:       "w-stale",
		Queues:   []Queue{QueueBacktest},
		LastBeat: time.Now().UTC().Add(-time.Hour),
	})

	pool := s.newPool(PoolConfig{})
	pool.cleanupWorkers(ctx)

	workers, err := s.store.Workers(ctx)
	s.Require().NoError(err)
	s.Len(workers, 1)
}

func (s *PoolTestSuite) TestStaleWorkerReapedWhenCleanupEnabled() {
	ctx := context.Background()
	s.startedJob("run-a")

	s.seedWorker(WorkerInfo{
		ID:         "w-stale",
		Queues:     []Queue{QueueBacktest},
		CurrentJob: "run-a",
		LastBeat:   time.Now().UTC().Add(-time.Hour),
	})

	pool := s.newPool(PoolConfig{EnableStaleCleanup: true, StaleAfter: time.Minute})
	pool.cleanupWorkers(ctx)

	workers, err := s.store.Workers(ctx)
	s.Require().NoError(err)
	s.Empty(workers)

	job, err := s.store.Job(ctx, "run-a")
	s.Require().NoError(err)
	s.Equal(StatusQueued, job.Status)
	s.Equal(1, job.Meta.Failures)
}

func (s *PoolTestSuite) TestTerminalOrphanedJobIsNotRequeued() {
	ctx := context.Background()
	s.startedJob("run-a")
	s.Require().NoError(s.store.UpdateStatus(ctx, "run-a", StatusFinished))

	s.seedWorker(WorkerInfo{ID: "w-zombie", CurrentJob: "run-a", LastBeat: time.Now().UTC()})

	pool := s.newPool(PoolConfig{})
	pool.cleanupWorkers(ctx)

	job, err := s.store.Job(ctx, "run-a")
	s.Require().NoError(err)
	s.Equal(StatusFinished, job.Status)

	depth, err := s.store.QueueDepth(ctx, QueueBacktest)
	s.Require().NoError(err)
	s.Zero(depth)
}
