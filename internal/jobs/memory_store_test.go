package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/produvia/kryptos-go/internal/strategy"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type MemoryStoreTestSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}

func (s *MemoryStoreTestSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
}

func (s *MemoryStoreTestSuite) TestDequeueIsFIFO() {
	s.Require().NoError(s.store.Enqueue(s.ctx, &Job{ID: "run-1", Queue: QueueBacktest}))
	s.Require().NoError(s.store.Enqueue(s.ctx, &Job{ID: "run-2", Queue: QueueBacktest}))

	first, err := s.store.Dequeue(s.ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Equal("run-1", first.ID)

	second, err := s.store.Dequeue(s.ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(second)
	s.Equal("run-2", second.ID)
}

func (s *MemoryStoreTestSuite) TestDequeueScansQueuesInOrder() {
	s.Require().NoError(s.store.Enqueue(s.ctx, &Job{ID: "run-paper", Queue: QueuePaper}))
	s.Require().NoError(s.store.Enqueue(s.ctx, &Job{ID: "run-live", Queue: QueueLive}))

	job, err := s.store.Dequeue(s.ctx, []Queue{QueueLive, QueuePaper}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(job)
	s.Equal("run-live", job.ID)
}

func (s *MemoryStoreTestSuite) TestDequeueTimesOutEmpty() {
	job, err := s.store.Dequeue(s.ctx, []Queue{QueueBacktest}, 30*time.Millisecond)
	s.Require().NoError(err)
	s.Nil(job)
}

func (s *MemoryStoreTestSuite) TestEnqueueClaimsRunID() {
	s.Require().NoError(s.store.Enqueue(s.ctx, &Job{ID: "run-1", Queue: QueueBacktest}))

	err := s.store.Enqueue(s.ctx, &Job{ID: "run-1", Queue: QueueBacktest})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeDuplicateJob))

	depth, err := s.store.QueueDepth(s.ctx, QueueBacktest)
	s.Require().NoError(err)
	s.Equal(1, depth)

	// The claim also covers jobs that left the queue but are still running.
	_, err = s.store.Dequeue(s.ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NoError(s.store.UpdateStatus(s.ctx, "run-1", StatusStarted))

	err = s.store.Enqueue(s.ctx, &Job{ID: "run-1", Queue: QueueBacktest})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeDuplicateJob))

	// Terminal jobs release the claim.
	s.Require().NoError(s.store.UpdateStatus(s.ctx, "run-1", StatusFinished))
	s.Require().NoError(s.store.Enqueue(s.ctx, &Job{ID: "run-1", Queue: QueueBacktest}))
}

func (s *MemoryStoreTestSuite) TestUnknownJobHasTypedCode() {
	_, err := s.store.Job(s.ctx, "missing")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeJobNotFound))
}

func (s *MemoryStoreTestSuite) TestKillEntryConsumedOnce() {
	s.Require().NoError(s.store.RequestKill(s.ctx, "run-1"))

	consumed, err := s.store.ConsumeKill(s.ctx, "run-1")
	s.Require().NoError(err)
	s.True(consumed)

	again, err := s.store.ConsumeKill(s.ctx, "run-1")
	s.Require().NoError(err)
	s.False(again)
}

func (s *MemoryStoreTestSuite) TestRunStateRoundTrip() {
	state := strategy.State{Status: strategy.StatusIterating, BarIndex: 7, LastPrice: 101.5}
	s.Require().NoError(s.store.SaveRunState(s.ctx, "run-1", state))

	loaded, ok, err := s.store.LoadRunState(s.ctx, "run-1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(7, loaded.BarIndex)
	s.Equal(strategy.StatusIterating, loaded.Status)

	_, ok, err = s.store.LoadRunState(s.ctx, "run-2")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *MemoryStoreTestSuite) TestHeartbeatRequiresRegistration() {
	err := s.store.Heartbeat(s.ctx, "w-unknown", "")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeWorkerNotFound))

	s.Require().NoError(s.store.RegisterWorker(s.ctx, WorkerInfo{ID: "w-1", Queues: []Queue{QueueBacktest}}))
	s.Require().NoError(s.store.Heartbeat(s.ctx, "w-1", "run-1"))

	workers, err := s.store.Workers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(workers, 1)
	s.Equal("run-1", workers[0].CurrentJob)
}
