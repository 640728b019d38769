package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type LifecycleTestSuite struct {
	suite.Suite
	store     *MemoryStore
	lifecycle *Lifecycle
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleTestSuite))
}

func (s *LifecycleTestSuite) SetupTest() {
	s.store = NewMemoryStore()
	log := logger.NewNopLogger()
	s.lifecycle = NewLifecycle(s.store, NewNotifier(s.store, log), log)
}

func (s *LifecycleTestSuite) enqueue(id string) *Job {
	job := &Job{
		ID:    id,
		Queue: QueueBacktest,
		Meta:  Meta{NotifyChannel: "chan-1"},
	}
	s.Require().NoError(s.store.Enqueue(context.Background(), job))

	return job
}

func (s *LifecycleTestSuite) popUpdate() *Notification {
	n, err := s.store.PopUpdate(context.Background(), 50*time.Millisecond)
	s.Require().NoError(err)

	return n
}

func (s *LifecycleTestSuite) TestSuccessFinishesWithResult() {
	job := s.enqueue("run-a")
	result := broker.Result{TradeCount: 4, ReturnPct: 0.12}

	s.Require().NoError(s.lifecycle.HandleSuccess(context.Background(), job, result))

	stored, err := s.store.Job(context.Background(), "run-a")
	s.Require().NoError(err)
	s.Equal(StatusFinished, stored.Status)
	s.Require().True(stored.Result.IsSome())
	s.Equal(4, stored.Result.Unwrap().TradeCount)

	s.NotNil(s.popUpdate())
}

func (s *LifecycleTestSuite) TestCredentialFailureDoesNotRetry() {
	job := s.enqueue("run-a")
	authErr := errors.NewKind(errors.ErrCodeExchangeAuth, errors.KindCredential, "bad key")

	s.Require().NoError(s.lifecycle.HandleFailure(context.Background(), job, authErr))

	stored, err := s.store.Job(context.Background(), "run-a")
	s.Require().NoError(err)
	s.Equal(StatusFailed, stored.Status)
	s.Zero(stored.Meta.Failures)

	depth, err := s.store.QueueDepth(context.Background(), QueueBacktest)
	s.Require().NoError(err)
	s.Equal(1, depth) // the original enqueue only; no retry added

	s.NotNil(s.popUpdate())
}

func (s *LifecycleTestSuite) TestGenericFailureRetriesUntilExhausted() {
	ctx := context.Background()
	job := s.enqueue("run-a")
	genericErr := errors.New(errors.ErrCodeRuntimeIteration, "boom")

	// Drain the original enqueue so requeues are countable.
	popped, err := s.store.Dequeue(ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(popped)

	for attempt := 1; attempt < MaxRetries; attempt++ {
		s.Require().NoError(s.lifecycle.HandleFailure(ctx, job, genericErr))

		stored, err := s.store.Job(ctx, "run-a")
		s.Require().NoError(err)
		s.Equal(StatusQueued, stored.Status)
		s.Equal(attempt, stored.Meta.Failures)

		popped, err := s.store.Dequeue(ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
		s.Require().NoError(err)
		s.Require().NotNil(popped)
	}

	s.Require().NoError(s.lifecycle.HandleFailure(ctx, job, genericErr))

	stored, err := s.store.Job(ctx, "run-a")
	s.Require().NoError(err)
	s.Equal(StatusFailed, stored.Status)
	s.Equal(MaxRetries, stored.Meta.Failures)

	depth, err := s.store.QueueDepth(ctx, QueueBacktest)
	s.Require().NoError(err)
	s.Zero(depth)
}

func (s *LifecycleTestSuite) TestKillEndsCleanly() {
	ctx := context.Background()
	job := s.enqueue("run-a")
	s.Require().NoError(s.store.RequestKill(ctx, "run-a"))

	killErr := errors.NewKind(errors.ErrCodeRunKilled, errors.KindKill, "run killed on request")
	s.Require().NoError(s.lifecycle.HandleFailure(ctx, job, killErr))

	stored, err := s.store.Job(ctx, "run-a")
	s.Require().NoError(err)
	s.Equal(StatusFinished, stored.Status)

	// The leftover kill entry is cleared.
	consumed, err := s.store.ConsumeKill(ctx, "run-a")
	s.Require().NoError(err)
	s.False(consumed)
}

func (s *LifecycleTestSuite) TestKillForOtherRunUnaffected() {
	ctx := context.Background()
	s.Require().NoError(s.store.RequestKill(ctx, "run-b"))

	job := s.enqueue("run-a")
	killErr := errors.NewKind(errors.ErrCodeRunKilled, errors.KindKill, "run killed on request")
	s.Require().NoError(s.lifecycle.HandleFailure(ctx, job, killErr))

	// run-b's kill entry survives run-a's termination.
	consumed, err := s.store.ConsumeKill(ctx, "run-b")
	s.Require().NoError(err)
	s.True(consumed)
}

func (s *LifecycleTestSuite) TestShutdownRequeuesPaused() {
	ctx := context.Background()
	job := s.enqueue("run-a")

	popped, err := s.store.Dequeue(ctx, []Queue{QueueBacktest}, 50*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(popped)

	shutdownErr := errors.NewKind(errors.ErrCodeRunShutdown, errors.KindShutdown, "worker shutting down")
	s.Require().NoError(s.lifecycle.HandleFailure(ctx, job, shutdownErr))

	stored, err := s.store.Job(ctx, "run-a")
	s.Require().NoError(err)
	s.Equal(StatusQueued, stored.Status)
	s.True(stored.Meta.Paused)
	s.Zero(stored.Meta.Failures)

	depth, err := s.store.QueueDepth(ctx, QueueBacktest)
	s.Require().NoError(err)
	s.Equal(1, depth)
}
