package jobs

import (
	"context"

	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

// Route maps a run's mode flags onto its queue. Backtests never share a
// queue with live-fed runs.
func Route(live, simulateOrders bool) Queue {
	switch {
	case !live:
		return QueueBacktest
	case simulateOrders:
		return QueuePaper
	default:
		return QueueLive
	}
}

// Router submits strategy documents as jobs. Submission is idempotent per
// run id: the store claims the id atomically, so a document whose job is
// still in flight is not enqueued twice even by concurrent submitters.
type Router struct {
	store  Store
	logger *logger.Logger
}

// NewRouter creates a router over the shared store.
func NewRouter(store Store, log *logger.Logger) *Router {
	return &Router{store: store, logger: log.Named("router")}
}

// Submit routes and enqueues a run. When a non-terminal job with the same id
// already exists, the existing job is returned unchanged.
func (r *Router) Submit(ctx context.Context, cfg *config.StrategyConfig, live, simulateOrders bool, notifyChannel string) (*Job, error) {
	document, err := cfg.Serialize()
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:    cfg.ID,
		Queue: Route(live, simulateOrders),
		Payload: Payload{
			Document:       document,
			Live:           live,
			SimulateOrders: simulateOrders,
		},
		Meta: Meta{NotifyChannel: notifyChannel},
	}

	if err := r.store.Enqueue(ctx, job); err != nil {
		if errors.HasCode(err, errors.ErrCodeDuplicateJob) {
			r.logger.Info("run already in flight, submission is a no-op",
				zap.String("run_id", cfg.ID),
			)

			return r.store.Job(ctx, cfg.ID)
		}

		return nil, err
	}

	r.logger.Info("run submitted",
		zap.String("run_id", job.ID),
		zap.String("queue", string(job.Queue)),
		zap.Bool("live", live),
		zap.Bool("simulate_orders", simulateOrders),
	)

	return job, nil
}

// Kill marks the run for termination at its next bar boundary.
func (r *Router) Kill(ctx context.Context, runID string) error {
	if err := r.store.RequestKill(ctx, runID); err != nil {
		return err
	}

	r.logger.Info("kill requested", zap.String("run_id", runID))

	return nil
}

// Status returns the job for a run id regardless of which queue it is on.
func (r *Router) Status(ctx context.Context, runID string) (*Job, error) {
	return r.store.Job(ctx, runID)
}
