package jobs

import (
	"context"
	"fmt"

	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

// MaxRetries is how many job-level failures a run survives before it is
// marked failed for good.
const MaxRetries = 3

// Lifecycle decides what happens to a job when its run ends. All decisions
// switch on the error's kind, never on concrete error types.
type Lifecycle struct {
	store    Store
	notifier *Notifier
	logger   *logger.Logger
}

// NewLifecycle creates a lifecycle controller over the shared store.
func NewLifecycle(store Store, notifier *Notifier, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		store:    store,
		notifier: notifier,
		logger:   log.Named("lifecycle"),
	}
}

// HandleSuccess finishes the job and attaches the run result.
func (l *Lifecycle) HandleSuccess(ctx context.Context, job *Job, result broker.Result) error {
	if err := l.store.SaveResult(ctx, job.ID, result); err != nil {
		return err
	}

	if err := l.store.UpdateStatus(ctx, job.ID, StatusFinished); err != nil {
		return err
	}

	l.notifier.Notify(ctx, job, fmt.Sprintf(
		"strategy %s finished: %d trades, return %.2f%%",
		job.ID, result.TradeCount, result.ReturnPct*100,
	))

	l.logger.Info("job finished",
		zap.String("run_id", job.ID),
		zap.Float64("return_pct", result.ReturnPct),
	)

	return nil
}

// HandleFailure classifies the run error and applies the matching policy:
// kill ends the job cleanly, shutdown requeues it for another worker,
// credential failures end it immediately, and everything else is retried up
// to MaxRetries.
func (l *Lifecycle) HandleFailure(ctx context.Context, job *Job, runErr error) error {
	switch errors.KindOf(runErr) {
	case errors.KindKill:
		return l.handleKill(ctx, job)
	case errors.KindShutdown:
		return l.handleShutdown(ctx, job)
	case errors.KindCredential:
		return l.fail(ctx, job, runErr,
			fmt.Sprintf("strategy %s stopped: exchange rejected your credentials", job.ID))
	default:
		return l.retryOrFail(ctx, job, runErr)
	}
}

func (l *Lifecycle) handleKill(ctx context.Context, job *Job) error {
	// The watcher consumed the kill entry before cancelling; a leftover
	// entry here means the kill raced the run's natural end.
	if _, err := l.store.ConsumeKill(ctx, job.ID); err != nil {
		l.logger.Warn("failed to clear kill entry", zap.String("run_id", job.ID), zap.Error(err))
	}

	job.Meta.Output = "killed"
	if err := l.store.UpdateMeta(ctx, job.ID, job.Meta); err != nil {
		return err
	}

	if err := l.store.UpdateStatus(ctx, job.ID, StatusFinished); err != nil {
		return err
	}

	l.notifier.Notify(ctx, job, fmt.Sprintf("strategy %s stopped on request", job.ID))

	l.logger.Info("job killed cleanly", zap.String("run_id", job.ID))

	return nil
}

func (l *Lifecycle) handleShutdown(ctx context.Context, job *Job) error {
	job.Meta.Paused = true
	if err := l.store.UpdateMeta(ctx, job.ID, job.Meta); err != nil {
		return err
	}

	if err := l.store.Requeue(ctx, job); err != nil {
		return err
	}

	l.logger.Info("job requeued after worker shutdown",
		zap.String("run_id", job.ID),
		zap.String("queue", string(job.Queue)),
	)

	return nil
}

func (l *Lifecycle) retryOrFail(ctx context.Context, job *Job, runErr error) error {
	job.Meta.Failures++

	if job.Meta.Failures >= MaxRetries {
		return l.fail(ctx, job, runErr,
			fmt.Sprintf("strategy %s failed after %d attempts", job.ID, job.Meta.Failures))
	}

	if err := l.store.UpdateMeta(ctx, job.ID, job.Meta); err != nil {
		return err
	}

	if err := l.store.Requeue(ctx, job); err != nil {
		return err
	}

	l.logger.Warn("job failed, retrying",
		zap.String("run_id", job.ID),
		zap.Int("failures", job.Meta.Failures),
		zap.Error(runErr),
	)

	return nil
}

func (l *Lifecycle) fail(ctx context.Context, job *Job, runErr error, message string) error {
	job.Meta.Output = runErr.Error()
	if err := l.store.UpdateMeta(ctx, job.ID, job.Meta); err != nil {
		return err
	}

	if err := l.store.UpdateStatus(ctx, job.ID, StatusFailed); err != nil {
		return err
	}

	l.notifier.Notify(ctx, job, message)

	l.logger.Error("job failed permanently",
		zap.String("run_id", job.ID),
		zap.Int("failures", job.Meta.Failures),
		zap.Error(runErr),
	)

	return nil
}
