package jobs

import (
	"context"
	"time"

	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/strategy"
)

// DefaultRetention is how long terminal jobs stay queryable.
const DefaultRetention = 24 * time.Hour

// Store is the shared job state all processes coordinate through. The Redis
// implementation backs production; the in-memory implementation backs tests
// and one-shot local runs. Implementations must be safe for concurrent use.
type Store interface {
	// Enqueue claims the job id, persists the job, and pushes its id onto
	// its queue. A non-terminal job with the same id fails the claim with
	// ErrCodeDuplicateJob, atomically, so racing submitters cannot enqueue
	// the same run twice.
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue blocks up to timeout for a job on any of the given queues,
	// scanning them in order. Returns nil without error when the timeout
	// elapses. The returned job is owned by the caller until it reaches a
	// terminal state or is requeued.
	Dequeue(ctx context.Context, queues []Queue, timeout time.Duration) (*Job, error)
	// Requeue pushes an in-flight job back onto its queue.
	Requeue(ctx context.Context, job *Job) error

	// Job returns the stored job regardless of which queue it is on.
	Job(ctx context.Context, id string) (*Job, error)
	// UpdateStatus transitions the job's status. Terminal statuses start the
	// retention clock.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// UpdateMeta replaces the job's meta.
	UpdateMeta(ctx context.Context, id string, meta Meta) error
	// SaveResult attaches the run's portfolio summary to the job.
	SaveResult(ctx context.Context, id string, result broker.Result) error

	// SaveRunState persists the runtime's progress snapshot.
	SaveRunState(ctx context.Context, runID string, state strategy.State) error
	// LoadRunState returns the persisted snapshot, if any.
	LoadRunState(ctx context.Context, runID string) (strategy.State, bool, error)

	// RequestKill marks the run for termination at its next bar boundary.
	RequestKill(ctx context.Context, runID string) error
	// ConsumeKill atomically removes the kill entry, reporting whether it was
	// present. Exactly one consumer observes true per request.
	ConsumeKill(ctx context.Context, runID string) (bool, error)

	// RegisterWorker adds or replaces the worker's registry entry.
	RegisterWorker(ctx context.Context, info WorkerInfo) error
	// Heartbeat refreshes the worker's registry entry and current job.
	Heartbeat(ctx context.Context, workerID, currentJob string) error
	// Workers lists all registered workers.
	Workers(ctx context.Context) ([]WorkerInfo, error)
	// DeregisterWorker removes the worker's registry entry.
	DeregisterWorker(ctx context.Context, workerID string) error

	// QueueDepth returns the number of queued jobs on the queue.
	QueueDepth(ctx context.Context, queue Queue) (int, error)

	// PushUpdate enqueues a user notification onto the updates queue.
	PushUpdate(ctx context.Context, n Notification) error
	// PopUpdate blocks up to timeout for the next notification. Returns nil
	// without error when the timeout elapses.
	PopUpdate(ctx context.Context, timeout time.Duration) (*Notification, error)
}
