package jobs

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/broker"
)

// Queue is a named job queue. Each trading mode owns one queue; a worker owns
// one or more queues and nothing else consumes them.
type Queue string

const (
	// QueueBacktest serves historical replays.
	QueueBacktest Queue = "backtest"
	// QueuePaper serves live-data runs with simulated order placement.
	QueuePaper Queue = "paper"
	// QueueLive serves live-data runs placing real orders.
	QueueLive Queue = "live"
	// QueueUpdates carries user notifications, consumed by the bot front end.
	QueueUpdates Queue = "updates"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Payload is what a worker needs to execute the run.
type Payload struct {
	// Document is the serialized strategy document.
	Document string `json:"document"`
	// Live selects a live exchange feed instead of a historical replay.
	Live bool `json:"live"`
	// SimulateOrders keeps order placement on the paper broker for live runs.
	SimulateOrders bool `json:"simulate_orders"`
}

// Meta is the mutable job bookkeeping visible to front ends while the run is
// in flight.
type Meta struct {
	// Output is the latest progress line of the run.
	Output string `json:"output,omitempty"`
	// Date is the time of the last processed bar.
	Date time.Time `json:"date,omitempty"`
	// Paused marks a run suspended by a worker shutdown; it resumes from the
	// persisted state when dequeued again.
	Paused bool `json:"paused,omitempty"`
	// Failures counts job-level failures for retry accounting.
	Failures int `json:"failures,omitempty"`
	// NotifyChannel is the user notification channel id, empty when the
	// submitter did not ask for updates.
	NotifyChannel string `json:"notify_channel,omitempty"`
}

// Job is one strategy run tracked through the queue system. The ID doubles as
// the run identifier and the idempotency key: resubmitting a document with
// the same id while its job is still in flight is a no-op.
type Job struct {
	ID         string                        `json:"id"`
	Queue      Queue                         `json:"queue"`
	Status     Status                        `json:"status"`
	Payload    Payload                       `json:"payload"`
	Meta       Meta                          `json:"meta"`
	Result     optional.Option[broker.Result] `json:"result,omitempty"`
	EnqueuedAt time.Time                     `json:"enqueued_at"`
	StartedAt  time.Time                     `json:"started_at,omitempty"`
	EndedAt    time.Time                     `json:"ended_at,omitempty"`
}

// Notification is one user-facing message pushed onto the updates queue.
type Notification struct {
	ChannelID string    `json:"channel_id"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// WorkerInfo is a worker's registry entry. Workers heartbeat it; the pool
// reads it for zombie and stale cleanup.
type WorkerInfo struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Queues     []Queue   `json:"queues"`
	CurrentJob string    `json:"current_job,omitempty"`
	LastBeat   time.Time `json:"last_beat"`
}
