package strategy

import (
	"time"

	"github.com/produvia/kryptos-go/internal/broker"
)

// Status is the lifecycle state of a strategy run.
type Status string

const (
	// StatusInit is the state before the first bar is processed.
	StatusInit Status = "init"
	// StatusIterating is the normal per-bar processing state.
	StatusIterating Status = "iterating"
	// StatusPaused means the run was suspended and can resume from the
	// persisted state at the next bar.
	StatusPaused Status = "paused"
	// StatusCompleted is the terminal state after the last bar.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal state after an unrecoverable error.
	StatusFailed Status = "failed"
)

// State is the mutable per-run progress snapshot persisted after every bar.
// On resume a run picks up after LastProcessed instead of replaying from
// scratch.
type State struct {
	Status        Status    `json:"status"`
	BarIndex      int       `json:"bar_index"`
	LastPrice     float64   `json:"last_price"`
	LastProcessed time.Time `json:"last_processed"`
	// Portfolio is the broker snapshot captured with every persist. Restoring
	// it is what keeps a resumed run's cash and open position instead of
	// restarting from the capital base.
	Portfolio broker.Portfolio `json:"portfolio"`
	// GapBars counts periods with no price snapshot. They advance the bar
	// counter but produce no decision.
	GapBars int `json:"gap_bars"`
	// SkippedBars counts bars dropped after history retries were exhausted.
	SkippedBars int `json:"skipped_bars"`
	// LastDecision is the time of the last bar that produced a decision.
	// Minute-frequency runs decide again only after the configured number
	// of minutes has elapsed since this time.
	LastDecision time.Time `json:"last_decision"`
}
