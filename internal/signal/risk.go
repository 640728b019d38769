package signal

import (
	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/types"
)

// RiskAction is the risk gate's verdict for one bar.
type RiskAction int

const (
	// RiskNone means the open position (if any) stays within thresholds.
	RiskNone RiskAction = iota
	// RiskTakeProfit forces a sell because the take-profit threshold was hit.
	RiskTakeProfit
	// RiskStopLoss forces a full sell because the stop threshold was breached.
	RiskStopLoss
)

func (a RiskAction) String() string {
	switch a {
	case RiskTakeProfit:
		return "take_profit"
	case RiskStopLoss:
		return "stop_loss"
	default:
		return "none"
	}
}

// Gate checks an open position against take-profit/stop-loss thresholds
// before the aggregator is consulted each bar. A forced sell preempts
// whatever the aggregator decides that bar.
type Gate struct {
	takeProfit float64
	stopLoss   float64
	// trailing replaces the stop percentage with trailingPct after a
	// take-profit hit, ratcheting the stop tighter instead of closing out.
	trailing    bool
	trailingPct float64
}

// NewGate creates a risk gate with the run's configured thresholds.
func NewGate(takeProfit, stopLoss float64, trailing bool, trailingPct float64) Gate {
	return Gate{
		takeProfit:  takeProfit,
		stopLoss:    stopLoss,
		trailing:    trailing,
		trailingPct: trailingPct,
	}
}

// Check evaluates the position against the gate's thresholds at the current
// price. With no open position the verdict is always RiskNone.
func (g Gate) Check(position optional.Option[types.Position], price float64) RiskAction {
	if position.IsNone() {
		return RiskNone
	}

	pos := position.Unwrap()
	if pos.Amount <= 0 {
		return RiskNone
	}

	if price >= pos.CostBasis*(1+g.takeProfit) {
		return RiskTakeProfit
	}

	stop := g.stopLoss
	if pos.AdjustedStop.IsSome() {
		stop = pos.AdjustedStop.Unwrap()
	}

	if price < pos.CostBasis*(1-stop) {
		return RiskStopLoss
	}

	return RiskNone
}

// Trailing reports whether take-profit hits ratchet the stop instead of
// closing the position.
func (g Gate) Trailing() bool {
	return g.trailing
}

// RatchetStop tightens the position's effective stop after a take-profit
// trim. Only meaningful for the trailing variant.
func (g Gate) RatchetStop(pos *types.Position) {
	pos.AdjustedStop = optional.Some(g.trailingPct)
}
