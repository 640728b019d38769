package broker

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/types"
)

// Trade is one executed fill.
type Trade struct {
	Time   time.Time    `json:"time"`
	Side   types.Action `json:"side"`
	Amount float64      `json:"amount"`
	Price  float64      `json:"price"`
	Reason string       `json:"reason"`
}

// Portfolio is the broker-side snapshot persisted with the run state. A
// resumed run restores it so cash, holdings, and realized results carry over
// instead of restarting from the capital base.
type Portfolio struct {
	Cash        float64                         `json:"cash"`
	RealizedPnL float64                         `json:"realized_pnl"`
	TradeCount  int                             `json:"trade_count"`
	Position    optional.Option[types.Position] `json:"position,omitempty"`
}

// IsZero reports whether the snapshot was never captured from a broker.
func (p Portfolio) IsZero() bool {
	return p.Cash == 0 && p.TradeCount == 0 && p.Position.IsNone()
}

// Result is the portfolio summary produced when a run completes.
type Result struct {
	StartingCash float64 `json:"starting_cash"`
	EndingCash   float64 `json:"ending_cash"`
	EndingValue  float64 `json:"ending_value"`
	RealizedPnL  float64 `json:"realized_pnl"`
	ReturnPct    float64 `json:"return_pct"`
	TradeCount   int     `json:"trade_count"`
}

// Broker is the order placement boundary of a run. One broker instance is
// owned by one run; there are no concurrent callers.
type Broker interface {
	// Buy fills a buy of amount units at the bar's price plus allowed
	// slippage. Fails when cash does not cover the fill.
	Buy(bar types.Bar, amount float64, reason string) error
	// Sell fills a sell of amount units at the bar's price minus allowed
	// slippage. Fails when no position is open.
	Sell(bar types.Bar, amount float64, reason string) error
	// SellAll closes the entire position.
	SellAll(bar types.Bar, reason string) error
	// CancelOpenOrders cancels unfilled orders from earlier bars and returns
	// how many were cancelled. Paper fills are immediate, so the paper broker
	// always reports zero.
	CancelOpenOrders() int
	// AdjustStop replaces the open position's effective stop percentage.
	AdjustStop(stop float64) error
	// Position returns the open position, if any.
	Position() optional.Option[types.Position]
	// Cash returns the available cash balance.
	Cash() float64
	// Trades returns the fills executed by this broker instance, in order.
	Trades() []Trade
	// Portfolio returns the snapshot persisted alongside the run state.
	Portfolio() Portfolio
	// RestorePortfolio seeds cash, holdings, and realized results from a
	// persisted snapshot. The capital base keeps its constructed value so
	// return percentages stay relative to the original stake.
	RestorePortfolio(p Portfolio)
	// Summary returns the portfolio result at the given final price.
	Summary(finalPrice float64) Result
}
