package market

import (
	"context"
	"time"

	"github.com/produvia/kryptos-go/internal/types"
)

// BarSource is the pull iterator a run consumes bars from. The engine asks
// for the next bar instead of being called back by a data feed, so the core
// loop stays independent of any particular feed's control flow.
type BarSource interface {
	// Next returns the next bar in strict chronological order. ok is false
	// when the source is exhausted (end of range or closed feed).
	Next(ctx context.Context) (bar types.Bar, ok bool, err error)
}

// HistorySource serves bounded lookback windows for indicator calculation.
// Implementations classify their failures with pkg/errors kinds so the
// runtime can tell transient timeouts from credential problems.
type HistorySource interface {
	// History returns up to window bars ending at or before end,
	// oldest first.
	History(ctx context.Context, symbol string, window int, end time.Time) ([]types.Bar, error)
}

// Source is a full market data provider for one run.
type Source interface {
	BarSource
	HistorySource
}
