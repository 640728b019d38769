package market

import (
	"context"
	"time"

	"github.com/produvia/kryptos-go/internal/types"
)

// SimSource replays a fixed slice of bars, serving history windows out of
// the already-replayed prefix. Used for backtests and as the scripted
// source in tests; history failures can be injected to exercise the
// runtime's retry path.
type SimSource struct {
	bars   []types.Bar
	cursor int

	// pendingHistoryErrs are returned by History, one per call, before any
	// real data is served again.
	pendingHistoryErrs []error
	// gapAt marks cursor positions that yield an empty snapshot (exchange
	// gap) instead of a bar.
	gapAt map[int]bool
}

// NewSimSource creates a source replaying the given bars in order.
func NewSimSource(bars []types.Bar) *SimSource {
	return &SimSource{
		bars:               bars,
		cursor:             0,
		pendingHistoryErrs: nil,
		gapAt:              make(map[int]bool),
	}
}

// Next implements BarSource.
func (s *SimSource) Next(ctx context.Context) (types.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Bar{}, false, err
	}

	if s.cursor >= len(s.bars) {
		return types.Bar{}, false, nil
	}

	idx := s.cursor
	s.cursor++

	if s.gapAt[idx] {
		// No snapshot for this period; the bar still advances.
		return types.Bar{Time: s.bars[idx].Time}, true, nil
	}

	return s.bars[idx], true, nil
}

// History implements HistorySource over the replayed prefix.
func (s *SimSource) History(ctx context.Context, symbol string, window int, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(s.pendingHistoryErrs) > 0 {
		err := s.pendingHistoryErrs[0]
		s.pendingHistoryErrs = s.pendingHistoryErrs[1:]

		return nil, err
	}

	upto := 0
	for upto < len(s.bars) && !s.bars[upto].Time.After(end) {
		upto++
	}

	start := upto - window
	if start < 0 {
		start = 0
	}

	out := make([]types.Bar, upto-start)
	copy(out, s.bars[start:upto])

	return out, nil
}

// FailNextHistory queues an error to be returned by upcoming History calls.
func (s *SimSource) FailNextHistory(errs ...error) {
	s.pendingHistoryErrs = append(s.pendingHistoryErrs, errs...)
}

// GapAt marks the bar at index idx as having no price snapshot.
func (s *SimSource) GapAt(idx int) {
	s.gapAt[idx] = true
}
