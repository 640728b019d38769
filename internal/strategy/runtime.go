package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/market"
	"github.com/produvia/kryptos-go/internal/signal"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

// History fetch retry bounds. Transient exchange failures are retried with a
// fixed delay; anything else aborts the attempt immediately.
var (
	historyRetryDelay           = 2 * time.Second
	historyRetryAttempts uint64 = 2
)

// StatePersister saves the run's progress snapshot after every processed bar.
// A persistence failure is logged and does not interrupt the run.
type StatePersister interface {
	SaveRunState(ctx context.Context, runID string, state State) error
}

// Runtime executes one strategy document bar by bar. All collaborators are
// bound at construction; per-bar processing never performs name lookups.
// A runtime is owned by a single goroutine.
type Runtime struct {
	cfg        *config.StrategyConfig
	indicators []indicator.Indicator
	aggregator *signal.Aggregator
	gate       signal.Gate
	broker     broker.Broker
	history    market.HistorySource
	persister  StatePersister
	logger     *logger.Logger
	state      State
	// events receives user-facing trade event messages when set.
	events func(message string)
}

// NewRuntime resolves the strategy document against the indicator registry
// and binds all collaborators for a run.
func NewRuntime(
	cfg *config.StrategyConfig,
	registry indicator.Registry,
	brk broker.Broker,
	history market.HistorySource,
	persister StatePersister,
	log *logger.Logger,
) (*Runtime, error) {
	indicators := make([]indicator.Indicator, 0, len(cfg.Indicators))

	for _, spec := range cfg.Indicators {
		ind, err := registry.Resolve(spec)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeRuntimeSetupFailed, err, "failed to resolve indicator %s", spec.Type)
		}

		indicators = append(indicators, ind)
	}

	rules, err := signal.ResolveRules(cfg.Signals, indicators)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRuntimeSetupFailed, "failed to resolve signal rules", err)
	}

	gate := signal.NewGate(
		cfg.Trading.TakeProfit,
		cfg.Trading.StopLoss,
		cfg.Trading.TrailingStop,
		cfg.Trading.TrailingStopPct,
	)

	return &Runtime{
		cfg:        cfg,
		indicators: indicators,
		aggregator: signal.NewAggregator(rules, cfg.OverrideSignals),
		gate:       gate,
		broker:     brk,
		history:    history,
		persister:  persister,
		logger:     log.Named("runtime"),
		state:      State{Status: StatusInit},
	}, nil
}

// SetEventSink wires user-facing trade event messages (buys, sells, forced
// exits) to a consumer, typically the notification queue.
func (r *Runtime) SetEventSink(sink func(message string)) {
	r.events = sink
}

func (r *Runtime) emit(format string, args ...any) {
	if r.events != nil {
		r.events(fmt.Sprintf(format, args...))
	}
}

// OnInit transitions the run into the iterating state.
func (r *Runtime) OnInit(ctx context.Context) error {
	if r.state.Status != StatusInit && r.state.Status != StatusPaused {
		return errors.Newf(errors.ErrCodeRuntimeSetupFailed, "cannot start run in state %s", r.state.Status)
	}

	r.state.Status = StatusIterating
	r.persist(ctx)

	r.logger.Info("run started",
		zap.String("run_id", r.cfg.ID),
		zap.String("strategy", r.cfg.Name),
		zap.String("symbol", r.cfg.Symbol()),
		zap.Float64("capital_base", r.cfg.Trading.CapitalBase),
		zap.Int("bar_index", r.state.BarIndex),
	)

	return nil
}

// OnBar processes one bar: risk gate first, then the history fetch, signal
// aggregation, order placement, and state persistence. A returned error ends
// the run.
func (r *Runtime) OnBar(ctx context.Context, bar types.Bar) error {
	if err := runInterrupted(ctx); err != nil {
		return err
	}

	if r.state.Status != StatusIterating {
		return errors.Newf(errors.ErrCodeRuntimeIteration, "bar received in state %s", r.state.Status)
	}

	// Bars at or before the last processed time were already handled by an
	// earlier attempt of this run. Reprocessing them would double-count and
	// double-trade the replayed range.
	if !r.state.LastProcessed.IsZero() && !bar.Time.After(r.state.LastProcessed) {
		return nil
	}

	index := r.state.BarIndex
	r.state.BarIndex++

	// A period with no price snapshot still advances the counter so gaps
	// cannot shift later bars.
	if bar.IsZero() {
		r.state.GapBars++
		r.state.LastProcessed = bar.Time
		r.persist(ctx)

		r.logger.Warn("no price snapshot for bar, skipping",
			zap.Int("bar_index", index),
			zap.Time("bar_time", bar.Time),
		)

		return nil
	}

	r.state.LastPrice = bar.Price()
	r.state.LastProcessed = bar.Time

	if !r.aligned(bar.Time) {
		r.persist(ctx)

		return nil
	}

	r.state.LastDecision = bar.Time

	// Orders resting from earlier bars must not fill against this bar's
	// decision.
	if cancelled := r.broker.CancelOpenOrders(); cancelled > 0 {
		r.logger.Info("cancelled unfilled orders", zap.Int("count", cancelled))
	}

	// The risk gate runs before the history fetch so a breached stop still
	// closes the position when the exchange is unreachable.
	forced := r.gate.Check(r.broker.Position(), bar.Price())
	if forced != signal.RiskNone {
		if err := r.forcedSell(bar, forced); err != nil {
			return err
		}
	}

	history, err := r.fetchHistory(ctx, bar.Time)
	if err != nil {
		if err := runInterrupted(ctx); err != nil {
			return err
		}

		switch errors.KindOf(err) {
		case errors.KindTransient, errors.KindMissingData:
			r.state.SkippedBars++
			r.persist(ctx)

			r.logger.Warn("history unavailable, skipping bar",
				zap.Int("bar_index", index),
				zap.Error(err),
			)

			return nil
		default:
			return err
		}
	}

	for _, ind := range r.indicators {
		if err := ind.Calculate(history); err != nil {
			return errors.Wrapf(errors.ErrCodeIndicatorCalculation, err, "indicator %s failed", ind.Label())
		}
	}

	// The aggregator is always evaluated so the tally shows up in telemetry
	// even on bars where a forced sell preempts it.
	decision := r.aggregator.Evaluate(r.indicators)

	r.logger.Debug("bar evaluated",
		zap.Int("bar_index", index),
		zap.Float64("price", bar.Price()),
		zap.String("risk", forced.String()),
		zap.String("action", string(decision.Action)),
		zap.Int("buys", decision.Buys),
		zap.Int("sells", decision.Sells),
		zap.Int("neutrals", decision.Neutrals),
		zap.Int("excluded", decision.Excluded),
	)

	if forced == signal.RiskNone {
		if err := r.act(bar, decision.Action); err != nil {
			return err
		}
	}

	r.persist(ctx)

	return nil
}

// OnComplete finishes the run and returns the portfolio summary.
func (r *Runtime) OnComplete(ctx context.Context) broker.Result {
	r.state.Status = StatusCompleted
	r.persist(ctx)

	result := r.broker.Summary(r.state.LastPrice)

	r.logger.Info("run completed",
		zap.String("run_id", r.cfg.ID),
		zap.Int("bars", r.state.BarIndex),
		zap.Int("gap_bars", r.state.GapBars),
		zap.Int("skipped_bars", r.state.SkippedBars),
		zap.Float64("ending_cash", result.EndingCash),
		zap.Float64("return_pct", result.ReturnPct),
		zap.Int("trades", result.TradeCount),
	)

	return result
}

// Pause suspends the run so it can resume from the next bar.
func (r *Runtime) Pause(ctx context.Context) {
	if r.state.Status != StatusIterating {
		return
	}

	r.state.Status = StatusPaused
	r.persist(ctx)

	r.logger.Info("run paused",
		zap.String("run_id", r.cfg.ID),
		zap.Int("bar_index", r.state.BarIndex),
	)
}

// Fail moves the run into the terminal failed state.
func (r *Runtime) Fail(ctx context.Context, cause error) {
	r.state.Status = StatusFailed
	r.persist(ctx)

	r.logger.Error("run failed",
		zap.String("run_id", r.cfg.ID),
		zap.Int("bar_index", r.state.BarIndex),
		zap.Error(cause),
	)
}

// Restore seeds the runtime with a previously persisted state so a paused or
// requeued run continues from where it stopped. The broker is seeded with the
// persisted portfolio, and bars at or before the persisted LastProcessed time
// are skipped when the range replays.
func (r *Runtime) Restore(state State) {
	r.state = state
	r.state.Status = StatusPaused

	if !state.Portfolio.IsZero() {
		r.broker.RestorePortfolio(state.Portfolio)
	}
}

// State returns a copy of the current progress snapshot.
func (r *Runtime) State() State {
	return r.state
}

// Config returns the run's strategy document.
func (r *Runtime) Config() *config.StrategyConfig {
	return r.cfg
}

// aligned reports whether a decision is due on this bar. Daily runs decide
// every bar; minute runs decide once the configured number of minutes has
// elapsed since the last decision.
func (r *Runtime) aligned(barTime time.Time) bool {
	if r.cfg.Trading.DataFreq != types.FrequencyMinute {
		return true
	}

	if r.state.LastDecision.IsZero() {
		return true
	}

	elapsed := barTime.Sub(r.state.LastDecision)

	return elapsed >= time.Duration(r.cfg.Trading.MinuteFreq)*time.Minute
}

// fetchHistory pulls the lookback window, retrying transient exchange
// failures with a fixed delay before giving up on the bar.
func (r *Runtime) fetchHistory(ctx context.Context, end time.Time) ([]types.Bar, error) {
	var bars []types.Bar

	operation := func() error {
		fetched, err := r.history.History(ctx, r.cfg.Symbol(), r.cfg.Trading.Bars, end)
		if err != nil {
			if errors.KindOf(err) != errors.KindTransient {
				return backoff.Permanent(err)
			}

			r.logger.Warn("history fetch failed, retrying", zap.Error(err))

			return err
		}

		bars = fetched

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(historyRetryDelay), historyRetryAttempts),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.NewKind(errors.ErrCodeNoDataForBar, errors.KindMissingData, "empty history window")
	}

	return bars, nil
}

// forcedSell executes the risk gate's verdict. A trailing-variant take-profit
// trims half the position and ratchets the stop instead of closing out.
func (r *Runtime) forcedSell(bar types.Bar, action signal.RiskAction) error {
	position := r.broker.Position()
	if position.IsNone() {
		return nil
	}

	pos := position.Unwrap()

	if action == signal.RiskTakeProfit && r.gate.Trailing() {
		if err := r.broker.Sell(bar, pos.Amount/2, action.String()); err != nil {
			return errors.Wrap(errors.ErrCodeOrderFailed, "forced trim failed", err)
		}

		r.gate.RatchetStop(&pos)

		if err := r.broker.AdjustStop(pos.AdjustedStop.Unwrap()); err != nil {
			return errors.Wrap(errors.ErrCodeOrderFailed, "stop adjustment failed", err)
		}

		r.logger.Info("take profit trim, stop ratcheted",
			zap.Float64("price", bar.Price()),
			zap.Float64("new_stop", pos.AdjustedStop.Unwrap()),
		)
		r.emit("take profit at %.4f: trimmed position, stop tightened", bar.Price())

		return nil
	}

	if err := r.broker.SellAll(bar, action.String()); err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "forced sell failed", err)
	}

	r.logger.Info("position closed by risk gate",
		zap.String("reason", action.String()),
		zap.Float64("price", bar.Price()),
	)
	r.emit("%s at %.4f: position closed", action.String(), bar.Price())

	return nil
}

// act places the aggregated order. Buys without sufficient cash and sells
// without an open position log a warning and do nothing.
func (r *Runtime) act(bar types.Bar, action types.Action) error {
	switch action {
	case types.ActionBuy:
		cost := bar.Price() * r.cfg.Trading.OrderSize * (1 + r.cfg.Trading.SlippageAllowed)
		if cost > r.broker.Cash() {
			r.logger.Warn("buy signal with insufficient cash, holding",
				zap.Float64("cost", cost),
				zap.Float64("cash", r.broker.Cash()),
			)

			return nil
		}

		if err := r.broker.Buy(bar, r.cfg.Trading.OrderSize, "signal"); err != nil {
			return errors.Wrap(errors.ErrCodeOrderFailed, "buy failed", err)
		}

		r.emit("bought %.4f at %.4f", r.cfg.Trading.OrderSize, bar.Price())
	case types.ActionSell:
		if r.broker.Position().IsNone() {
			r.logger.Warn("sell signal with no open position, holding")

			return nil
		}

		if err := r.broker.SellAll(bar, "signal"); err != nil {
			return errors.Wrap(errors.ErrCodeOrderFailed, "sell failed", err)
		}

		r.emit("sold position at %.4f", bar.Price())
	case types.ActionHold:
	}

	return nil
}

// persist saves the progress snapshot. Failures are logged, never fatal.
func (r *Runtime) persist(ctx context.Context) {
	if r.persister == nil {
		return
	}

	r.state.Portfolio = r.broker.Portfolio()

	if err := r.persister.SaveRunState(ctx, r.cfg.ID, r.state); err != nil {
		r.logger.Warn("failed to persist run state",
			zap.String("run_id", r.cfg.ID),
			zap.Error(err),
		)
	}
}

// runInterrupted translates a cancelled context into the classified run
// error carried by the cancellation cause.
func runInterrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}

	cause := context.Cause(ctx)

	switch errors.KindOf(cause) {
	case errors.KindKill, errors.KindShutdown:
		return cause
	default:
		return errors.WrapKind(errors.ErrCodeRunShutdown, errors.KindShutdown, "run interrupted", cause)
	}
}
