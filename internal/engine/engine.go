package engine

import (
	"context"
	"time"

	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/market"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

// Hooks are the strategy-side callbacks an engine drives. The runtime
// implements them; the engine never sees strategy internals.
type Hooks interface {
	OnInit(ctx context.Context) error
	OnBar(ctx context.Context, bar types.Bar) error
	OnComplete(ctx context.Context) broker.Result
}

// RunConfig carries the engine-level parameters of one run.
type RunConfig struct {
	// Live marks a run fed by a live exchange feed rather than a replay.
	Live bool
	// SimulateOrders keeps order placement on the paper broker even when the
	// feed is live.
	SimulateOrders bool
	Start          time.Time
	End            time.Time
	// OnProgress, when set, is called once per consumed bar.
	OnProgress func(processed int)
}

// Engine pulls bars from a source and drives them through the hooks. One
// engine instance runs one strategy to completion.
type Engine interface {
	Run(ctx context.Context, hooks Hooks) (broker.Result, error)
}

// SimEngine drives a run off any BarSource: a replayed slice for backtests or
// a polling feed for paper/live trading.
type SimEngine struct {
	source market.BarSource
	cfg    RunConfig
	logger *logger.Logger
}

// NewSimEngine creates an engine over the given bar source.
func NewSimEngine(source market.BarSource, cfg RunConfig, log *logger.Logger) *SimEngine {
	return &SimEngine{
		source: source,
		cfg:    cfg,
		logger: log.Named("engine"),
	}
}

// Run implements Engine. It consumes the source until exhaustion or until a
// hook returns an error; only clean exhaustion reaches OnComplete.
func (e *SimEngine) Run(ctx context.Context, hooks Hooks) (broker.Result, error) {
	if err := hooks.OnInit(ctx); err != nil {
		return broker.Result{}, err
	}

	processed := 0

	for {
		bar, ok, err := e.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				cause := context.Cause(ctx)
				switch errors.KindOf(cause) {
				case errors.KindKill, errors.KindShutdown:
					return broker.Result{}, cause
				default:
					return broker.Result{}, errors.WrapKind(errors.ErrCodeRunShutdown, errors.KindShutdown,
						"run interrupted", cause)
				}
			}

			// A live fetch failure for one period is a gap, not the end of
			// the feed. The bar still goes through so the counter advances.
			if ok {
				e.logger.Warn("bar fetch failed, treating period as gap", zap.Error(err))
			} else {
				return broker.Result{}, errors.Wrap(errors.ErrCodeHistoryFetchFailed, "bar source failed", err)
			}
		}

		if !ok {
			break
		}

		if e.outOfRange(bar) {
			continue
		}

		if err := hooks.OnBar(ctx, bar); err != nil {
			return broker.Result{}, err
		}

		processed++
		if e.cfg.OnProgress != nil {
			e.cfg.OnProgress(processed)
		}
	}

	return hooks.OnComplete(ctx), nil
}

func (e *SimEngine) outOfRange(bar types.Bar) bool {
	if bar.Time.IsZero() {
		return false
	}

	if !e.cfg.Start.IsZero() && bar.Time.Before(e.cfg.Start) {
		return true
	}

	if !e.cfg.End.IsZero() && bar.Time.After(e.cfg.End) {
		return true
	}

	return false
}
