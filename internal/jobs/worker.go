package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/engine"
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/market"
	"github.com/produvia/kryptos-go/internal/strategy"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

// Worker defaults.
const (
	DefaultPollTimeout      = 5 * time.Second
	DefaultKillPollInterval = 2 * time.Second
	postRunTimeout          = 30 * time.Second
	// maxHistoryWindow is the exchange's single-request kline limit.
	maxHistoryWindow = 1000
)

// WorkerConfig configures one worker process.
type WorkerConfig struct {
	// ID defaults to a fresh uuid.
	ID string
	// Queues this worker owns, scanned in order.
	Queues []Queue
	// Burst workers exit as soon as their queues are empty.
	Burst bool
	// PollTimeout bounds each blocking dequeue.
	PollTimeout time.Duration
	// KillPollInterval is how often the kill watcher checks the kill set.
	KillPollInterval time.Duration
	// Exchange credentials; may be empty for backtests on public data.
	BinanceAPIKey    string
	BinanceSecretKey string
}

// assembleFunc builds the market source, history source, and broker for one
// job. Swapped out in tests for scripted sources.
type assembleFunc func(ctx context.Context, cfg *config.StrategyConfig, job *Job) (market.BarSource, market.HistorySource, broker.Broker, error)

// Worker consumes jobs from its queues one at a time and runs each strategy
// to completion inside the engine. Kill requests cancel the run context at
// the next bar boundary; a worker shutdown pauses the run and requeues it.
type Worker struct {
	cfg       WorkerConfig
	store     Store
	registry  indicator.Registry
	lifecycle *Lifecycle
	notifier  *Notifier
	logger    *logger.Logger
	assemble  assembleFunc
}

// NewWorker creates a worker over the shared store.
func NewWorker(cfg WorkerConfig, store Store, log *logger.Logger) *Worker {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	if cfg.KillPollInterval <= 0 {
		cfg.KillPollInterval = DefaultKillPollInterval
	}

	notifier := NewNotifier(store, log)

	w := &Worker{
		cfg:       cfg,
		store:     store,
		registry:  indicator.NewRegistry(),
		lifecycle: NewLifecycle(store, notifier, log),
		notifier:  notifier,
		logger:    log.Named("worker").With(zap.String("worker_id", cfg.ID)),
	}
	w.assemble = w.assembleExchange

	return w
}

// ID returns the worker's registry id.
func (w *Worker) ID() string {
	return w.cfg.ID
}

// Run consumes jobs until the context is cancelled or, for burst workers,
// until the queues are empty.
func (w *Worker) Run(ctx context.Context) error {
	info := WorkerInfo{
		ID:     w.cfg.ID,
		PID:    os.Getpid(),
		Queues: w.cfg.Queues,
	}
	if err := w.store.RegisterWorker(ctx, info); err != nil {
		return err
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), postRunTimeout)
		defer cancel()

		if err := w.store.DeregisterWorker(cleanupCtx, w.cfg.ID); err != nil {
			w.logger.Warn("failed to deregister", zap.Error(err))
		}
	}()

	w.logger.Info("worker started",
		zap.Any("queues", w.cfg.Queues),
		zap.Bool("burst", w.cfg.Burst),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := w.store.Heartbeat(ctx, w.cfg.ID, ""); err != nil && ctx.Err() == nil {
			w.logger.Warn("heartbeat failed", zap.Error(err))
		}

		job, err := w.store.Dequeue(ctx, w.cfg.Queues, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			w.logger.Warn("dequeue failed", zap.Error(err))

			continue
		}

		if job == nil {
			if w.cfg.Burst {
				w.logger.Info("queues drained, burst worker exiting")

				return nil
			}

			continue
		}

		w.process(ctx, job)
	}
}

// process runs one job end to end, including lifecycle handling. It never
// returns an error: every outcome is recorded on the job.
func (w *Worker) process(ctx context.Context, job *Job) {
	w.logger.Info("job picked up",
		zap.String("run_id", job.ID),
		zap.String("queue", string(job.Queue)),
	)

	if err := w.store.UpdateStatus(ctx, job.ID, StatusStarted); err != nil {
		w.logger.Error("failed to mark job started", zap.String("run_id", job.ID), zap.Error(err))

		return
	}

	if err := w.store.Heartbeat(ctx, w.cfg.ID, job.ID); err != nil {
		w.logger.Warn("heartbeat failed", zap.Error(err))
	}

	result, runErr := w.execute(ctx, job)

	// Post-run bookkeeping must survive a cancelled worker context.
	postCtx, cancel := context.WithTimeout(context.Background(), postRunTimeout)
	defer cancel()

	if runErr == nil {
		if err := w.lifecycle.HandleSuccess(postCtx, job, result); err != nil {
			w.logger.Error("failed to finish job", zap.String("run_id", job.ID), zap.Error(err))
		}

		return
	}

	if err := w.lifecycle.HandleFailure(postCtx, job, runErr); err != nil {
		w.logger.Error("failed to record job failure", zap.String("run_id", job.ID), zap.Error(err))
	}
}

// execute builds the run from the job payload and drives it. The kill
// watcher cancels the run context when the run's kill entry appears.
func (w *Worker) execute(ctx context.Context, job *Job) (broker.Result, error) {
	cfg, err := config.Load([]byte(job.Payload.Document))
	if err != nil {
		return broker.Result{}, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	watcherDone := make(chan struct{})
	defer close(watcherDone)

	go w.watchKill(runCtx, cancel, job.ID, watcherDone)

	eng, runtime, err := w.buildRun(runCtx, cfg, job)
	if err != nil {
		return broker.Result{}, err
	}

	w.notifier.Notify(runCtx, job, fmt.Sprintf("strategy %s started on %s", job.ID, job.Queue))

	result, runErr := eng.Run(runCtx, runtime)
	if runErr != nil {
		// The run context is already cancelled on kill/shutdown; the final
		// state snapshot still has to go out.
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(runCtx), postRunTimeout)
		defer saveCancel()

		switch errors.KindOf(runErr) {
		case errors.KindShutdown:
			runtime.Pause(saveCtx)
		case errors.KindKill:
		default:
			runtime.Fail(saveCtx, runErr)
		}
	}

	return result, runErr
}

// watchKill polls the kill set and cancels the run with a kill cause when
// the entry appears. Consuming the entry and cancelling is what makes a
// kill for one run invisible to every other run.
func (w *Worker) watchKill(ctx context.Context, cancel context.CancelCauseFunc, runID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.KillPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := w.store.Heartbeat(ctx, w.cfg.ID, runID); err != nil && ctx.Err() == nil {
			w.logger.Warn("heartbeat failed", zap.Error(err))
		}

		killed, err := w.store.ConsumeKill(ctx, runID)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("kill check failed", zap.Error(err))
			}

			continue
		}

		if killed {
			w.logger.Info("kill request received", zap.String("run_id", runID))
			cancel(errors.NewKind(errors.ErrCodeRunKilled, errors.KindKill, "run killed on request"))

			return
		}
	}
}

// assembleExchange is the production assembly: exchange-fed sources and the
// broker matching the job's mode.
func (w *Worker) assembleExchange(ctx context.Context, cfg *config.StrategyConfig, job *Job) (market.BarSource, market.HistorySource, broker.Broker, error) {
	exchange := market.NewBinanceSource(w.cfg.BinanceAPIKey, w.cfg.BinanceSecretKey, klineInterval(cfg))

	if job.Payload.Live {
		source := market.NewPollingSource(exchange, cfg.Symbol(), cfg.BarInterval(), cfg.Trading.End)

		if job.Payload.SimulateOrders {
			return source, exchange,
				broker.NewPaperBroker(cfg.Symbol(), cfg.Trading.CapitalBase, cfg.Trading.SlippageAllowed, w.logger), nil
		}

		client := binance.NewClient(w.cfg.BinanceAPIKey, w.cfg.BinanceSecretKey)

		return source, exchange, broker.NewBinanceBroker(ctx, client, cfg.Symbol(),
			cfg.Trading.CapitalBase, cfg.Trading.SlippageAllowed, w.logger), nil
	}

	bars, err := w.fetchBacktestBars(ctx, exchange, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	sim := market.NewSimSource(bars)

	return sim, sim, broker.NewPaperBroker(cfg.Symbol(), cfg.Trading.CapitalBase, cfg.Trading.SlippageAllowed, w.logger), nil
}

// buildRun assembles source, broker, runtime, and engine for the job's mode.
func (w *Worker) buildRun(ctx context.Context, cfg *config.StrategyConfig, job *Job) (engine.Engine, *strategy.Runtime, error) {
	source, history, brk, err := w.assemble(ctx, cfg, job)
	if err != nil {
		return nil, nil, err
	}

	runtime, err := strategy.NewRuntime(cfg, w.registry, brk, history, w.store, w.logger)
	if err != nil {
		return nil, nil, err
	}

	runtime.SetEventSink(func(message string) {
		w.notifier.Notify(ctx, job, message)
	})

	if state, ok, err := w.store.LoadRunState(ctx, cfg.ID); err == nil && ok && job.Meta.Paused {
		runtime.Restore(state)
		w.logger.Info("resuming paused run",
			zap.String("run_id", cfg.ID),
			zap.Int("bar_index", state.BarIndex),
		)

		// The pause is consumed; a later failure must not resurrect it.
		job.Meta.Paused = false
		if err := w.store.UpdateMeta(ctx, job.ID, job.Meta); err != nil {
			w.logger.Warn("failed to clear pause flag", zap.String("run_id", job.ID), zap.Error(err))
		}
	}

	eng := engine.NewSimEngine(source, engine.RunConfig{
		Live:           job.Payload.Live,
		SimulateOrders: job.Payload.SimulateOrders,
		Start:          cfg.Trading.Start,
		End:            cfg.Trading.End,
		OnProgress: func(processed int) {
			state := runtime.State()
			job.Meta.Output = fmt.Sprintf("processed %d bars, last price %.4f", processed, state.LastPrice)
			job.Meta.Date = state.LastProcessed

			if err := w.store.UpdateMeta(ctx, job.ID, job.Meta); err != nil && ctx.Err() == nil {
				w.logger.Warn("failed to update job meta", zap.Error(err))
			}
		},
	}, w.logger)

	return eng, runtime, nil
}

// fetchBacktestBars pulls the replay range plus the indicator warm-up window.
// TODO: paginate ranges longer than the exchange's single-request limit.
func (w *Worker) fetchBacktestBars(ctx context.Context, exchange *market.BinanceSource, cfg *config.StrategyConfig) ([]types.Bar, error) {
	window := cfg.Trading.Bars
	if !cfg.Trading.Start.IsZero() && !cfg.Trading.End.IsZero() {
		window += int(cfg.Trading.End.Sub(cfg.Trading.Start) / cfg.BarInterval())
	}

	if window > maxHistoryWindow {
		window = maxHistoryWindow
	}

	bars, err := exchange.History(ctx, cfg.Symbol(), window, cfg.Trading.End)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.NewKind(errors.ErrCodeBundleNotIngested, errors.KindMissingData,
			"no historical bars for the configured range")
	}

	return bars, nil
}

func klineInterval(cfg *config.StrategyConfig) string {
	if cfg.Trading.DataFreq == types.FrequencyMinute {
		return "1m"
	}

	return "1d"
}
