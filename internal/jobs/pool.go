package jobs

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

// Pool defaults.
const (
	DefaultCheckInterval = 10 * time.Second
	DefaultMaxBurst      = 4
	DefaultStaleAfter    = 2 * time.Minute
	drainTimeout         = 30 * time.Second
)

// PoolConfig configures the worker supervisor.
type PoolConfig struct {
	// Queues each get one always-on worker process.
	Queues []Queue
	// CheckInterval is the supervision loop cadence.
	CheckInterval time.Duration
	// MaxBurst caps concurrently running burst workers across all queues.
	MaxBurst int
	// EnableStaleCleanup reaps workers whose heartbeat went quiet. Off by
	// default: a worker mid-backtest can legitimately heartbeat late, so
	// this stays opt-in.
	EnableStaleCleanup bool
	// StaleAfter is the heartbeat age that counts as stale.
	StaleAfter time.Duration
	// WorkerBinary is the executable spawned for worker processes. Defaults
	// to the running binary.
	WorkerBinary string
}

type workerProc struct {
	cmd   *exec.Cmd
	queue Queue
	burst bool
	done  chan struct{}
}

func (p *workerProc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Pool supervises worker processes: one always-on worker per queue, plus
// burst workers spawned against queue depth that exit when drained. It also
// reaps zombie registry entries left by crashed workers.
type Pool struct {
	cfg       PoolConfig
	store     Store
	lifecycle *Lifecycle
	logger    *logger.Logger

	alwaysOn map[Queue]*workerProc
	burst    []*workerProc
}

// NewPool creates a supervisor over the shared store.
func NewPool(cfg PoolConfig, store Store, log *logger.Logger) (*Pool, error) {
	if len(cfg.Queues) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "pool requires at least one queue")
	}

	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	if cfg.MaxBurst <= 0 {
		cfg.MaxBurst = DefaultMaxBurst
	}

	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	if cfg.WorkerBinary == "" {
		binary, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "cannot locate worker binary", err)
		}

		cfg.WorkerBinary = binary
	}

	return &Pool{
		cfg:       cfg,
		store:     store,
		lifecycle: NewLifecycle(store, NewNotifier(store, log), log),
		logger:    log.Named("pool"),
	}, nil
}

// Run supervises until the context is cancelled, then drains the worker
// processes with SIGTERM so in-flight runs pause and requeue.
func (p *Pool) Run(ctx context.Context) error {
	p.alwaysOn = make(map[Queue]*workerProc, len(p.cfg.Queues))

	for _, queue := range p.cfg.Queues {
		p.spawnAlwaysOn(queue)
	}

	ticker := time.NewTicker(p.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()

			return nil
		case <-ticker.C:
		}

		p.respawnDead()
		p.reapBurst()
		p.scaleBurst(ctx)
		p.cleanupWorkers(ctx)
	}
}

func (p *Pool) spawnAlwaysOn(queue Queue) {
	proc, err := p.spawn(queue, false)
	if err != nil {
		p.logger.Error("failed to spawn worker", zap.String("queue", string(queue)), zap.Error(err))

		return
	}

	p.alwaysOn[queue] = proc
}

func (p *Pool) spawn(queue Queue, burst bool) (*workerProc, error) {
	args := []string{"work", "--queue", string(queue)}
	if burst {
		args = append(args, "--burst")
	}

	cmd := exec.Command(p.cfg.WorkerBinary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to start worker process", err)
	}

	proc := &workerProc{
		cmd:   cmd,
		queue: queue,
		burst: burst,
		done:  make(chan struct{}),
	}

	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()

	p.logger.Info("worker process started",
		zap.String("queue", string(queue)),
		zap.Bool("burst", burst),
		zap.Int("pid", cmd.Process.Pid),
	)

	return proc, nil
}

func (p *Pool) respawnDead() {
	for queue, proc := range p.alwaysOn {
		if proc != nil && !proc.exited() {
			continue
		}

		p.logger.Warn("always-on worker exited, respawning", zap.String("queue", string(queue)))
		p.spawnAlwaysOn(queue)
	}
}

func (p *Pool) reapBurst() {
	alive := p.burst[:0]

	for _, proc := range p.burst {
		if !proc.exited() {
			alive = append(alive, proc)
		}
	}

	p.burst = alive
}

// scaleBurst spawns one burst worker per excess queued job, up to the cap.
func (p *Pool) scaleBurst(ctx context.Context) {
	for _, queue := range p.cfg.Queues {
		depth, err := p.store.QueueDepth(ctx, queue)
		if err != nil {
			p.logger.Warn("failed to read queue depth", zap.String("queue", string(queue)), zap.Error(err))

			continue
		}

		running := 0
		for _, proc := range p.burst {
			if proc.queue == queue {
				running++
			}
		}

		for i := running; i < depth && len(p.burst) < p.cfg.MaxBurst; i++ {
			proc, err := p.spawn(queue, true)
			if err != nil {
				p.logger.Error("failed to spawn burst worker", zap.String("queue", string(queue)), zap.Error(err))

				break
			}

			p.burst = append(p.burst, proc)
		}
	}
}

// cleanupWorkers reaps registry entries of dead workers: zombies (entries
// with no queues) always, stale heartbeats only when enabled. A reaped
// worker's in-flight job goes back through the failure path so it retries.
func (p *Pool) cleanupWorkers(ctx context.Context) {
	workers, err := p.store.Workers(ctx)
	if err != nil {
		p.logger.Warn("failed to list workers", zap.Error(err))

		return
	}

	for _, info := range workers {
		zombie := len(info.Queues) == 0
		stale := p.cfg.EnableStaleCleanup && time.Since(info.LastBeat) > p.cfg.StaleAfter

		if !zombie && !stale {
			continue
		}

		p.logger.Warn("reaping dead worker",
			zap.String("worker_id", info.ID),
			zap.Bool("zombie", zombie),
			zap.Bool("stale", stale),
			zap.String("current_job", info.CurrentJob),
		)

		if info.CurrentJob != "" {
			p.failOrphanedJob(ctx, info.CurrentJob)
		}

		if err := p.store.DeregisterWorker(ctx, info.ID); err != nil {
			p.logger.Warn("failed to deregister dead worker", zap.String("worker_id", info.ID), zap.Error(err))
		}
	}
}

func (p *Pool) failOrphanedJob(ctx context.Context, jobID string) {
	job, err := p.store.Job(ctx, jobID)
	if err != nil {
		p.logger.Warn("orphaned job not found", zap.String("run_id", jobID), zap.Error(err))

		return
	}

	if job.Status.Terminal() {
		return
	}

	orphanErr := errors.Newf(errors.ErrCodeWorkerNotFound, "worker died while running job %s", jobID)
	if err := p.lifecycle.HandleFailure(ctx, job, orphanErr); err != nil {
		p.logger.Error("failed to recover orphaned job", zap.String("run_id", jobID), zap.Error(err))
	}
}

// drain sends SIGTERM to every worker process and waits for them to pause
// and requeue their runs.
func (p *Pool) drain() {
	procs := make([]*workerProc, 0, len(p.alwaysOn)+len(p.burst))

	for _, proc := range p.alwaysOn {
		if proc != nil && !proc.exited() {
			procs = append(procs, proc)
		}
	}

	for _, proc := range p.burst {
		if !proc.exited() {
			procs = append(procs, proc)
		}
	}

	for _, proc := range procs {
		if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			p.logger.Warn("failed to signal worker", zap.Int("pid", proc.cmd.Process.Pid), zap.Error(err))
		}
	}

	deadline := time.After(drainTimeout)

	for _, proc := range procs {
		select {
		case <-proc.done:
		case <-deadline:
			p.logger.Warn("worker did not exit in time, killing", zap.Int("pid", proc.cmd.Process.Pid))
			_ = proc.cmd.Process.Kill()
		}
	}

	p.logger.Info("pool drained")
}
