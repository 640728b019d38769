package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/jobs"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/urfave/cli/v3"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "kryptos-worker",
		Usage: "Distributed strategy runner: supervisor, workers, and job control",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "redis",
				Usage: "Redis address",
				Value: envOr("REDIS_ADDR", "localhost:6379"),
			},
		},
		Commands: []*cli.Command{
			superviseCommand(),
			workCommand(),
			submitCommand(),
			killCommand(),
			statusCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func superviseCommand() *cli.Command {
	return &cli.Command{
		Name:  "supervise",
		Usage: "Run the worker pool supervisor",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "queue",
				Usage: "Queues to supervise",
				Value: []string{string(jobs.QueueBacktest), string(jobs.QueuePaper), string(jobs.QueueLive)},
			},
			&cli.DurationFlag{
				Name:  "check-interval",
				Usage: "Supervision loop cadence",
				Value: jobs.DefaultCheckInterval,
			},
			&cli.IntFlag{
				Name:  "max-burst",
				Usage: "Maximum concurrent burst workers",
				Value: jobs.DefaultMaxBurst,
			},
			&cli.BoolFlag{
				Name:  "stale-cleanup",
				Usage: "Also reap workers with quiet heartbeats",
			},
			&cli.DurationFlag{
				Name:  "stale-after",
				Usage: "Heartbeat age that counts as stale",
				Value: jobs.DefaultStaleAfter,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log, store, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			pool, err := jobs.NewPool(jobs.PoolConfig{
				Queues:             toQueues(cmd.StringSlice("queue")),
				CheckInterval:      cmd.Duration("check-interval"),
				MaxBurst:           int(cmd.Int("max-burst")),
				EnableStaleCleanup: cmd.Bool("stale-cleanup"),
				StaleAfter:         cmd.Duration("stale-after"),
			}, store, log)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return pool.Run(runCtx)
		},
	}
}

func workCommand() *cli.Command {
	return &cli.Command{
		Name:  "work",
		Usage: "Run a single worker",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "queue",
				Usage:    "Queues this worker owns",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "burst",
				Usage: "Exit when the queues are empty",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log, store, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			worker := jobs.NewWorker(jobs.WorkerConfig{
				Queues:           toQueues(cmd.StringSlice("queue")),
				Burst:            cmd.Bool("burst"),
				BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
				BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
			}, store, log)

			// SIGTERM pauses the in-flight run and requeues it.
			runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return worker.Run(runCtx)
		},
	}
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a strategy document as a job",
		ArgsUsage: "<strategy.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "live",
				Usage: "Feed the run from the live exchange instead of a replay",
			},
			&cli.BoolFlag{
				Name:  "simulate-orders",
				Usage: "Keep order placement on the paper broker",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "notify",
				Usage: "Notification channel id for run updates",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one strategy document, got %d", cmd.Args().Len())
			}

			cfg, err := config.LoadFile(cmd.Args().First())
			if err != nil {
				return err
			}

			log, store, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			router := jobs.NewRouter(store, log)

			job, err := router.Submit(ctx, cfg, cmd.Bool("live"), cmd.Bool("simulate-orders"), cmd.String("notify"))
			if err != nil {
				return err
			}

			fmt.Printf("submitted %s to %s (status %s)\n", job.ID, job.Queue, job.Status)

			return nil
		},
	}
}

func killCommand() *cli.Command {
	return &cli.Command{
		Name:      "kill",
		Usage:     "Stop a run at its next bar boundary",
		ArgsUsage: "<run-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one run id")
			}

			log, store, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			return jobs.NewRouter(store, log).Kill(ctx, cmd.Args().First())
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a run's job state regardless of queue",
		ArgsUsage: "<run-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one run id")
			}

			log, store, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			job, err := jobs.NewRouter(store, log).Status(ctx, cmd.Args().First())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(out))

			return nil
		},
	}
}

func connect(ctx context.Context, cmd *cli.Command) (*logger.Logger, *jobs.RedisStore, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, nil, err
	}

	db := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_DB %q: %w", raw, err)
		}

		db = parsed
	}

	retention := time.Duration(0)
	if raw := os.Getenv("JOB_RETENTION"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid JOB_RETENTION %q: %w", raw, err)
		}

		retention = parsed
	}

	store, err := jobs.NewRedisStore(ctx, jobs.RedisConfig{
		Addr:      cmd.String("redis"),
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		Retention: retention,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	return log, store, nil
}

func toQueues(names []string) []jobs.Queue {
	queues := make([]jobs.Queue, len(names))
	for i, name := range names {
		queues[i] = jobs.Queue(name)
	}

	return queues
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
