package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/engine"
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/jobs"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/market"
	"github.com/produvia/kryptos-go/internal/strategy"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// maxWindow is the exchange's single-request kline limit.
const maxWindow = 1000

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:      "kryptos-strat",
		Usage:     "Run a strategy document as a local one-shot backtest",
		ArgsUsage: "<strategy.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "schema",
				Usage: "Print the strategy document JSON schema and exit",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("schema") {
		schema, err := (&config.StrategyConfig{}).GenerateSchemaJSON()
		if err != nil {
			return err
		}

		fmt.Println(schema)

		return nil
	}

	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one strategy document, got %d", cmd.Args().Len())
	}

	cfg, err := config.LoadFile(cmd.Args().First())
	if err != nil {
		return err
	}

	logg, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer logg.Sync()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exchange := market.NewBinanceSource(
		os.Getenv("BINANCE_API_KEY"),
		os.Getenv("BINANCE_SECRET_KEY"),
		klineInterval(cfg),
	)

	window := cfg.Trading.Bars
	if !cfg.Trading.Start.IsZero() && !cfg.Trading.End.IsZero() {
		window += int(cfg.Trading.End.Sub(cfg.Trading.Start) / cfg.BarInterval())
	}

	if window > maxWindow {
		window = maxWindow
	}

	bars, err := exchange.History(runCtx, cfg.Symbol(), window, cfg.Trading.End)
	if err != nil {
		return err
	}

	source := market.NewSimSource(bars)
	paper := broker.NewPaperBroker(cfg.Symbol(), cfg.Trading.CapitalBase, cfg.Trading.SlippageAllowed, logg)

	// One-shot runs keep their state in process; the store only exists so
	// the runtime persists snapshots the same way queued runs do.
	store := jobs.NewMemoryStore()

	runtime, err := strategy.NewRuntime(cfg, indicator.NewRegistry(), paper, source, store, logg)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(bars)), "backtest")

	eng := engine.NewSimEngine(source, engine.RunConfig{
		Start: cfg.Trading.Start,
		End:   cfg.Trading.End,
		OnProgress: func(processed int) {
			_ = bar.Set(processed)
		},
	}, logg)

	result, err := eng.Run(runCtx, runtime)
	if err != nil {
		runtime.Fail(context.Background(), err)

		return err
	}

	_ = bar.Finish()

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))

	return nil
}

func klineInterval(cfg *config.StrategyConfig) string {
	if cfg.Trading.DataFreq == types.FrequencyMinute {
		return "1m"
	}

	return "1d"
}
