package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cycletrader/internal/arbitrage"
	"cycletrader/internal/config"
	"cycletrader/internal/database"
	"cycletrader/internal/exchange"
	"cycletrader/internal/feed"
	"cycletrader/internal/logging"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml and .env")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Main: stopped with error", "error", err)
		os.Exit(1)
	}
}

// run wires the process and blocks until ctx is cancelled. Resources it opens
// are released before it returns.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var repo database.Repository = database.NopRepository{}
	if cfg.Database.Enabled {
		pg, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pg.Close()
		repo = pg
	}
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	client, err := exchange.NewClient(cfg.Exchange.Name, logger, &cfg.Exchange)
	if err != nil {
		return fmt.Errorf("create exchange client: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var publisher arbitrage.ReportPublisher
	if cfg.Feed.Enabled {
		hub := feed.NewHub(logger)
		publisher = hub
		g.Go(func() error {
			return feed.ListenAndServe(gctx, cfg.Feed.ListenAddr, hub, logger)
		})
	}

	engine := arbitrage.NewArbitrageEngine(logger, repo, client, &cfg, publisher)
	logger.Info("Main: starting",
		"exchange", client.GetName(),
		"dry_run", cfg.Arbitrage.DryRun,
		"base_currencies", cfg.Arbitrage.BaseCurrencies,
		"fee_rate", cfg.Arbitrage.FeeRate(),
	)
	g.Go(func() error {
		return engine.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Main: stopped", "submitted", engine.Submitted())
	return nil
}
