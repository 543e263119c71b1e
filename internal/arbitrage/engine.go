package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"cycletrader/internal/config"
	"cycletrader/internal/database"
	"cycletrader/internal/exchange"
	"cycletrader/internal/market"
	"cycletrader/internal/model"
	"cycletrader/internal/orderbook"
)

// ReportPublisher receives the path reports of every processed currency.
type ReportPublisher interface {
	Publish(ctx context.Context, reports []model.PathReport) error
}

// CycleResult summarises one trading cycle.
type CycleResult struct {
	CycleID      string
	Currencies   int
	Paths        int
	Instructions int
	Submitted    int
	Failed       int
}

type currencyResult struct {
	paths        int
	instructions int
	submitted    int
	failed       int
}

// ArbitrageEngine runs trading cycles against one exchange: it snapshots
// markets and balances, enumerates paths per held currency, selects trades and
// submits them.
type ArbitrageEngine struct {
	logger    *slog.Logger
	repo      database.Repository
	client    exchange.ExchangeClient
	cfg       *config.Config
	publisher ReportPublisher
	params    Params
	now       func() time.Time

	// markets consulted during the previous cycle, prefetched by the next one
	previousMarkets []string
	submitted       atomic.Int64
	background      sync.WaitGroup
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine. publisher
// may be nil.
func NewArbitrageEngine(logger *slog.Logger, repo database.Repository, client exchange.ExchangeClient, cfg *config.Config, publisher ReportPublisher) *ArbitrageEngine {
	return &ArbitrageEngine{
		logger:    logger,
		repo:      repo,
		client:    client,
		cfg:       cfg,
		publisher: publisher,
		params:    ParamsFromConfig(cfg.Arbitrage),
		now:       time.Now,
	}
}

// Submitted is the number of orders accepted by the exchange since start.
func (e *ArbitrageEngine) Submitted() int64 {
	return e.submitted.Load()
}

// Wait blocks until background work started by cycles has finished.
func (e *ArbitrageEngine) Wait() {
	e.background.Wait()
}

// Run executes cycles until ctx is cancelled. Failed cycles are retried with
// exponential backoff; successful ones are paced by the cycle interval.
func (e *ArbitrageEngine) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Minute

	defer e.Wait()
	for {
		wait := e.cfg.Arbitrage.CycleInterval
		res, err := e.runGuarded(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				delay = bo.MaxInterval
			}
			wait = max(wait, delay)
			e.logger.Error("Engine: cycle failed", "cycle_id", res.CycleID, "error", err, "retry_in", wait)
		} else {
			bo.Reset()
			e.logger.Info("Engine: cycle finished",
				"cycle_id", res.CycleID,
				"currencies", res.Currencies,
				"paths", res.Paths,
				"instructions", res.Instructions,
				"submitted", res.Submitted,
				"failed", res.Failed,
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (e *ArbitrageEngine) runGuarded(ctx context.Context) (res CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return e.RunCycle(ctx)
}

// RunCycle performs one full trading cycle. It fails only when the market
// snapshot cannot be built; per-path and per-order failures are logged and
// reported.
func (e *ArbitrageEngine) RunCycle(ctx context.Context) (CycleResult, error) {
	cycleID := uuid.NewString()
	logger := e.logger.With("cycle_id", cycleID)
	result := CycleResult{CycleID: cycleID}

	if !e.cfg.Arbitrage.DryRun {
		e.cancelStaleOrders(ctx, logger)
	}
	cache := orderbook.NewCache(ctx, e.client, logger, e.previousMarkets)

	var (
		markets  []model.Market
		minSizes map[string]float64
		balances []model.Balance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if markets, err = e.client.MarketSummaries(gctx); err != nil {
			return fmt.Errorf("market summaries: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if minSizes, err = e.client.MinTradeSizes(gctx); err != nil {
			return fmt.Errorf("min trade sizes: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if balances, err = e.client.Balances(gctx); err != nil {
			return fmt.Errorf("balances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	snap := market.NewSnapshot(markets, minSizes, e.settings())
	floorValue, refValue := snap.PortfolioValue(balances)
	logger.Info("Engine: cycle started",
		"markets", len(markets),
		"balances", len(balances),
		"portfolio_"+e.cfg.Arbitrage.FloorCurrency, floorValue,
		"portfolio_"+e.cfg.Arbitrage.ReferenceCurrency, refValue,
		"submitted_total", e.submitted.Load(),
	)

	enumerator := NewEnumerator(snap, e.params.FeeRate, e.params.AcceptanceThreshold)
	selector := NewSelector(NewSizer(NewSimulator(e.params.FeeRate, snap), e.params), cache, snap, logger)

	workers := pool.NewWithResults[currencyResult]().WithMaxGoroutines(max(e.cfg.Arbitrage.MaxConcurrentCurrencies, 1))
	for _, b := range balances {
		if b.Available <= 0 {
			continue
		}
		result.Currencies++
		workers.Go(func() currencyResult {
			return e.processCurrency(ctx, logger, cycleID, snap, enumerator, selector, b)
		})
	}
	for _, r := range workers.Wait() {
		result.Paths += r.paths
		result.Instructions += r.instructions
		result.Submitted += r.submitted
		result.Failed += r.failed
	}

	e.previousMarkets = cache.Used()
	return result, nil
}

func (e *ArbitrageEngine) settings() market.Settings {
	a := e.cfg.Arbitrage
	return market.Settings{
		BaseCurrencies:    a.BaseCurrencies,
		ReferenceCurrency: a.ReferenceCurrency,
		FloorCurrency:     a.FloorCurrency,
		MinFloorValue:     a.MinFloorValue,
	}
}

func (e *ArbitrageEngine) processCurrency(ctx context.Context, logger *slog.Logger, cycleID string, snap *market.Snapshot, enumerator *Enumerator, selector *Selector, balance model.Balance) (out currencyResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Engine: currency processing panicked", "currency", balance.Currency, "panic", r)
		}
	}()

	isBase := snap.IsBase(balance.Currency)
	paths := enumerator.Enumerate(balance.Currency, isBase)
	out.paths = len(paths)
	if len(paths) == 0 {
		return out
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.Arbitrage.OrderBookWait)
	sel := selector.Select(waitCtx, paths, balance, isBase)
	cancel()

	out.instructions = len(sel.Instructions)
	for _, instr := range sel.Instructions {
		if e.submit(ctx, logger, cycleID, snap, balance.Currency, instr) {
			out.submitted++
		} else {
			out.failed++
		}
	}

	reports := e.reports(cycleID, balance.Currency, sel.Outcomes)
	for _, r := range reports {
		logger.Debug("Engine: path evaluated",
			"currency", r.Currency,
			"chain", r.Chain,
			"headline", r.Headline,
			"realized", r.Realized,
			"amount", r.Amount,
			"status", r.Status,
			"error", r.Error,
		)
	}
	if err := e.repo.LogPathReports(ctx, reports); err != nil {
		logger.Error("Engine: failed to log path reports", "currency", balance.Currency, "error", err)
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, reports); err != nil {
			logger.Warn("Engine: failed to publish path reports", "currency", balance.Currency, "error", err)
		}
	}
	return out
}

func (e *ArbitrageEngine) reports(cycleID, currency string, outcomes []PathOutcome) []model.PathReport {
	now := e.now().UTC()
	reports := make([]model.PathReport, 0, len(outcomes))
	for _, o := range outcomes {
		r := model.PathReport{
			CycleID:   cycleID,
			Currency:  currency,
			Chain:     o.Path.Chain(),
			Markets:   o.Path.Markets(),
			Headline:  o.Path.Profitability,
			Realized:  o.Realized,
			Amount:    o.Amount,
			Status:    o.Status,
			CreatedAt: now,
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		reports = append(reports, r)
	}
	return reports
}

// submit places the instruction as a limit order at the headline price: the
// ask when buying, the bid when selling.
func (e *ArbitrageEngine) submit(ctx context.Context, logger *slog.Logger, cycleID string, snap *market.Snapshot, currency string, instr model.TradeInstruction) bool {
	trade := model.SubmittedTrade{
		CycleID:   cycleID,
		Timestamp: e.now().UTC(),
		Currency:  currency,
		Market:    instr.Market,
		Side:      instr.Side,
		Quantity:  instr.Quantity,
	}
	if m, ok := snap.Market(instr.Market); ok {
		trade.Rate = m.Bid
		if instr.Side == model.SideBuy {
			trade.Rate = m.Ask
		}
	}

	switch {
	case trade.Rate <= 0:
		trade.Message = "no headline price"
	case e.cfg.Arbitrage.DryRun:
		trade.Success = true
		trade.Message = "dry run"
	default:
		id, err := e.client.PlaceLimitOrder(ctx, instr, trade.Rate)
		if err != nil {
			trade.Message = err.Error()
		} else {
			trade.Success = true
			trade.OrderID = id
			e.submitted.Add(1)
		}
	}

	if trade.Success {
		logger.Info("Engine: order submitted",
			"market", trade.Market,
			"side", trade.Side,
			"quantity", trade.Quantity,
			"rate", trade.Rate,
			"order_id", trade.OrderID,
			"dry_run", e.cfg.Arbitrage.DryRun,
		)
	} else {
		logger.Error("Engine: order failed",
			"market", trade.Market,
			"side", trade.Side,
			"quantity", trade.Quantity,
			"rate", trade.Rate,
			"error", trade.Message,
		)
	}
	if err := e.repo.LogTrade(ctx, trade); err != nil {
		logger.Error("Engine: failed to log trade", "error", err)
	}
	return trade.Success
}

// cancelStaleOrders cancels, in the background, every open order older than
// the order timeout.
func (e *ArbitrageEngine) cancelStaleOrders(ctx context.Context, logger *slog.Logger) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		orders, err := e.client.OpenOrders(ctx)
		if err != nil {
			logger.Warn("Engine: failed to list open orders", "error", err)
			return
		}
		now := e.now()
		for _, o := range orders {
			if now.Sub(o.Opened) <= e.cfg.Arbitrage.OrderTimeout {
				continue
			}
			if err := e.client.CancelOrder(ctx, o.ID); err != nil {
				logger.Warn("Engine: failed to cancel stale order", "order_id", o.ID, "market", o.Market, "error", err)
				continue
			}
			logger.Info("Engine: cancelled stale order", "order_id", o.ID, "market", o.Market, "age", now.Sub(o.Opened))
		}
	}()
}
