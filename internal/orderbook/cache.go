// Package orderbook memoises per-market depth fetches for one trading cycle.
package orderbook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cycletrader/internal/model"
)

// Fetcher loads both sides of a market's order book.
type Fetcher interface {
	OrderBook(ctx context.Context, market string) (model.OrderBook, error)
}

type entry struct {
	done chan struct{}
	book model.OrderBook
	err  error
}

// Cache starts at most one fetch per market and hands every caller the same
// result. Fetches run on the cache's own context and are never cancelled by
// callers that stop waiting.
type Cache struct {
	ctx     context.Context
	fetcher Fetcher
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	used    map[string]struct{}
}

// NewCache creates a cache and immediately starts fetching the prefetch set,
// normally the markets consulted during the previous cycle.
func NewCache(ctx context.Context, fetcher Fetcher, logger *slog.Logger, prefetch []string) *Cache {
	c := &Cache{
		ctx:     context.WithoutCancel(ctx),
		fetcher: fetcher,
		logger:  logger,
		entries: make(map[string]*entry),
		used:    make(map[string]struct{}),
	}
	c.Prefetch(prefetch...)
	return c
}

// Prefetch starts fetches for markets that are not cached yet. It does not
// mark them as used.
func (c *Cache) Prefetch(markets ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range markets {
		c.loadLocked(m)
	}
}

// Get returns the order book of market, starting a fetch on first reference.
// It waits until the fetch completes or ctx is done; in the latter case the
// book is reported unavailable and the fetch keeps running for later callers.
func (c *Cache) Get(ctx context.Context, market string) (model.OrderBook, error) {
	c.mu.Lock()
	c.used[market] = struct{}{}
	e := c.loadLocked(market)
	c.mu.Unlock()

	select {
	case <-e.done:
		if e.err != nil {
			return model.OrderBook{}, fmt.Errorf("%w: %s: %w", model.ErrOrderBookUnavailable, market, e.err)
		}
		return e.book, nil
	case <-ctx.Done():
		return model.OrderBook{}, fmt.Errorf("%w: %s not ready: %w", model.ErrOrderBookUnavailable, market, ctx.Err())
	}
}

// Used lists the markets consulted through Get, sorted.
func (c *Cache) Used() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.used))
	for m := range c.used {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (c *Cache) loadLocked(market string) *entry {
	if e, ok := c.entries[market]; ok {
		return e
	}
	e := &entry{done: make(chan struct{})}
	c.entries[market] = e
	go c.fetch(market, e)
	return e
}

func (c *Cache) fetch(market string, e *entry) {
	defer close(e.done)
	book, err := c.fetcher.OrderBook(c.ctx, market)
	if err != nil {
		c.logger.Warn("OrderBookCache: fetch failed", "market", market, "error", err)
		e.err = err
		return
	}
	if book.Buy == nil {
		book.Buy = []model.OrderBookLevel{}
	}
	if book.Sell == nil {
		book.Sell = []model.OrderBookLevel{}
	}
	book.Market = market
	e.book = book
}
