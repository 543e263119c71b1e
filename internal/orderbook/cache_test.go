package orderbook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycletrader/internal/model"
)

type countingFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	release chan struct{}
	total   atomic.Int32
	fail    map[string]error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[string]int), release: make(chan struct{}), fail: map[string]error{}}
}

func (f *countingFetcher) OrderBook(ctx context.Context, market string) (model.OrderBook, error) {
	f.mu.Lock()
	f.calls[market]++
	f.mu.Unlock()
	f.total.Add(1)
	<-f.release
	if err := f.fail[market]; err != nil {
		return model.OrderBook{}, err
	}
	return model.OrderBook{Buy: []model.OrderBookLevel{{Quantity: 1, Rate: 2}}}, nil
}

func (f *countingFetcher) count(market string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[market]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestCache_ConcurrentGetFetchesOnce(t *testing.T) {
	f := newCountingFetcher()
	c := NewCache(context.Background(), f, discardLogger(), nil)

	var wg sync.WaitGroup
	books := make([]model.OrderBook, 32)
	errs := make([]error, 32)
	for i := range books {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books[i], errs[i] = c.Get(context.Background(), "BTC-ETH")
		}(i)
	}
	close(f.release)
	wg.Wait()

	assert.Equal(t, 1, f.count("BTC-ETH"))
	for i := range books {
		require.NoError(t, errs[i])
		assert.Equal(t, "BTC-ETH", books[i].Market)
		assert.Len(t, books[i].Buy, 1)
		assert.NotNil(t, books[i].Sell, "absent side is normalised to empty")
	}
}

func TestCache_PrefetchAndUsed(t *testing.T) {
	f := newCountingFetcher()
	close(f.release)
	c := NewCache(context.Background(), f, discardLogger(), []string{"BTC-ETH", "BTC-LTC"})

	_, err := c.Get(context.Background(), "BTC-ETH")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "USDT-BTC")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC-ETH", "USDT-BTC"}, c.Used())
	assert.Eventually(t, func() bool { return f.total.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.count("BTC-LTC"))
	assert.Equal(t, 1, f.count("BTC-ETH"))
}

func TestCache_NotReady(t *testing.T) {
	f := newCountingFetcher()
	c := NewCache(context.Background(), f, discardLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "BTC-ETH")
	assert.ErrorIs(t, err, model.ErrOrderBookUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(f.release)
	book, err := c.Get(context.Background(), "BTC-ETH")
	require.NoError(t, err)
	assert.Len(t, book.Buy, 1)
	assert.Equal(t, 1, f.count("BTC-ETH"), "abandoned wait does not refetch")
}

func TestCache_FetchError(t *testing.T) {
	f := newCountingFetcher()
	f.fail["BTC-ETH"] = errors.New("boom")
	close(f.release)
	c := NewCache(context.Background(), f, discardLogger(), nil)

	_, err := c.Get(context.Background(), "BTC-ETH")
	assert.ErrorIs(t, err, model.ErrOrderBookUnavailable)

	_, err = c.Get(context.Background(), "BTC-ETH")
	assert.Error(t, err)
	assert.Equal(t, 1, f.count("BTC-ETH"), "failures are not retried within a cycle")
}
