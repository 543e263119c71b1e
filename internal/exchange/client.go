package exchange

import (
	"context"
	"time"

	"cycletrader/internal/model"
)

// OpenOrder is a resting order placed by this account.
type OpenOrder struct {
	ID     string
	Market string
	Opened time.Time
}

// ExchangeClient defines the standard interface for all exchange clients.
type ExchangeClient interface {
	GetName() string
	MarketSummaries(ctx context.Context) ([]model.Market, error)
	MinTradeSizes(ctx context.Context) (map[string]float64, error)
	Balances(ctx context.Context) ([]model.Balance, error)
	OrderBook(ctx context.Context, market string) (model.OrderBook, error)
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
	CancelOrder(ctx context.Context, id string) error
	PlaceLimitOrder(ctx context.Context, order model.TradeInstruction, rate float64) (string, error)
}
