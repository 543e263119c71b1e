package exchange

import (
	"fmt"
	"log/slog"

	"cycletrader/internal/config"
)

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, cfg *config.ExchangeConfig) (ExchangeClient, error) {
	switch name {
	case "bittrex":
		return NewBittrexClient(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}
