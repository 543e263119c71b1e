// Package market holds the read-only market view of one trading cycle.
package market

import (
	"fmt"

	"cycletrader/internal/model"
)

// Settings describes which currencies carry an external reference value and
// how the BTC-equivalent order floor is computed.
type Settings struct {
	BaseCurrencies    []string
	ReferenceCurrency string
	FloorCurrency     string
	MinFloorValue     float64
}

// Snapshot is built once per cycle from the market summaries and the raw
// minimum trade sizes, and is never mutated afterwards.
type Snapshot struct {
	settings      Settings
	markets       map[string]model.Market
	edges         map[string][]model.ConversionEdge
	values        map[string]float64
	base          map[string]bool
	minTradeSizes map[string]float64
}

// NewSnapshot derives the adjacency view and the reference values. Edges keep
// the order of the summaries so enumeration is deterministic.
func NewSnapshot(markets []model.Market, minTradeSizes map[string]float64, settings Settings) *Snapshot {
	s := &Snapshot{
		settings:      settings,
		markets:       make(map[string]model.Market, len(markets)),
		edges:         make(map[string][]model.ConversionEdge),
		values:        make(map[string]float64),
		base:          make(map[string]bool, len(settings.BaseCurrencies)),
		minTradeSizes: minTradeSizes,
	}
	for _, c := range settings.BaseCurrencies {
		s.base[c] = true
	}
	if settings.ReferenceCurrency != "" {
		s.values[settings.ReferenceCurrency] = 1
	}

	for _, m := range markets {
		s.markets[m.Name] = m
		if m.BaseCurrency == settings.ReferenceCurrency && s.base[m.MarketCurrency] {
			if mid := m.Mid(); mid > 0 {
				s.values[m.MarketCurrency] = mid
			}
		}
		// Selling the market currency into the base currency hits the bids.
		if m.Bid > 0 {
			if e, err := model.NewConversionEdge(m.Name, m.MarketCurrency, m.BaseCurrency, m.Bid, false); err == nil {
				s.edges[m.MarketCurrency] = append(s.edges[m.MarketCurrency], e)
			}
		}
		// Buying the market currency with the base currency lifts the asks.
		if m.Ask > 0 {
			if e, err := model.NewConversionEdge(m.Name, m.BaseCurrency, m.MarketCurrency, 1/m.Ask, true); err == nil {
				s.edges[m.BaseCurrency] = append(s.edges[m.BaseCurrency], e)
			}
		}
	}
	return s
}

// Market returns the summary entry of a market.
func (s *Snapshot) Market(name string) (model.Market, bool) {
	m, ok := s.markets[name]
	return m, ok
}

// Edges returns every hop leaving currency.
func (s *Snapshot) Edges(currency string) []model.ConversionEdge {
	return s.edges[currency]
}

// IsBase reports whether currency belongs to the configured base set.
func (s *Snapshot) IsBase(currency string) bool {
	return s.base[currency]
}

// ReferenceValue is the value of one unit of currency in the reference currency.
// It is only known for base currencies.
func (s *Snapshot) ReferenceValue(currency string) (float64, bool) {
	v, ok := s.values[currency]
	return v, ok
}

// Rate is the headline price of the first hop converting from into to.
func (s *Snapshot) Rate(from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}
	for _, e := range s.edges[from] {
		if e.To == to {
			return e.Price, true
		}
	}
	return 0, false
}

// MinOrderSize is the smallest input, in units of the edge's source currency,
// that the exchange accepts for this hop. It is the larger of the market's own
// minimum trade size and the configured floor value converted through the
// target currency's floor-currency edge.
func (s *Snapshot) MinOrderSize(e model.ConversionEdge) (float64, error) {
	raw, ok := s.minTradeSizes[e.Market]
	if !ok {
		return 0, fmt.Errorf("%w: %s", model.ErrMinOrderUnavailable, e.Market)
	}
	quantity := raw
	if e.Buy {
		quantity = raw / e.Price
	}

	floor := s.settings.MinFloorValue
	if e.To != s.settings.FloorCurrency {
		rate, ok := s.Rate(e.To, s.settings.FloorCurrency)
		if !ok {
			return 0, fmt.Errorf("%w: no %s market for %s", model.ErrMinOrderUnavailable, s.settings.FloorCurrency, e.To)
		}
		floor /= rate
	}
	floor /= e.Price

	return max(quantity, floor), nil
}

// PortfolioValue totals balances in the floor currency and in the reference
// currency. Currencies without a direct floor-currency market are left out.
func (s *Snapshot) PortfolioValue(balances []model.Balance) (floorValue, referenceValue float64) {
	for _, b := range balances {
		rate, ok := s.Rate(b.Currency, s.settings.FloorCurrency)
		if !ok {
			continue
		}
		floorValue += b.Available * rate
	}
	if rate, ok := s.Rate(s.settings.FloorCurrency, s.settings.ReferenceCurrency); ok {
		referenceValue = floorValue * rate
	}
	return floorValue, referenceValue
}
