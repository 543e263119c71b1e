package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side is the direction of an order on a market.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Market is a tradable pair as reported by the market summary.
// Names follow the "BASE-MARKET" convention: the market currency is priced
// in the base currency.
type Market struct {
	Name           string
	BaseCurrency   string
	MarketCurrency string
	Bid            float64
	Ask            float64
}

// NewMarket validates a summary entry. Zero prices mean no liquidity on that side.
func NewMarket(name string, bid, ask float64) (Market, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == parts[1] {
		return Market{}, fmt.Errorf("%w: malformed name %q", ErrInvalidMarket, name)
	}
	if !validPrice(bid) || !validPrice(ask) {
		return Market{}, fmt.Errorf("%w: %s bid=%v ask=%v", ErrInvalidMarket, name, bid, ask)
	}
	return Market{
		Name:           name,
		BaseCurrency:   parts[0],
		MarketCurrency: parts[1],
		Bid:            bid,
		Ask:            ask,
	}, nil
}

// Mid returns the mid price, or zero when either side is empty.
func (m Market) Mid() float64 {
	if m.Bid <= 0 || m.Ask <= 0 {
		return 0
	}
	return 0.5 * (m.Bid + m.Ask)
}

func validPrice(p float64) bool {
	return p >= 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// ConversionEdge is one directed hop converting From into To through Market.
// Price is expressed as units of To obtained per unit of From, before fees.
type ConversionEdge struct {
	Market string
	From   string
	To     string
	Price  float64
	Buy    bool
}

// NewConversionEdge validates the fields of a hop.
func NewConversionEdge(market, from, to string, price float64, buy bool) (ConversionEdge, error) {
	if market == "" || from == "" || to == "" || from == to {
		return ConversionEdge{}, fmt.Errorf("%w: %s %s->%s", ErrInvalidEdge, market, from, to)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return ConversionEdge{}, fmt.Errorf("%w: %s price=%v", ErrInvalidEdge, market, price)
	}
	return ConversionEdge{Market: market, From: from, To: to, Price: price, Buy: buy}, nil
}

// Side returns the order side that executes this hop.
func (e ConversionEdge) Side() Side {
	if e.Buy {
		return SideBuy
	}
	return SideSell
}

// TradingPath is a chain of two or three conversion edges.
// Three-hop paths return to the starting currency; two-hop paths end at a
// base currency.
type TradingPath struct {
	Currency      string
	Edges         []ConversionEdge
	Profitability float64
}

// NewTradingPath checks length and continuity of the edge chain.
func NewTradingPath(edges []ConversionEdge, profitability float64) (TradingPath, error) {
	if len(edges) != 2 && len(edges) != 3 {
		return TradingPath{}, fmt.Errorf("%w: %d hops", ErrInvalidPath, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i-1].To != edges[i].From {
			return TradingPath{}, fmt.Errorf("%w: hop %d starts at %s, previous ends at %s",
				ErrInvalidPath, i, edges[i].From, edges[i-1].To)
		}
	}
	start := edges[0].From
	if len(edges) == 3 && edges[2].To != start {
		return TradingPath{}, fmt.Errorf("%w: cycle ends at %s instead of %s", ErrInvalidPath, edges[2].To, start)
	}
	hops := make([]ConversionEdge, len(edges))
	copy(hops, edges)
	return TradingPath{Currency: start, Edges: hops, Profitability: profitability}, nil
}

// Cycle reports whether the path returns to its starting currency.
func (p TradingPath) Cycle() bool {
	return len(p.Edges) == 3
}

// Target is the currency held after the last hop.
func (p TradingPath) Target() string {
	return p.Edges[len(p.Edges)-1].To
}

// Chain renders the path as "ETH-BTC-USDT".
func (p TradingPath) Chain() string {
	var b strings.Builder
	b.WriteString(p.Currency)
	for _, e := range p.Edges {
		b.WriteByte('-')
		b.WriteString(e.To)
	}
	return b.String()
}

// Markets lists the market of every hop in order.
func (p TradingPath) Markets() []string {
	out := make([]string, len(p.Edges))
	for i, e := range p.Edges {
		out[i] = e.Market
	}
	return out
}

// OrderBookLevel is one resting price level.
type OrderBookLevel struct {
	Quantity float64
	Rate     float64
}

// OrderBook holds both sides of a market's depth, best price first.
type OrderBook struct {
	Market string
	Buy    []OrderBookLevel
	Sell   []OrderBookLevel
}

// Levels returns the side consumed by a hop: asks when buying, bids when selling.
func (b OrderBook) Levels(buy bool) []OrderBookLevel {
	if buy {
		return b.Sell
	}
	return b.Buy
}

// Balance is the available wallet amount of one currency.
type Balance struct {
	Currency  string
	Available float64
}

// SimulationResult is the outcome of walking a path with a given input.
// ReturnRatio is only meaningful when SufficientLiquidity is true.
type SimulationResult struct {
	Amount              float64
	Output              float64
	ReturnRatio         float64
	HopSizes            []float64
	SufficientLiquidity bool
}

// Profit is the absolute expected profit in starting-currency units, or
// negative infinity when the book could not fill the trade.
func (r SimulationResult) Profit() float64 {
	if !r.SufficientLiquidity {
		return math.Inf(-1)
	}
	return (r.ReturnRatio - 1) * r.Amount
}

// TradeInstruction is a single order to place. Quantity is in market
// currency units, as the exchange expects for both sides.
type TradeInstruction struct {
	Market   string
	Side     Side
	Quantity float64
}

// PathStatus is the outcome of one candidate path in the trade selector.
type PathStatus string

const (
	PathSelected        PathStatus = "selected"
	PathSkipped         PathStatus = "skipped"
	PathInfeasible      PathStatus = "infeasible"
	PathSimulationError PathStatus = "simulation_error"
)

// PathReport is the diagnostic record emitted for every enumerated path.
type PathReport struct {
	CycleID   string     `json:"cycle_id"`
	Currency  string     `json:"currency"`
	Chain     string     `json:"chain"`
	Markets   []string   `json:"markets"`
	Headline  float64    `json:"headline"`
	Realized  float64    `json:"realized"`
	Amount    float64    `json:"amount"`
	Status    PathStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// SubmittedTrade records an instruction handed to the exchange.
type SubmittedTrade struct {
	ID        int64     `db:"id"`
	CycleID   string    `db:"cycle_id"`
	Timestamp time.Time `db:"timestamp"`
	Currency  string    `db:"currency"`
	Market    string    `db:"market"`
	Side      Side      `db:"side"`
	Quantity  float64   `db:"quantity"`
	Rate      float64   `db:"rate"`
	Success   bool      `db:"success"`
	OrderID   string    `db:"order_id"`
	Message   string    `db:"message"`
}
