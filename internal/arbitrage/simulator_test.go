package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycletrader/internal/model"
)

type staticValues map[string]float64

func (v staticValues) ReferenceValue(currency string) (float64, bool) {
	x, ok := v[currency]
	return x, ok
}

func mustEdge(t *testing.T, market, from, to string, price float64, buy bool) model.ConversionEdge {
	t.Helper()
	e, err := model.NewConversionEdge(market, from, to, price, buy)
	require.NoError(t, err)
	return e
}

func mustPath(t *testing.T, profit float64, edges ...model.ConversionEdge) model.TradingPath {
	t.Helper()
	p, err := model.NewTradingPath(edges, profit)
	require.NoError(t, err)
	return p
}

func levels(pairs ...float64) []model.OrderBookLevel {
	out := make([]model.OrderBookLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.OrderBookLevel{Quantity: pairs[i], Rate: pairs[i+1]})
	}
	return out
}

// roundTrip is the A-B-C-A cycle quoting 1.05 at the headline, with each
// hop's book flattening by 1% per level.
func roundTrip(t *testing.T) *Candidate {
	t.Helper()
	ab := mustEdge(t, "B-A", "A", "B", 1, false)
	bc := mustEdge(t, "C-B", "B", "C", 1, false)
	ca := mustEdge(t, "A-C", "C", "A", 1.05, false)
	return &Candidate{
		Path: mustPath(t, 1.05, ab, bc, ca),
		Hops: []Hop{
			{Edge: ab, Levels: levels(10, 1, 10, 0.99, 10, 0.98)},
			{Edge: bc, Levels: levels(10, 1, 10, 0.99, 10, 0.98)},
			{Edge: ca, Levels: levels(10, 1.05, 10, 1.04, 10, 1.03)},
		},
	}
}

func TestWalkHop(t *testing.T) {
	t.Run("sell consumes bids", func(t *testing.T) {
		got, filled := WalkHop(levels(1, 10, 2, 9), false, 0, 2)
		assert.True(t, filled)
		assert.InDelta(t, 19, got, 1e-12)
	})

	t.Run("buy spends quote", func(t *testing.T) {
		got, filled := WalkHop(levels(1, 10, 1, 12), true, 0, 16)
		assert.True(t, filled)
		assert.InDelta(t, 1.5, got, 1e-12)
	})

	t.Run("fee inflates cost", func(t *testing.T) {
		got, filled := WalkHop(levels(10, 2), false, 0.01, 5.05)
		assert.True(t, filled)
		assert.InDelta(t, 10, got, 1e-9)
	})

	t.Run("book exhausted", func(t *testing.T) {
		got, filled := WalkHop(levels(1, 10, 2, 9), false, 0, 4)
		assert.False(t, filled)
		assert.InDelta(t, 28, got, 1e-12)
	})

	t.Run("empty book", func(t *testing.T) {
		_, filled := WalkHop(nil, true, 0, 1)
		assert.False(t, filled)
	})
}

func TestSimulator_Cycle(t *testing.T) {
	sim := NewSimulator(0, staticValues{})
	c := roundTrip(t)

	res, err := sim.Simulate(c, 5)
	require.NoError(t, err)
	assert.True(t, res.SufficientLiquidity)
	assert.InDelta(t, 1.05, res.ReturnRatio, 1e-12)
	assert.InDelta(t, 5.25, res.Output, 1e-12)
	assert.InDelta(t, 0.25, res.Profit(), 1e-12)

	require.Len(t, res.HopSizes, 3)
	assert.Equal(t, 5.0, res.HopSizes[0])
	for i := 1; i < len(c.Hops); i++ {
		obtained, _ := WalkHop(c.Hops[i-1].Levels, c.Hops[i-1].Edge.Buy, 0, res.HopSizes[i-1])
		assert.InDelta(t, obtained, res.HopSizes[i], 1e-12)
	}
}

func TestSimulator_SlippageMonotonic(t *testing.T) {
	sim := NewSimulator(0.00375, staticValues{})
	c := roundTrip(t)

	prev := math.Inf(1)
	for _, amount := range []float64{0.5, 1, 5, 10, 12, 15, 20, 25} {
		res, err := sim.Simulate(c, amount)
		require.NoError(t, err)
		require.True(t, res.SufficientLiquidity, "amount %g", amount)
		assert.GreaterOrEqual(t, res.Output, 0.0)
		assert.LessOrEqual(t, res.ReturnRatio, prev+1e-12, "amount %g", amount)
		prev = res.ReturnRatio
	}
}

func TestSimulator_InsufficientLiquidity(t *testing.T) {
	sim := NewSimulator(0, staticValues{})
	c := roundTrip(t)

	for _, amount := range []float64{0, -1, math.Inf(1), 1000} {
		res, err := sim.Simulate(c, amount)
		require.NoError(t, err)
		assert.False(t, res.SufficientLiquidity, "amount %g", amount)
		assert.Equal(t, -1.0, res.ReturnRatio)
		assert.True(t, math.IsInf(res.Profit(), -1))
	}
}

func TestSimulator_TwoHop(t *testing.T) {
	ethBTC := mustEdge(t, "BTC-ETH", "ETH", "BTC", 0.05, false)
	btcUSDT := mustEdge(t, "USDT-BTC", "BTC", "USDT", 40000, false)
	c := &Candidate{
		Path: mustPath(t, 1, ethBTC, btcUSDT),
		Hops: []Hop{
			{Edge: ethBTC, Levels: levels(100, 0.05)},
			{Edge: btcUSDT, Levels: levels(100, 40000)},
		},
	}

	t.Run("value adjusted", func(t *testing.T) {
		sim := NewSimulator(0, staticValues{"ETH": 2000, "USDT": 1})
		res, err := sim.Simulate(c, 1)
		require.NoError(t, err)
		assert.True(t, res.SufficientLiquidity)
		assert.InDelta(t, 2000, res.Output, 1e-9)
		assert.InDelta(t, 1, res.ReturnRatio, 1e-12)
	})

	t.Run("missing value", func(t *testing.T) {
		sim := NewSimulator(0, staticValues{"ETH": 2000})
		_, err := sim.Simulate(c, 1)
		assert.ErrorIs(t, err, model.ErrReferenceValueMissing)
	})
}
