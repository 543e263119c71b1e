package arbitrage

import (
	"fmt"
	"math"

	"cycletrader/internal/model"
)

// ReferenceValues exposes the per-cycle reference value of base currencies.
type ReferenceValues interface {
	ReferenceValue(currency string) (float64, bool)
}

// Hop is one edge of a candidate path together with the depth it consumes
// and the smallest input the exchange accepts for it.
type Hop struct {
	Edge     model.ConversionEdge
	Levels   []model.OrderBookLevel
	MinOrder float64
}

// Candidate is a trading path whose order books and minimum sizes have been
// resolved for this cycle.
type Candidate struct {
	Path model.TradingPath
	Hops []Hop
}

// Simulator predicts the output of a trade by walking order-book depth.
// It never modifies the books it reads.
type Simulator struct {
	feeRate float64
	values  ReferenceValues
}

// NewSimulator creates a simulator charging feeRate on every hop.
func NewSimulator(feeRate float64, values ReferenceValues) *Simulator {
	return &Simulator{feeRate: feeRate, values: values}
}

// WalkHop converts amount of the hop's source currency by consuming levels
// best price first. Buying spends quantity*rate plus fee per level and obtains
// the quantity; selling spends quantity plus fee and obtains quantity*rate.
// The last touched level is taken proportionally. filled is false when the
// book runs out before amount is spent.
func WalkHop(levels []model.OrderBookLevel, buy bool, feeRate, amount float64) (obtained float64, filled bool) {
	remaining := amount
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		var cost, gain float64
		if buy {
			cost = lvl.Quantity * lvl.Rate * (1 + feeRate)
			gain = lvl.Quantity
		} else {
			cost = lvl.Quantity * (1 + feeRate)
			gain = lvl.Quantity * lvl.Rate
		}
		if cost <= 0 {
			continue
		}
		if cost > remaining {
			obtained += gain * remaining / cost
			remaining = 0
			break
		}
		remaining -= cost
		obtained += gain
	}
	return obtained, remaining <= 0
}

// Simulate walks every hop of c with amount as the initial input. Output of
// one hop is the input of the next; HopSizes records the input of each filled
// hop. Simulation stops at the first hop the book cannot fill.
//
// A cycle's return ratio is output over input. A two-hop path ends in another
// currency, so both sides are converted to the reference unit first.
func (s *Simulator) Simulate(c *Candidate, amount float64) (model.SimulationResult, error) {
	res := model.SimulationResult{
		Amount:      amount,
		ReturnRatio: -1,
		HopSizes:    make([]float64, 0, len(c.Hops)),
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return res, nil
	}

	balance := amount
	for _, h := range c.Hops {
		obtained, filled := WalkHop(h.Levels, h.Edge.Buy, s.feeRate, balance)
		if !filled {
			return res, nil
		}
		res.HopSizes = append(res.HopSizes, balance)
		balance = obtained
	}
	res.Output = balance

	if c.Path.Cycle() {
		res.ReturnRatio = balance / amount
	} else {
		start, ok := s.values.ReferenceValue(c.Path.Currency)
		if !ok || start <= 0 {
			return res, fmt.Errorf("%w: %s", model.ErrReferenceValueMissing, c.Path.Currency)
		}
		end, ok := s.values.ReferenceValue(c.Path.Target())
		if !ok {
			return res, fmt.Errorf("%w: %s", model.ErrReferenceValueMissing, c.Path.Target())
		}
		res.ReturnRatio = balance * end / (amount * start)
	}
	res.SufficientLiquidity = true
	return res, nil
}
