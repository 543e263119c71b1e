package arbitrage

import (
	"cycletrader/internal/config"
	"cycletrader/internal/model"
)

// Params are the numeric knobs of path search and trade sizing.
type Params struct {
	FeeRate              float64
	AcceptanceThreshold  float64
	MaxLiquidityFraction float64
	SearchSlack          float64
	MinOrderMargin       float64
	Tolerance            float64
}

// ParamsFromConfig extracts the sizing parameters from the arbitrage config.
func ParamsFromConfig(cfg config.ArbitrageConfig) Params {
	return Params{
		FeeRate:              cfg.FeeRate(),
		AcceptanceThreshold:  cfg.AcceptanceThreshold,
		MaxLiquidityFraction: cfg.MaxLiquidityFraction,
		SearchSlack:          cfg.SearchSlack,
		MinOrderMargin:       cfg.MinOrderMargin,
		Tolerance:            cfg.SearchTolerance,
	}
}

// Sizer chooses trade amounts for candidates using the simulator.
type Sizer struct {
	sim    *Simulator
	params Params
}

// NewSizer creates a sizer.
func NewSizer(sim *Simulator, params Params) *Sizer {
	return &Sizer{sim: sim, params: params}
}

// clearsMinimums reports whether every hop input exceeds its minimum order.
func clearsMinimums(c *Candidate, res model.SimulationResult) bool {
	if !res.SufficientLiquidity || len(res.HopSizes) != len(c.Hops) {
		return false
	}
	for i, size := range res.HopSizes {
		if size <= c.Hops[i].MinOrder {
			return false
		}
	}
	return true
}

// SizeToMinimum finds the smallest amount within balance whose simulated hop
// inputs all exceed their minimum order sizes. A trial the books cannot fill
// pushes the search towards smaller amounts. ok is false when no such amount
// exists.
func (s *Sizer) SizeToMinimum(c *Candidate, balance float64) (amount float64, res model.SimulationResult, ok bool, err error) {
	var simErr error
	amount, ok = BisectMin(balance, s.params.Tolerance, func(x float64) Trial {
		if simErr != nil {
			return TrialTooSmall
		}
		trial, err := s.sim.Simulate(c, x)
		switch {
		case err != nil:
			simErr = err
			return TrialTooSmall
		case !trial.SufficientLiquidity:
			return TrialTooLarge
		case clearsMinimums(c, trial):
			return TrialAccepted
		default:
			return TrialTooSmall
		}
	})
	if simErr != nil {
		return 0, model.SimulationResult{}, false, simErr
	}
	if !ok {
		return 0, model.SimulationResult{}, false, nil
	}
	res, err = s.sim.Simulate(c, amount)
	return amount, res, ok, err
}

// SizeToMaxProfit searches for the amount with the largest absolute expected
// profit between minOrder and the balance scaled up by the liquidity cap and
// slack, then commits only the liquidity fraction of it, no less than
// minOrder and no more than balance.
func (s *Sizer) SizeToMaxProfit(c *Candidate, balance, minOrder float64) (float64, model.SimulationResult, error) {
	upper := balance * s.params.SearchSlack / s.params.MaxLiquidityFraction
	var simErr error
	best := Maximize(minOrder, upper, s.params.Tolerance, func(x float64) (float64, bool) {
		if simErr != nil {
			return 0, false
		}
		res, err := s.sim.Simulate(c, x)
		if err != nil {
			simErr = err
			return 0, false
		}
		return res.Profit(), res.SufficientLiquidity
	})
	if simErr != nil {
		return 0, model.SimulationResult{}, simErr
	}

	amount := max(best*s.params.MaxLiquidityFraction, minOrder)
	amount = min(amount, balance)
	res, err := s.sim.Simulate(c, amount)
	return amount, res, err
}

// FirstHopCapacity is the fee-inclusive input the first hop's book can absorb,
// capped at balance. It sizes trades for currencies without a reference
// value, where profit cannot be enforced.
func (s *Sizer) FirstHopCapacity(c *Candidate, balance float64) float64 {
	first := c.Hops[0]
	capacity := 0.0
	for _, lvl := range first.Levels {
		if capacity >= balance {
			break
		}
		if first.Edge.Buy {
			capacity += lvl.Quantity * lvl.Rate * (1 + s.params.FeeRate)
		} else {
			capacity += lvl.Quantity * (1 + s.params.FeeRate)
		}
	}
	return min(capacity, balance)
}

// OrderQuantity converts an input amount of the first hop into the market
// currency quantity the exchange expects: the amount itself when selling, the
// quantity the book delivers when buying.
func (s *Sizer) OrderQuantity(c *Candidate, amount float64) float64 {
	first := c.Hops[0]
	if !first.Edge.Buy {
		return amount
	}
	obtained, _ := WalkHop(first.Levels, true, s.params.FeeRate, amount)
	return obtained
}
