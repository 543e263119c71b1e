package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"cycletrader/internal/model"
)

// BookSource resolves the order book of a market.
type BookSource interface {
	Get(ctx context.Context, market string) (model.OrderBook, error)
}

// MinOrderSource resolves the minimum input of a hop.
type MinOrderSource interface {
	MinOrderSize(e model.ConversionEdge) (float64, error)
}

var (
	errHeadlineUnprofitable = errors.New("headline profitability not above 1")
	errNoFeasibleSize       = errors.New("no amount within balance clears every minimum order")
	errBelowFirstMinimum    = errors.New("minimum size does not clear first hop minimum")
	errRealizedUnprofitable = errors.New("realized return not above 1")
	errBalanceExhausted     = errors.New("balance exhausted")
)

// PathOutcome reports what the selector did with one candidate path.
type PathOutcome struct {
	Path     model.TradingPath
	Status   model.PathStatus
	Realized float64
	Amount   float64
	Err      error
}

// Selection is the result of selecting trades for one currency balance.
type Selection struct {
	Instructions []model.TradeInstruction
	Outcomes     []PathOutcome
	Remaining    float64
}

// Selector turns enumerated paths into trade instructions for one balance.
type Selector struct {
	sizer  *Sizer
	books  BookSource
	mins   MinOrderSource
	params Params
	logger *slog.Logger
}

// NewSelector creates a selector.
func NewSelector(sizer *Sizer, books BookSource, mins MinOrderSource, logger *slog.Logger) *Selector {
	return &Selector{sizer: sizer, books: books, mins: mins, params: sizer.params, logger: logger}
}

type ranked struct {
	index     int
	candidate *Candidate
	minSize   float64
	minReturn float64
}

type edgeKey struct {
	market string
	buy    bool
}

type bookLookup struct {
	book model.OrderBook
	err  error
}

type minLookup struct {
	size float64
	err  error
}

// Select resolves books and minimums for every path, drops infeasible ones,
// ranks the rest by their return at minimum size and greedily consumes the
// balance starting from the best. When enforce is set, only paths whose
// headline and realized returns exceed 1 are traded.
func (s *Selector) Select(ctx context.Context, paths []model.TradingPath, balance model.Balance, enforce bool) Selection {
	sel := Selection{
		Outcomes:  make([]PathOutcome, len(paths)),
		Remaining: balance.Available,
	}
	books := make(map[string]bookLookup)
	mins := make(map[edgeKey]minLookup)

	// All books are requested before any sizing; the wait deadline in ctx
	// covers fetches only.
	candidates := make([]*Candidate, len(paths))
	for i, p := range paths {
		out := &sel.Outcomes[i]
		out.Path = p

		c, err := s.prepare(ctx, p, books, mins)
		if err != nil {
			out.Status, out.Err = model.PathInfeasible, err
			continue
		}
		candidates[i] = c
	}

	var queue []ranked
	for i, c := range candidates {
		if c == nil {
			continue
		}
		out := &sel.Outcomes[i]
		if enforce && c.Path.Profitability <= 1 {
			out.Status, out.Err = model.PathSkipped, errHeadlineUnprofitable
			continue
		}

		var (
			amount float64
			res    model.SimulationResult
			ok     bool
		)
		err := guard(func() (err error) {
			amount, res, ok, err = s.sizer.SizeToMinimum(c, balance.Available)
			return err
		})
		switch {
		case err != nil:
			out.Status, out.Err = model.PathSimulationError, err
			continue
		case !ok:
			out.Status, out.Err = model.PathInfeasible, errNoFeasibleSize
			continue
		}

		minSize := amount * s.params.MinOrderMargin
		out.Realized, out.Amount = res.ReturnRatio, minSize
		switch {
		case minSize > balance.Available:
			out.Status, out.Err = model.PathInfeasible, fmt.Errorf("%w: need %g, have %g", model.ErrInsufficientBalance, minSize, balance.Available)
			continue
		case minSize <= c.Hops[0].MinOrder:
			out.Status, out.Err = model.PathInfeasible, errBelowFirstMinimum
			continue
		case enforce && res.ReturnRatio <= 1:
			out.Status, out.Err = model.PathSkipped, errRealizedUnprofitable
			continue
		}
		queue = append(queue, ranked{index: i, candidate: c, minSize: minSize, minReturn: res.ReturnRatio})
	}

	sort.SliceStable(queue, func(a, b int) bool { return queue[a].minReturn < queue[b].minReturn })

	for len(queue) > 0 {
		next := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		out := &sel.Outcomes[next.index]

		if sel.Remaining <= 0 {
			out.Status, out.Err = model.PathSkipped, errBalanceExhausted
			continue
		}

		var amount float64
		if enforce {
			var res model.SimulationResult
			err := guard(func() (err error) {
				amount, res, err = s.sizer.SizeToMaxProfit(next.candidate, sel.Remaining, next.minSize)
				return err
			})
			if err != nil {
				out.Status, out.Err = model.PathSimulationError, err
				continue
			}
			out.Realized, out.Amount = res.ReturnRatio, amount
			if amount < next.minSize || !res.SufficientLiquidity || res.ReturnRatio < 1 {
				out.Status, out.Err = model.PathSkipped, errRealizedUnprofitable
				continue
			}
		} else {
			amount = s.sizer.FirstHopCapacity(next.candidate, sel.Remaining)
			out.Amount = amount
			if amount <= 0 {
				out.Status, out.Err = model.PathSkipped, errBalanceExhausted
				continue
			}
		}

		sel.Remaining = max(sel.Remaining-amount, 0)
		first := next.candidate.Hops[0].Edge
		sel.Instructions = append(sel.Instructions, model.TradeInstruction{
			Market:   first.Market,
			Side:     first.Side(),
			Quantity: s.sizer.OrderQuantity(next.candidate, amount),
		})
		out.Status = model.PathSelected
		s.logger.Debug("Selector: path selected",
			"currency", balance.Currency,
			"chain", next.candidate.Path.Chain(),
			"amount", amount,
			"realized", out.Realized,
		)
	}
	return sel
}

// prepare resolves every hop's book and minimum once per market across the
// paths of one selection. All hops are resolved even after a failure so the
// cache sees every market the paths need.
func (s *Selector) prepare(ctx context.Context, p model.TradingPath, books map[string]bookLookup, mins map[edgeKey]minLookup) (*Candidate, error) {
	c := &Candidate{Path: p, Hops: make([]Hop, 0, len(p.Edges))}
	var firstErr error
	for _, e := range p.Edges {
		b, seen := books[e.Market]
		if !seen {
			book, err := s.books.Get(ctx, e.Market)
			b = bookLookup{book: book, err: err}
			books[e.Market] = b
		}
		key := edgeKey{market: e.Market, buy: e.Buy}
		m, seen := mins[key]
		if !seen {
			size, err := s.mins.MinOrderSize(e)
			m = minLookup{size: size, err: err}
			mins[key] = m
		}
		switch {
		case b.err != nil:
			firstErr = firstError(firstErr, b.err)
		case m.err != nil:
			firstErr = firstError(firstErr, m.err)
		}
		c.Hops = append(c.Hops, Hop{Edge: e, Levels: b.book.Levels(e.Buy), MinOrder: m.size})
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return c, nil
}

func firstError(current, next error) error {
	if current != nil {
		return current
	}
	return next
}

// guard contains a panic raised while sizing one path.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sizing panic: %v", r)
		}
	}()
	return fn()
}
