package arbitrage

import (
	"cycletrader/internal/model"
)

// Graph is the adjacency and valuation view the enumerator walks.
type Graph interface {
	ReferenceValues
	Edges(currency string) []model.ConversionEdge
	IsBase(currency string) bool
}

// Enumerator builds candidate paths from headline prices only.
type Enumerator struct {
	graph      Graph
	feeRate    float64
	acceptance float64
}

// NewEnumerator creates an enumerator. acceptance is the near-unity
// threshold a two-hop base conversion must reach.
func NewEnumerator(graph Graph, feeRate, acceptance float64) *Enumerator {
	return &Enumerator{graph: graph, feeRate: feeRate, acceptance: acceptance}
}

// Enumerate lists the paths starting at currency with their headline
// profitability.
//
// For every pair of first and second hops, a two-hop path is recorded when
// both ends are valued base currencies and the value-adjusted rate reaches
// the acceptance threshold. Otherwise the first hop back to currency closes a
// three-hop cycle, recorded unconditionally for non-base currencies and only
// above 1 for base ones.
func (e *Enumerator) Enumerate(currency string, isBase bool) []model.TradingPath {
	var paths []model.TradingPath
	keep := 1 - e.feeRate
	startValue, startValued := e.graph.ReferenceValue(currency)

	for _, first := range e.graph.Edges(currency) {
		firstReturn := first.Price * keep
		for _, second := range e.graph.Edges(first.To) {
			secondReturn := firstReturn * second.Price * keep

			if isBase && e.graph.IsBase(second.To) && startValued && startValue > 0 {
				if endValue, ok := e.graph.ReferenceValue(second.To); ok {
					profit := secondReturn * endValue / startValue
					if profit >= e.acceptance {
						paths = appendPath(paths, profit, first, second)
						continue
					}
				}
			}

			for _, third := range e.graph.Edges(second.To) {
				if third.To != currency {
					continue
				}
				profit := secondReturn * third.Price * keep
				if !isBase || profit > 1 {
					paths = appendPath(paths, profit, first, second, third)
				}
				break
			}
		}
	}
	return paths
}

func appendPath(paths []model.TradingPath, profit float64, edges ...model.ConversionEdge) []model.TradingPath {
	p, err := model.NewTradingPath(edges, profit)
	if err != nil {
		return paths
	}
	return append(paths, p)
}
