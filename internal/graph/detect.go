package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Negative Cycle Detector — Bellman-Ford relaxation over the transformed
// weights. A cycle whose transformed weights sum below zero multiplies its
// raw rates above one, which is an arbitrage opportunity.
// ---------------------------------------------------------------------------

const (
	// relaxSlack filters float64 rounding noise out of the flagging
	// pass. Real opportunities sit orders of magnitude above it: a
	// 0.001% round-trip edge already sums to ~1.4e-5 in log2 space.
	relaxSlack = 1e-9

	// profitTolerance is the margin the exact decimal rate product must
	// clear above 1 before a cycle is reported. It absorbs the bounded
	// rounding of reciprocal-derived rates so a perfectly efficient
	// market can never be flagged.
	profitTolerance = "0.000000000001"
)

// Cycle is one discovered arbitrage opportunity: an ordered token
// sequence whose first and last elements are the same vertex, together
// with the exact compounded product of the raw rates along it.
type Cycle struct {
	Path      []string
	GrossRate decimal.Decimal
}

// Profit returns the fractional gain of executing the cycle once
// (GrossRate - 1).
func (c Cycle) Profit() decimal.Decimal {
	return c.GrossRate.Sub(decimal.New(1, 0))
}

// String renders the cycle in trade-execution order.
func (c Cycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// FindArbitrage scans the whole graph for negative cycles. All distances
// start at zero, which is equivalent to relaxing from a synthetic source
// wired to every vertex by a zero-weight edge; a single V-1 pass run then
// covers every real source at once. Returns the discovered cycles in
// deterministic order, or an empty slice when the market is efficient.
func FindArbitrage(g *Graph) []Cycle {
	n := g.Order()
	if n <= 1 {
		return nil
	}
	dist := make([]float64, n)
	return g.detect(dist)
}

// FindArbitrageFrom scans only cycles reachable from the given source
// token. Unreached vertices keep an infinite distance and never relax.
func FindArbitrageFrom(g *Graph, source string) ([]Cycle, error) {
	src, ok := g.index[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVertex, source)
	}
	n := g.Order()
	if n <= 1 {
		return nil, nil
	}
	dist := make([]float64, n)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[src] = 0
	return g.detect(dist), nil
}

// detect runs V-1 relaxation passes over the full edge set in row-major
// order, then flags edges that still relax and reconstructs the cycle
// behind each of them.
func (g *Graph) detect(dist []float64) []Cycle {
	n := g.Order()
	pred := make([]int, n)
	for i := range pred {
		pred[i] = -1
	}

	// Longest useful path has n-1 edges, so n-1 full passes settle every
	// shortest distance unless a negative cycle keeps improving them.
	for pass := 0; pass < n-1; pass++ {
		for u := 0; u < n; u++ {
			for v := 0; v < n; v++ {
				if u == v {
					continue
				}
				if next := dist[u] + g.weights[u][v]; next < dist[v] {
					dist[v] = next
					pred[v] = u
				}
			}
		}
	}

	// One more pass: any edge that still relaxes proves a negative
	// cycle, and its head sits on or downstream of that cycle.
	var cycles []Cycle
	emitted := make(map[string]struct{})
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if u == v {
				continue
			}
			if dist[u]+g.weights[u][v] >= dist[v]-relaxSlack {
				continue
			}
			if cycle, ok := g.reconstruct(pred, u, v); ok {
				key := cycle.String()
				if _, dup := emitted[key]; dup {
					continue
				}
				emitted[key] = struct{}{}
				cycles = append(cycles, cycle)
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].String() < cycles[j].String()
	})
	return cycles
}

// reconstruct walks predecessor links from the head of a still-relaxable
// edge (u, v) until it provably sits inside the cycle, closes the loop,
// and confirms profitability against the exact decimal rate product.
// An unprofitable or broken chain (possible only when the completeness
// invariant was violated upstream) is skipped, never fatal.
func (g *Graph) reconstruct(pred []int, u, v int) (Cycle, bool) {
	n := g.Order()
	chain := make([]int, n)
	copy(chain, pred)
	chain[v] = u

	// n predecessor hops from v are guaranteed to land inside the cycle.
	y := v
	for i := 0; i < n; i++ {
		y = chain[y]
		if y < 0 {
			return Cycle{}, false
		}
	}

	loop := []int{y}
	for x := chain[y]; x != y; x = chain[x] {
		if x < 0 || len(loop) > n {
			return Cycle{}, false
		}
		loop = append(loop, x)
	}

	// Predecessor links point against the trade direction.
	for i, j := 0, len(loop)-1; i < j; i, j = i+1, j-1 {
		loop[i], loop[j] = loop[j], loop[i]
	}

	// Canonical rotation: smallest token first, so the same cycle found
	// through different edges deduplicates to one report.
	start := 0
	for i := range loop {
		if g.vertices[loop[i]] < g.vertices[loop[start]] {
			start = i
		}
	}
	rotated := append(loop[start:], loop[:start]...)
	rotated = append(rotated, rotated[0])

	path := make([]string, len(rotated))
	gross := decimal.New(1, 0)
	for i, idx := range rotated {
		path[i] = g.vertices[idx]
		if i > 0 {
			gross = gross.Mul(g.rates[rotated[i-1]][idx])
		}
	}

	tolerance := decimal.RequireFromString(profitTolerance)
	if gross.Sub(decimal.New(1, 0)).Cmp(tolerance) <= 0 {
		return Cycle{}, false
	}
	return Cycle{Path: path, GrossRate: gross}, true
}
