package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Rate Graph — complete directed graph over a token set, one edge per
// ordered pair, edge weight -log2(rate) so that summing weights along a
// path is equivalent to multiplying the underlying rates.
// ---------------------------------------------------------------------------

var (
	// ErrInvalidRate is returned when an observation carries a rate <= 0.
	ErrInvalidRate = errors.New("graph: invalid rate")

	// ErrIncompleteGraph is returned when neither direction of a token
	// pair can be derived from the input.
	ErrIncompleteGraph = errors.New("graph: incomplete rate set")

	// ErrUnknownVertex is returned when a requested source token is not
	// part of the graph.
	ErrUnknownVertex = errors.New("graph: unknown vertex")
)

// Observation is a single quoted exchange rate: one unit of Base buys
// Rate units of Quote.
type Observation struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
}

// Graph is an immutable rate snapshot over a token set. Every ordered
// pair of distinct tokens has exactly one edge; self-loops are never
// materialized. Raw rates are kept as decimals for exact compounding,
// transformed weights as float64 for the relaxation loop.
type Graph struct {
	vertices []string
	index    map[string]int
	rates    [][]decimal.Decimal // rates[i][j]: one unit of vertex i in units of vertex j
	weights  [][]float64         // weights[i][j] = -log2(rates[i][j])
}

// Build constructs a complete rate graph from a batch of observations.
//
// Rules, in order:
//   - a rate <= 0 aborts the whole snapshot with ErrInvalidRate;
//   - self-pairs (Base == Quote) are validated but carry no edge;
//   - duplicate (Base, Quote) entries resolve to the latest observation;
//   - a pair quoted in only one direction gets its reverse edge as the
//     exact decimal reciprocal; explicitly quoted values always win;
//   - a pair quoted in neither direction aborts with ErrIncompleteGraph.
func Build(observations []Observation) (*Graph, error) {
	seen := make(map[string]struct{})
	quoted := make(map[[2]string]decimal.Decimal, len(observations))

	for _, obs := range observations {
		if obs.Rate.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s-%s quoted at %s",
				ErrInvalidRate, obs.Base, obs.Quote, obs.Rate)
		}
		seen[obs.Base] = struct{}{}
		seen[obs.Quote] = struct{}{}
		if obs.Base == obs.Quote {
			continue
		}
		// Latest observation wins on duplicates.
		quoted[[2]string{obs.Base, obs.Quote}] = obs.Rate
	}

	vertices := make([]string, 0, len(seen))
	for v := range seen {
		vertices = append(vertices, v)
	}
	// Sorted vertices fix the edge iteration order, which keeps
	// detection results reproducible across runs.
	sort.Strings(vertices)

	g := &Graph{
		vertices: vertices,
		index:    make(map[string]int, len(vertices)),
		rates:    make([][]decimal.Decimal, len(vertices)),
		weights:  make([][]float64, len(vertices)),
	}
	for i, v := range vertices {
		g.index[v] = i
		g.rates[i] = make([]decimal.Decimal, len(vertices))
		g.weights[i] = make([]float64, len(vertices))
	}

	one := decimal.New(1, 0)
	for i, base := range vertices {
		for j, quote := range vertices {
			if i == j {
				continue
			}
			rate, ok := quoted[[2]string{base, quote}]
			if !ok {
				reverse, rok := quoted[[2]string{quote, base}]
				if !rok {
					return nil, fmt.Errorf("%w: no rate derivable for %s-%s",
						ErrIncompleteGraph, base, quote)
				}
				rate = one.Div(reverse)
			}
			g.rates[i][j] = rate
			g.weights[i][j] = -math.Log2(rate.InexactFloat64())
		}
	}

	return g, nil
}

// Vertices returns the token identifiers in index order. The returned
// slice must not be mutated.
func (g *Graph) Vertices() []string {
	return g.vertices
}

// Order returns the number of vertices.
func (g *Graph) Order() int {
	return len(g.vertices)
}

// Size returns the number of directed edges, V*(V-1) by construction.
func (g *Graph) Size() int {
	n := len(g.vertices)
	return n * (n - 1)
}

// Rate returns the raw exchange rate for the directed pair (base, quote).
func (g *Graph) Rate(base, quote string) (decimal.Decimal, bool) {
	i, iok := g.index[base]
	j, jok := g.index[quote]
	if !iok || !jok || i == j {
		return decimal.Decimal{}, false
	}
	return g.rates[i][j], true
}

// Weight returns the transformed edge weight -log2(rate) for the
// directed pair (base, quote).
func (g *Graph) Weight(base, quote string) (float64, bool) {
	i, iok := g.index[base]
	j, jok := g.index[quote]
	if !iok || !jok || i == j {
		return 0, false
	}
	return g.weights[i][j], true
}
