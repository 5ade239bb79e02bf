package rates

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iulianbarbu/arbitrage-opportunities/internal/graph"
)

// ---------------------------------------------------------------------------
// Rate feed wire format — {"rates": {"BASE-QUOTE": "123.45678900", ...}}.
// Rates are quoted with 8 decimal places and parsed as exact decimals.
// ---------------------------------------------------------------------------

var (
	// ErrMalformedPair is returned for a pair key that is not BASE-QUOTE.
	ErrMalformedPair = errors.New("rates: malformed pair key")

	// ErrMalformedRate is returned for a rate value that is not a decimal.
	ErrMalformedRate = errors.New("rates: malformed rate value")

	// ErrEmptyFeed is returned when the feed document carries no rates.
	ErrEmptyFeed = errors.New("rates: empty feed document")
)

// Snapshot is one immutable batch of rate observations. Each fetch or
// feed message yields a fresh snapshot; detection runs never share one.
type Snapshot struct {
	ID           string              `json:"id"`
	FetchedAt    time.Time           `json:"fetched_at"`
	Observations []graph.Observation `json:"observations"`
}

// NewSnapshot stamps a batch of observations with an id and fetch time.
func NewSnapshot(observations []graph.Observation) Snapshot {
	return Snapshot{
		ID:           uuid.New().String(),
		FetchedAt:    time.Now(),
		Observations: observations,
	}
}

type feedDocument struct {
	Rates map[string]string `json:"rates"`
}

// ParseDocument decodes a raw feed payload into a Snapshot. Pair keys
// are processed in sorted order so a snapshot parses identically on
// every run.
func ParseDocument(data []byte) (Snapshot, error) {
	var doc feedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("rates: decode feed document: %w", err)
	}
	if len(doc.Rates) == 0 {
		return Snapshot{}, ErrEmptyFeed
	}

	keys := make([]string, 0, len(doc.Rates))
	for k := range doc.Rates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	observations := make([]graph.Observation, 0, len(keys))
	for _, key := range keys {
		obs, err := ParsePair(key, doc.Rates[key])
		if err != nil {
			return Snapshot{}, err
		}
		observations = append(observations, obs)
	}
	return NewSnapshot(observations), nil
}

// ParsePair decodes a single "BASE-QUOTE" key and its quoted rate.
func ParsePair(pair, value string) (graph.Observation, error) {
	base, quote, ok := strings.Cut(pair, "-")
	if !ok || base == "" || quote == "" {
		return graph.Observation{}, fmt.Errorf("%w: %q", ErrMalformedPair, pair)
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return graph.Observation{}, fmt.Errorf("%w: %s quoted at %q", ErrMalformedRate, pair, value)
	}
	return graph.Observation{Base: base, Quote: quote, Rate: rate}, nil
}
