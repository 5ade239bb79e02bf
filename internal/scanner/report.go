package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iulianbarbu/arbitrage-opportunities/internal/graph"
)

// Opportunity is one reportable arbitrage cycle with the stake outcome
// for the configured trade amount.
type Opportunity struct {
	Path        []string        `json:"path"`
	GrossRate   decimal.Decimal `json:"gross_rate"`
	ProfitPct   decimal.Decimal `json:"profit_pct"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

// Describe renders the opportunity in the feed's 8-decimal precision.
func (o Opportunity) Describe() string {
	return fmt.Sprintf("arbitrage opportunity: %s, trade amount grows to %s",
		strings.Join(o.Path, " -> "), o.FinalAmount.StringFixed(8))
}

// Report is the outcome of scanning a single snapshot. An empty
// Opportunities slice means the market held no arbitrage.
type Report struct {
	SnapshotID    string        `json:"snapshot_id"`
	Tokens        int           `json:"tokens"`
	Pairs         int           `json:"pairs"`
	Opportunities []Opportunity `json:"opportunities"`
	Elapsed       time.Duration `json:"elapsed"`
}

func (s *Scanner) describe(cycles []graph.Cycle) []Opportunity {
	hundred := decimal.New(100, 0)
	opportunities := make([]Opportunity, 0, len(cycles))
	for _, c := range cycles {
		opportunities = append(opportunities, Opportunity{
			Path:        c.Path,
			GrossRate:   c.GrossRate,
			ProfitPct:   c.Profit().Mul(hundred),
			FinalAmount: s.config.TradeAmount.Mul(c.GrossRate),
		})
	}
	return opportunities
}

// Log writes the report through the structured logger, one line per
// opportunity plus a summary.
func (r *Report) Log() {
	for _, o := range r.Opportunities {
		log.Info().
			Str("snapshot_id", r.SnapshotID).
			Str("cycle", strings.Join(o.Path, " -> ")).
			Str("gross_rate", o.GrossRate.String()).
			Str("profit_pct", o.ProfitPct.StringFixed(6)).
			Msg("scanner: arbitrage opportunity")
	}

	evt := log.Info().
		Str("snapshot_id", r.SnapshotID).
		Int("tokens", r.Tokens).
		Int("pairs", r.Pairs).
		Dur("elapsed", r.Elapsed)
	if len(r.Opportunities) == 0 {
		evt.Msg("scanner: no arbitrage found")
		return
	}
	evt.Int("opportunities", len(r.Opportunities)).Msg("scanner: scan complete")
}
