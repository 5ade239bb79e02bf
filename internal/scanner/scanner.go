package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iulianbarbu/arbitrage-opportunities/internal/graph"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/observability"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/rates"
)

// ---------------------------------------------------------------------------
// Arbitrage Scanner — drives snapshots through graph construction and
// negative-cycle detection, and reports the opportunities found.
// ---------------------------------------------------------------------------

// Source produces rate snapshots on demand.
type Source interface {
	Fetch(ctx context.Context) (rates.Snapshot, error)
}

// Config configures the scanner.
type Config struct {
	// Stake compounded through each reported cycle.
	TradeAmount decimal.Decimal

	// Upper bound on snapshots processed concurrently in watch mode.
	// Each snapshot's detection run stays strictly sequential inside.
	MaxInFlight int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TradeAmount: decimal.New(100, 0),
		MaxInFlight: 4,
	}
}

// Metrics groups the scanner's observability instruments.
type Metrics struct {
	SnapshotsTotal   *observability.Counter
	SnapshotFailures *observability.Counter
	Opportunities    *observability.Counter
	TokensTracked    *observability.Gauge
	DetectSeconds    *observability.Histogram
}

// NewMetrics registers the scanner metric set.
func NewMetrics(registry *observability.Registry) *Metrics {
	return &Metrics{
		SnapshotsTotal: registry.NewCounter(
			"arbscan_snapshots_total", "Rate snapshots processed"),
		SnapshotFailures: registry.NewCounter(
			"arbscan_snapshot_failures_total", "Snapshots rejected or failed"),
		Opportunities: registry.NewCounter(
			"arbscan_opportunities_total", "Arbitrage cycles reported"),
		TokensTracked: registry.NewGauge(
			"arbscan_tokens", "Tokens in the latest snapshot"),
		DetectSeconds: registry.NewHistogram(
			"arbscan_detect_seconds", "Graph build plus detection latency",
			[]float64{0.001, 0.01, 0.1, 0.5, 1, 5}),
	}
}

// Scanner runs detection over rate snapshots.
type Scanner struct {
	config  Config
	metrics *Metrics

	snapshotsSeen atomic.Int64
}

// New creates a scanner. Metrics may be nil.
func New(config Config, metrics *Metrics) *Scanner {
	return &Scanner{config: config, metrics: metrics}
}

// Scan processes one snapshot end to end. A context cancelled before
// detection completes aborts with the context error: a partial run never
// reports "no opportunity". An empty Opportunities slice on a nil error
// is the genuine no-arbitrage outcome.
func (s *Scanner) Scan(ctx context.Context, snap rates.Snapshot) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.snapshotsSeen.Add(1)
	start := time.Now()

	g, err := graph.Build(snap.Observations)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SnapshotFailures.Inc()
		}
		return nil, fmt.Errorf("scanner: snapshot %s: %w", snap.ID, err)
	}

	cycles := graph.FindArbitrage(g)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	report := &Report{
		SnapshotID:    snap.ID,
		Tokens:        g.Order(),
		Pairs:         g.Size(),
		Opportunities: s.describe(cycles),
		Elapsed:       elapsed,
	}

	if s.metrics != nil {
		s.metrics.SnapshotsTotal.Inc()
		s.metrics.Opportunities.Add(int64(len(cycles)))
		s.metrics.TokensTracked.Set(float64(g.Order()))
		s.metrics.DetectSeconds.Observe(elapsed.Seconds())
	}

	return report, nil
}

// Watch fetches a snapshot from the source every interval and scans it.
// Snapshots are independent, so each scan runs in its own goroutine,
// bounded by MaxInFlight. Blocks until the context is cancelled.
func (s *Scanner) Watch(ctx context.Context, source Source, interval time.Duration) error {
	log.Info().
		Dur("interval", interval).
		Int("max_in_flight", s.config.MaxInFlight).
		Msg("scanner: watching rate feed")

	sem := make(chan struct{}, s.config.MaxInFlight)
	var wg sync.WaitGroup

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		snap, err := source.Fetch(ctx)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			if s.metrics != nil {
				s.metrics.SnapshotFailures.Inc()
			}
			log.Error().Err(err).Msg("scanner: snapshot fetch failed")
		default:
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go func(snap rates.Snapshot) {
					defer wg.Done()
					defer func() { <-sem }()
					report, scanErr := s.Scan(ctx, snap)
					if scanErr != nil {
						log.Error().Err(scanErr).
							Str("snapshot_id", snap.ID).
							Msg("scanner: scan failed")
						return
					}
					report.Log()
				}(snap)
			case <-ctx.Done():
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
	}

	wg.Wait()
	log.Info().Int64("snapshots", s.snapshotsSeen.Load()).Msg("scanner: stopped")
	return ctx.Err()
}
