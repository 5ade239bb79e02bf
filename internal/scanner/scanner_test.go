package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iulianbarbu/arbitrage-opportunities/internal/graph"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/observability"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/rates"
)

func triangleSnapshot() rates.Snapshot {
	return rates.NewSnapshot([]graph.Observation{
		{Base: "A", Quote: "B", Rate: decimal.RequireFromString("2.0")},
		{Base: "B", Quote: "C", Rate: decimal.RequireFromString("2.0")},
		{Base: "C", Quote: "A", Rate: decimal.RequireFromString("0.3")},
	})
}

func newTestScanner() (*Scanner, *Metrics) {
	metrics := NewMetrics(observability.NewRegistry())
	return New(DefaultConfig(), metrics), metrics
}

func TestScanner_Scan(t *testing.T) {
	s, metrics := newTestScanner()

	report, err := s.Scan(context.Background(), triangleSnapshot())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Tokens)
	assert.Equal(t, 6, report.Pairs)
	require.Len(t, report.Opportunities, 1)

	opp := report.Opportunities[0]
	assert.Equal(t, []string{"A", "B", "C", "A"}, opp.Path)
	assert.True(t, opp.GrossRate.Equal(decimal.RequireFromString("1.2")))
	assert.True(t, opp.ProfitPct.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, "120.00000000", opp.FinalAmount.StringFixed(8))
	assert.Equal(t,
		"arbitrage opportunity: A -> B -> C -> A, trade amount grows to 120.00000000",
		opp.Describe())

	assert.Equal(t, int64(1), metrics.SnapshotsTotal.Value())
	assert.Equal(t, int64(1), metrics.Opportunities.Value())
	assert.Equal(t, float64(3), metrics.TokensTracked.Value())
	assert.Equal(t, int64(1), metrics.DetectSeconds.Count())
}

func TestScanner_ScanEfficientMarket(t *testing.T) {
	s, _ := newTestScanner()

	snap := rates.NewSnapshot([]graph.Observation{
		{Base: "A", Quote: "B", Rate: decimal.RequireFromString("2")},
		{Base: "B", Quote: "C", Rate: decimal.RequireFromString("4")},
		{Base: "A", Quote: "C", Rate: decimal.RequireFromString("8")},
	})

	report, err := s.Scan(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, report.Opportunities, "efficient market has no arbitrage")
}

func TestScanner_ScanRejectsInvalidSnapshot(t *testing.T) {
	s, metrics := newTestScanner()

	snap := rates.NewSnapshot([]graph.Observation{
		{Base: "A", Quote: "B", Rate: decimal.RequireFromString("-1")},
	})

	_, err := s.Scan(context.Background(), snap)
	assert.ErrorIs(t, err, graph.ErrInvalidRate)
	assert.Equal(t, int64(1), metrics.SnapshotFailures.Value())
	assert.Equal(t, int64(0), metrics.SnapshotsTotal.Value())
}

func TestScanner_ScanCancelledYieldsNoResult(t *testing.T) {
	s, metrics := newTestScanner()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.Scan(ctx, triangleSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report, "a cancelled run must not be mistaken for no opportunity")
	assert.Equal(t, int64(0), metrics.SnapshotsTotal.Value())
}

func TestScanner_CustomTradeAmount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradeAmount = decimal.RequireFromString("250")
	s := New(cfg, nil)

	report, err := s.Scan(context.Background(), triangleSnapshot())
	require.NoError(t, err)
	require.Len(t, report.Opportunities, 1)
	assert.Equal(t, "300.00000000", report.Opportunities[0].FinalAmount.StringFixed(8))
}

type stubSource struct {
	snapshots chan rates.Snapshot
}

func (s *stubSource) Fetch(ctx context.Context) (rates.Snapshot, error) {
	select {
	case snap := <-s.snapshots:
		return snap, nil
	case <-ctx.Done():
		return rates.Snapshot{}, ctx.Err()
	}
}

func TestScanner_WatchStopsOnCancel(t *testing.T) {
	s, metrics := newTestScanner()

	source := &stubSource{snapshots: make(chan rates.Snapshot, 1)}
	source.snapshots <- triangleSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, source, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		return metrics.SnapshotsTotal.Value() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
