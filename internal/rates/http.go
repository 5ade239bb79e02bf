package rates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// HTTP rate feed client — bounded retries, client-side pacing and a
// circuit breaker around the quote endpoint.
// ---------------------------------------------------------------------------

const maxFeedBody = 8 << 20 // refuse to buffer feed documents beyond 8 MiB

// HTTPConfig configures the HTTP feed source.
type HTTPConfig struct {
	URL          string  `yaml:"url"`
	TimeoutS     int     `yaml:"timeout_s"`
	MaxRetries   int     `yaml:"max_retries"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// DefaultHTTPConfig returns development defaults.
func DefaultHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:          url,
		TimeoutS:     10,
		MaxRetries:   2,
		RateLimitRPS: 2,
	}
}

// HTTPSource fetches rate snapshots from a REST quote endpoint.
type HTTPSource struct {
	config  HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter

	fetchCount atomic.Int64
	errorCount atomic.Int64
}

// NewHTTPSource creates a feed client for the given endpoint.
func NewHTTPSource(config HTTPConfig) *HTTPSource {
	settings := gobreaker.Settings{
		Name:    "rates-feed",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("rates: circuit breaker state change")
		},
	}

	return &HTTPSource{
		config:  config,
		client:  &http.Client{Timeout: time.Duration(config.TimeoutS) * time.Second},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1),
	}
}

// Fetch retrieves and parses one snapshot. Transient transport errors
// are retried with backoff; repeated failures open the breaker.
func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	s.fetchCount.Add(1)
	start := time.Now()

	var body []byte
	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("rates: retrying feed fetch")
			select {
			case <-ctx.Done():
				return Snapshot{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err = s.limiter.Wait(ctx); err != nil {
			return Snapshot{}, err
		}

		body, err = s.breaker.Execute(func() ([]byte, error) {
			return s.get(ctx)
		})
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
	}
	if err != nil {
		s.errorCount.Add(1)
		return Snapshot{}, fmt.Errorf("rates: fetch %s: %w", s.config.URL, err)
	}

	snap, err := ParseDocument(body)
	if err != nil {
		s.errorCount.Add(1)
		return Snapshot{}, err
	}

	log.Debug().
		Str("snapshot_id", snap.ID).
		Int("pairs", len(snap.Observations)).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("rates: snapshot fetched")
	return snap, nil
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
}

// Stats reports fetch and error counts since startup.
func (s *HTTPSource) Stats() (fetches, errors int64) {
	return s.fetchCount.Load(), s.errorCount.Load()
}
