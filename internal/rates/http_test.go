package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTPConfig(url string) HTTPConfig {
	cfg := DefaultHTTPConfig(url)
	cfg.RateLimitRPS = 1000 // don't slow the suite down
	return cfg
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates": {"BTC-DAI": "2.00000000", "DAI-BTC": "0.50000000"}}`))
	}))
	defer srv.Close()

	source := NewHTTPSource(testHTTPConfig(srv.URL))
	snap, err := source.Fetch(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Len(t, snap.Observations, 2)

	fetches, errors := source.Stats()
	assert.Equal(t, int64(1), fetches)
	assert.Equal(t, int64(0), errors)
}

func TestHTTPSource_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"rates": {"BTC-DAI": "2.00000000"}}`))
	}))
	defer srv.Close()

	source := NewHTTPSource(testHTTPConfig(srv.URL))
	snap, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Observations, 1)
	assert.Equal(t, int64(2), calls.Load())
}

func TestHTTPSource_FeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	source := NewHTTPSource(testHTTPConfig(srv.URL))
	_, err := source.Fetch(context.Background())
	require.Error(t, err)

	_, errors := source.Stats()
	assert.Equal(t, int64(1), errors)
}

func TestHTTPSource_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates": {"BTC-DAI": "not-a-rate"}}`))
	}))
	defer srv.Close()

	source := NewHTTPSource(testHTTPConfig(srv.URL))
	_, err := source.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformedRate)
}

func TestHTTPSource_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates": {"BTC-DAI": "2.00000000"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := NewHTTPSource(testHTTPConfig(srv.URL))
	_, err := source.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
