package rates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	payload := []byte(`{"rates": {
		"BTC-DAI": "23524.13915530",
		"DAI-BTC": "0.00004290",
		"BTC-BTC": "1.00000000"
	}}`)

	snap, err := ParseDocument(payload)
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.FetchedAt.IsZero())
	require.Len(t, snap.Observations, 3)

	// Observations come out in sorted pair order.
	first := snap.Observations[0]
	assert.Equal(t, "BTC", first.Base)
	assert.Equal(t, "BTC", first.Quote)
	second := snap.Observations[1]
	assert.Equal(t, "BTC", second.Base)
	assert.Equal(t, "DAI", second.Quote)
	assert.True(t, second.Rate.Equal(decimal.RequireFromString("23524.13915530")))
}

func TestParseDocument_FreshSnapshotPerCall(t *testing.T) {
	payload := []byte(`{"rates": {"BTC-DAI": "2.00000000"}}`)

	a, err := ParseDocument(payload)
	require.NoError(t, err)
	b, err := ParseDocument(payload)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"empty rates", `{"rates": {}}`, ErrEmptyFeed},
		{"missing rates key", `{}`, ErrEmptyFeed},
		{"malformed pair", `{"rates": {"BTCDAI": "2.0"}}`, ErrMalformedPair},
		{"empty quote token", `{"rates": {"BTC-": "2.0"}}`, ErrMalformedPair},
		{"malformed rate", `{"rates": {"BTC-DAI": "two"}}`, ErrMalformedRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseDocument_InvalidJSON(t *testing.T) {
	_, err := ParseDocument([]byte(`{"rates":`))
	assert.Error(t, err)
}

func TestParsePair(t *testing.T) {
	obs, err := ParsePair("EUR-DAI", "1.02113789")
	require.NoError(t, err)
	assert.Equal(t, "EUR", obs.Base)
	assert.Equal(t, "DAI", obs.Quote)
	assert.True(t, obs.Rate.Equal(decimal.RequireFromString("1.02113789")))
}
