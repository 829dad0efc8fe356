package snapshot

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

func TestBuildValidates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		b    *Builder
	}{
		{"bad pair", NewBuilder("EURO").At(ts)},
		{"no timestamp", NewBuilder("EUR_USD")},
		{"strength", NewBuilder("EUR_USD").At(ts).News(Buy, 1.5)},
		{"direction", NewBuilder("EUR_USD").At(ts).News("up", 0.5)},
		{"sentiment", NewBuilder("EUR_USD").At(ts).Sentiment(120, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			assert.Error(t, err)
		})
	}
}

func TestAbsentValues(t *testing.T) {
	t.Parallel()
	s, err := NewBuilder("eur/usd").At(ts).
		Feature(ADX, 25).
		Feature(ATR, math.NaN()).
		ATRPips(math.Inf(1)).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "EUR_USD", s.NormalizedPair())
	assert.Equal(t, "eur/usd", s.Pair())

	v, ok := s.Feature(ADX)
	assert.True(t, ok)
	assert.Equal(t, 25.0, v)

	_, ok = s.Feature(ATR)
	assert.False(t, ok, "NaN is absent")
	_, ok = s.ATRPips()
	assert.False(t, ok, "Inf is absent")
	_, ok = s.Status()
	assert.False(t, ok)
	_, ok = s.DataAgeSec()
	assert.False(t, ok)
	_, _, ok = s.Sentiment()
	assert.False(t, ok)

	dir, strength := s.News()
	assert.Equal(t, Neutral, dir)
	assert.Zero(t, strength)
}

func TestSnapshotIsolatedFromBuilder(t *testing.T) {
	t.Parallel()
	b := NewBuilder("EUR_USD").At(ts).Feature(ADX, 25).GateOverride("adx_min", 10)
	s, err := b.Build()
	require.NoError(t, err)

	b.Feature(ADX, 5).GateOverride("adx_min", 50)
	v, _ := s.Feature(ADX)
	assert.Equal(t, 25.0, v)
	g, _ := s.GateOverride("adx_min")
	assert.Equal(t, 10.0, g)

	feats := s.Features()
	feats[ADX] = 0
	v, _ = s.Feature(ADX)
	assert.Equal(t, 25.0, v)
}

func TestFromJSON(t *testing.T) {
	t.Parallel()
	doc := []byte(`{
		"pair": "EUR_USD",
		"timestamp": "2025-01-06T08:00:00Z",
		"features": {"adx": 25, "ema_z": 0.4},
		"trend_30m": "up",
		"market": {
			"status": "TRADEABLE", "last_price": 1.1, "spread": 0.00005, "atr_pips": 10,
			"sentiment_long_pct": 40, "sentiment_short_pct": 60,
			"min_stop_distance_pips": 8,
			"gate_overrides": {"atr_min_pips": 1}
		},
		"meta": {"data_age_sec": 10, "balance": 10000},
		"calendar": {"blackout": false},
		"news": {"direction": "buy", "strength": 0.5},
		"rules": {"tag": "inline", "base": {"gates": {"adx_min": 15}}}
	}`)
	s, err := FromJSON(doc)
	require.NoError(t, err)

	st, ok := s.Status()
	assert.True(t, ok)
	assert.Equal(t, StatusTradeable, st)
	assert.True(t, ts.Equal(s.Timestamp()))
	assert.Equal(t, TrendUp, s.Trend30m())

	long, short, ok := s.Sentiment()
	assert.True(t, ok)
	assert.Equal(t, 40.0, long)
	assert.Equal(t, 60.0, short)

	stop, ok := s.MinStopDistancePips()
	assert.True(t, ok)
	assert.Equal(t, 8.0, stop)

	g, ok := s.GateOverride("atr_min_pips")
	assert.True(t, ok)
	assert.Equal(t, 1.0, g)

	require.NotNil(t, s.Rules())
	assert.Equal(t, 15.0, s.Rules().Gates().Float("adx_min", 0))

	_, err = FromJSON([]byte(`{`))
	assert.Error(t, err)
}
