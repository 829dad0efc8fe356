package calibration

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/fxcalib/featurestore"
	"github.com/rustyeddy/fxcalib/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFrames(t *testing.T) {
	t.Parallel()

	candles := synthCandles(300, 7, 1.10)
	rows := BuildFrames("EUR_USD", candles, DefaultFrameParams())

	// Support/resistance needs 51 bars; everything else is ready before.
	require.Len(t, rows, 300-50)
	assert.True(t, rows[0].Time.Equal(candles[50].Time))

	for _, r := range rows {
		vals := []float64{r.EMAFast, r.EMASlow, r.EMAZ, r.ATR, r.ATRPips, r.ADX, r.RSI,
			r.StochK, r.WilliamsR, r.CCI, r.SAR, r.BBUpper, r.BBLower, r.TRUpper, r.TRLower,
			r.Support, r.Resistance}
		for _, v := range vals {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.InDelta(t, r.ATR/0.0001, r.ATRPips, 1e-9)
		assert.GreaterOrEqual(t, r.BBUpper, r.BBLower)
		assert.GreaterOrEqual(t, r.Resistance, r.Support)
		assert.Contains(t, []string{snapshot.TrendUp, snapshot.TrendDown, snapshot.TrendFlat}, r.Trend)
		assert.InDelta(t, r.StochK-100, r.WilliamsR, 1e-9)
	}
}

func TestTrendLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		fast, slow, atr float64
		want            string
	}{
		{1.1010, 1.1000, 0.0010, snapshot.TrendUp},
		{1.0990, 1.1000, 0.0010, snapshot.TrendDown},
		{1.10005, 1.1000, 0.0010, snapshot.TrendFlat},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trendLabel(tt.fast, tt.slow, tt.atr, 0.1))
	}
}

func TestRegime(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	for _, m := range ds.Markets {
		r := ds.Regime[m]
		assert.InDelta(t, 1.0, r.TrendUp+r.TrendDown+r.TrendFlat, 1e-9)
		assert.Positive(t, r.MeanADX)
		assert.Positive(t, r.MeanATRPips)
		assert.Positive(t, r.VolatilityScore)
		assert.Equal(t, r.VolatilityScore, ds.Snapshots[m].Meta.VolatilityScore)
	}
	assert.Equal(t, []string{"EUR_USD", "USD_JPY"}, ds.Markets)
	assert.Equal(t, 0.8, ds.CostEstimates["EUR_USD"])
	assert.InDelta(t, 1.0, ds.MeanCostPips(), 1e-9)
	assert.Greater(t, ds.SpanDays(), 25.0)
}

func TestFirstTouch(t *testing.T) {
	t.Parallel()
	row := func(hi, lo float64) FeatureRow { return FeatureRow{High: hi, Low: lo} }

	tests := []struct {
		name  string
		dir   snapshot.Direction
		ahead []FeatureRow
		y     float64
		ok    bool
	}{
		{"buy target", snapshot.Buy, []FeatureRow{row(1.1005, 1.0995), row(1.1021, 1.1000)}, 1, true},
		{"buy stop", snapshot.Buy, []FeatureRow{row(1.1005, 1.0989)}, 0, true},
		{"both in one bar is a loss", snapshot.Buy, []FeatureRow{row(1.1030, 1.0980)}, 0, true},
		{"sell target", snapshot.Sell, []FeatureRow{row(1.1002, 1.0979)}, 1, true},
		{"sell stop", snapshot.Sell, []FeatureRow{row(1.1011, 1.0999)}, 0, true},
		{"neither", snapshot.Buy, []FeatureRow{row(1.1005, 1.0995)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, ok := FirstTouch("EUR_USD", tt.ahead, 1.1000, tt.dir, 10, 20, 48)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.y, y)
		})
	}

	// Horizon cuts the walk short.
	_, ok := FirstTouch("EUR_USD", []FeatureRow{row(1.1, 1.1), row(1.2, 1.1)}, 1.1, snapshot.Buy, 10, 20, 1)
	assert.False(t, ok)
}

func TestBuilderStoresPayloads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := featurestore.NewFile(t.TempDir())
	require.NoError(t, err)

	src := memSource{
		"EUR_USD": synthCandles(400, 3, 1.10),
		"GBP_USD": synthCandles(20, 4, 1.25), // too short, skipped
	}
	b := &Builder{Source: src, Store: fs, SpreadPips: map[string]float64{"EUR_USD": 0.6}}
	ds, err := b.Build(ctx, []string{"eur/usd", "GBPUSD"}, start, start.Add(400*30*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, []string{"EUR_USD"}, ds.Markets)
	assert.Equal(t, 0.6, ds.CostEstimates["EUR_USD"])
	ref := ds.Snapshots["EUR_USD"]
	assert.Equal(t, 350, ref.Meta.Bars)

	data, err := fs.Get(ctx, ref.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, ref.FeatureHash, featurestore.Hash(data))
	assert.EqualValues(t, len(data), ref.Meta.Bytes)

	var p payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "EUR_USD", p.Pair)
	assert.Len(t, p.Rows, 350)

	// Same candles give the same dataset tag.
	again, err := b.Build(ctx, []string{"EUR_USD"}, start, start.Add(400*30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ds.Tag, again.Tag)

	_, err = b.Build(ctx, []string{"GBP_USD"}, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoData)
}
