package indicators

import (
	"testing"
	"time"

	"github.com/rustyeddy/fxcalib/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCandles() []market.Candle {
	t0 := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	raw := [][4]float64{
		{100, 105, 99, 102},
		{102, 107, 101, 105},
		{105, 108, 104, 106},
		{106, 110, 105, 108},
		{108, 112, 107, 110},
		{110, 113, 109, 111},
		{111, 115, 110, 113},
		{113, 116, 112, 114},
		{114, 118, 113, 116},
		{116, 120, 115, 118},
	}
	out := make([]market.Candle, len(raw))
	for i, r := range raw {
		out[i] = market.Candle{
			Time: t0.Add(time.Duration(i) * time.Hour),
			Open: r[0], High: r[1], Low: r[2], Close: r[3],
		}
	}
	return out
}

func feed(ind Indicator, cs []market.Candle) {
	for _, c := range cs {
		ind.Update(c)
	}
}

func TestTrueRange(t *testing.T) {
	t.Parallel()
	c := market.Candle{High: 110, Low: 100, Close: 105}
	assert.Equal(t, 10.0, trueRange(c, 104))
	assert.Equal(t, 20.0, trueRange(c, 90))
	assert.Equal(t, 15.0, trueRange(c, 115))
}

func TestEMA(t *testing.T) {
	t.Parallel()
	ema := NewEMA(3)
	assert.Equal(t, "EMA(3)", ema.Name())

	ema.Update(market.Candle{Close: 10})
	ema.Update(market.Candle{Close: 10})
	assert.False(t, ema.Ready())
	ema.Update(market.Candle{Close: 14})
	require.True(t, ema.Ready())
	// alpha = 0.5: 10 -> 10 -> 12
	assert.InDelta(t, 12.0, ema.Float64(), 1e-9)

	ema.Reset()
	assert.False(t, ema.Ready())
	assert.Zero(t, ema.Float64())
}

func TestATR(t *testing.T) {
	t.Parallel()
	candles := []market.Candle{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
	}
	atr := NewATR(3)
	assert.Equal(t, 4, atr.Warmup())

	feed(atr, candles[:3])
	assert.False(t, atr.Ready())
	assert.Zero(t, atr.Float64())

	feed(atr, candles[3:])
	require.True(t, atr.Ready())
	assert.InDelta(t, 2.0, atr.Float64(), 1e-9)
	assert.InDelta(t, 2.0, atr.LastTR(), 1e-9)
}

func TestADXTrendingSeries(t *testing.T) {
	t.Parallel()
	adx := NewADX(3)
	var cs []market.Candle
	for i := 0; i < 20; i++ {
		base := 1.1000 + float64(i)*0.0010
		cs = append(cs, market.Candle{High: base + 0.0005, Low: base - 0.0005, Close: base})
	}
	feed(adx, cs[:6])
	assert.False(t, adx.Ready())

	feed(adx, cs[6:])
	require.True(t, adx.Ready())
	// A monotone climb has no -DM so DX and ADX saturate.
	assert.InDelta(t, 100.0, adx.Float64(), 1e-6)

	adx.Reset()
	assert.False(t, adx.Ready())
}

func TestRSI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5}, 100},
		{"flat", []float64{1, 1, 1, 1, 1}, 50},
		{"balanced", []float64{1, 2, 1, 2, 1}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRSI(4)
			for _, c := range tt.closes {
				r.Update(market.Candle{Close: c})
			}
			require.True(t, r.Ready())
			assert.InDelta(t, tt.want, r.Float64(), 1e-9)
		})
	}
}

func TestStochasticAndWilliams(t *testing.T) {
	t.Parallel()
	candles := createTestCandles()

	st := NewStochastic(5)
	wr := NewWilliamsR(5)
	feed(st, candles)
	feed(wr, candles)
	require.True(t, st.Ready())

	// Last 5 bars: high 120, low 109, close 118.
	wantK := 100 * (118.0 - 109) / (120 - 109)
	assert.InDelta(t, wantK, st.Float64(), 1e-9)
	assert.InDelta(t, wantK-100, wr.Float64(), 1e-9)
	assert.Equal(t, "WILLR(5)", wr.Name())
}

func TestCCI(t *testing.T) {
	t.Parallel()
	cci := NewCCI(5)
	for i := 0; i < 5; i++ {
		cci.Update(market.Candle{High: 10, Low: 10, Close: 10})
	}
	require.True(t, cci.Ready())
	assert.Zero(t, cci.Float64())

	cci.Update(market.Candle{High: 20, Low: 20, Close: 20})
	assert.Greater(t, cci.Float64(), 100.0)
}

func TestSARFlipsOnReversal(t *testing.T) {
	t.Parallel()
	sar := NewSAR(0.02, 0.2)
	for i := 0; i < 10; i++ {
		p := 1.0 + float64(i)*0.01
		sar.Update(market.Candle{High: p + 0.002, Low: p - 0.002, Close: p})
	}
	require.True(t, sar.Ready())
	assert.Equal(t, "up", sar.Trend())
	assert.Less(t, sar.Float64(), 1.09)

	for i := 0; i < 5; i++ {
		p := 1.0 - float64(i)*0.02
		sar.Update(market.Candle{High: p + 0.002, Low: p - 0.002, Close: p})
	}
	assert.Equal(t, "down", sar.Trend())
}

func TestBollinger(t *testing.T) {
	t.Parallel()
	bb := NewBollinger(4, 2)
	for _, c := range []float64{2, 4, 4, 6} {
		bb.Update(market.Candle{Close: c})
	}
	require.True(t, bb.Ready())
	assert.InDelta(t, 4.0, bb.Float64(), 1e-9)

	up, lo := bb.Bands()
	sd := 1.4142135623730951
	assert.InDelta(t, 4+2*sd, up, 1e-9)
	assert.InDelta(t, 4-2*sd, lo, 1e-9)
	assert.InDelta(t, 1/sd, bb.ZScore(5), 1e-9)
}

func TestChannelExcludesCurrentBar(t *testing.T) {
	t.Parallel()
	ch := NewChannel(3)
	feed(ch, createTestCandles()[:4])
	require.True(t, ch.Ready())
	// Previous three bars: highs 105,107,108 lows 99,101,104.
	assert.Equal(t, 108.0, ch.Upper())
	assert.Equal(t, 99.0, ch.Lower())
}
