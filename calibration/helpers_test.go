package calibration

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rustyeddy/fxcalib/market"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// synthCandles is a seeded random walk with slow swings, 30 minute bars.
func synthCandles(n int, seed int64, base float64) []market.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]market.Candle, n)
	price := base
	scale := base / 1.1
	for i := range out {
		open := price
		drift := 0.0004 * math.Sin(float64(i)/60) * scale
		price += drift + rng.NormFloat64()*0.0006*scale
		hi := math.Max(open, price) + math.Abs(rng.NormFloat64())*0.0003*scale
		lo := math.Min(open, price) - math.Abs(rng.NormFloat64())*0.0003*scale
		out[i] = market.Candle{
			Time:  start.Add(time.Duration(i) * 30 * time.Minute),
			Open:  open,
			High:  hi,
			Low:   lo,
			Close: price,
		}
	}
	return out
}

func synthDataset(t *testing.T) *Dataset {
	t.Helper()
	frames := map[string][]FeatureRow{
		"EUR_USD": BuildFrames("EUR_USD", synthCandles(1500, 1, 1.10), DefaultFrameParams()),
		"USD_JPY": BuildFrames("USD_JPY", synthCandles(1500, 2, 150.0), DefaultFrameParams()),
	}
	ds, err := NewDataset(frames, map[string]float64{"EUR_USD": 0.8, "USD_JPY": 1.2})
	require.NoError(t, err)
	return ds
}

// memSource serves fixed candles per pair.
type memSource map[string][]market.Candle

func (m memSource) Candles(ctx context.Context, pair string, from, to time.Time) ([]market.Candle, error) {
	c, ok := m[pair]
	if !ok {
		return nil, errors.New("no candles for " + pair)
	}
	return c, nil
}

// stubClassifier predicts a constant and can fail on demand.
type stubClassifier struct {
	p        float64
	prepErr  error
	failWhen  func(x []float64) bool
	panicWhen func(x []float64) bool
	prepared  int
}

func (s *stubClassifier) Prepare(ctx context.Context, ds *Dataset) error {
	s.prepared++
	return s.prepErr
}

func (s *stubClassifier) Predict(x []float64) (float64, error) {
	if s.panicWhen != nil && s.panicWhen(x) {
		panic("model backend crashed")
	}
	if s.failWhen != nil && s.failWhen(x) {
		return 0, errors.New("predict failed")
	}
	return s.p, nil
}
