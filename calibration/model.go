package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/snapshot"
)

// Classifier predicts the probability that an executed decision reaches
// its target before its stop.
type Classifier interface {
	Prepare(ctx context.Context, ds *Dataset) error
	Predict(x []float64) (float64, error)
}

var (
	ErrNotPrepared       = errors.New("classifier not prepared")
	ErrInsufficientLabel = errors.New("not enough labeled samples")
)

// FeatureDim is the length of the vector built by Features.
const FeatureDim = 15

// Trade describes one executed decision for feature extraction.
type Trade struct {
	Pair       string
	Dir        snapshot.Direction
	SLPips     float64
	TPPips     float64
	SpreadPips float64
}

// Features builds the classifier input for a trade taken on row under p.
// The last element is the bias term.
func Features(row FeatureRow, t Trade, p Params) []float64 {
	align := 0.0
	switch {
	case (t.Dir == snapshot.Buy && row.Trend == snapshot.TrendUp) ||
		(t.Dir == snapshot.Sell && row.Trend == snapshot.TrendDown):
		align = 1
	case (t.Dir == snapshot.Buy && row.Trend == snapshot.TrendDown) ||
		(t.Dir == snapshot.Sell && row.Trend == snapshot.TrendUp):
		align = -1
	}
	realized := 0.0
	if t.SLPips > 0 {
		realized = t.TPPips / t.SLPips
	}
	hour := float64(row.Time.UTC().Hour()) + float64(row.Time.UTC().Minute())/60
	angle := 2 * math.Pi * hour / 24

	x := []float64{
		row.ATRPips / 10,
		t.SpreadPips,
		row.ADX / 50,
		math.Abs(row.EMAZ) / 3,
		row.RSI / 100,
		align,
		realized / 4,
		p.SLMult / 4,
		p.TPMult / 10,
		p.RR / 4,
		p.RiskPct / 2,
		sentimentCode(p.Sentiment),
		math.Sin(angle),
		math.Cos(angle),
		1,
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x[i] = 0
		}
	}
	return x
}

func sentimentCode(mode string) float64 {
	switch mode {
	case SentimentContrarian:
		return 0.5
	case SentimentStrict:
		return 1
	}
	return 0
}

// LogisticModel is logistic regression fit by SGD on first-touch labels
// simulated over the dataset's frames.
type LogisticModel struct {
	LR         float64
	L2         float64
	Epochs     int
	Horizon    int
	Stride     int
	MinSamples int
	Seed       int64
	// Settings are the (sl mult, rr) pairs each training bar is labeled
	// under.
	Settings [][2]float64

	mu sync.RWMutex
	w  []float64
}

func NewLogisticModel(seed int64) *LogisticModel {
	return &LogisticModel{
		LR:         0.05,
		L2:         1e-4,
		Epochs:     20,
		Horizon:    48,
		Stride:     2,
		MinSamples: 30,
		Seed:       seed,
		Settings:   [][2]float64{{1.5, 2}, {2, 2}, {2.5, 1.5}, {2, 3}},
	}
}

type sample struct {
	x []float64
	y float64
}

func (m *LogisticModel) Prepare(ctx context.Context, ds *Dataset) error {
	if ds == nil {
		return fmt.Errorf("prepare: %w", ErrInsufficientLabel)
	}
	var samples []sample
	wins := 0
	stride := max(m.Stride, 1)
	for _, pair := range ds.Markets {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows := ds.Frames[pair]
		cost := ds.CostEstimates[pair]
		for i := 0; i < len(rows)-1; i += stride {
			row := rows[i]
			dir := trendDirection(row.Trend)
			if dir == snapshot.Neutral || row.ATRPips <= 0 {
				continue
			}
			for _, st := range m.Settings {
				slPips := st[0] * row.ATRPips
				tpPips := slPips * st[1]
				y, ok := FirstTouch(pair, rows[i+1:], row.Close, dir, slPips, tpPips, m.Horizon)
				if !ok {
					continue
				}
				p := Params{SLMult: st[0], RR: st[1], TPMult: st[0] * st[1], RiskPct: 1, Sentiment: SentimentContrarian}
				x := Features(row, Trade{Pair: pair, Dir: dir, SLPips: slPips, TPPips: tpPips, SpreadPips: cost}, p)
				samples = append(samples, sample{x: x, y: y})
				if y == 1 {
					wins++
				}
			}
		}
	}
	if len(samples) < m.MinSamples || wins == 0 || wins == len(samples) {
		return fmt.Errorf("prepare: %d samples, %d wins: %w", len(samples), wins, ErrInsufficientLabel)
	}

	w := make([]float64, FeatureDim)
	rng := rand.New(rand.NewSource(m.Seed))
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	for epoch := 0; epoch < m.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, k := range order {
			s := samples[k]
			err := sigmoid(dot(w, s.x)) - s.y
			for i := range w {
				w[i] -= m.LR * (err*s.x[i] + m.L2*w[i])
			}
		}
	}

	m.mu.Lock()
	m.w = w
	m.mu.Unlock()
	return nil
}

func (m *LogisticModel) Predict(x []float64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.w == nil {
		return 0, ErrNotPrepared
	}
	if len(x) != len(m.w) {
		return 0, fmt.Errorf("feature vector has %d values, want %d", len(x), len(m.w))
	}
	p := sigmoid(dot(m.w, x))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("prediction is NaN")
	}
	return p, nil
}

// FirstTouch walks forward from entry and reports 1 when the target is
// hit first, 0 when the stop is. A bar touching both counts as a loss.
// ok is false when neither is reached within horizon bars.
func FirstTouch(pair string, ahead []FeatureRow, entry float64, dir snapshot.Direction, slPips, tpPips float64, horizon int) (y float64, ok bool) {
	pip := market.PipSizeFloat(pair)
	sl, tp := entry-slPips*pip, entry+tpPips*pip
	if dir == snapshot.Sell {
		sl, tp = entry+slPips*pip, entry-tpPips*pip
	}
	for i, r := range ahead {
		if horizon > 0 && i >= horizon {
			break
		}
		if dir == snapshot.Buy {
			if r.Low <= sl {
				return 0, true
			}
			if r.High >= tp {
				return 1, true
			}
		} else {
			if r.High >= sl {
				return 0, true
			}
			if r.Low <= tp {
				return 1, true
			}
		}
	}
	return 0, false
}

func trendDirection(trend string) snapshot.Direction {
	switch trend {
	case snapshot.TrendUp:
		return snapshot.Buy
	case snapshot.TrendDown:
		return snapshot.Sell
	}
	return snapshot.Neutral
}

func sigmoid(z float64) float64 {
	if z > 35 {
		z = 35
	}
	if z < -35 {
		z = -35
	}
	return 1 / (1 + math.Exp(-z))
}

func dot(w, x []float64) float64 {
	var s float64
	for i := 0; i < len(w) && i < len(x); i++ {
		s += w[i] * x[i]
	}
	return s
}
