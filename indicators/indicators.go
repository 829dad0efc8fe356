// Package indicators provides streaming technical indicators used to build
// feature frames for the decision engine.
package indicators

import (
	"math"

	"github.com/rustyeddy/fxcalib/market"
)

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Float64() is meaningful (warmup completed).
	Ready() bool

	// Float64 returns the current value in price units (or the oscillator's
	// natural scale). Callers should always check Ready().
	Float64() float64
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}

// trueRange calculates the True Range for a candle given the previous close.
func trueRange(c market.Candle, prevClose float64) float64 {
	return max3(c.High-c.Low, math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose))
}

// window is a fixed-size ring of the most recent values.
type window struct {
	buf  []float64
	next int
	full bool
}

func newWindow(n int) *window {
	return &window{buf: make([]float64, n)}
}

func (w *window) push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

func (w *window) values() []float64 {
	n := w.len()
	out := make([]float64, 0, n)
	start := 0
	if w.full {
		start = w.next
	}
	for i := 0; i < n; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

func (w *window) minMax() (lo, hi float64) {
	vals := w.values()
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func (w *window) meanStd() (mean, std float64) {
	vals := w.values()
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(vals)))
	return mean, std
}

func (w *window) reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.next = 0
	w.full = false
}
