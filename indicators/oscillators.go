package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/fxcalib/market"
)

// RSI is Wilder's Relative Strength Index on closes, 0..100.
type RSI struct {
	period    int
	prevClose float64
	hasPrev   bool
	count     int
	gainSum   float64
	lossSum   float64
	avgGain   float64
	avgLoss   float64
}

func NewRSI(period int) *RSI {
	if period <= 0 {
		panic("RSI period must be > 0")
	}
	return &RSI{period: period}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *RSI) Warmup() int  { return r.period + 1 }
func (r *RSI) Ready() bool  { return r.count >= r.period }
func (r *RSI) Reset()       { *r = RSI{period: r.period} }

func (r *RSI) Update(c market.Candle) {
	if !r.hasPrev {
		r.prevClose = c.Close
		r.hasPrev = true
		return
	}
	ch := c.Close - r.prevClose
	r.prevClose = c.Close
	gain, loss := math.Max(ch, 0), math.Max(-ch, 0)

	p := float64(r.period)
	if r.count < r.period {
		r.gainSum += gain
		r.lossSum += loss
		r.count++
		if r.count == r.period {
			r.avgGain = r.gainSum / p
			r.avgLoss = r.lossSum / p
		}
		return
	}
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

func (r *RSI) Float64() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// Stochastic is the fast %K over a lookback of highs and lows, 0..100.
type Stochastic struct {
	period int
	highs  *window
	lows   *window
	close  float64
}

func NewStochastic(period int) *Stochastic {
	if period <= 0 {
		panic("Stochastic period must be > 0")
	}
	return &Stochastic{period: period, highs: newWindow(period), lows: newWindow(period)}
}

func (s *Stochastic) Name() string { return fmt.Sprintf("STOCH(%d)", s.period) }
func (s *Stochastic) Warmup() int  { return s.period }
func (s *Stochastic) Ready() bool  { return s.highs.len() >= s.period }

func (s *Stochastic) Reset() {
	s.highs.reset()
	s.lows.reset()
	s.close = 0
}

func (s *Stochastic) Update(c market.Candle) {
	s.highs.push(c.High)
	s.lows.push(c.Low)
	s.close = c.Close
}

func (s *Stochastic) Float64() float64 {
	_, hi := s.highs.minMax()
	lo, _ := s.lows.minMax()
	if hi == lo {
		return 50
	}
	return 100 * (s.close - lo) / (hi - lo)
}

// WilliamsR is Williams %R, -100..0.
type WilliamsR struct {
	*Stochastic
}

func NewWilliamsR(period int) *WilliamsR {
	return &WilliamsR{Stochastic: NewStochastic(period)}
}

func (w *WilliamsR) Name() string     { return fmt.Sprintf("WILLR(%d)", w.period) }
func (w *WilliamsR) Float64() float64 { return w.Stochastic.Float64() - 100 }

// CCI is the Commodity Channel Index on typical price.
type CCI struct {
	period int
	tp     *window
}

func NewCCI(period int) *CCI {
	if period <= 0 {
		panic("CCI period must be > 0")
	}
	return &CCI{period: period, tp: newWindow(period)}
}

func (c *CCI) Name() string { return fmt.Sprintf("CCI(%d)", c.period) }
func (c *CCI) Warmup() int  { return c.period }
func (c *CCI) Ready() bool  { return c.tp.len() >= c.period }
func (c *CCI) Reset()       { c.tp.reset() }

func (c *CCI) Update(k market.Candle) {
	c.tp.push((k.High + k.Low + k.Close) / 3)
}

func (c *CCI) Float64() float64 {
	vals := c.tp.values()
	if len(vals) == 0 {
		return 0
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var md float64
	for _, v := range vals {
		md += math.Abs(v - mean)
	}
	md /= float64(len(vals))
	if md == 0 {
		return 0
	}
	return (vals[len(vals)-1] - mean) / (0.015 * md)
}
