package indicators

import (
	"fmt"

	"github.com/rustyeddy/fxcalib/market"
)

// SAR is Wilder's Parabolic Stop and Reverse.
type SAR struct {
	step, maxStep float64

	count   int
	long    bool
	sar     float64
	ep      float64
	af      float64
	prevLow float64
	prevHi  float64
}

func NewSAR(step, maxStep float64) *SAR {
	return &SAR{step: step, maxStep: maxStep}
}

func (s *SAR) Name() string { return fmt.Sprintf("SAR(%g,%g)", s.step, s.maxStep) }
func (s *SAR) Warmup() int  { return 2 }
func (s *SAR) Ready() bool  { return s.count >= 2 }
func (s *SAR) Reset()       { *s = SAR{step: s.step, maxStep: s.maxStep} }

// Float64 returns the stop level for the next bar.
func (s *SAR) Float64() float64 { return s.sar }

// Trend is "up" while the SAR sits below price, else "down".
func (s *SAR) Trend() string {
	if s.long {
		return "up"
	}
	return "down"
}

func (s *SAR) Update(c market.Candle) {
	s.count++
	switch s.count {
	case 1:
		s.prevLow, s.prevHi = c.Low, c.High
		return
	case 2:
		s.long = c.Close >= (s.prevLow+s.prevHi)/2
		s.af = s.step
		if s.long {
			s.sar = min(s.prevLow, c.Low)
			s.ep = max(s.prevHi, c.High)
		} else {
			s.sar = max(s.prevHi, c.High)
			s.ep = min(s.prevLow, c.Low)
		}
		s.prevLow, s.prevHi = c.Low, c.High
		return
	}

	next := s.sar + s.af*(s.ep-s.sar)
	if s.long {
		next = min(next, s.prevLow, c.Low)
		if c.Low < next {
			s.long = false
			next = s.ep
			s.ep = c.Low
			s.af = s.step
		} else if c.High > s.ep {
			s.ep = c.High
			s.af = min(s.af+s.step, s.maxStep)
		}
	} else {
		next = max(next, s.prevHi, c.High)
		if c.High > next {
			s.long = true
			next = s.ep
			s.ep = c.High
			s.af = s.step
		} else if c.Low < s.ep {
			s.ep = c.Low
			s.af = min(s.af+s.step, s.maxStep)
		}
	}
	s.sar = next
	s.prevLow, s.prevHi = c.Low, c.High
}

// Bollinger tracks a simple mean +/- k standard deviations of closes.
type Bollinger struct {
	period int
	k      float64
	closes *window
}

func NewBollinger(period int, k float64) *Bollinger {
	if period <= 0 {
		panic("Bollinger period must be > 0")
	}
	return &Bollinger{period: period, k: k, closes: newWindow(period)}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BB(%d,%g)", b.period, b.k) }
func (b *Bollinger) Warmup() int  { return b.period }
func (b *Bollinger) Ready() bool  { return b.closes.len() >= b.period }
func (b *Bollinger) Reset()       { b.closes.reset() }

func (b *Bollinger) Update(c market.Candle) { b.closes.push(c.Close) }

// Float64 returns the middle band.
func (b *Bollinger) Float64() float64 {
	m, _ := b.closes.meanStd()
	return m
}

func (b *Bollinger) Bands() (upper, lower float64) {
	m, sd := b.closes.meanStd()
	return m + b.k*sd, m - b.k*sd
}

// ZScore is how many standard deviations x sits from the mean.
func (b *Bollinger) ZScore(x float64) float64 {
	m, sd := b.closes.meanStd()
	if sd == 0 {
		return 0
	}
	return (x - m) / sd
}

// Channel tracks the rolling highest high and lowest low of the
// previous period bars, excluding the current one. It serves both as the
// true-range breakout band and as nearby support/resistance.
type Channel struct {
	period int
	highs  *window
	lows   *window
	upper  float64
	lower  float64
	seen   int
}

func NewChannel(period int) *Channel {
	if period <= 0 {
		panic("Channel period must be > 0")
	}
	return &Channel{period: period, highs: newWindow(period), lows: newWindow(period)}
}

func (ch *Channel) Name() string { return fmt.Sprintf("CHAN(%d)", ch.period) }
func (ch *Channel) Warmup() int  { return ch.period + 1 }
func (ch *Channel) Ready() bool  { return ch.seen > ch.period }

func (ch *Channel) Reset() {
	ch.highs.reset()
	ch.lows.reset()
	ch.upper, ch.lower, ch.seen = 0, 0, 0
}

func (ch *Channel) Update(c market.Candle) {
	if ch.highs.len() > 0 {
		_, ch.upper = ch.highs.minMax()
		ch.lower, _ = ch.lows.minMax()
	}
	ch.highs.push(c.High)
	ch.lows.push(c.Low)
	ch.seen++
}

// Float64 returns the channel midpoint.
func (ch *Channel) Float64() float64 { return (ch.upper + ch.lower) / 2 }

func (ch *Channel) Upper() float64 { return ch.upper }
func (ch *Channel) Lower() float64 { return ch.lower }
