package indicators

import (
	"fmt"

	"github.com/rustyeddy/fxcalib/market"
)

// ATR is a streaming Average True Range indicator (Wilder smoothing).
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prevClose float64
	hasPrev   bool
	lastTR    float64
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	if period <= 0 {
		panic("ATR period must be > 0")
	}
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int {
	// Need period+1 candles because TR requires previous candle
	return a.period + 1
}

func (a *ATR) Reset() {
	*a = ATR{period: a.period}
}

func (a *ATR) Update(c market.Candle) {
	if !a.hasPrev {
		a.prevClose = c.Close
		a.hasPrev = true
		return
	}

	tr := trueRange(c, a.prevClose)
	a.lastTR = tr

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}

	a.prevClose = c.Close
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Float64() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// LastTR is the true range of the most recent candle.
func (a *ATR) LastTR() float64 { return a.lastTR }
