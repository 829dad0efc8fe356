package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/fxcalib/market"
)

// ADX implements Wilder's Average Directional Index (trend strength).
// Usage:
//
//	adx := indicators.NewADX(14)
//	adx.Update(candle)
//	if adx.Ready() && adx.Float64() >= 20 { ... }
type ADX struct {
	Period int

	prev     market.Candle
	havePrev bool

	// Wilder-smoothed values after warmup:
	trS  float64
	pdmS float64
	mdmS float64

	adx   float64
	dxSum float64

	// count of candles processed (including the first prev seed)
	count int
	ready bool
}

func NewADX(period int) *ADX {
	if period <= 0 {
		panic("ADX period must be > 0")
	}
	return &ADX{Period: period}
}

func (a *ADX) Name() string     { return fmt.Sprintf("ADX(%d)", a.Period) }
func (a *ADX) Warmup() int      { return 2*a.Period + 1 }
func (a *ADX) Ready() bool      { return a.ready }
func (a *ADX) Float64() float64 { return a.adx }
func (a *ADX) Reset()           { *a = ADX{Period: a.Period} }

// Update consumes the next candle.
// Ready becomes true after enough candles to compute a stable ADX:
// - Need Period candles to initialize smoothed TR/+DM/-DM
// - Then Period DX values to initialize ADX
func (a *ADX) Update(c market.Candle) {
	if !a.havePrev {
		a.prev = c
		a.havePrev = true
		a.count = 1
		return
	}

	upMove := c.High - a.prev.High
	downMove := a.prev.Low - c.Low

	var pdm, mdm float64
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		mdm = downMove
	}

	tr := trueRange(c, a.prev.Close)

	a.prev = c
	a.count++

	p := float64(a.Period)

	// Warmup phase A: samples begin at count=2.
	if a.count <= a.Period+1 {
		a.trS += tr
		a.pdmS += pdm
		a.mdmS += mdm
		if a.count == a.Period+1 {
			a.trS /= p
			a.pdmS /= p
			a.mdmS /= p
		}
		return
	}

	a.trS = (a.trS*(p-1) + tr) / p
	a.pdmS = (a.pdmS*(p-1) + pdm) / p
	a.mdmS = (a.mdmS*(p-1) + mdm) / p

	var dx float64
	if a.trS > 0 {
		pdi := 100 * a.pdmS / a.trS
		mdi := 100 * a.mdmS / a.trS
		if den := pdi + mdi; den > 0 {
			dx = 100 * math.Abs(pdi-mdi) / den
		}
	}

	if !a.ready {
		a.dxSum += dx
		if a.count == 2*a.Period+1 {
			a.adx = a.dxSum / p
			a.ready = true
		}
		return
	}

	a.adx = (a.adx*(p-1) + dx) / p
}
