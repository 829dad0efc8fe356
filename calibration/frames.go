package calibration

import (
	"math"

	"github.com/rustyeddy/fxcalib/indicators"
	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/snapshot"
)

// FrameParams sets indicator periods for BuildFrames.
type FrameParams struct {
	EMAFast      int
	EMASlow      int
	ATR          int
	ADX          int
	RSI          int
	Stoch        int
	CCI          int
	Bollinger    int
	BollingerK   float64
	SARStep      float64
	SARMax       float64
	Breakout     int
	SupportRes   int
	FlatTrendATR float64
}

func DefaultFrameParams() FrameParams {
	return FrameParams{
		EMAFast:      12,
		EMASlow:      26,
		ATR:          14,
		ADX:          14,
		RSI:          14,
		Stoch:        14,
		CCI:          20,
		Bollinger:    20,
		BollingerK:   2,
		SARStep:      0.02,
		SARMax:       0.2,
		Breakout:     20,
		SupportRes:   50,
		FlatTrendATR: 0.1,
	}
}

// BuildFrames runs the indicator set over candles and returns one row per
// bar once every indicator is ready.
func BuildFrames(pair string, candles []market.Candle, p FrameParams) []FeatureRow {
	var (
		emaFast = indicators.NewEMA(p.EMAFast)
		emaSlow = indicators.NewEMA(p.EMASlow)
		atr     = indicators.NewATR(p.ATR)
		adx     = indicators.NewADX(p.ADX)
		rsi     = indicators.NewRSI(p.RSI)
		stoch   = indicators.NewStochastic(p.Stoch)
		willr   = indicators.NewWilliamsR(p.Stoch)
		cci     = indicators.NewCCI(p.CCI)
		sar     = indicators.NewSAR(p.SARStep, p.SARMax)
		bb      = indicators.NewBollinger(p.Bollinger, p.BollingerK)
		tr      = indicators.NewChannel(p.Breakout)
		sr      = indicators.NewChannel(p.SupportRes)
	)
	all := []indicators.Indicator{emaFast, emaSlow, atr, adx, rsi, stoch, willr, cci, sar, bb, tr, sr}
	pip := market.PipSizeFloat(pair)

	rows := make([]FeatureRow, 0, len(candles))
	for _, c := range candles {
		ready := true
		for _, ind := range all {
			ind.Update(c)
			ready = ready && ind.Ready()
		}
		if !ready {
			continue
		}

		upper, lower := bb.Bands()
		row := FeatureRow{
			Time:       c.Time,
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			EMAFast:    emaFast.Float64(),
			EMASlow:    emaSlow.Float64(),
			ATR:        atr.Float64(),
			ATRPips:    atr.Float64() / pip,
			ADX:        adx.Float64(),
			RSI:        rsi.Float64(),
			StochK:     stoch.Float64(),
			WilliamsR:  willr.Float64(),
			CCI:        cci.Float64(),
			SAR:        sar.Float64(),
			SARTrend:   sar.Trend(),
			BBUpper:    upper,
			BBLower:    lower,
			TRUpper:    tr.Upper(),
			TRLower:    tr.Lower(),
			Support:    sr.Lower(),
			Resistance: sr.Upper(),
		}
		if sd := (upper - lower) / (2 * p.BollingerK); sd > 0 {
			row.EMAZ = (c.Close - row.EMASlow) / sd
		}
		row.Trend = trendLabel(row.EMAFast, row.EMASlow, row.ATR, p.FlatTrendATR)
		rows = append(rows, row)
	}
	return rows
}

func trendLabel(fast, slow, atr, flat float64) string {
	diff := fast - slow
	switch {
	case math.Abs(diff) <= flat*atr:
		return snapshot.TrendFlat
	case diff > 0:
		return snapshot.TrendUp
	default:
		return snapshot.TrendDown
	}
}

// regimeOf summarizes rows. VolatilityScore is the standard deviation of
// close-to-close moves in pips.
func regimeOf(pair string, rows []FeatureRow) Regime {
	var r Regime
	if len(rows) == 0 {
		return r
	}
	n := float64(len(rows))
	pip := market.PipSizeFloat(pair)

	var moves []float64
	for i, row := range rows {
		switch row.Trend {
		case snapshot.TrendUp:
			r.TrendUp++
		case snapshot.TrendDown:
			r.TrendDown++
		default:
			r.TrendFlat++
		}
		r.MeanADX += row.ADX
		r.MeanATRPips += row.ATRPips
		if i > 0 {
			moves = append(moves, (row.Close-rows[i-1].Close)/pip)
		}
	}
	r.TrendUp /= n
	r.TrendDown /= n
	r.TrendFlat /= n
	r.MeanADX /= n
	r.MeanATRPips /= n
	_, r.VolatilityScore = meanStd(moves)
	return r
}
