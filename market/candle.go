package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data in price units.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range is the high/low span of the candle.
func (c Candle) Range() float64 {
	return c.High - c.Low
}
