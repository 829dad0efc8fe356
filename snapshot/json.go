package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/fxcalib/rules"
)

type document struct {
	Pair      string             `json:"pair"`
	Timestamp time.Time          `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
	SARTrend  string             `json:"sar_trend"`
	Trend30m  string             `json:"trend_30m"`
	Market    struct {
		Status            string             `json:"status"`
		LastPrice         *float64           `json:"last_price"`
		Spread            *float64           `json:"spread"`
		ATRPips           *float64           `json:"atr_pips"`
		SentimentLongPct  *float64           `json:"sentiment_long_pct"`
		SentimentShortPct *float64           `json:"sentiment_short_pct"`
		MinStopPips       *float64           `json:"min_stop_distance_pips"`
		MinLimitPips      *float64           `json:"min_limit_distance_pips"`
		GateOverrides     map[string]float64 `json:"gate_overrides"`
	} `json:"market"`
	Meta struct {
		DataAgeSec *float64 `json:"data_age_sec"`
		Balance    *float64 `json:"balance"`
	} `json:"meta"`
	Calendar struct {
		Blackout bool `json:"blackout"`
	} `json:"calendar"`
	News struct {
		Direction string  `json:"direction"`
		Strength  float64 `json:"strength"`
	} `json:"news"`
	Rules *rules.Document `json:"rules,omitempty"`
}

// FromJSON decodes a snapshot document such as
//
//	{"pair":"EUR_USD","timestamp":"2025-01-06T08:00:00Z",
//	 "features":{"adx":25,"atr":0.001},
//	 "market":{"status":"TRADEABLE","last_price":1.1,"spread":0.00005,"atr_pips":10},
//	 "meta":{"data_age_sec":10,"balance":10000},
//	 "news":{"direction":"buy","strength":0.5}}
func FromJSON(data []byte) (*Snapshot, error) {
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	b := NewBuilder(d.Pair).
		At(d.Timestamp).
		SARTrend(d.SARTrend).
		Trend30m(d.Trend30m).
		Status(d.Market.Status).
		Blackout(d.Calendar.Blackout).
		News(Direction(d.News.Direction), d.News.Strength)

	for k, v := range d.Features {
		b.Feature(Feature(k), v)
	}
	for k, v := range d.Market.GateOverrides {
		b.GateOverride(k, v)
	}
	set := func(p *float64, f func(float64) *Builder) {
		if p != nil {
			f(*p)
		}
	}
	set(d.Market.LastPrice, b.LastPrice)
	set(d.Market.Spread, b.Spread)
	set(d.Market.ATRPips, b.ATRPips)
	set(d.Meta.DataAgeSec, b.DataAge)
	set(d.Meta.Balance, b.Balance)
	if d.Market.SentimentLongPct != nil && d.Market.SentimentShortPct != nil {
		b.Sentiment(*d.Market.SentimentLongPct, *d.Market.SentimentShortPct)
	}
	if d.Market.MinStopPips != nil || d.Market.MinLimitPips != nil {
		var stop, limit float64
		if d.Market.MinStopPips != nil {
			stop = *d.Market.MinStopPips
		}
		if d.Market.MinLimitPips != nil {
			limit = *d.Market.MinLimitPips
		}
		b.LevelConstraints(stop, limit)
	}
	if d.Rules != nil {
		rs, err := rules.FromDocument(*d.Rules)
		if err != nil {
			return nil, err
		}
		b.Rules(rs)
	}
	return b.Build()
}
