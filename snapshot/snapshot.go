// Package snapshot is the typed, read-only decision context handed to the
// decision engine.
package snapshot

import (
	"math"
	"time"

	"github.com/rustyeddy/fxcalib/rules"
)

// Feature names a technical indicator value.
type Feature string

const (
	EMAFast    Feature = "ema_fast"
	EMASlow    Feature = "ema_slow"
	EMAZ       Feature = "ema_z"
	ATR        Feature = "atr"
	ADX        Feature = "adx"
	RSI        Feature = "rsi"
	StochK     Feature = "stoch_k"
	WilliamsR  Feature = "williams_r"
	CCI        Feature = "cci"
	SAR        Feature = "sar"
	BBUpper    Feature = "bb_upper"
	BBLower    Feature = "bb_lower"
	TRUpper    Feature = "tr_upper"
	TRLower    Feature = "tr_lower"
	Support    Feature = "support"
	Resistance Feature = "resistance"
)

// Direction is the news-derived bias.
type Direction string

const (
	Buy     Direction = "buy"
	Sell    Direction = "sell"
	Neutral Direction = "neutral"
)

// Trend labels used by the 30 minute trend and the SAR trend.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// StatusTradeable is the usual market status for an open market.
const StatusTradeable = "TRADEABLE"

type opt struct {
	v  float64
	ok bool
}

func some(v float64) opt {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return opt{}
	}
	return opt{v: v, ok: true}
}

func (o opt) get() (float64, bool) { return o.v, o.ok }

// Snapshot is immutable; every accessor returns a copy.
type Snapshot struct {
	pair     string
	normPair string
	ts       time.Time

	features map[Feature]float64
	sarTrend string
	trend30m string

	status        string
	lastPrice     opt
	spread        opt
	atrPips       opt
	sentLong      opt
	sentShort     opt
	minStop       opt
	minLimit      opt
	gateOverrides map[string]float64

	dataAge opt
	balance opt

	blackout     bool
	newsDir      Direction
	newsStrength float64

	rules *rules.RuleSet
}

// Pair is the pair as supplied, NormalizedPair its canonical form.
func (s *Snapshot) Pair() string           { return s.pair }
func (s *Snapshot) NormalizedPair() string { return s.normPair }
func (s *Snapshot) Timestamp() time.Time   { return s.ts }

func (s *Snapshot) Feature(f Feature) (float64, bool) {
	v, ok := s.features[f]
	return v, ok
}

func (s *Snapshot) Features() map[Feature]float64 {
	out := make(map[Feature]float64, len(s.features))
	for k, v := range s.features {
		out[k] = v
	}
	return out
}

func (s *Snapshot) SARTrend() string { return s.sarTrend }
func (s *Snapshot) Trend30m() string { return s.trend30m }

// Status reports the market status; ok is false when none was supplied.
func (s *Snapshot) Status() (string, bool) { return s.status, s.status != "" }

func (s *Snapshot) LastPrice() (float64, bool) { return s.lastPrice.get() }

// Spread is the spread estimate in price units.
func (s *Snapshot) Spread() (float64, bool)  { return s.spread.get() }
func (s *Snapshot) ATRPips() (float64, bool) { return s.atrPips.get() }

// Sentiment returns the crowd long and short percentages.
func (s *Snapshot) Sentiment() (long, short float64, ok bool) {
	if !s.sentLong.ok || !s.sentShort.ok {
		return 0, 0, false
	}
	return s.sentLong.v, s.sentShort.v, true
}

// MinStopDistancePips and MinLimitDistancePips are broker level constraints.
func (s *Snapshot) MinStopDistancePips() (float64, bool)  { return s.minStop.get() }
func (s *Snapshot) MinLimitDistancePips() (float64, bool) { return s.minLimit.get() }

// GateOverride returns a per-snapshot replacement for a gate threshold,
// e.g. "adx_min" or "atr_min_pips".
func (s *Snapshot) GateOverride(name string) (float64, bool) {
	v, ok := s.gateOverrides[name]
	return v, ok
}

func (s *Snapshot) DataAgeSec() (float64, bool) { return s.dataAge.get() }
func (s *Snapshot) Balance() (float64, bool)    { return s.balance.get() }
func (s *Snapshot) Blackout() bool              { return s.blackout }

func (s *Snapshot) News() (Direction, float64) { return s.newsDir, s.newsStrength }

// Rules is the rule set carried with the context, possibly nil.
func (s *Snapshot) Rules() *rules.RuleSet { return s.rules }
