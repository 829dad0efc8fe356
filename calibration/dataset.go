package calibration

import (
	"sort"
	"time"
)

// FeatureRow is one bar with every indicator warmed up.
type FeatureRow struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`

	EMAFast    float64 `json:"ema_fast"`
	EMASlow    float64 `json:"ema_slow"`
	EMAZ       float64 `json:"ema_z"`
	ATR        float64 `json:"atr"`
	ATRPips    float64 `json:"atr_pips"`
	ADX        float64 `json:"adx"`
	RSI        float64 `json:"rsi"`
	StochK     float64 `json:"stoch_k"`
	WilliamsR  float64 `json:"williams_r"`
	CCI        float64 `json:"cci"`
	SAR        float64 `json:"sar"`
	SARTrend   string  `json:"sar_trend"`
	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
	TRUpper    float64 `json:"tr_upper"`
	TRLower    float64 `json:"tr_lower"`
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Trend      string  `json:"trend_30m"`
}

type SnapshotMeta struct {
	Bytes           int64   `json:"bytes"`
	Bars            int     `json:"bars"`
	VolatilityScore float64 `json:"volatility_score"`
}

// SnapshotRef locates the stored feature payload for one market.
type SnapshotRef struct {
	FeatureHash string       `json:"feature_hash"`
	StoragePath string       `json:"storage_path"`
	Meta        SnapshotMeta `json:"meta"`
}

// Regime summarizes market conditions over the window.
type Regime struct {
	TrendUp         float64 `json:"trend_up"`
	TrendDown       float64 `json:"trend_down"`
	TrendFlat       float64 `json:"trend_flat"`
	MeanADX         float64 `json:"mean_adx"`
	MeanATRPips     float64 `json:"mean_atr_pips"`
	VolatilityScore float64 `json:"volatility_score"`
}

// Dataset is built once per run and only read afterwards.
type Dataset struct {
	Tag       string
	Markets   []string
	Snapshots map[string]SnapshotRef
	Regime    map[string]Regime
	// CostEstimates is the average round-trip cost per market in pips.
	CostEstimates map[string]float64
	Frames        map[string][]FeatureRow
	Start         time.Time
	End           time.Time
}

// SpanDays is the window length in days, at least one.
func (ds *Dataset) SpanDays() float64 {
	d := ds.End.Sub(ds.Start).Hours() / 24
	if d < 1 {
		return 1
	}
	return d
}

// MeanCostPips averages CostEstimates over the dataset's markets.
func (ds *Dataset) MeanCostPips() float64 {
	if len(ds.CostEstimates) == 0 {
		return 0
	}
	var sum float64
	for _, v := range ds.CostEstimates {
		sum += v
	}
	return sum / float64(len(ds.CostEstimates))
}

// MeanATRPips averages the regime ATR over markets.
func (ds *Dataset) MeanATRPips() float64 {
	if len(ds.Regime) == 0 {
		return 0
	}
	var sum float64
	for _, r := range ds.Regime {
		sum += r.MeanATRPips
	}
	return sum / float64(len(ds.Regime))
}

// FeatureHashes returns the per-market hashes sorted by market.
func (ds *Dataset) FeatureHashes() []string {
	markets := make([]string, 0, len(ds.Snapshots))
	for m := range ds.Snapshots {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	out := make([]string, len(markets))
	for i, m := range markets {
		out[i] = ds.Snapshots[m].FeatureHash
	}
	return out
}
