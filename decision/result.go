package decision

import (
	"github.com/shopspring/decimal"
)

type Action string

const (
	Hold Action = "hold"
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Reasons, in gate order.
const (
	ReasonRulesMissing       = "rules_missing"
	ReasonStatusClosed       = "status_closed"
	ReasonNoBarData          = "no_bar_data"
	ReasonBarDataStale       = "bar_data_stale"
	ReasonBlackout           = "blackout"
	ReasonNoSpread           = "no_spread"
	ReasonLowADX             = "low_adx"
	ReasonEMAZExtreme        = "ema_z_extreme"
	ReasonRSIOverbought      = "rsi_overbought"
	ReasonRSIOversold        = "rsi_oversold"
	ReasonStochExtreme       = "stoch_extreme"
	ReasonWilliamsOverbought = "williams_overbought"
	ReasonWilliamsOversold   = "williams_oversold"
	ReasonCCIOverbought      = "cci_overbought"
	ReasonCCIOversold        = "cci_oversold"
	ReasonSARNewsConflict    = "sar_news_conflict"
	ReasonNoTRBreakout       = "no_tr_breakout"
	ReasonDailyLossStop      = "daily_loss_stop"
	ReasonCooldownActive     = "cooldown_active"
	ReasonMaxConcurrent      = "max_concurrent"
	ReasonPairExposureCap    = "pair_exposure_cap"
	ReasonNewsNeutral        = "news_neutral"
	ReasonNewsWeak           = "news_weak"
	ReasonNeedsTrendAlign    = "needs_trend_align"
	ReasonContrarianLong     = "contrarian_crowd_long"
	ReasonContrarianShort    = "contrarian_crowd_short"
	ReasonSpreadTooWide      = "spread_too_wide"
	ReasonATRInvalid         = "atr_invalid"
	ReasonATRTooLow          = "atr_too_low"
	ReasonNoPrice            = "no_price"
	ReasonLevelsAdjusted     = "levels_adjusted_for_ig_rules"
	ReasonTooCloseResistance = "too_close_to_resistance"
	ReasonTooCloseSupport    = "too_close_to_support"
	ReasonSizeZero           = "size_zero"
	ReasonSessionBoost       = "session_timing_boost"
	ReasonSessionPenalty     = "session_timing_penalty"
	ReasonPoorRiskReward     = "poor_risk_reward"
	ReasonGateOverrideADX    = "gate_override_adx_min"
	ReasonGateOverrideATRMin = "gate_override_atr_min_pips"
	ReasonOK                 = "ok"
)

// News strength labels.
const (
	LabelWeak     = "weak"
	LabelModerate = "moderate"
	LabelStrong   = "strong"
)

// Result is the outcome of one decision. Blocked implies Action == Hold and
// a last reason other than "ok". The level fields are nil exactly when
// Action is Hold.
type Result struct {
	Action     Action          `json:"action"`
	Confidence decimal.Decimal `json:"confidence"`
	Reasons    []string        `json:"reasons"`
	Blocked    bool            `json:"blocked"`

	NewsLabel string           `json:"news_label,omitempty"`
	RiskPct   *decimal.Decimal `json:"risk_pct,omitempty"`
	Size      *decimal.Decimal `json:"size,omitempty"`
	Entry     *decimal.Decimal `json:"entry,omitempty"`
	SL        *decimal.Decimal `json:"sl,omitempty"`
	TP        *decimal.Decimal `json:"tp,omitempty"`
	SLPips    *decimal.Decimal `json:"sl_pips,omitempty"`
	TPPips    *decimal.Decimal `json:"tp_pips,omitempty"`
}

// Executable reports whether the result proposes a trade.
func (r Result) Executable() bool { return r.Action == Buy || r.Action == Sell }

// LastReason is the deciding reason.
func (r Result) LastReason() string {
	if len(r.Reasons) == 0 {
		return ""
	}
	return r.Reasons[len(r.Reasons)-1]
}

// RewardRisk is TP pips over SL pips for executable results.
func (r Result) RewardRisk() float64 {
	if r.SLPips == nil || r.TPPips == nil || r.SLPips.IsZero() {
		return 0
	}
	return r.TPPips.Div(*r.SLPips).InexactFloat64()
}
