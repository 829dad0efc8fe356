package rules

// DefaultTag names the built-in baseline.
const DefaultTag = "default"

// DefaultBase returns the built-in baseline rules as a fresh map.
func DefaultBase() map[string]any {
	return map[string]any{
		SectionGates: map[string]any{
			"status_required":      []any{"TRADEABLE"},
			"max_data_age_sec":     600,
			"spread_required":      true,
			"adx_min":              20.0,
			"ema_z_max":            2.5,
			"rsi_overbought":       75.0,
			"rsi_oversold":         25.0,
			"stoch_k_high":         95.0,
			"stoch_k_low":          5.0,
			"williams_overbought":  -5.0,
			"williams_oversold":    -95.0,
			"cci_overbought":       250.0,
			"cci_oversold":         -250.0,
			"sar_news_conflict":    false,
			"tr_breakout_required": false,
			"news_moderate_min":    0.35,
			"news_strong_min":      0.65,
			"max_spread_pips":      2.5,
			"atr_min_pips":         3.0,
			"sr_min_distance_pips": 5.0,
		},
		SectionRisk: map[string]any{
			"per_trade_pct":         map[string]any{"default": 1.0},
			"per_trade_cap_pct":     2.0,
			"daily_loss_stop_pct":   3.0,
			"max_concurrent":        3,
			"pair_exposure_cap_pct": 4.0,
			"pip_value":             1.0,
			"size_step":             0.01,
		},
		SectionExecution: map[string]any{
			"sl_atr_mult":             2.0,
			"tp_atr_mult":             4.0,
			"rr":                      2.0,
			"sl_min_pips":             10.0,
			"min_stop_distance_pips":  0.0,
			"min_limit_distance_pips": 0.0,
		},
		SectionCooldowns: map[string]any{
			"after_loss_min": 30.0,
			"after_win_min":  0.0,
		},
		SectionConfluence: map[string]any{
			"allow_moderate_without_trend": false,
			"strong_requires_trend":        false,
		},
		SectionSentimentGate: map[string]any{
			"mode":                 "contrarian",
			"contrarian_threshold": 65.0,
			"neutral_band":         10.0,
		},
		SectionSessionFilter: map[string]any{
			"enabled":   true,
			"timezone":  "UTC",
			"preferred": []any{"07:00-10:00", "12:30-16:00"},
			"avoid":     []any{"22:00-06:00"},
			"boost":     1.2,
			"penalty":   0.7,
		},
	}
}

// Default returns the built-in baseline rule set.
func Default() *RuleSet {
	return New(DefaultTag, DefaultBase(), WithMetadata(map[string]any{"source": "builtin"}))
}
