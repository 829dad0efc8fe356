// Package decision turns a market snapshot and a rule set into a trade
// decision. Gates run in a fixed order and the first failing gate holds.
// Missing inputs block; collaborator failures degrade to conservative
// values. Decide never returns an error.
package decision

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/pkg/metrics"
	"github.com/rustyeddy/fxcalib/rules"
	"github.com/rustyeddy/fxcalib/snapshot"
	"github.com/shopspring/decimal"
)

type Engine struct {
	ledger  Ledger
	clock   Clock
	log     *logger.Logger
	metrics *metrics.Recorder
}

type Option func(*Engine)

func WithLedger(l Ledger) Option {
	return func(e *Engine) {
		if l != nil {
			e.ledger = l
		}
	}
}

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine with a NullLedger and the system clock unless
// options say otherwise.
func New(opts ...Option) *Engine {
	e := &Engine{
		ledger: NullLedger{},
		clock:  SystemClock{},
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide evaluates snap against rs. When rs is nil the snapshot's own rule
// set is used.
func (e *Engine) Decide(ctx context.Context, snap *snapshot.Snapshot, rs *rules.RuleSet) Result {
	res := e.decide(ctx, snap, rs)
	pair := ""
	if snap != nil {
		pair = snap.NormalizedPair()
	}
	e.metrics.RecordDecision(pair, string(res.Action), res.Blocked, res.LastReason())
	e.log.Debug("decision",
		logger.String("pair", pair),
		logger.String("action", string(res.Action)),
		logger.Bool("blocked", res.Blocked),
		logger.Strings("reasons", res.Reasons),
	)
	return res
}

// decider carries the state of one evaluation.
type decider struct {
	e     *Engine
	ctx   context.Context
	snap  *snapshot.Snapshot
	rs    *rules.RuleSet
	pair  string
	notes []string

	dir      snapshot.Direction
	strength float64
	label    string
	atrPips  float64
}

func (e *Engine) decide(ctx context.Context, snap *snapshot.Snapshot, rs *rules.RuleSet) Result {
	if snap == nil {
		return blocked(nil, ReasonStatusClosed)
	}
	if rs == nil {
		rs = snap.Rules()
	}
	if rs == nil {
		return blocked(nil, ReasonRulesMissing)
	}
	d := &decider{
		e:    e,
		ctx:  ctx,
		snap: snap,
		rs:   rs.ForMarket(snap.NormalizedPair()),
		pair: snap.NormalizedPair(),
	}
	d.dir, d.strength = snap.News()

	for _, gate := range []func() string{
		d.status,
		d.freshness,
		d.blackout,
		d.spreadPresence,
		d.oscillators,
		d.dailyLoss,
		d.cooldown,
		d.exposure,
		d.news,
		d.sentiment,
		d.spreadAndATR,
	} {
		if reason := gate(); reason != "" {
			if reason == ReasonNewsNeutral {
				return Result{
					Action:     Hold,
					Confidence: decimal.Zero,
					Reasons:    append(d.notes, reason),
				}
			}
			return blocked(d.notes, reason)
		}
	}
	return d.execute()
}

func blocked(notes []string, reason string) Result {
	return Result{
		Action:     Hold,
		Confidence: decimal.Zero,
		Reasons:    append(append([]string(nil), notes...), reason),
		Blocked:    true,
	}
}

func (d *decider) note(reason string) { d.notes = append(d.notes, reason) }

// 1. market status
func (d *decider) status() string {
	status, ok := d.snap.Status()
	if !ok {
		return ReasonStatusClosed
	}
	for _, want := range d.rs.Gates().Strings("status_required", []string{snapshot.StatusTradeable}) {
		if strings.EqualFold(want, status) {
			return ""
		}
	}
	return ReasonStatusClosed
}

// 2. data freshness
func (d *decider) freshness() string {
	age, ok := d.snap.DataAgeSec()
	if !ok {
		return ReasonNoBarData
	}
	if age > d.rs.Gates().Float("max_data_age_sec", 600) {
		return ReasonBarDataStale
	}
	return ""
}

// 3. calendar blackout
func (d *decider) blackout() string {
	if d.snap.Blackout() {
		return ReasonBlackout
	}
	return ""
}

// 4. spread presence
func (d *decider) spreadPresence() string {
	if !d.rs.Gates().Bool("spread_required", true) {
		return ""
	}
	if s, ok := d.snap.Spread(); !ok || s < 0 {
		return ReasonNoSpread
	}
	return ""
}

// 5. trend strength and mean-reversion oscillators
func (d *decider) oscillators() string {
	g := d.rs.Gates()

	adxMin, haveMin := g.OptFloat("adx_min")
	if v, ok := d.snap.GateOverride("adx_min"); ok {
		adxMin, haveMin = v, true
		d.note(ReasonGateOverrideADX)
	}
	if haveMin {
		adx, ok := d.snap.Feature(snapshot.ADX)
		if !ok || adx < adxMin {
			return ReasonLowADX
		}
	}

	if zMax, ok := g.OptFloat("ema_z_max"); ok {
		if z, ok := d.snap.Feature(snapshot.EMAZ); ok && math.Abs(z) > zMax {
			return ReasonEMAZExtreme
		}
	}

	if r := band(d.snap, snapshot.RSI, g, "rsi_overbought", "rsi_oversold",
		ReasonRSIOverbought, ReasonRSIOversold); r != "" {
		return r
	}
	if r := band(d.snap, snapshot.StochK, g, "stoch_k_high", "stoch_k_low",
		ReasonStochExtreme, ReasonStochExtreme); r != "" {
		return r
	}
	if r := band(d.snap, snapshot.WilliamsR, g, "williams_overbought", "williams_oversold",
		ReasonWilliamsOverbought, ReasonWilliamsOversold); r != "" {
		return r
	}
	if r := band(d.snap, snapshot.CCI, g, "cci_overbought", "cci_oversold",
		ReasonCCIOverbought, ReasonCCIOversold); r != "" {
		return r
	}

	if g.Bool("sar_news_conflict", false) {
		trend := d.snap.SARTrend()
		if (d.dir == snapshot.Buy && trend == snapshot.TrendDown) ||
			(d.dir == snapshot.Sell && trend == snapshot.TrendUp) {
			return ReasonSARNewsConflict
		}
	}

	if g.Bool("tr_breakout_required", false) && d.dir != snapshot.Neutral {
		price, okP := d.snap.LastPrice()
		switch d.dir {
		case snapshot.Buy:
			upper, ok := d.snap.Feature(snapshot.TRUpper)
			if !okP || !ok || price <= upper {
				return ReasonNoTRBreakout
			}
		case snapshot.Sell:
			lower, ok := d.snap.Feature(snapshot.TRLower)
			if !okP || !ok || price >= lower {
				return ReasonNoTRBreakout
			}
		}
	}
	return ""
}

// band applies an optional overbought/oversold pair to one feature. A
// missing feature does not block.
func band(s *snapshot.Snapshot, f snapshot.Feature, g rules.Section, hiKey, loKey, hiReason, loReason string) string {
	v, ok := s.Feature(f)
	if !ok {
		return ""
	}
	if hi, ok := g.OptFloat(hiKey); ok && v >= hi {
		return hiReason
	}
	if lo, ok := g.OptFloat(loKey); ok && v <= lo {
		return loReason
	}
	return ""
}

// 6. daily loss stop
func (d *decider) dailyLoss() string {
	stop := d.rs.Risk().Float("daily_loss_stop_pct", 0)
	if stop <= 0 {
		return ""
	}
	pnl := protect(d.e, "todays_pnl", 0.0, func() (float64, error) {
		return d.e.ledger.TodaysPnLPct(d.ctx)
	})
	if pnl <= -stop {
		return ReasonDailyLossStop
	}
	return ""
}

// 7. cooldown after the last trade
func (d *decider) cooldown() string {
	last := protect[*LastTrade](d.e, "last_trade", nil, func() (*LastTrade, error) {
		return d.e.ledger.LastTrade(d.ctx)
	})
	if last == nil {
		return ""
	}
	key := "after_win_min"
	if last.Outcome == Loss {
		key = "after_loss_min"
	}
	wait := d.rs.Cooldowns().Float(key, 0)
	if wait <= 0 {
		return ""
	}
	if d.e.now().Sub(last.Time) < time.Duration(wait*float64(time.Minute)) {
		return ReasonCooldownActive
	}
	return ""
}

// 8. exposure caps
func (d *decider) exposure() string {
	r := d.rs.Risk()
	if maxOpen := r.Int("max_concurrent", 0); maxOpen > 0 {
		open := protect(d.e, "open_positions", 0, func() (int, error) {
			return d.e.ledger.OpenPositionsCount(d.ctx)
		})
		if open >= maxOpen {
			return ReasonMaxConcurrent
		}
	}
	if capPct := r.Float("pair_exposure_cap_pct", 0); capPct > 0 {
		exp := protect(d.e, "pair_exposure", 0.0, func() (float64, error) {
			return d.e.ledger.PairExposurePct(d.ctx, d.pair)
		})
		if exp >= capPct {
			return ReasonPairExposureCap
		}
	}
	return ""
}

// 9. news-derived direction
func (d *decider) news() string {
	if d.dir != snapshot.Buy && d.dir != snapshot.Sell {
		return ReasonNewsNeutral
	}
	g := d.rs.Gates()
	switch {
	case d.strength >= g.Float("news_strong_min", 0.65):
		d.label = LabelStrong
	case d.strength >= g.Float("news_moderate_min", 0.35):
		d.label = LabelModerate
	default:
		d.label = LabelWeak
		return ReasonNewsWeak
	}

	trend := d.snap.Trend30m()
	aligned := (d.dir == snapshot.Buy && trend == snapshot.TrendUp) ||
		(d.dir == snapshot.Sell && trend == snapshot.TrendDown)
	if aligned {
		return ""
	}
	c := d.rs.Confluence()
	if d.label == LabelModerate && !c.Bool("allow_moderate_without_trend", false) {
		return ReasonNeedsTrendAlign
	}
	if d.label == LabelStrong && c.Bool("strong_requires_trend", false) {
		return ReasonNeedsTrendAlign
	}
	return ""
}

// 10. crowd sentiment. "contrarian" blocks trading with a crowd at or
// above the threshold; "strict" blocks trading with any crowd majority
// outside the neutral band; "off" disables the gate.
func (d *decider) sentiment() string {
	sg := d.rs.SentimentGate()
	mode := strings.ToLower(sg.String("mode", "contrarian"))
	if mode == "off" || mode == "" {
		return ""
	}
	long, short, ok := d.snap.Sentiment()
	if !ok {
		return ""
	}
	if math.Abs(long-short) <= sg.Float("neutral_band", 10) {
		return ""
	}
	threshold := sg.Float("contrarian_threshold", 65)
	if mode == "strict" {
		threshold = 50
	}
	if d.dir == snapshot.Buy && long > short && long >= threshold {
		return ReasonContrarianLong
	}
	if d.dir == snapshot.Sell && short > long && short >= threshold {
		return ReasonContrarianShort
	}
	return ""
}

// 11. spread ceiling and ATR validity
func (d *decider) spreadAndATR() string {
	g := d.rs.Gates()
	pip := market.PipSizeFloat(d.pair)

	if spread, ok := d.snap.Spread(); ok {
		if maxPips, ok := g.OptFloat("max_spread_pips"); ok && spread/pip > maxPips {
			return ReasonSpreadTooWide
		}
	}

	atrPips, ok := d.snap.ATRPips()
	if !ok {
		if atr, okF := d.snap.Feature(snapshot.ATR); okF {
			atrPips, ok = atr/pip, true
		}
	}
	if !ok || atrPips <= 0 {
		return ReasonATRInvalid
	}
	d.atrPips = atrPips

	atrMin, haveMin := g.OptFloat("atr_min_pips")
	if v, ok := d.snap.GateOverride("atr_min_pips"); ok {
		atrMin, haveMin = v, true
		d.note(ReasonGateOverrideATRMin)
	}
	if haveMin && atrPips < atrMin {
		return ReasonATRTooLow
	}
	return ""
}

func (e *Engine) now() time.Time {
	return protect(e, "clock", time.Now(), func() (time.Time, error) {
		return e.clock.Now(), nil
	})
}

// protect runs a collaborator call, replacing errors and panics with
// fallback.
func protect[T any](e *Engine, call string, fallback T, fn func() (T, error)) (out T) {
	defer func() {
		if r := recover(); r != nil {
			e.fault(call, fmt.Errorf("panic: %v", r))
			out = fallback
		}
	}()
	v, err := fn()
	if err != nil {
		e.fault(call, err)
		return fallback
	}
	return v
}

func (e *Engine) fault(call string, err error) {
	e.metrics.RecordFault(call)
	e.log.Warn("collaborator failed, using conservative value",
		logger.String("call", call),
		logger.Error(err),
	)
}
