package decision

import (
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/risk"
	"github.com/rustyeddy/fxcalib/snapshot"
	"github.com/shopspring/decimal"
)

var (
	one          = decimal.NewFromInt(1)
	confidenceDP = int32(4)
	riskDP       = int32(4)
)

// execute sizes the trade and places its levels. Everything from here on
// is decimal.
func (d *decider) execute() Result {
	price, ok := d.snap.LastPrice()
	if !ok || price <= 0 {
		return blocked(d.notes, ReasonNoPrice)
	}

	action := Buy
	if d.dir == snapshot.Sell {
		action = Sell
	}

	exec := d.rs.Execution()
	pip := market.PipSize(d.pair)
	atr := decimal.NewFromFloat(d.atrPips)

	riskPct := d.riskPct()

	slMult := decimal.NewFromFloat(exec.Float("sl_atr_mult", 2))
	tpMult := decimal.NewFromFloat(exec.Float("tp_atr_mult", 4))
	slPips := slMult.Mul(atr)
	tpPips := tpMult.Mul(atr)
	if slMin := decimal.NewFromFloat(exec.Float("sl_min_pips", 0)); slPips.LessThan(slMin) {
		// Floor the stop and stretch the target by the same ratio.
		if slPips.IsPositive() {
			tpPips = tpPips.Mul(slMin).Div(slPips)
		} else {
			tpPips = slMin.Mul(tpMult).Div(slMult)
		}
		slPips = slMin
	}

	// Broker minimum distances; the snapshot's constraints win over rules.
	adjusted := false
	minStop := decimal.NewFromFloat(exec.Float("min_stop_distance_pips", 0))
	if v, ok := d.snap.MinStopDistancePips(); ok {
		minStop = decimal.NewFromFloat(v)
	}
	minLimit := decimal.NewFromFloat(exec.Float("min_limit_distance_pips", 0))
	if v, ok := d.snap.MinLimitDistancePips(); ok {
		minLimit = decimal.NewFromFloat(v)
	}
	if slPips.LessThan(minStop) {
		slPips = minStop
		adjusted = true
	}
	if tpPips.LessThan(minLimit) {
		tpPips = minLimit
		adjusted = true
	}
	if adjusted {
		d.note(ReasonLevelsAdjusted)
	}

	// Tick rounding moves stop and target independently, so the
	// reward to risk gate uses the requested distances.
	wantSL, wantTP := slPips, tpPips
	entry := risk.RoundToTick(d.pair, decimal.NewFromFloat(price))
	slDelta := slPips.Mul(pip)
	tpDelta := tpPips.Mul(pip)
	var sl, tp decimal.Decimal
	if action == Buy {
		sl = risk.RoundToTick(d.pair, entry.Sub(slDelta))
		tp = risk.RoundToTick(d.pair, entry.Add(tpDelta))
	} else {
		sl = risk.RoundToTick(d.pair, entry.Add(slDelta))
		tp = risk.RoundToTick(d.pair, entry.Sub(tpDelta))
	}
	// Report the distances actually placed.
	slPips = risk.PriceToPips(d.pair, entry.Sub(sl).Abs())
	tpPips = risk.PriceToPips(d.pair, tp.Sub(entry).Abs())

	// 13. support/resistance proximity
	srMin := decimal.NewFromFloat(d.rs.Gates().Float("sr_min_distance_pips", 5))
	if action == Buy {
		if res, ok := d.snap.Feature(snapshot.Resistance); ok {
			r := decimal.NewFromFloat(res)
			if r.GreaterThanOrEqual(entry) && risk.PriceToPips(d.pair, r.Sub(entry)).LessThan(srMin) {
				return blocked(d.notes, ReasonTooCloseResistance)
			}
		}
	} else {
		if sup, ok := d.snap.Feature(snapshot.Support); ok {
			s := decimal.NewFromFloat(sup)
			if s.LessThanOrEqual(entry) && risk.PriceToPips(d.pair, entry.Sub(s)).LessThan(srMin) {
				return blocked(d.notes, ReasonTooCloseSupport)
			}
		}
	}

	// 14. stake
	balance, _ := d.snap.Balance()
	rk := d.rs.Risk()
	sized := risk.Calculate(risk.Inputs{
		Balance:  decimal.NewFromFloat(balance),
		RiskPct:  riskPct,
		StopPips: slPips,
		PipValue: decimal.NewFromFloat(rk.Float("pip_value", 1)),
		SizeStep: decimal.NewFromFloat(rk.Float("size_step", 0.01)),
	})
	if !sized.Size.IsPositive() {
		return blocked(d.notes, ReasonSizeZero)
	}

	// 15. session timing
	confidence := decimal.NewFromFloat(d.strength).Mul(d.sessionMultiplier())
	if confidence.GreaterThan(one) {
		confidence = one
	}
	if confidence.IsNegative() {
		confidence = decimal.Zero
	}
	confidence = confidence.Round(confidenceDP)

	// 16. reward to risk
	minRR, ok := exec.OptFloat("min_rr")
	if !ok {
		minRR, ok = exec.OptFloat("rr")
	}
	if ok && wantSL.IsPositive() {
		actual := wantTP.Div(wantSL).Round(2)
		if actual.LessThan(decimal.NewFromFloat(minRR)) {
			return blocked(d.notes, ReasonPoorRiskReward)
		}
	}

	size := sized.Size
	return Result{
		Action:     action,
		Confidence: confidence,
		Reasons:    append(append([]string(nil), d.notes...), ReasonOK),
		NewsLabel:  d.label,
		RiskPct:    &riskPct,
		Size:       &size,
		Entry:      &entry,
		SL:         &sl,
		TP:         &tp,
		SLPips:     &slPips,
		TPPips:     &tpPips,
	}
}

// riskPct picks per_trade_pct by news label, falling back to its
// "default" entry, capped at per_trade_cap_pct.
func (d *decider) riskPct() decimal.Decimal {
	r := d.rs.Risk()
	pct, ok := r.OptFloat("per_trade_pct." + d.label)
	if !ok {
		pct, ok = r.OptFloat("per_trade_pct.default")
	}
	if !ok {
		// A scalar per_trade_pct applies to every label.
		pct = r.Float("per_trade_pct", 1)
	}
	if capPct, ok := r.OptFloat("per_trade_cap_pct"); ok && pct > capPct {
		pct = capPct
	}
	if pct < 0 {
		pct = 0
	}
	return decimal.NewFromFloat(pct).Round(riskDP)
}

// sessionMultiplier returns the confidence multiplier for the clock's
// time of day and records the matching reason.
func (d *decider) sessionMultiplier() decimal.Decimal {
	sf := d.rs.SessionFilter()
	if !sf.Bool("enabled", false) {
		return one
	}
	loc := time.UTC
	if tz := sf.String("timezone", "UTC"); tz != "" && !strings.EqualFold(tz, "UTC") {
		l, err := time.LoadLocation(tz)
		if err != nil {
			d.e.log.Warn("unknown session timezone, using UTC", logger.String("timezone", tz))
		} else {
			loc = l
		}
	}
	now := d.e.now().In(loc)

	in, errs := anyWindow(sf.Strings("preferred", nil), now)
	d.logWindowErrors(errs)
	if in {
		d.note(ReasonSessionBoost)
		return decimal.NewFromFloat(sf.Float("boost", 1.2))
	}
	in, errs = anyWindow(sf.Strings("avoid", nil), now)
	d.logWindowErrors(errs)
	if in {
		d.note(ReasonSessionPenalty)
		return decimal.NewFromFloat(sf.Float("penalty", 0.7))
	}
	return one
}

func (d *decider) logWindowErrors(errs []error) {
	for _, err := range errs {
		d.e.log.Warn("ignoring session window", logger.Error(err))
	}
}
