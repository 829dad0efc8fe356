package risk

import (
	"github.com/rustyeddy/fxcalib/market"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PipsToPrice converts a pip distance into a price delta for the pair.
func PipsToPrice(pair string, pips decimal.Decimal) decimal.Decimal {
	return pips.Mul(market.PipSize(pair))
}

// PriceToPips converts a price delta into pips for the pair.
func PriceToPips(pair string, delta decimal.Decimal) decimal.Decimal {
	return delta.Div(market.PipSize(pair))
}

// RoundToTick rounds a price to the instrument's tick size.
func RoundToTick(pair string, price decimal.Decimal) decimal.Decimal {
	tick := market.TickSize(pair)
	return price.Div(tick).Round(0).Mul(tick)
}

// FloorToStep floors v to a multiple of step. A non-positive step
// leaves v unchanged.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// RR is reward over risk for the given levels, zero when risk is zero.
func RR(entry, stop, takeProfit decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return takeProfit.Sub(entry).Abs().Div(risk)
}

// RiskAmount is the account amount put at risk: balance × pct / 100.
func RiskAmount(balance, pct decimal.Decimal) decimal.Decimal {
	return balance.Mul(pct).Div(hundred)
}
