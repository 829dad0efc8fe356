package risk

import (
	"github.com/shopspring/decimal"
)

type Inputs struct {
	Balance  decimal.Decimal
	RiskPct  decimal.Decimal // percent, 1 = 1%
	StopPips decimal.Decimal
	PipValue decimal.Decimal // account value of one pip per unit of size
	SizeStep decimal.Decimal
}

type Result struct {
	Size       decimal.Decimal
	StopPips   decimal.Decimal
	RiskAmount decimal.Decimal
}

// Calculate sizes a position with the stake formula
//
//	size = floor_to_step(balance × riskPct / (stopPips × pipValue), sizeStep)
//
// Size is zero when the stop or pip value is not positive.
func Calculate(in Inputs) Result {
	riskAmt := RiskAmount(in.Balance, in.RiskPct)
	res := Result{StopPips: in.StopPips, RiskAmount: riskAmt, Size: decimal.Zero}

	den := in.StopPips.Mul(in.PipValue)
	if !den.IsPositive() || !riskAmt.IsPositive() {
		return res
	}
	res.Size = FloorToStep(riskAmt.Div(den), in.SizeStep)
	return res
}
