// Package journal records trades and decisions in SQLite and serves the
// position ledger the decision engine reads.
package journal

import (
	"context"
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/decision"
	"github.com/shopspring/decimal"
)

// TradeRecord is one position, open until CloseTime is set.
type TradeRecord struct {
	TradeID    string
	Instrument string
	Side       decision.Action
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	RiskPct    float64
	RuleSet    string
	OpenTime   time.Time
	Reason     string

	ExitPrice   *decimal.Decimal
	CloseTime   *time.Time
	RealizedPct *float64
	Outcome     decision.Outcome
}

func (t TradeRecord) Open() bool { return t.CloseTime == nil }

// DecisionRecord is an audit row for one engine decision.
type DecisionRecord struct {
	Time       time.Time
	Instrument string
	Result     decision.Result
	RuleSet    string
}

type Journal interface {
	OpenTrade(ctx context.Context, t TradeRecord) error
	CloseTrade(ctx context.Context, id string, exit decimal.Decimal, realizedPct float64, at time.Time) error
	RecordDecision(ctx context.Context, d DecisionRecord) error
	Close() error
}

// FromResult turns an executable decision into an open trade.
func FromResult(id, instrument, ruleSet string, at time.Time, r decision.Result) (TradeRecord, bool) {
	if !r.Executable() || r.Size == nil || r.Entry == nil || r.SL == nil || r.TP == nil {
		return TradeRecord{}, false
	}
	rec := TradeRecord{
		TradeID:    id,
		Instrument: instrument,
		Side:       r.Action,
		Size:       *r.Size,
		EntryPrice: *r.Entry,
		StopLoss:   *r.SL,
		TakeProfit: *r.TP,
		RuleSet:    ruleSet,
		OpenTime:   at,
		Reason:     strings.Join(r.Reasons, ","),
	}
	if r.RiskPct != nil {
		rec.RiskPct = r.RiskPct.InexactFloat64()
	}
	return rec, true
}
