package decision

import (
	"context"
	"sync"
	"time"
)

type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
)

// LastTrade is the most recently closed trade.
type LastTrade struct {
	Outcome Outcome
	Time    time.Time
}

// Ledger reports live trading history to the engine. The engine treats
// every error or panic as the most conservative answer.
type Ledger interface {
	TodaysPnLPct(ctx context.Context) (float64, error)
	LastTrade(ctx context.Context) (*LastTrade, error)
	OpenPositionsCount(ctx context.Context) (int, error)
	PairExposurePct(ctx context.Context, pair string) (float64, error)
}

// NullLedger has no history: zero PnL, no last trade, nothing open.
type NullLedger struct{}

func (NullLedger) TodaysPnLPct(context.Context) (float64, error)            { return 0, nil }
func (NullLedger) LastTrade(context.Context) (*LastTrade, error)            { return nil, nil }
func (NullLedger) OpenPositionsCount(context.Context) (int, error)          { return 0, nil }
func (NullLedger) PairExposurePct(context.Context, string) (float64, error) { return 0, nil }

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// ManualClock is set by the caller; safe for concurrent use.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
