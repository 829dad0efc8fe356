package journal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/fxcalib/decision"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

var day = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T, opts ...Option) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func trade(id, pair string, risk float64, open time.Time) TradeRecord {
	return TradeRecord{
		TradeID:    id,
		Instrument: pair,
		Side:       decision.Buy,
		Size:       decimal.RequireFromString("5.00"),
		EntryPrice: decimal.RequireFromString("1.10000"),
		StopLoss:   decimal.RequireFromString("1.09800"),
		TakeProfit: decimal.RequireFromString("1.10400"),
		RiskPct:    risk,
		RuleSet:    "cal-1",
		OpenTime:   open,
		Reason:     "ok",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','decisions')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["decisions"])
}

func TestSQLiteOpenAndCloseTrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)

	open := day.Add(9 * time.Hour)
	require.NoError(t, j.OpenTrade(ctx, trade("T1", "EUR/USD", 0.5, open)))

	got, err := j.GetTrade(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", got.Instrument)
	assert.True(t, got.Open())
	assert.True(t, got.Size.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, "1.098", got.StopLoss.String())
	assert.True(t, got.OpenTime.Equal(open))

	closeT := open.Add(2 * time.Hour)
	require.NoError(t, j.CloseTrade(ctx, "T1", decimal.RequireFromString("1.104"), 1.0, closeT))

	got, err = j.GetTrade(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, got.Open())
	assert.Equal(t, decision.Win, got.Outcome)
	require.NotNil(t, got.RealizedPct)
	assert.InDelta(t, 1.0, *got.RealizedPct, 1e-12)
	assert.True(t, got.CloseTime.Equal(closeT))

	// Closing twice is an error.
	err = j.CloseTrade(ctx, "T1", decimal.RequireFromString("1.104"), 1.0, closeT)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = j.GetTrade(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := decision.NewManualClock(day.Add(15 * time.Hour))
	j, _ := newTestSQLite(t, WithClock(clock))

	// Empty journal.
	pnl, err := j.TodaysPnLPct(ctx)
	require.NoError(t, err)
	assert.Zero(t, pnl)
	last, err := j.LastTrade(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	// Yesterday's loss does not count toward today.
	require.NoError(t, j.OpenTrade(ctx, trade("Y1", "EUR_USD", 1, day.Add(-5*time.Hour))))
	require.NoError(t, j.CloseTrade(ctx, "Y1", decimal.RequireFromString("1.098"), -1, day.Add(-time.Hour)))

	require.NoError(t, j.OpenTrade(ctx, trade("A", "EUR_USD", 1, day.Add(8*time.Hour))))
	require.NoError(t, j.CloseTrade(ctx, "A", decimal.RequireFromString("1.104"), 2, day.Add(9*time.Hour)))
	require.NoError(t, j.OpenTrade(ctx, trade("B", "GBP_USD", 1, day.Add(10*time.Hour))))
	require.NoError(t, j.CloseTrade(ctx, "B", decimal.RequireFromString("1.098"), -1.5, day.Add(12*time.Hour)))

	require.NoError(t, j.OpenTrade(ctx, trade("C", "EUR_USD", 0.5, day.Add(13*time.Hour))))
	require.NoError(t, j.OpenTrade(ctx, trade("D", "EURUSD", 0.75, day.Add(14*time.Hour))))
	require.NoError(t, j.OpenTrade(ctx, trade("E", "USD_JPY", 1, day.Add(14*time.Hour))))

	pnl, err = j.TodaysPnLPct(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pnl, 1e-12)

	last, err = j.LastTrade(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, decision.Loss, last.Outcome)
	assert.True(t, last.Time.Equal(day.Add(12*time.Hour)))

	n, err := j.OpenPositionsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	exp, err := j.PairExposurePct(ctx, "eur/usd")
	require.NoError(t, err)
	assert.InDelta(t, 1.25, exp, 1e-12)

	exp, err = j.PairExposurePct(ctx, "AUD_USD")
	require.NoError(t, err)
	assert.Zero(t, exp)

	open, err := j.ListOpenTrades(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	closed, err := j.ListTradesClosedBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "A", closed[0].TradeID)
	assert.Equal(t, "B", closed[1].TradeID)

	// Next day starts from zero.
	clock.Advance(24 * time.Hour)
	pnl, err = j.TodaysPnLPct(ctx)
	require.NoError(t, err)
	assert.Zero(t, pnl)
}

func TestSQLiteRecordDecision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, path := newTestSQLite(t)

	res := decision.Result{
		Action:     decision.Hold,
		Confidence: decimal.Zero,
		Reasons:    []string{"adx_low"},
		Blocked:    true,
	}
	require.NoError(t, j.RecordDecision(ctx, DecisionRecord{Time: day, Instrument: "EUR_USD", Result: res, RuleSet: "default"}))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		action, reasons string
		blocked         bool
	)
	require.NoError(t, db.QueryRow(`SELECT action, blocked, reasons FROM decisions`).Scan(&action, &blocked, &reasons))
	assert.Equal(t, "hold", action)
	assert.True(t, blocked)
	assert.Equal(t, "adx_low", reasons)
}

func TestFromResult(t *testing.T) {
	t.Parallel()

	_, ok := FromResult("X", "EUR_USD", "r", day, decision.Result{Action: decision.Hold})
	assert.False(t, ok)

	size, entry, sl, tp := decimal.NewFromInt(5), decimal.RequireFromString("1.1"), decimal.RequireFromString("1.098"), decimal.RequireFromString("1.104")
	risk := decimal.RequireFromString("0.5")
	rec, ok := FromResult("X", "EUR_USD", "r", day, decision.Result{
		Action:  decision.Buy,
		Reasons: []string{"news_moderate", "ok"},
		RiskPct: &risk,
		Size:    &size,
		Entry:   &entry,
		SL:      &sl,
		TP:      &tp,
	})
	require.True(t, ok)
	assert.Equal(t, decision.Buy, rec.Side)
	assert.InDelta(t, 0.5, rec.RiskPct, 1e-12)
	assert.Equal(t, "news_moderate,ok", rec.Reason)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	exit := decimal.RequireFromString("1.104")
	closeT := day.Add(time.Hour)
	pct := 2.0
	closed := trade("A", "EUR_USD", 1, day)
	closed.ExitPrice, closed.CloseTime, closed.RealizedPct, closed.Outcome = &exit, &closeT, &pct, decision.Win

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []TradeRecord{closed, trade("B", "EUR_USD", 1, day)}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "1.104", rows[1][10])
	assert.Equal(t, "2.000000", rows[1][12])
	assert.Equal(t, "win", rows[1][13])
	assert.Equal(t, "", rows[2][11])
}
