package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/decision"
	"github.com/rustyeddy/fxcalib/market"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("journal: trade not found")

// SQLite is the trade journal and the engine's ledger.
type SQLite struct {
	db    *sql.DB
	clock decision.Clock
}

var (
	_ Journal         = (*SQLite)(nil)
	_ decision.Ledger = (*SQLite)(nil)
)

type Option func(*SQLite)

// WithClock sets the clock used to find "today" for TodaysPnLPct.
func WithClock(c decision.Clock) Option {
	return func(j *SQLite) { j.clock = c }
}

func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &SQLite{db: db, clock: decision.SystemClock{}}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

func (j *SQLite) OpenTrade(ctx context.Context, t TradeRecord) error {
	if t.TradeID == "" {
		return errors.New("journal: trade id is required")
	}
	pair, err := market.NormalizePair(t.Instrument)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO trades
		(trade_id, instrument, side, size, entry_price, stop_loss, take_profit, risk_pct, rule_set, open_time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, pair, string(t.Side), t.Size.String(), t.EntryPrice.String(),
		t.StopLoss.String(), t.TakeProfit.String(), t.RiskPct, t.RuleSet,
		ms(t.OpenTime), t.Reason,
	)
	return err
}

// CloseTrade settles an open trade. realizedPct is the result as a
// percent of account balance; its sign decides the outcome.
func (j *SQLite) CloseTrade(ctx context.Context, id string, exit decimal.Decimal, realizedPct float64, at time.Time) error {
	outcome := decision.Win
	if realizedPct < 0 {
		outcome = decision.Loss
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, close_time = ?, realized_pct = ?, outcome = ?
		WHERE trade_id = ? AND close_time IS NULL`,
		exit.String(), ms(at), realizedPct, string(outcome), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s (or already closed)", ErrNotFound, id)
	}
	return nil
}

func (j *SQLite) RecordDecision(ctx context.Context, d DecisionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO decisions
		(time, instrument, action, blocked, confidence, reasons, rule_set)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ms(d.Time), d.Instrument, string(d.Result.Action), d.Result.Blocked,
		d.Result.Confidence.String(), strings.Join(d.Result.Reasons, ","), d.RuleSet,
	)
	return err
}

const tradeColumns = `trade_id, instrument, side, size, entry_price, stop_loss, take_profit,
	risk_pct, rule_set, open_time, exit_price, close_time, realized_pct, outcome, reason`

func (j *SQLite) GetTrade(ctx context.Context, id string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// ListTradesClosedBetween returns trades closed in [start, end), oldest first.
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, trade_id ASC`, ms(start), ms(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (j *SQLite) ListOpenTrades(ctx context.Context) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE close_time IS NULL
		ORDER BY open_time ASC, trade_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// TodaysPnLPct sums realized percent for trades closed since UTC midnight.
func (j *SQLite) TodaysPnLPct(ctx context.Context) (float64, error) {
	now := j.clock.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var sum sql.NullFloat64
	err := j.db.QueryRowContext(ctx, `
		SELECT SUM(realized_pct) FROM trades
		WHERE close_time >= ? AND close_time < ?`,
		ms(day), ms(day.Add(24*time.Hour)),
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum.Float64, nil
}

func (j *SQLite) LastTrade(ctx context.Context) (*decision.LastTrade, error) {
	var (
		outcome string
		closed  int64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT outcome, close_time FROM trades
		WHERE close_time IS NOT NULL
		ORDER BY close_time DESC, trade_id DESC
		LIMIT 1`,
	).Scan(&outcome, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision.LastTrade{Outcome: decision.Outcome(outcome), Time: fromMS(closed)}, nil
}

func (j *SQLite) OpenPositionsCount(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE close_time IS NULL`).Scan(&n)
	return n, err
}

// PairExposurePct is the summed risk percent of open trades on pair.
func (j *SQLite) PairExposurePct(ctx context.Context, pair string) (float64, error) {
	name, err := market.NormalizePair(pair)
	if err != nil {
		return 0, err
	}
	var sum sql.NullFloat64
	err = j.db.QueryRowContext(ctx, `
		SELECT SUM(risk_pct) FROM trades
		WHERE close_time IS NULL AND instrument = ?`, name,
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum.Float64, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		t                         TradeRecord
		side, size, entry, sl, tp string
		open                      int64
		exit, outcome             sql.NullString
		closed                    sql.NullInt64
		realized                  sql.NullFloat64
	)
	err := s.Scan(&t.TradeID, &t.Instrument, &side, &size, &entry, &sl, &tp,
		&t.RiskPct, &t.RuleSet, &open, &exit, &closed, &realized, &outcome, &t.Reason)
	if err != nil {
		return TradeRecord{}, err
	}
	t.Side = decision.Action(side)
	t.OpenTime = fromMS(open)
	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{{&t.Size, size}, {&t.EntryPrice, entry}, {&t.StopLoss, sl}, {&t.TakeProfit, tp}} {
		if *p.dst, err = decimal.NewFromString(p.src); err != nil {
			return TradeRecord{}, fmt.Errorf("trade %s: %w", t.TradeID, err)
		}
	}
	if exit.Valid {
		d, err := decimal.NewFromString(exit.String)
		if err != nil {
			return TradeRecord{}, fmt.Errorf("trade %s: %w", t.TradeID, err)
		}
		t.ExitPrice = &d
	}
	if closed.Valid {
		ct := fromMS(closed.Int64)
		t.CloseTime = &ct
	}
	if realized.Valid {
		v := realized.Float64
		t.RealizedPct = &v
	}
	if outcome.Valid {
		t.Outcome = decision.Outcome(outcome.String)
	}
	return t, nil
}

func collect(rows *sql.Rows) ([]TradeRecord, error) {
	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func ms(t time.Time) int64     { return t.UTC().UnixMilli() }
func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }
