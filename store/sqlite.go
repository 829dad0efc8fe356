package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/rules"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the rule-set repository.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLite)(nil)

func Open(dbPath string) (*SQLite, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection so the PRAGMAs below hold for every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const recordColumns = `id, tag, period_start, period_end, base_rules, market_overrides,
	emergency_overrides, metadata, metrics, risk_bands, regime_snapshot, provenance,
	model_artifacts, feature_hash, mc_seed, is_active, created_at`

func (s *SQLite) GetByTag(ctx context.Context, tag string) (*Record, error) {
	return s.one(ctx, `SELECT `+recordColumns+` FROM rule_sets WHERE tag = ?`, tag)
}

// Active returns the single active rule set, or ErrNotFound.
func (s *SQLite) Active(ctx context.Context) (*Record, error) {
	return s.one(ctx, `SELECT `+recordColumns+` FROM rule_sets WHERE is_active = 1`)
}

// Latest returns the most recently written rule set.
func (s *SQLite) Latest(ctx context.Context) (*Record, error) {
	return s.one(ctx, `SELECT `+recordColumns+` FROM rule_sets ORDER BY id DESC LIMIT 1`)
}

func (s *SQLite) Exists(ctx context.Context, tag string) (bool, error) {
	return exists(ctx, s.db, tag)
}

// List returns every rule set, newest first.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM rule_sets ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rule sets: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Snapshots returns the feature snapshots stored with a rule set.
func (s *SQLite) Snapshots(ctx context.Context, tag string) ([]FeatureSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fs.rule_set_id, fs.market, fs.feature_hash, fs.storage_path, fs.metadata
		FROM feature_snapshots fs JOIN rule_sets rs ON rs.id = fs.rule_set_id
		WHERE rs.tag = ?
		ORDER BY fs.market ASC`, tag)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []FeatureSnapshot
	for rows.Next() {
		var (
			fs   FeatureSnapshot
			meta string
		)
		if err := rows.Scan(&fs.RuleSetID, &fs.Market, &fs.FeatureHash, &fs.StoragePath, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &fs.Meta); err != nil {
			return nil, fmt.Errorf("snapshot %s metadata: %w", fs.Market, err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// SaveCalibration writes the baseline (if new), the winner and its feature
// snapshots in one transaction. A duplicate winner tag fails before any
// write. New rule sets are never active.
func (s *SQLite) SaveCalibration(ctx context.Context, w CalibrationWrite) (int64, error) {
	if w.Winner.Rules == nil {
		return 0, errors.New("store: winner rules are required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dup, err := exists(ctx, tx, w.Winner.Tag)
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTag, w.Winner.Tag)
	}

	if w.Baseline != nil {
		have, err := exists(ctx, tx, w.Baseline.Tag)
		if err != nil {
			return 0, err
		}
		if !have {
			if _, err := s.insert(ctx, tx, *w.Baseline); err != nil {
				return 0, fmt.Errorf("write baseline %s: %w", w.Baseline.Tag, err)
			}
		}
	}

	id, err := s.insert(ctx, tx, w.Winner)
	if err != nil {
		return 0, fmt.Errorf("write rule set %s: %w", w.Winner.Tag, err)
	}

	for _, fs := range w.Snapshots {
		meta, err := json.Marshal(fs.Meta)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feature_snapshots (rule_set_id, market, feature_hash, storage_path, metadata)
			VALUES (?, ?, ?, ?, ?)`,
			id, fs.Market, fs.FeatureHash, fs.StoragePath, string(meta))
		if err != nil {
			return 0, fmt.Errorf("write snapshot %s: %w", fs.Market, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Activate makes tag the only active rule set.
func (s *SQLite) Activate(ctx context.Context, tag string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ok, err := exists(ctx, tx, tag)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, tag)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE rule_sets SET is_active = 0 WHERE is_active = 1 AND tag <> ?`, tag); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rule_sets SET is_active = 1 WHERE tag = ?`, tag); err != nil {
		return fmt.Errorf("activate %s: %w", tag, err)
	}
	return tx.Commit()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exists(ctx context.Context, q execQuerier, tag string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_sets WHERE tag = ?`, tag).Scan(&n); err != nil {
		return false, fmt.Errorf("check tag %s: %w", tag, err)
	}
	return n > 0, nil
}

func (s *SQLite) insert(ctx context.Context, q execQuerier, r Record) (int64, error) {
	if strings.TrimSpace(r.Tag) == "" {
		return 0, errors.New("tag is required")
	}
	if r.Rules == nil {
		return 0, errors.New("rules are required")
	}
	doc := r.Rules.Document()

	cols := []any{doc.Base, doc.MarketOverrides, doc.EmergencyOverrides, doc.Metadata,
		r.Metrics, r.RiskBands, r.Regime, r.Provenance, r.ModelArtifacts}
	enc := make([]any, len(cols))
	for i, v := range cols {
		js, err := marshal(v)
		if err != nil {
			return 0, err
		}
		enc[i] = js
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO rule_sets
		(tag, period_start, period_end, base_rules, market_overrides, emergency_overrides,
		 metadata, metrics, risk_bands, regime_snapshot, provenance, model_artifacts,
		 feature_hash, mc_seed, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		append(append([]any{r.Tag, ms(r.PeriodStart), ms(r.PeriodEnd)}, enc...),
			r.FeatureHash, r.MCSeed, ms(s.now()))...,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) one(ctx context.Context, query string, args ...any) (*Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, args[0])
		}
		return nil, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r                                   Record
		start, end, created                 int64
		base, market, emergency, meta       string
		metrics, bands, regime, prov, model string
	)
	err := sc.Scan(&r.ID, &r.Tag, &start, &end, &base, &market, &emergency, &meta,
		&metrics, &bands, &regime, &prov, &model, &r.FeatureHash, &r.MCSeed, &r.IsActive, &created)
	if err != nil {
		return nil, err
	}
	r.PeriodStart, r.PeriodEnd, r.CreatedAt = fromMS(start), fromMS(end), fromMS(created)

	var doc rules.Document
	doc.Tag = r.Tag
	targets := []struct {
		src string
		dst any
	}{
		{base, &doc.Base},
		{market, &doc.MarketOverrides},
		{emergency, &doc.EmergencyOverrides},
		{meta, &doc.Metadata},
		{metrics, &r.Metrics},
		{bands, &r.RiskBands},
		{regime, &r.Regime},
		{prov, &r.Provenance},
		{model, &r.ModelArtifacts},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.src), t.dst); err != nil {
			return nil, fmt.Errorf("rule set %s: decode column: %w", r.Tag, err)
		}
	}
	if r.Rules, err = rules.FromDocument(doc); err != nil {
		return nil, err
	}
	return &r, nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMS(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
