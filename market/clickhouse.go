package market

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseOption configures a ClickHouseSource.
type ClickHouseOption func(*ClickHouseConfig)

type ClickHouseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	Table       string
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

func WithClickHouseHost(host string, port int) ClickHouseOption {
	return func(c *ClickHouseConfig) {
		c.Host = host
		c.Port = port
	}
}

func WithClickHouseDatabase(database string) ClickHouseOption {
	return func(c *ClickHouseConfig) { c.Database = database }
}

func WithClickHouseCredentials(user, password string) ClickHouseOption {
	return func(c *ClickHouseConfig) {
		c.User = user
		c.Password = password
	}
}

func WithClickHouseTable(table string) ClickHouseOption {
	return func(c *ClickHouseConfig) { c.Table = table }
}

// CandleTableDDL creates the table ClickHouseSource reads.
const CandleTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	instrument LowCardinality(String),
	ts         DateTime64(3, 'UTC'),
	open       Float64,
	high       Float64,
	low        Float64,
	close      Float64,
	volume     Float64
) ENGINE = ReplacingMergeTree
ORDER BY (instrument, ts)`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ClickHouseSource reads candles from a ClickHouse table with one row per
// instrument and bar.
type ClickHouseSource struct {
	db    *sql.DB
	table string
}

func NewClickHouseSource(opts ...ClickHouseOption) (*ClickHouseSource, error) {
	cfg := &ClickHouseConfig{
		Port:        9000,
		Database:    "default",
		User:        "default",
		Table:       "candles",
		DialTimeout: 5 * time.Second,
		ReadTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	db, err := sql.Open("clickhouse", clickHouseDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return NewSQLSource(db, cfg.Table)
}

// NewSQLSource reads candles through an already open database.
func NewSQLSource(db *sql.DB, table string) (*ClickHouseSource, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ClickHouseSource{db: db, table: table}, nil
}

func clickHouseDSN(cfg ClickHouseConfig) string {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s?dial_timeout=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.DialTimeout)
	if cfg.ReadTimeout > 0 {
		dsn += fmt.Sprintf("&read_timeout=%s", cfg.ReadTimeout)
	}
	return dsn
}

// Candles returns the bars in [from, to). Zero bounds are open.
func (s *ClickHouseSource) Candles(ctx context.Context, instrument string, from, to time.Time) ([]Candle, error) {
	name, err := NormalizePair(instrument)
	if err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = time.Unix(0, 0)
	}
	if to.IsZero() {
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	q := fmt.Sprintf(`
		SELECT ts, open, high, low, close, volume
		FROM %s
		WHERE instrument = ? AND ts >= ? AND ts < ?
		ORDER BY ts`, s.table)
	rows, err := s.db.QueryContext(ctx, q, name, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candles %s: %w", name, err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ClickHouseSource) Close() error { return s.db.Close() }
