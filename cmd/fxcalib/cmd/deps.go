package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/rustyeddy/fxcalib/calibration"
	"github.com/rustyeddy/fxcalib/config"
	"github.com/rustyeddy/fxcalib/decision"
	"github.com/rustyeddy/fxcalib/featurestore"
	"github.com/rustyeddy/fxcalib/journal"
	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/pkg/events"
	"github.com/rustyeddy/fxcalib/store"
)

func (a *app) openStore() (*store.SQLite, error) {
	if err := ensureDir(a.cfg.Database.Path); err != nil {
		return nil, err
	}
	st, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open rule set store: %w", err)
	}
	return st, nil
}

func (a *app) openJournal() (*journal.SQLite, error) {
	if err := ensureDir(a.cfg.Journal.Path); err != nil {
		return nil, err
	}
	j, err := journal.NewSQLite(a.cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func (a *app) openFeatureStore() (featurestore.Store, error) {
	fs := a.cfg.FeatureStore
	switch fs.Type {
	case "redis":
		r, err := featurestore.NewRedis(
			featurestore.WithRedisAddr(fs.RedisAddr),
			featurestore.WithRedisPassword(fs.RedisPassword),
			featurestore.WithRedisDB(fs.RedisDB),
			featurestore.WithRedisPrefix(fs.RedisPrefix),
			featurestore.WithRedisTTL(fs.TTL),
		)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		f, err := featurestore.NewFile(fs.Dir)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// candleSource returns the configured source and a close func.
func (a *app) candleSource() (market.CandleSource, func() error, error) {
	d := a.cfg.Data
	switch d.Source {
	case "clickhouse":
		ch := d.ClickHouse
		src, err := market.NewClickHouseSource(
			market.WithClickHouseHost(ch.Host, ch.Port),
			market.WithClickHouseDatabase(ch.Database),
			market.WithClickHouseCredentials(ch.User, ch.Password),
			market.WithClickHouseTable(ch.Table),
		)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return market.DirSource{Dir: d.CandlesDir}, func() error { return nil }, nil
	}
}

func (a *app) publisher() (events.Publisher, error) {
	ev := a.cfg.Events
	if !ev.Enabled {
		return events.Nop{}, nil
	}
	k, err := events.NewKafka(
		events.WithBrokers(ev.Brokers),
		events.WithTopic(ev.Topic),
		events.WithWriteTimeout(ev.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return k, nil
}

func (a *app) engine(ledger decision.Ledger) *decision.Engine {
	opts := []decision.Option{
		decision.WithLogger(a.log),
		decision.WithMetrics(a.metrics),
	}
	if ledger != nil {
		opts = append(opts, decision.WithLedger(ledger))
	}
	return decision.New(opts...)
}

func calibrationConfig(c config.CalibrationConfig) calibration.Config {
	return calibration.Config{
		Budget:             c.Budget,
		TopRefine:          c.TopRefine,
		Finalists:          c.Finalists,
		MCRuns:             c.MCRuns,
		MCMonths:           c.MCMonths,
		MaxDrawdownPct:     c.MaxDrawdownPct,
		MaxMonthlyLossProb: c.MaxMonthlyLossProb,
		StressHitDrop:      c.StressHitDrop,
		FastMC:             c.FastMC,
		MinTradesPerDay:    c.MinTradesPerDay,
		Workers:            c.Workers,
		Stride:             c.Stride,
		Balance:            c.Balance,
	}
}

func classifierFactory(c config.CalibrationConfig) func(int64) calibration.Classifier {
	if c.HeuristicOnly {
		return nil
	}
	return func(seed int64) calibration.Classifier { return calibration.NewLogisticModel(seed) }
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// confirm asks a yes/no question unless yes is already set.
func confirm(message string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	ok := false
	prompt := &survey.Confirm{Message: message, Default: false}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
