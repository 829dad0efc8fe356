package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Config is the complete fxcalib configuration.
type Config struct {
	Log          logger.Config      `json:"log" yaml:"log"`
	Database     DatabaseConfig     `json:"database" yaml:"database"`
	Journal      JournalConfig      `json:"journal" yaml:"journal"`
	FeatureStore FeatureStoreConfig `json:"featurestore" yaml:"featurestore"`
	Data         DataConfig         `json:"data" yaml:"data"`
	Calibration  CalibrationConfig  `json:"calibration" yaml:"calibration"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
	Events       EventsConfig       `json:"events" yaml:"events"`
	Server       ServerConfig       `json:"server" yaml:"server"`
}

// DatabaseConfig locates the rule set store.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path" default:"./data/fxcalib.db" validate:"required"`
}

type JournalConfig struct {
	Path string `json:"path" yaml:"path" default:"./data/journal.db" validate:"required"`
}

// FeatureStoreConfig selects where feature payloads are kept.
type FeatureStoreConfig struct {
	Type string `json:"type" yaml:"type" default:"file" validate:"oneof=file redis"`
	Dir  string `json:"dir" yaml:"dir" default:"./data/features" validate:"required_if=Type file"`

	RedisAddr     string        `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" validate:"required_if=Type redis"`
	RedisPassword string        `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int           `json:"redis_db,omitempty" yaml:"redis_db,omitempty" validate:"gte=0"`
	RedisPrefix   string        `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty" default:"fxcalib"`
	TTL           time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// DataConfig describes the candle history used to build datasets.
type DataConfig struct {
	Source     string             `json:"source" yaml:"source" default:"dir" validate:"oneof=dir clickhouse"`
	CandlesDir string             `json:"candles_dir" yaml:"candles_dir" default:"./data/candles" validate:"required_if=Source dir"`
	Markets    []string           `json:"markets" yaml:"markets" default:"[\"EUR_USD\",\"GBP_USD\",\"USD_JPY\"]" validate:"required,min=1,dive,required"`
	WindowDays int                `json:"window_days" yaml:"window_days" default:"90" validate:"gt=0"`
	SpreadPips map[string]float64 `json:"spread_pips,omitempty" yaml:"spread_pips,omitempty"`

	// DefaultSpreadPips applies to markets missing from SpreadPips.
	DefaultSpreadPips float64 `json:"default_spread_pips" yaml:"default_spread_pips" default:"1.0" validate:"gt=0"`

	ClickHouse ClickHouseConfig `json:"clickhouse" yaml:"clickhouse"`
}

type ClickHouseConfig struct {
	Host     string `json:"host" yaml:"host" default:"localhost"`
	Port     int    `json:"port" yaml:"port" default:"9000"`
	Database string `json:"database" yaml:"database" default:"default"`
	User     string `json:"user" yaml:"user" default:"default"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Table    string `json:"table" yaml:"table" default:"candles"`
}

// CalibrationConfig mirrors calibration.Config.
type CalibrationConfig struct {
	Budget             int     `json:"budget" yaml:"budget" default:"300" validate:"gte=1"`
	TopRefine          int     `json:"top_refine" yaml:"top_refine" default:"20" validate:"gte=1"`
	Finalists          int     `json:"finalists" yaml:"finalists" default:"10" validate:"gte=1"`
	MCRuns             int     `json:"mc_runs" yaml:"mc_runs" default:"1000" validate:"gte=1"`
	MCMonths           int     `json:"mc_months" yaml:"mc_months" default:"12" validate:"gte=1"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct" yaml:"max_drawdown_pct" default:"15" validate:"gt=0,lte=100"`
	MaxMonthlyLossProb float64 `json:"max_monthly_loss_prob" yaml:"max_monthly_loss_prob" default:"25" validate:"gt=0,lte=100"`
	StressHitDrop      float64 `json:"stress_hit_drop" yaml:"stress_hit_drop" default:"0.1" validate:"gt=0,lt=1"`
	FastMC             bool    `json:"fast_mc" yaml:"fast_mc"`
	MinTradesPerDay    float64 `json:"min_trades_per_day" yaml:"min_trades_per_day" default:"0.3" validate:"gt=0"`
	Workers            int     `json:"workers" yaml:"workers" validate:"gte=0"`
	Stride             int     `json:"stride" yaml:"stride" default:"4" validate:"gte=1"`
	Balance            float64 `json:"balance" yaml:"balance" default:"10000" validate:"gt=0"`

	// HeuristicOnly skips the classifier.
	HeuristicOnly bool `json:"heuristic_only" yaml:"heuristic_only"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" default:"/metrics"`
}

// EventsConfig publishes calibration and activation events to Kafka.
type EventsConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Brokers      []string      `json:"brokers,omitempty" yaml:"brokers,omitempty" validate:"required_if=Enabled true"`
	Topic        string        `json:"topic" yaml:"topic" default:"fxcalib.rulesets"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" default:"10s"`
}

type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" default:"15s"`
}

var validate = validator.New()

// LoadFromFile loads configuration from a YAML or JSON file, fills
// unset fields with defaults and applies environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load reads path when it exists and falls back to Default otherwise.
// A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadFromFile(path)
		}
	}
	cfg := Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with FXCALIB_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FXCALIB_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("FXCALIB_JOURNAL_DB"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("FXCALIB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FXCALIB_CANDLES_DIR"); v != "" {
		c.Data.CandlesDir = v
	}
	if v := os.Getenv("FXCALIB_MARKETS"); v != "" {
		c.Data.Markets = strings.Split(v, ",")
	}
	if v := os.Getenv("FXCALIB_REDIS_ADDR"); v != "" {
		c.FeatureStore.Type = "redis"
		c.FeatureStore.RedisAddr = v
	}
	if v := os.Getenv("FXCALIB_KAFKA_BROKERS"); v != "" {
		c.Events.Enabled = true
		c.Events.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FXCALIB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Calibration.Workers = n
		}
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks struct tags, then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, m := range c.Data.Markets {
		if _, err := market.NormalizePair(m); err != nil {
			return fmt.Errorf("data.markets: %w", err)
		}
	}
	for m, v := range c.Data.SpreadPips {
		if v <= 0 {
			return fmt.Errorf("data.spread_pips.%s must be positive", m)
		}
	}
	if c.Data.Source == "clickhouse" && c.Data.ClickHouse.Host == "" {
		return fmt.Errorf("data.clickhouse.host is required for the clickhouse source")
	}
	return nil
}

// Markets returns the configured markets in canonical form.
func (c *Config) Markets() []string {
	out := make([]string, 0, len(c.Data.Markets))
	for _, m := range c.Data.Markets {
		if n, err := market.NormalizePair(m); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	// Only fails on malformed default tags.
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}
