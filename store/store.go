// Package store persists calibrated rule sets and the feature snapshots
// they were calibrated on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/fxcalib/rules"
)

var (
	ErrNotFound     = errors.New("store: rule set not found")
	ErrDuplicateTag = errors.New("store: rule set tag already exists")
)

// Provenance records where a rule set came from.
type Provenance struct {
	SourceTag   string    `json:"source_tag"`
	GeneratedAt time.Time `json:"generated_at"`
	Markets     []string  `json:"markets"`
	WindowDays  int       `json:"window_days"`
	RunID       string    `json:"run_id,omitempty"`
}

// Record is a persisted rule set. Rules carries base, overrides and
// metadata under Tag.
type Record struct {
	ID             int64
	Tag            string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Rules          *rules.RuleSet
	Metrics        map[string]any
	RiskBands      map[string]any
	Regime         map[string]any
	Provenance     Provenance
	ModelArtifacts map[string]any
	FeatureHash    string
	MCSeed         int64
	IsActive       bool
	CreatedAt      time.Time
}

type SnapshotMeta struct {
	Bytes           int64   `json:"bytes"`
	Bars            int     `json:"bars"`
	VolatilityScore float64 `json:"volatility_score"`
}

// FeatureSnapshot points at the stored feature payload a rule set was
// calibrated on.
type FeatureSnapshot struct {
	RuleSetID   int64
	Market      string
	FeatureHash string
	StoragePath string
	Meta        SnapshotMeta
}

// CalibrationWrite is everything one calibration run persists. Baseline is
// optional and skipped when its tag already exists.
type CalibrationWrite struct {
	Baseline  *Record
	Winner    Record
	Snapshots []FeatureSnapshot
}

type Repository interface {
	GetByTag(ctx context.Context, tag string) (*Record, error)
	Active(ctx context.Context) (*Record, error)
	Latest(ctx context.Context) (*Record, error)
	Exists(ctx context.Context, tag string) (bool, error)
	List(ctx context.Context) ([]Record, error)
	SaveCalibration(ctx context.Context, w CalibrationWrite) (int64, error)
	Activate(ctx context.Context, tag string) error
	Close() error
}
