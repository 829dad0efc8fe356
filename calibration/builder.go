package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/featurestore"
	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/pkg/logger"
)

var ErrNoData = errors.New("calibration: no usable market data")

// DatasetBuilder produces the dataset for a run.
type DatasetBuilder interface {
	Build(ctx context.Context, markets []string, from, to time.Time) (*Dataset, error)
}

// Builder turns candles into feature frames, stores each market's frames
// as a JSON payload addressed by its SHA-256 and assembles the Dataset.
type Builder struct {
	Source market.CandleSource
	Store  featurestore.Store
	Params FrameParams
	// SpreadPips is the per-market cost estimate; DefaultSpreadPips
	// covers the rest.
	SpreadPips        map[string]float64
	DefaultSpreadPips float64
	Log               *logger.Logger
}

var _ DatasetBuilder = (*Builder)(nil)

type payload struct {
	Pair  string       `json:"pair"`
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
	Rows  []FeatureRow `json:"rows"`
}

func (b *Builder) Build(ctx context.Context, markets []string, from, to time.Time) (*Dataset, error) {
	log := b.Log
	if log == nil {
		log = logger.Nop()
	}
	params := b.Params
	if params == (FrameParams{}) {
		params = DefaultFrameParams()
	}
	defSpread := b.DefaultSpreadPips
	if defSpread <= 0 {
		defSpread = 1.0
	}

	ds := &Dataset{
		Snapshots:     map[string]SnapshotRef{},
		Regime:        map[string]Regime{},
		CostEstimates: map[string]float64{},
		Frames:        map[string][]FeatureRow{},
		Start:         from,
		End:           to,
	}

	for _, m := range markets {
		pair, err := market.NormalizePair(m)
		if err != nil {
			return nil, err
		}
		if _, dup := ds.Frames[pair]; dup {
			continue
		}
		candles, err := b.Source.Candles(ctx, pair, from, to)
		if err != nil {
			return nil, fmt.Errorf("load candles %s: %w", pair, err)
		}
		rows := BuildFrames(pair, candles, params)
		if len(rows) == 0 {
			log.Warn("not enough candles for features, skipping market",
				logger.String("market", pair), logger.Int("candles", len(candles)))
			continue
		}

		data, err := json.Marshal(payload{Pair: pair, Start: rows[0].Time, End: rows[len(rows)-1].Time, Rows: rows})
		if err != nil {
			return nil, err
		}
		hash := featurestore.Hash(data)
		path := ""
		if b.Store != nil {
			if path, err = b.Store.Put(ctx, hash, data); err != nil {
				return nil, fmt.Errorf("store features %s: %w", pair, err)
			}
		}

		reg := regimeOf(pair, rows)
		ds.Markets = append(ds.Markets, pair)
		ds.Frames[pair] = rows
		ds.Regime[pair] = reg
		ds.Snapshots[pair] = SnapshotRef{
			FeatureHash: hash,
			StoragePath: path,
			Meta: SnapshotMeta{
				Bytes:           int64(len(data)),
				Bars:            len(rows),
				VolatilityScore: reg.VolatilityScore,
			},
		}
		cost, ok := b.SpreadPips[pair]
		if !ok {
			cost = defSpread
		}
		ds.CostEstimates[pair] = cost

		log.Info("built features",
			logger.String("market", pair),
			logger.Int("bars", len(rows)),
			logger.String("hash", hash[:12]))
	}
	if len(ds.Markets) == 0 {
		return nil, ErrNoData
	}
	sort.Strings(ds.Markets)
	ds.Tag = datasetTag(ds)
	return ds, nil
}

// datasetTag derives a stable tag from the feature hashes so that seeds
// keyed on it repeat for identical data.
func datasetTag(ds *Dataset) string {
	h := featurestore.Hash([]byte(strings.Join(ds.FeatureHashes(), ",")))
	return "ds-" + h[:12]
}

// NewDataset assembles a dataset from prepared frames without touching
// storage. Costs default to 1 pip.
func NewDataset(frames map[string][]FeatureRow, costs map[string]float64) (*Dataset, error) {
	ds := &Dataset{
		Snapshots:     map[string]SnapshotRef{},
		Regime:        map[string]Regime{},
		CostEstimates: map[string]float64{},
		Frames:        map[string][]FeatureRow{},
	}
	for m, rows := range frames {
		pair, err := market.NormalizePair(m)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		data, err := json.Marshal(rows)
		if err != nil {
			return nil, err
		}
		reg := regimeOf(pair, rows)
		ds.Markets = append(ds.Markets, pair)
		ds.Frames[pair] = rows
		ds.Regime[pair] = reg
		ds.Snapshots[pair] = SnapshotRef{
			FeatureHash: featurestore.Hash(data),
			Meta:        SnapshotMeta{Bytes: int64(len(data)), Bars: len(rows), VolatilityScore: reg.VolatilityScore},
		}
		cost, ok := costs[pair]
		if !ok {
			cost = 1.0
		}
		ds.CostEstimates[pair] = cost

		if ds.Start.IsZero() || rows[0].Time.Before(ds.Start) {
			ds.Start = rows[0].Time
		}
		if last := rows[len(rows)-1].Time; last.After(ds.End) {
			ds.End = last
		}
	}
	if len(ds.Markets) == 0 {
		return nil, ErrNoData
	}
	sort.Strings(ds.Markets)
	ds.Tag = datasetTag(ds)
	return ds, nil
}
