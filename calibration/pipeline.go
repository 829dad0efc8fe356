package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/fxcalib/featurestore"
	"github.com/rustyeddy/fxcalib/pkg/id"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/pkg/metrics"
	"github.com/rustyeddy/fxcalib/rules"
	"github.com/rustyeddy/fxcalib/store"
)

var (
	ErrNoBaseline   = errors.New("calibration: no baseline rule set")
	ErrNoCandidates = errors.New("calibration: no candidate survived scoring")
)

// RuleSetStore is the persistence the pipeline needs.
type RuleSetStore interface {
	GetByTag(ctx context.Context, tag string) (*store.Record, error)
	Active(ctx context.Context) (*store.Record, error)
	Latest(ctx context.Context) (*store.Record, error)
	Exists(ctx context.Context, tag string) (bool, error)
	SaveCalibration(ctx context.Context, w store.CalibrationWrite) (int64, error)
}

// Pipeline runs one calibration end to end.
type Pipeline struct {
	Store   RuleSetStore
	Builder DatasetBuilder
	Config  Config
	// NewClassifier returns the model for a run; nil means heuristic only.
	NewClassifier func(seed int64) Classifier
	Seed          SeedFunc
	Log           *logger.Logger
	Metrics       *metrics.Recorder
	Now           func() time.Time
}

type RunOptions struct {
	// Tag for the winning rule set. Generated when empty.
	Tag          string
	BaselineTag  string
	BaselineFile string
	Markets      []string
	From         time.Time
	To           time.Time
	WindowDays   int
	DryRun       bool
}

type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Report describes a finished run.
type Report struct {
	RunID          string
	Tag            string
	BaselineTag    string
	BaselineSource string
	DatasetTag     string
	Markets        []string
	Generated      int
	Refined        int
	Scored         int
	Dropped        int
	MLScoring      bool
	Finalists      []CandidateScore
	Survivors      []CandidateScore
	Winner         *CandidateScore
	WinnerFallback bool
	RuleSetID      int64
	Persisted      bool
	DryRun         bool
	Timings        []StageTiming
}

func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	log := p.Log
	if log == nil {
		log = logger.Nop()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	seed := p.Seed
	if seed == nil {
		seed = FNVSeed
	}
	cfg := p.Config.withDefaults()

	started := now()
	rep := &Report{RunID: id.At(started), DryRun: opts.DryRun}
	log = log.With(logger.String("run_id", rep.RunID))

	stage := func(name string, fn func() error) error {
		t0 := time.Now()
		log.Info("stage started", logger.String("stage", name))
		err := fn()
		d := time.Since(t0)
		rep.Timings = append(rep.Timings, StageTiming{Stage: name, Duration: d})
		p.Metrics.ObserveStage(name, d)
		if err != nil {
			log.Error("stage failed", logger.String("stage", name), logger.Error(err))
			return err
		}
		log.Info("stage finished", logger.String("stage", name), logger.Duration("took", d))
		return nil
	}

	if !opts.DryRun && p.Store == nil {
		return nil, errors.New("calibration: a store is required unless dry-run")
	}

	var baseline *rules.RuleSet
	if err := stage("baseline", func() error {
		var err error
		baseline, rep.BaselineSource, err = p.resolveBaseline(ctx, opts)
		return err
	}); err != nil {
		return nil, err
	}
	rep.BaselineTag = baseline.Tag()

	rep.Tag = opts.Tag
	if rep.Tag == "" {
		rep.Tag = "cal-" + started.UTC().Format("20060102-150405")
	}
	if !opts.DryRun {
		dup, err := p.Store.Exists(ctx, rep.Tag)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateTag, rep.Tag)
		}
	}

	from, to := opts.From, opts.To
	if to.IsZero() {
		to = started
	}
	if from.IsZero() {
		days := opts.WindowDays
		if days <= 0 {
			days = 90
		}
		from = to.AddDate(0, 0, -days)
	}

	var ds *Dataset
	if err := stage("dataset", func() error {
		var err error
		ds, err = p.Builder.Build(ctx, opts.Markets, from, to)
		return err
	}); err != nil {
		return nil, err
	}
	rep.DatasetTag = ds.Tag
	rep.Markets = ds.Markets

	var clf Classifier
	if p.NewClassifier != nil {
		clf = p.NewClassifier(seed(ds.Tag + "/model"))
	}
	scorer := NewScorer(cfg, clf, log, p.Metrics)
	scorer.Seed = seed
	gen := NewGenerator()

	var s1, s2 []CandidateScore
	if err := stage("stage1", func() error {
		cands := gen.Generate(cfg, baseline, ds)
		rep.Generated = len(cands)
		p.Metrics.RecordCandidates("stage1", "generated", len(cands))
		var err error
		s1, err = scorer.Score(ctx, cands, ds)
		return err
	}); err != nil {
		return nil, err
	}
	rep.MLScoring = scorer.MLReady()

	if err := stage("stage2", func() error {
		cands := gen.Refine(s1, cfg, baseline)
		rep.Refined = len(cands)
		p.Metrics.RecordCandidates("stage2", "generated", len(cands))
		var err error
		s2, err = scorer.Score(ctx, cands, ds)
		return err
	}); err != nil {
		return nil, err
	}

	all := append(append([]CandidateScore(nil), s1...), s2...)
	Rank(all)
	rep.Scored = len(all)
	for _, sc := range all {
		if sc.Dropped {
			rep.Dropped++
		} else if len(rep.Finalists) < cfg.Finalists {
			rep.Finalists = append(rep.Finalists, sc)
		}
	}
	p.Metrics.RecordCandidates("scoring", "dropped", rep.Dropped)
	if len(rep.Finalists) == 0 {
		return rep, ErrNoCandidates
	}

	if err := stage("montecarlo", func() error {
		ev := NewEvaluator(cfg, log)
		ev.Seed = seed
		var err error
		rep.Survivors, err = ev.Evaluate(ctx, rep.Finalists, ds, cfg.Finalists, cfg.MCRuns)
		return err
	}); err != nil {
		return nil, err
	}
	p.Metrics.RecordCandidates("montecarlo", "survived", len(rep.Survivors))
	p.Metrics.RecordCandidates("montecarlo", "excluded", len(rep.Finalists)-len(rep.Survivors))

	if len(rep.Survivors) > 0 {
		w := rep.Survivors[0]
		rep.Winner = &w
	} else {
		w := bestByExpectancy(all)
		rep.Winner = &w
		rep.WinnerFallback = true
		log.Warn("no finalist survived monte carlo, falling back to best expectancy",
			logger.String("candidate", w.Candidate.ID))
	}
	p.Metrics.RecordWinner(map[string]float64{
		"composite":  rep.Winner.Metrics.Composite,
		"expectancy": rep.Winner.Metrics.Expectancy,
		"hit_rate":   rep.Winner.Metrics.HitRate,
	})

	if opts.DryRun {
		log.Info("dry run, nothing persisted", logger.String("winner", rep.Winner.Candidate.ID))
		return rep, nil
	}

	if err := stage("persist", func() error {
		w, err := p.write(rep, baseline, ds, from, to, seed, now())
		if err != nil {
			return err
		}
		rep.RuleSetID, err = p.Store.SaveCalibration(ctx, w)
		return err
	}); err != nil {
		return nil, err
	}
	rep.Persisted = true
	return rep, nil
}

// resolveBaseline tries the explicit tag, then the active rule set, then
// the latest one, then the YAML file. Dry runs fall back to the built-in
// defaults.
func (p *Pipeline) resolveBaseline(ctx context.Context, opts RunOptions) (*rules.RuleSet, string, error) {
	if opts.BaselineTag != "" {
		if p.Store == nil {
			return nil, "", fmt.Errorf("%w: no store to look up %s", ErrNoBaseline, opts.BaselineTag)
		}
		rec, err := p.Store.GetByTag(ctx, opts.BaselineTag)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrNoBaseline, err)
		}
		return rec.Rules, "tag", nil
	}
	if p.Store != nil {
		for _, src := range []struct {
			name string
			get  func(context.Context) (*store.Record, error)
		}{{"active", p.Store.Active}, {"latest", p.Store.Latest}} {
			rec, err := src.get(ctx)
			if err == nil {
				return rec.Rules, src.name, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, "", err
			}
		}
	}
	if opts.BaselineFile != "" {
		rs, err := rules.LoadFile(opts.BaselineFile)
		if err == nil {
			return rs, "file", nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", err
		}
	}
	if opts.DryRun {
		return rules.Default(), "default", nil
	}
	return nil, "", ErrNoBaseline
}

func (p *Pipeline) write(rep *Report, baseline *rules.RuleSet, ds *Dataset, from, to time.Time, seed SeedFunc, at time.Time) (store.CalibrationWrite, error) {
	win := rep.Winner

	doc := win.Candidate.Rules.Document()
	doc.Tag = rep.Tag
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	doc.Metadata["run_id"] = rep.RunID
	doc.Metadata["candidate_id"] = win.Candidate.ID
	doc.Metadata["stage"] = win.Candidate.Meta.Stage
	doc.Metadata["source_tag"] = rep.BaselineTag
	winRules, err := rules.FromDocument(doc)
	if err != nil {
		return store.CalibrationWrite{}, err
	}

	metricsMap, err := toMap(struct {
		Scoring   Metrics `json:"scoring"`
		Params    Params  `json:"params"`
		Fallback  bool    `json:"winner_fallback"`
		Survivors int     `json:"survivors"`
	}{win.Metrics, win.Candidate.Meta.Params, rep.WinnerFallback, len(rep.Survivors)})
	if err != nil {
		return store.CalibrationWrite{}, err
	}
	bands, err := toMap(win.Risk)
	if err != nil {
		return store.CalibrationWrite{}, err
	}
	regime, err := toMap(ds.Regime)
	if err != nil {
		return store.CalibrationWrite{}, err
	}

	hashes := ds.FeatureHashes()
	w := store.CalibrationWrite{
		Winner: store.Record{
			Tag:         rep.Tag,
			PeriodStart: from,
			PeriodEnd:   to,
			Rules:       winRules,
			Metrics:     metricsMap,
			RiskBands:   bands,
			Regime:      regime,
			Provenance: store.Provenance{
				SourceTag:   rep.BaselineTag,
				GeneratedAt: at,
				Markets:     ds.Markets,
				WindowDays:  int(to.Sub(from).Hours() / 24),
				RunID:       rep.RunID,
			},
			ModelArtifacts: map[string]any{
				"candidates":     rep.Scored,
				"stage1":         rep.Generated,
				"stage2":         rep.Refined,
				"ml_scoring":     rep.MLScoring,
				"dataset_tag":    ds.Tag,
				"feature_hashes": hashes,
			},
			FeatureHash: featurestore.Hash([]byte(strings.Join(hashes, ","))),
			MCSeed:      seed(win.Candidate.ID + ds.Tag + "/mc"),
		},
	}

	if bt := baselineTag(baseline.Tag(), rep.Tag); bt != "" {
		w.Baseline = &store.Record{
			Tag:         bt,
			PeriodStart: from,
			PeriodEnd:   to,
			Rules:       baseline.WithTag(bt),
			Provenance: store.Provenance{
				SourceTag:   baseline.Tag(),
				GeneratedAt: at,
				Markets:     ds.Markets,
				RunID:       rep.RunID,
			},
		}
	}

	for _, m := range ds.Markets {
		ref := ds.Snapshots[m]
		w.Snapshots = append(w.Snapshots, store.FeatureSnapshot{
			Market:      m,
			FeatureHash: ref.FeatureHash,
			StoragePath: ref.StoragePath,
			Meta: store.SnapshotMeta{
				Bytes:           ref.Meta.Bytes,
				Bars:            ref.Meta.Bars,
				VolatilityScore: ref.Meta.VolatilityScore,
			},
		})
	}
	return w, nil
}

// baselineTag names the pre-calibration snapshot "<source>-baseline". A
// source that is already a baseline record is not copied again.
func baselineTag(source, runTag string) string {
	if strings.HasSuffix(source, "-baseline") {
		return ""
	}
	if source == "" {
		source = runTag
	}
	return source + "-baseline"
}

func bestByExpectancy(scores []CandidateScore) CandidateScore {
	best := -1
	for i, sc := range scores {
		if sc.Dropped {
			continue
		}
		if best < 0 || sc.Metrics.Expectancy > scores[best].Metrics.Expectancy ||
			(sc.Metrics.Expectancy == scores[best].Metrics.Expectancy && sc.Candidate.Order < scores[best].Candidate.Order) {
			best = i
		}
	}
	return scores[best]
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
