package calibration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/fxcalib/featurestore"
	"github.com/rustyeddy/fxcalib/rules"
	"github.com/rustyeddy/fxcalib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	pipe     *Pipeline
	store    *store.SQLite
	baseline string
	opts     RunOptions
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fs, err := featurestore.NewFile(filepath.Join(dir, "features"))
	require.NoError(t, err)

	src := memSource{
		"EUR_USD": synthCandles(1500, 1, 1.10),
		"USD_JPY": synthCandles(1500, 2, 150.0),
	}
	baseline := filepath.Join(dir, "baseline.yaml")
	require.NoError(t, rules.SaveFile(rules.Default(), baseline))

	return &pipelineFixture{
		pipe: &Pipeline{
			Store:   st,
			Builder: &Builder{Source: src, Store: fs, SpreadPips: map[string]float64{"EUR_USD": 0.8}},
			Config:  smallConfig(),
			Now:     func() time.Time { return start.AddDate(0, 2, 0) },
		},
		store:    st,
		baseline: baseline,
		opts: RunOptions{
			Markets: []string{"EUR_USD", "USD_JPY"},
			From:    start,
			To:      start.AddDate(0, 1, 15),
		},
	}
}

func (f *pipelineFixture) run(t *testing.T, mutate func(*RunOptions)) (*Report, error) {
	t.Helper()
	opts := f.opts
	if mutate != nil {
		mutate(&opts)
	}
	return f.pipe.Run(context.Background(), opts)
}

func TestPipelinePersistsWinner(t *testing.T) {
	t.Parallel()
	f := newPipeline(t)
	ctx := context.Background()

	rep, err := f.run(t, func(o *RunOptions) {
		o.Tag = "cal-one"
		o.BaselineFile = f.baseline
	})
	require.NoError(t, err)

	assert.True(t, rep.Persisted)
	assert.Positive(t, rep.RuleSetID)
	assert.Equal(t, "file", rep.BaselineSource)
	assert.Equal(t, rules.DefaultTag, rep.BaselineTag)
	assert.Equal(t, []string{"EUR_USD", "USD_JPY"}, rep.Markets)
	assert.LessOrEqual(t, rep.Generated, 40)
	assert.Equal(t, rep.Generated+rep.Refined, rep.Scored)
	assert.False(t, rep.MLScoring)
	require.NotNil(t, rep.Winner)
	assert.NotEmpty(t, rep.Timings)

	rec, err := f.store.GetByTag(ctx, "cal-one")
	require.NoError(t, err)
	assert.Equal(t, rep.RuleSetID, rec.ID)
	assert.False(t, rec.IsActive)
	assert.Equal(t, "cal-one", rec.Rules.Tag())
	meta := rec.Rules.Metadata()
	assert.Equal(t, rep.RunID, meta["run_id"])
	assert.Equal(t, rep.Winner.Candidate.ID, meta["candidate_id"])
	assert.Equal(t, rules.DefaultTag, rec.Provenance.SourceTag)
	assert.Equal(t, rep.Markets, rec.Provenance.Markets)
	assert.NotEmpty(t, rec.FeatureHash)
	assert.Contains(t, rec.Metrics, "scoring")
	assert.Equal(t, ParamsOf(rep.Winner.Candidate.Rules), ParamsOf(rec.Rules))

	base, err := f.store.GetByTag(ctx, "default-baseline")
	require.NoError(t, err)
	assert.Equal(t, ParamsOf(rules.Default()), ParamsOf(base.Rules))

	snaps, err := f.store.Snapshots(ctx, "cal-one")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.NotEmpty(t, s.FeatureHash)
		assert.NotEmpty(t, s.StoragePath)
		assert.Positive(t, s.Meta.Bars)
	}
}

func TestPipelineBaselineResolution(t *testing.T) {
	t.Parallel()
	f := newPipeline(t)
	ctx := context.Background()

	_, err := f.run(t, func(o *RunOptions) { o.Tag = "cal-one" })
	require.ErrorIs(t, err, ErrNoBaseline)

	_, err = f.run(t, func(o *RunOptions) {
		o.Tag = "cal-one"
		o.BaselineFile = filepath.Join(t.TempDir(), "missing.yaml")
	})
	require.ErrorIs(t, err, ErrNoBaseline)

	_, err = f.run(t, func(o *RunOptions) {
		o.Tag = "cal-one"
		o.BaselineFile = f.baseline
	})
	require.NoError(t, err)

	// The active rule set wins over the latest, and an existing baseline
	// record is not written twice.
	require.NoError(t, f.store.Activate(ctx, "default-baseline"))
	rep, err := f.run(t, func(o *RunOptions) { o.Tag = "cal-two" })
	require.NoError(t, err)
	assert.Equal(t, "active", rep.BaselineSource)
	assert.Equal(t, "default-baseline", rep.BaselineTag)

	all, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rep, err = f.run(t, func(o *RunOptions) {
		o.Tag = "cal-three"
		o.BaselineTag = "cal-one"
	})
	require.NoError(t, err)
	assert.Equal(t, "tag", rep.BaselineSource)
	_, err = f.store.GetByTag(ctx, "cal-one-baseline")
	assert.NoError(t, err)

	_, err = f.run(t, func(o *RunOptions) {
		o.Tag = "cal-four"
		o.BaselineTag = "nope"
	})
	assert.ErrorIs(t, err, ErrNoBaseline)
}

func TestPipelineDuplicateTag(t *testing.T) {
	t.Parallel()
	f := newPipeline(t)

	_, err := f.run(t, func(o *RunOptions) {
		o.Tag = "cal-one"
		o.BaselineFile = f.baseline
	})
	require.NoError(t, err)

	_, err = f.run(t, func(o *RunOptions) {
		o.Tag = "cal-one"
		o.BaselineFile = f.baseline
	})
	assert.ErrorIs(t, err, store.ErrDuplicateTag)
}

func TestPipelineDryRun(t *testing.T) {
	t.Parallel()
	f := newPipeline(t)
	f.pipe.Store = nil

	rep, err := f.run(t, func(o *RunOptions) { o.DryRun = true })
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.False(t, rep.Persisted)
	assert.Equal(t, "default", rep.BaselineSource)
	assert.Equal(t, "cal-20250306-000000", rep.Tag)
	require.NotNil(t, rep.Winner)
	assert.Zero(t, rep.RuleSetID)

	// Dry runs against a real store leave it empty.
	f2 := newPipeline(t)
	_, err = f2.run(t, func(o *RunOptions) {
		o.DryRun = true
		o.BaselineFile = f2.baseline
	})
	require.NoError(t, err)
	all, err := f2.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPipelineRequiresStore(t *testing.T) {
	t.Parallel()
	f := newPipeline(t)
	f.pipe.Store = nil
	_, err := f.run(t, nil)
	assert.Error(t, err)
}

func TestBaselineTag(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "default-baseline", baselineTag("default", "run"))
	assert.Equal(t, "", baselineTag("default-baseline", "run"))
	assert.Equal(t, "run-baseline", baselineTag("", "run"))
}

func TestBestByExpectancy(t *testing.T) {
	t.Parallel()
	scores := []CandidateScore{
		{Candidate: Candidate{ID: "a", Order: 1}, Metrics: Metrics{Expectancy: 0.9}, Dropped: true},
		{Candidate: Candidate{ID: "b", Order: 2}, Metrics: Metrics{Expectancy: 0.3}},
		{Candidate: Candidate{ID: "c", Order: 0}, Metrics: Metrics{Expectancy: 0.3}},
	}
	assert.Equal(t, "c", bestByExpectancy(scores).Candidate.ID)
}
