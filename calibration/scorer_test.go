package calibration

import (
	"context"
	"errors"
	"testing"

	"github.com/rustyeddy/fxcalib/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Budget = 40
	cfg.TopRefine = 5
	cfg.Finalists = 5
	cfg.MCRuns = 200
	cfg.Workers = 2
	return cfg
}

func candidates(t *testing.T, cfg Config) []Candidate {
	t.Helper()
	cands := NewGenerator().Generate(cfg, rules.Default(), nil)
	require.NotEmpty(t, cands)
	return cands
}

func TestHeuristicIsDeterministic(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	s := NewScorer(smallConfig(), nil, nil, nil)
	c := candidates(t, smallConfig())[3]

	assert.Equal(t, s.heuristic(c, ds), s.heuristic(c, ds))

	// With a fixed seed the metrics only depend on the parameters.
	s.Seed = func(string) int64 { return 7 }
	twin := c
	twin.ID = "other"
	assert.Equal(t, s.heuristic(c, ds), s.heuristic(twin, ds))

	m := s.heuristic(c, ds)
	assert.Equal(t, MethodHeuristic, m.Method)
	assert.Nil(t, m.MLScore)
	assert.GreaterOrEqual(t, m.HitRate, 0.05)
	assert.LessOrEqual(t, m.HitRate, 0.95)
	assert.InDelta(t, c.Meta.Params.SLMult*ds.MeanATRPips(), m.AvgSLPips, 1e-9)
}

func TestScoreWithoutClassifier(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())
	s := NewScorer(smallConfig(), nil, nil, nil)

	scores, err := s.Score(context.Background(), cands, ds)
	require.NoError(t, err)
	require.Len(t, scores, len(cands))
	assert.False(t, s.MLReady())

	for i, sc := range scores {
		assert.Equal(t, MethodHeuristic, sc.Metrics.Method)
		assert.InDelta(t, 3*sc.Metrics.HitRate-1, sc.Metrics.Expectancy, 1e-9)
		if i > 0 {
			assert.GreaterOrEqual(t, scores[i-1].Metrics.Composite, sc.Metrics.Composite)
		}
	}
}

func TestScorePrepareFailureFallsBack(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())
	clf := &stubClassifier{p: 0.9, prepErr: errors.New("no labels")}
	s := NewScorer(smallConfig(), clf, nil, nil)

	for range 2 {
		scores, err := s.Score(context.Background(), cands, ds)
		require.NoError(t, err)
		for _, sc := range scores {
			assert.Equal(t, MethodHeuristic, sc.Metrics.Method)
		}
	}
	assert.Equal(t, 1, clf.prepared)
	assert.False(t, s.MLReady())
}

func TestScoreWithClassifier(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())
	s := NewScorer(smallConfig(), &stubClassifier{p: 0.6}, nil, nil)

	scores, err := s.Score(context.Background(), cands, ds)
	require.NoError(t, err)
	assert.True(t, s.MLReady())

	traded := 0
	for _, sc := range scores {
		m := sc.Metrics
		assert.Equal(t, MethodML, m.Method)
		require.NotNil(t, m.MLScore)
		if m.Trades == 0 {
			assert.True(t, sc.Dropped)
			continue
		}
		traded++
		assert.InDelta(t, 0.6, m.HitRate, 1e-9)
		assert.InDelta(t, 0.8, m.Expectancy, 1e-9)
		assert.Positive(t, m.AvgSLPips)
		assert.InDelta(t, float64(m.Trades*4)/ds.SpanDays(), m.TradesPerDay, 1e-9)
	}
	assert.Positive(t, traded)
}

func TestScorePredictFailureIsPerCandidate(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())
	clf := &stubClassifier{p: 0.5, failWhen: func(x []float64) bool { return x[7] == 0.5 }}
	s := NewScorer(smallConfig(), clf, nil, nil)

	scores, err := s.Score(context.Background(), cands, ds)
	require.NoError(t, err)
	for _, sc := range scores {
		if sc.Candidate.Meta.Params.SLMult != 2 {
			assert.Equal(t, MethodML, sc.Metrics.Method, sc.Candidate.ID)
			continue
		}
		// SL 2 candidates fail as soon as they trade.
		if sc.Metrics.Method == MethodML {
			assert.Zero(t, sc.Metrics.Trades)
		}
	}
}

func TestScorePredictPanicIsPerCandidate(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())
	clf := &stubClassifier{p: 0.5, panicWhen: func([]float64) bool { return true }}
	s := NewScorer(smallConfig(), clf, nil, nil)

	var scores []CandidateScore
	require.NotPanics(t, func() {
		var err error
		scores, err = s.Score(context.Background(), cands, ds)
		require.NoError(t, err)
	})
	require.Len(t, scores, len(cands))
	assert.True(t, s.MLReady())

	// Only candidates that reach the classifier fall back.
	heuristic := 0
	for _, sc := range scores {
		if sc.Metrics.Method == MethodML {
			assert.Zero(t, sc.Metrics.Trades, sc.Candidate.ID)
			continue
		}
		heuristic++
		assert.Equal(t, MethodHeuristic, sc.Metrics.Method)
		assert.Nil(t, sc.Metrics.MLScore)
	}
	assert.Positive(t, heuristic)
}

func TestScoreZeroValueScorer(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())
	s := &Scorer{Classifier: &stubClassifier{p: 0.6}}

	scores, err := s.Score(context.Background(), cands, ds)
	require.NoError(t, err)
	require.Len(t, scores, len(cands))
	assert.Equal(t, DefaultConfig().Stride, s.Config.Stride)
	for _, sc := range scores {
		assert.Equal(t, MethodML, sc.Metrics.Method)
	}
}

func TestScoreIndependentOfWorkers(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cands := candidates(t, smallConfig())

	run := func(workers int) []CandidateScore {
		cfg := smallConfig()
		cfg.Workers = workers
		scores, err := NewScorer(cfg, &stubClassifier{p: 0.55}, nil, nil).Score(context.Background(), cands, ds)
		require.NoError(t, err)
		return scores
	}
	a, b := run(1), run(8)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Candidate.ID, b[i].Candidate.ID)
		assert.Equal(t, a[i].Metrics, b[i].Metrics)
		assert.Equal(t, a[i].Dropped, b[i].Dropped)
	}
}

func TestScoreDropsRareTraders(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	cfg := smallConfig()
	cfg.MinTradesPerDay = 100
	cands := candidates(t, cfg)

	scores, err := NewScorer(cfg, nil, nil, nil).Score(context.Background(), cands, ds)
	require.NoError(t, err)
	for _, sc := range scores {
		assert.True(t, sc.Dropped)
		assert.Equal(t, DroppedComposite, sc.Metrics.Composite)
	}
}

func TestScoreCancelled(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScorer(smallConfig(), nil, nil, nil).Score(ctx, candidates(t, smallConfig()), ds)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRank(t *testing.T) {
	t.Parallel()
	mk := func(id string, order int, comp, exp float64) CandidateScore {
		return CandidateScore{
			Candidate: Candidate{ID: id, Order: order},
			Metrics:   Metrics{Composite: comp, Expectancy: exp},
		}
	}
	scores := []CandidateScore{
		mk("c", 2, 0.5, 0.1),
		mk("a", 0, 0.5, 0.2),
		mk("d", 3, 0.9, 0.0),
		mk("b", 1, 0.5, 0.1),
	}
	Rank(scores)
	var ids []string
	for _, sc := range scores {
		ids = append(ids, sc.Candidate.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestSyntheticSnapshot(t *testing.T) {
	t.Parallel()
	ds := synthDataset(t)
	row := ds.Frames["USD_JPY"][100]
	snap, err := SyntheticSnapshot("USD_JPY", row, 1.2, 10000)
	require.NoError(t, err)

	price, ok := snap.LastPrice()
	require.True(t, ok)
	assert.Equal(t, row.Close, price)
	atr, ok := snap.ATRPips()
	require.True(t, ok)
	assert.Equal(t, row.ATRPips, atr)
	long, short, ok := snap.Sentiment()
	require.True(t, ok)
	assert.InDelta(t, 100-row.StochK, long, 1e-9)
	assert.InDelta(t, row.StochK, short, 1e-9)
}
