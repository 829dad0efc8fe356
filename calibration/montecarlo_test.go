package calibration

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcDataset() *Dataset {
	return &Dataset{
		Tag:           "ds-test",
		Markets:       []string{"EUR_USD"},
		CostEstimates: map[string]float64{"EUR_USD": 1.0},
	}
}

func scored(id string, risk, hit, tpd float64) CandidateScore {
	sc := CandidateScore{
		Candidate: Candidate{ID: id, Meta: CandidateMeta{Stage: StageCoarse, Params: Params{
			ADXMin: 20, RR: 2, SLMult: 2, TPMult: 4, RiskPct: risk, Sentiment: SentimentContrarian,
		}}},
		Metrics: Metrics{HitRate: hit, TradesPerDay: tpd, AvgSLPips: 20},
	}
	sc.Metrics.Expectancy = 3*hit - 1
	return sc
}

func TestEvaluateFiltersRisk(t *testing.T) {
	t.Parallel()
	ev := NewEvaluator(Config{MCRuns: 300}, nil)
	in := []CandidateScore{
		scored("safe", 0.5, 0.5, 1),
		scored("risky", 2, 0.3, 1),
	}
	out, err := ev.Evaluate(context.Background(), in, mcDataset(), 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)

	rb := out[0].Risk
	assert.Equal(t, "safe", out[0].Candidate.ID)
	assert.True(t, rb.Evaluated)
	assert.True(t, rb.Survived)
	assert.Positive(t, rb.P95DrawdownPct)
	assert.LessOrEqual(t, rb.P95DrawdownPct, 15.0)
	assert.LessOrEqual(t, rb.MonthlyLossProb, 25.0)
	assert.Positive(t, rb.MaxConsecLosses)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	t.Parallel()
	in := []CandidateScore{scored("a", 0.5, 0.45, 1), scored("b", 0.75, 0.42, 1.5)}
	run := func() []CandidateScore {
		out, err := NewEvaluator(Config{MCRuns: 200}, nil).Evaluate(context.Background(), in, mcDataset(), 10, 0)
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, run(), run())
}

func TestEvaluateZeroValueEvaluator(t *testing.T) {
	t.Parallel()
	ev := &Evaluator{}
	out, err := ev.Evaluate(context.Background(), []CandidateScore{scored("safe", 0.5, 0.5, 1)}, mcDataset(), 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)

	rb := out[0].Risk
	assert.True(t, rb.Evaluated)
	assert.False(t, math.IsNaN(rb.MonthlyLossProb))
	assert.False(t, math.IsNaN(rb.P95DrawdownPct))
	assert.Equal(t, DefaultConfig().MCMonths, ev.Config.MCMonths)
}

func TestEvaluateTopNAndDropped(t *testing.T) {
	t.Parallel()
	dropped := scored("dropped", 0.5, 0.45, 1)
	dropped.Dropped = true
	in := []CandidateScore{
		dropped,
		scored("a", 0.5, 0.5, 1),
		scored("b", 0.5, 0.51, 1),
		scored("c", 0.5, 0.52, 1),
	}
	out, err := NewEvaluator(Config{MCRuns: 200}, nil).Evaluate(context.Background(), in, mcDataset(), 2, 0)
	require.NoError(t, err)

	var ids []string
	for _, sc := range out {
		ids = append(ids, sc.Candidate.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestEvaluateSkipsNonTraders(t *testing.T) {
	t.Parallel()
	out, err := NewEvaluator(Config{MCRuns: 100}, nil).
		Evaluate(context.Background(), []CandidateScore{scored("idle", 0.5, 0.5, 0)}, mcDataset(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEvaluateFast(t *testing.T) {
	t.Parallel()
	ev := NewEvaluator(Config{FastMC: true}, nil)
	in := []CandidateScore{
		scored("safe", 0.5, 0.45, 1),
		scored("losing", 0.5, 0.3, 1),
		// Positive expectancy passes even with a large drawdown.
		scored("aggressive", 2, 0.4, 2),
		scored("rare", 0.5, 0.5, 0.1),
	}
	out, err := ev.Evaluate(context.Background(), in, mcDataset(), 10, 0)
	require.NoError(t, err)

	var ids []string
	for _, sc := range out {
		ids = append(ids, sc.Candidate.ID)
		assert.True(t, sc.Risk.Evaluated)
		assert.GreaterOrEqual(t, sc.Risk.MaxConsecLosses, 0)
		assert.GreaterOrEqual(t, sc.Risk.P95DrawdownPct, 0.0)
	}
	assert.Equal(t, []string{"safe", "aggressive"}, ids)
}

func TestEvaluateCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator(Config{}, nil).Evaluate(ctx, []CandidateScore{scored("a", 0.5, 0.45, 1)}, mcDataset(), 10, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCostPct(t *testing.T) {
	t.Parallel()
	sc := scored("a", 1, 0.5, 1)
	assert.InDelta(t, 0.05, costPct(sc, mcDataset()), 1e-12)
	sc.Metrics.AvgSLPips = 0
	assert.Zero(t, costPct(sc, mcDataset()))
}

func TestPercentile(t *testing.T) {
	t.Parallel()
	xs := []float64{5, 1, 4, 2, 3}
	assert.InDelta(t, 1.0, percentile(xs, 0), 1e-12)
	assert.InDelta(t, 3.0, percentile(xs, 0.5), 1e-12)
	assert.InDelta(t, 5.0, percentile(xs, 1), 1e-12)
	assert.InDelta(t, 4.8, percentile(xs, 0.95), 1e-12)
	// Input order untouched.
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, xs)
}
