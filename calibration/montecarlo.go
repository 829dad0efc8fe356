package calibration

import (
	"context"
	"math"
	"math/rand"

	"github.com/rustyeddy/fxcalib/pkg/logger"
)

// tradingDaysPerMonth converts trades per day into trades per month.
const tradingDaysPerMonth = 21

// Evaluator stress-tests finalists by resampling a year of trades and
// filters out the ones whose risk profile is unacceptable.
type Evaluator struct {
	Config Config
	Seed   SeedFunc
	Log    *logger.Logger
}

func NewEvaluator(cfg Config, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Nop()
	}
	return &Evaluator{Config: cfg.withDefaults(), Seed: FNVSeed, Log: log}
}

// Evaluate takes the topN ranked, non-dropped candidates and returns the
// survivors in their original order with Risk filled in.
func (e *Evaluator) Evaluate(ctx context.Context, scored []CandidateScore, ds *Dataset, topN, runs int) ([]CandidateScore, error) {
	e.Config = e.Config.withDefaults()
	cfg := e.Config
	if e.Seed == nil {
		e.Seed = FNVSeed
	}
	if e.Log == nil {
		e.Log = logger.Nop()
	}
	if runs <= 0 {
		runs = cfg.MCRuns
	}
	if topN <= 0 {
		topN = cfg.Finalists
	}

	var out []CandidateScore
	taken := 0
	for _, sc := range scored {
		if taken >= topN {
			break
		}
		if sc.Dropped {
			continue
		}
		taken++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			rb     RiskBands
			reason string
		)
		if cfg.FastMC {
			rb, reason = e.fast(sc, ds)
		} else {
			rb, reason = e.simulate(sc, ds, runs)
		}
		if reason != "" {
			e.Log.Debug("candidate excluded by monte carlo",
				logger.String("candidate", sc.Candidate.ID), logger.String("reason", reason))
			continue
		}
		sc.Risk = rb
		out = append(out, sc)
	}
	return out, nil
}

// costPct is the per-trade cost as a percent of balance.
func costPct(sc CandidateScore, ds *Dataset) float64 {
	sl := sc.Metrics.AvgSLPips
	if sl <= 0 {
		return 0
	}
	return sc.Candidate.Meta.Params.RiskPct * ds.MeanCostPips() / sl
}

func tradesPerMonth(sc CandidateScore) int {
	return int(math.Round(sc.Metrics.TradesPerDay * tradingDaysPerMonth))
}

func (e *Evaluator) simulate(sc CandidateScore, ds *Dataset, runs int) (RiskBands, string) {
	cfg := e.Config
	perMonth := tradesPerMonth(sc)
	if perMonth <= 0 {
		return RiskBands{}, "no trades"
	}
	risk := sc.Candidate.Meta.Params.RiskPct
	cost := costPct(sc, ds)
	rng := rand.New(rand.NewSource(e.Seed(sc.Candidate.ID + ds.Tag + "/mc")))

	run := func(hit float64) (dd float64, months []float64, streak int) {
		equity, peak := 100.0, 100.0
		cur := 0
		months = make([]float64, cfg.MCMonths)
		for m := range months {
			start := equity
			for t := 0; t < perMonth; t++ {
				r := -risk
				if rng.Float64() < hit {
					r = 2 * risk
					cur = 0
				} else {
					cur++
					streak = max(streak, cur)
				}
				equity *= 1 + (r-cost)/100
				peak = math.Max(peak, equity)
				dd = math.Max(dd, (peak-equity)/peak*100)
			}
			months[m] = (equity - start) / start * 100
		}
		return dd, months, streak
	}

	var (
		dds, monthly []float64
		streaks      []float64
		losing       int
	)
	for i := 0; i < runs; i++ {
		dd, months, streak := run(sc.Metrics.HitRate)
		dds = append(dds, dd)
		streaks = append(streaks, float64(streak))
		for _, m := range months {
			monthly = append(monthly, m)
			if m < 0 {
				losing++
			}
		}
	}

	var stressDD []float64
	stressHit := sc.Metrics.HitRate * (1 - cfg.StressHitDrop)
	for i := 0; i < max(runs/4, 1); i++ {
		dd, _, _ := run(stressHit)
		stressDD = append(stressDD, dd)
	}

	rb := RiskBands{
		P95DrawdownPct:  percentile(dds, 0.95),
		MonthlyLossProb: float64(losing) / float64(len(monthly)) * 100,
		VaR95Pct:        -percentile(monthly, 0.05),
		MaxConsecLosses: int(math.Ceil(percentile(streaks, 0.95))),
		Evaluated:       true,
	}
	rb.Survived = percentile(stressDD, 0.95) <= cfg.MaxDrawdownPct
	return rb, e.check(rb)
}

// fast estimates the risk profile analytically from a normal approximation
// of monthly returns. Only the frequency and expectancy filters apply.
func (e *Evaluator) fast(sc CandidateScore, ds *Dataset) (RiskBands, string) {
	perMonth := tradesPerMonth(sc)
	if perMonth <= 0 || sc.Metrics.TradesPerDay < e.Config.MinTradesPerDay {
		return RiskBands{}, "trade frequency"
	}
	if sc.Metrics.Expectancy <= 0 {
		return RiskBands{}, "expectancy"
	}

	h := sc.Metrics.HitRate
	risk := sc.Candidate.Meta.Params.RiskPct
	mean := risk*(3*h-1) - costPct(sc, ds)
	sd := 3 * risk * math.Sqrt(h*(1-h))
	n := float64(perMonth)
	mMean, mSD := n*mean, math.Sqrt(n)*sd

	rb := RiskBands{Survived: true, Evaluated: true}
	if mSD > 0 {
		rb.MonthlyLossProb = normCDF(-mMean/mSD) * 100
	} else if mMean < 0 {
		rb.MonthlyLossProb = 100
	}
	rb.VaR95Pct = -(mMean - 1.645*mSD)
	rb.P95DrawdownPct = math.Max(rb.VaR95Pct, 0)
	if q := 1 - h; q > 0 && q < 1 {
		total := n * float64(e.Config.MCMonths)
		rb.MaxConsecLosses = max(0, int(math.Ceil(math.Log(total*h)/math.Log(1/q))))
	}
	if !finite(rb.P95DrawdownPct, rb.MonthlyLossProb, rb.VaR95Pct) {
		return RiskBands{}, "non-finite metrics"
	}
	return rb, ""
}

func (e *Evaluator) check(rb RiskBands) string {
	switch {
	case !finite(rb.P95DrawdownPct, rb.MonthlyLossProb, rb.VaR95Pct):
		return "non-finite metrics"
	case rb.P95DrawdownPct > e.Config.MaxDrawdownPct:
		return "drawdown"
	case rb.MonthlyLossProb > e.Config.MaxMonthlyLossProb:
		return "monthly loss probability"
	}
	return ""
}
