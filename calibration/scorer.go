package calibration

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/rustyeddy/fxcalib/decision"
	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/pkg/metrics"
	"github.com/rustyeddy/fxcalib/snapshot"
)

// SeedFunc turns a string key into a PRNG seed.
type SeedFunc func(key string) int64

// FNVSeed hashes key with FNV-64a.
func FNVSeed(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// Scorer rates candidates by replaying the dataset through the decision
// engine under each candidate's rules. Use one Scorer per run: the
// classifier is prepared on the first Score call and reused.
type Scorer struct {
	Config     Config
	Classifier Classifier
	Seed       SeedFunc
	Log        *logger.Logger
	Metrics    *metrics.Recorder

	once    sync.Once
	mlReady bool
}

func NewScorer(cfg Config, clf Classifier, log *logger.Logger, rec *metrics.Recorder) *Scorer {
	if log == nil {
		log = logger.Nop()
	}
	return &Scorer{Config: cfg.withDefaults(), Classifier: clf, Seed: FNVSeed, Log: log, Metrics: rec}
}

// MLReady reports whether the classifier prepared successfully.
func (s *Scorer) MLReady() bool { return s.mlReady }

// Score rates every candidate and returns them ranked. Results do not
// depend on worker count or scheduling.
func (s *Scorer) Score(ctx context.Context, cands []Candidate, ds *Dataset) ([]CandidateScore, error) {
	s.Config = s.Config.withDefaults()
	if s.Log == nil {
		s.Log = logger.Nop()
	}
	if s.Seed == nil {
		s.Seed = FNVSeed
	}
	s.prepare(ctx, ds)

	workers := s.Config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, max(len(cands), 1))

	out := make([]CandidateScore, len(cands))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = s.scoreOne(ctx, cands[i], ds)
			}
		}()
	}

feed:
	for i := range cands {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	Rank(out)
	return out, nil
}

func (s *Scorer) prepare(ctx context.Context, ds *Dataset) {
	s.once.Do(func() {
		if s.Classifier == nil {
			s.Log.Info("no classifier configured, using heuristic scoring")
			return
		}
		if err := s.Classifier.Prepare(ctx, ds); err != nil {
			s.Log.Warn("classifier preparation failed, using heuristic scoring for this run", logger.Error(err))
			s.Metrics.RecordFault("classifier_prepare")
			return
		}
		s.mlReady = true
	})
}

func (s *Scorer) scoreOne(ctx context.Context, c Candidate, ds *Dataset) CandidateScore {
	if s.mlReady {
		m, err := s.safeMLMetrics(ctx, c, ds)
		if err == nil {
			return s.finish(c, m)
		}
		s.Log.Warn("ml scoring failed, using heuristic for candidate",
			logger.String("candidate", c.ID), logger.Error(err))
		s.Metrics.RecordFault("classifier_predict")
	}
	return s.finish(c, s.heuristic(c, ds))
}

// safeMLMetrics turns a classifier panic into an error so one candidate
// cannot take down the pool.
func (s *Scorer) safeMLMetrics(ctx context.Context, c Candidate, ds *Dataset) (m Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.mlMetrics(ctx, c, ds)
}

// finish derives expectancy, sharpe and composite from hit rate and
// trade frequency, and drops rare traders.
func (s *Scorer) finish(c Candidate, m Metrics) CandidateScore {
	m.Expectancy = 2*m.HitRate - (1 - m.HitRate)
	if sd := 3 * math.Sqrt(m.HitRate*(1-m.HitRate)); sd > 0 {
		m.SharpeProxy = m.Expectancy / sd
	}
	m.Composite = composite(m.Expectancy, m.SharpeProxy, m.TradesPerDay)

	sc := CandidateScore{Candidate: c, Metrics: m}
	if m.TradesPerDay < s.Config.MinTradesPerDay {
		sc.Dropped = true
		sc.Metrics.Composite = DroppedComposite
	}
	return sc
}

func (s *Scorer) mlMetrics(ctx context.Context, c Candidate, ds *Dataset) (Metrics, error) {
	clock := decision.NewManualClock(ds.Start)
	eng := decision.New(
		decision.WithClock(clock),
		decision.WithLedger(decision.NullLedger{}),
	)
	p := c.Meta.Params

	var (
		sumP, sumSL float64
		n           int
	)
	for _, pair := range ds.Markets {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		rs := c.Rules.ForMarket(pair)
		cost := ds.CostEstimates[pair]
		for i, row := range ds.Frames[pair] {
			if i%s.Config.Stride != 0 {
				continue
			}
			snap, err := SyntheticSnapshot(pair, row, cost, s.Config.Balance)
			if err != nil {
				return Metrics{}, err
			}
			clock.Set(row.Time)
			res := eng.Decide(ctx, snap, rs)
			if !res.Executable() {
				continue
			}
			dir := snapshot.Buy
			if res.Action == decision.Sell {
				dir = snapshot.Sell
			}
			sl, tp := res.SLPips.InexactFloat64(), res.TPPips.InexactFloat64()
			x := Features(row, Trade{Pair: pair, Dir: dir, SLPips: sl, TPPips: tp, SpreadPips: cost}, p)
			prob, err := s.Classifier.Predict(x)
			if err != nil {
				return Metrics{}, fmt.Errorf("predict %s: %w", c.ID, err)
			}
			sumP += prob
			sumSL += sl
			n++
		}
	}

	m := Metrics{Method: MethodML, Trades: n}
	if n > 0 {
		m.HitRate = sumP / float64(n)
		m.AvgSLPips = sumSL / float64(n)
		m.TradesPerDay = float64(n*s.Config.Stride) / ds.SpanDays()
	}
	hit := m.HitRate
	m.MLScore = &hit
	return m, nil
}

// heuristic is deterministic per candidate id and dataset tag. A higher
// ADX bar and a contrarian sentiment gate lift the hit rate; a higher RR
// lowers it.
func (s *Scorer) heuristic(c Candidate, ds *Dataset) Metrics {
	rng := rand.New(rand.NewSource(s.Seed(c.ID + ds.Tag)))
	p := c.Meta.Params

	hit := 0.42 + 0.004*(p.ADXMin-20) - 0.06*(p.RR-2) + (rng.Float64()-0.5)*0.08
	switch p.Sentiment {
	case SentimentContrarian:
		hit += 0.02
	case SentimentStrict:
		hit += 0.01
	}
	hit = math.Min(0.95, math.Max(0.05, hit))

	tpd := (1.6 - 0.04*(p.ADXMin-20) - 0.2*(p.RR-2)) * (0.8 + 0.4*rng.Float64())
	tpd = math.Max(0, tpd)

	return Metrics{
		Method:       MethodHeuristic,
		HitRate:      hit,
		TradesPerDay: tpd,
		Trades:       int(math.Round(tpd * ds.SpanDays())),
		AvgSLPips:    p.SLMult * ds.MeanATRPips(),
	}
}

// SyntheticSnapshot turns a feature row into a decision context. The
// trend supplies the direction and ADX the strength; the crowd is taken
// to fade the stochastic.
func SyntheticSnapshot(pair string, row FeatureRow, costPips, balance float64) (*snapshot.Snapshot, error) {
	strength := math.Min(1, math.Max(0, row.ADX/50))
	return snapshot.NewBuilder(pair).
		At(row.Time).
		Status(snapshot.StatusTradeable).
		DataAge(0).
		Balance(balance).
		LastPrice(row.Close).
		Spread(costPips*market.PipSizeFloat(pair)).
		ATRPips(row.ATRPips).
		Sentiment(100-row.StochK, row.StochK).
		News(trendDirection(row.Trend), strength).
		SARTrend(row.SARTrend).
		Trend30m(row.Trend).
		Feature(snapshot.EMAFast, row.EMAFast).
		Feature(snapshot.EMASlow, row.EMASlow).
		Feature(snapshot.EMAZ, row.EMAZ).
		Feature(snapshot.ATR, row.ATR).
		Feature(snapshot.ADX, row.ADX).
		Feature(snapshot.RSI, row.RSI).
		Feature(snapshot.StochK, row.StochK).
		Feature(snapshot.WilliamsR, row.WilliamsR).
		Feature(snapshot.CCI, row.CCI).
		Feature(snapshot.SAR, row.SAR).
		Feature(snapshot.BBUpper, row.BBUpper).
		Feature(snapshot.BBLower, row.BBLower).
		Feature(snapshot.TRUpper, row.TRUpper).
		Feature(snapshot.TRLower, row.TRLower).
		Feature(snapshot.Support, row.Support).
		Feature(snapshot.Resistance, row.Resistance).
		Build()
}
