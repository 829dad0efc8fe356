package calibration

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/fxcalib/rules"
)

const (
	StageBaseline = "baseline"
	StageCoarse   = "coarse"
	StageRefine   = "refine"
)

// Sentiment gate modes explored by the generator.
const (
	SentimentOff        = "off"
	SentimentContrarian = "contrarian"
	SentimentStrict     = "strict"
)

// Params are the knobs calibration turns.
type Params struct {
	ADXMin    float64 `json:"adx_min"`
	RR        float64 `json:"rr"`
	SLMult    float64 `json:"sl_atr_mult"`
	TPMult    float64 `json:"tp_atr_mult"`
	RiskPct   float64 `json:"risk_pct"`
	Sentiment string  `json:"sentiment_mode"`
}

func (p Params) key() string {
	return fmt.Sprintf("%.4f|%.4f|%.4f|%.4f|%.4f|%s", p.ADXMin, p.RR, p.SLMult, p.TPMult, p.RiskPct, p.Sentiment)
}

// ParamsOf reads the calibrated knobs out of a rule set.
func ParamsOf(rs *rules.RuleSet) Params {
	ex := rs.Execution()
	rr, ok := ex.OptFloat("min_rr")
	if !ok {
		rr = ex.Float("rr", 2)
	}
	risk, ok := rs.OptFloat("risk.per_trade_pct.default")
	if !ok {
		risk = rs.Float("risk.per_trade_pct", 1)
	}
	return Params{
		ADXMin:    rs.Gates().Float("adx_min", 20),
		RR:        rr,
		SLMult:    ex.Float("sl_atr_mult", 2),
		TPMult:    ex.Float("tp_atr_mult", 4),
		RiskPct:   risk,
		Sentiment: rs.SentimentGate().String("mode", SentimentContrarian),
	}
}

// Apply returns baseline with p written into it.
func (p Params) Apply(baseline *rules.RuleSet) *rules.RuleSet {
	rs := baseline.
		With("gates.adx_min", p.ADXMin).
		With("execution.rr", p.RR).
		With("execution.sl_atr_mult", p.SLMult).
		With("execution.tp_atr_mult", p.TPMult).
		With("risk.per_trade_pct", map[string]any{"default": p.RiskPct}).
		With("sentiment_gate.mode", p.Sentiment)
	if _, ok := baseline.Execution().OptFloat("min_rr"); ok {
		rs = rs.With("execution.min_rr", p.RR)
	}
	return rs
}

type CandidateMeta struct {
	Stage    string `json:"stage"`
	ParentID string `json:"parent_id,omitempty"`
	Params   Params `json:"params"`
}

// Candidate is one rule set under evaluation. Order is its generation
// position and breaks ranking ties.
type Candidate struct {
	ID    string
	Rules *rules.RuleSet
	Meta  CandidateMeta
	Order int
}

type Metrics struct {
	HitRate      float64  `json:"hit_rate"`
	TradesPerDay float64  `json:"trades_per_day"`
	Expectancy   float64  `json:"expectancy"`
	SharpeProxy  float64  `json:"sharpe_proxy"`
	Composite    float64  `json:"composite"`
	MLScore      *float64 `json:"ml_score,omitempty"`
	Method       string   `json:"method"`
	Trades       int      `json:"trades"`
	AvgSLPips    float64  `json:"avg_sl_pips"`
}

// RiskBands is the Monte Carlo risk profile.
type RiskBands struct {
	P95DrawdownPct  float64 `json:"p95_drawdown_pct"`
	MonthlyLossProb float64 `json:"monthly_loss_prob"`
	VaR95Pct        float64 `json:"var95_pct"`
	MaxConsecLosses int     `json:"max_consec_losses"`
	Survived        bool    `json:"stress_survived"`
	Evaluated       bool    `json:"evaluated"`
}

type CandidateScore struct {
	Candidate Candidate
	Metrics   Metrics
	Risk      RiskBands
	Dropped   bool
}

// DroppedComposite marks candidates that trade too rarely to rank.
const DroppedComposite = -1e9

const (
	MethodML        = "ml"
	MethodHeuristic = "heuristic"
)

func composite(expectancy, sharpe, tradesPerDay float64) float64 {
	return 0.5*expectancy + 0.3*sharpe + 0.2*math.Min(tradesPerDay/3, 1)
}

// Rank sorts by composite, then expectancy, descending. Generation order
// breaks ties.
func Rank(scores []CandidateScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Metrics.Composite != b.Metrics.Composite {
			return a.Metrics.Composite > b.Metrics.Composite
		}
		if a.Metrics.Expectancy != b.Metrics.Expectancy {
			return a.Metrics.Expectancy > b.Metrics.Expectancy
		}
		return a.Candidate.Order < b.Candidate.Order
	})
}
