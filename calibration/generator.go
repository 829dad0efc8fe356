package calibration

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/fxcalib/rules"
)

// Axis is a bounded range explored around a baseline value.
type Axis struct {
	Span float64
	Step float64
	Min  float64
	Max  float64
}

// values lists center-span..center+span in steps, clamped to the bounds.
func (a Axis) values(center float64) []float64 {
	set := map[float64]struct{}{}
	n := int(math.Round(a.Span / a.Step))
	for i := -n; i <= n; i++ {
		v := round4(math.Min(a.Max, math.Max(a.Min, center+float64(i)*a.Step)))
		set[v] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func (a Axis) contains(v float64) bool {
	return v >= a.Min-1e-9 && v <= a.Max+1e-9
}

type Axes struct {
	ADX       Axis
	RR        Axis
	SL        Axis
	TP        Axis
	Risk      Axis
	Sentiment []string
}

func DefaultAxes() Axes {
	return Axes{
		ADX:       Axis{Span: 6, Step: 2, Min: 10, Max: 40},
		RR:        Axis{Span: 0.5, Step: 0.25, Min: 1.25, Max: 4},
		SL:        Axis{Span: 0.5, Step: 0.25, Min: 1.5, Max: 4},
		TP:        Axis{Span: 1, Step: 0.5, Min: 1.5, Max: 10},
		Risk:      Axis{Span: 0.5, Step: 0.25, Min: 0.5, Max: 2},
		Sentiment: []string{SentimentOff, SentimentContrarian, SentimentStrict},
	}
}

// Feasibility limits.
const (
	tpTolerance = 0.5
	minRR       = 1.25
	minSLMult   = 1.5
	minRiskPct  = 0.5
	maxRiskPct  = 2.0
)

// Generator builds candidate rule sets. Use one per run: IDs and order
// count up across Generate and Refine.
type Generator struct {
	Axes Axes
	next int
}

func NewGenerator() *Generator {
	return &Generator{Axes: DefaultAxes()}
}

// Correct rewrites TP to SL*RR when the two disagree by more than the
// tolerance.
func Correct(p Params) Params {
	if want := p.SLMult * p.RR; math.Abs(p.TPMult-want) > tpTolerance {
		p.TPMult = round4(want)
	}
	return p
}

// Feasible reports whether p passes the hard constraints and stays inside
// the axes' bounds.
func (g *Generator) Feasible(p Params) bool {
	switch {
	case math.Abs(p.TPMult-p.SLMult*p.RR) > tpTolerance+1e-9:
		return false
	case p.TPMult < p.SLMult:
		return false
	case p.RiskPct < minRiskPct-1e-9 || p.RiskPct > maxRiskPct+1e-9:
		return false
	case p.RR < minRR-1e-9:
		return false
	case p.SLMult < minSLMult-1e-9:
		return false
	}
	a := g.Axes
	return a.ADX.contains(p.ADXMin) && a.RR.contains(p.RR) && a.SL.contains(p.SLMult) &&
		a.TP.contains(p.TPMult) && a.Risk.contains(p.RiskPct)
}

type outerCombo struct {
	adx, rr   float64
	sentiment string
}

type innerCombo struct {
	sl, tp, risk float64
}

// Generate emits the baseline unchanged, then a coarse grid around it: the
// full product when it fits the budget, otherwise a stratified sample that
// spreads the budget over every ADX x RR x sentiment cell.
func (g *Generator) Generate(cfg Config, baseline *rules.RuleSet, ds *Dataset) []Candidate {
	cfg = cfg.withDefaults()
	g.next = 0
	bp := ParamsOf(baseline)

	out := []Candidate{g.candidate("s1", baseline, CandidateMeta{Stage: StageBaseline, Params: bp})}
	seen := map[string]bool{bp.key(): true}

	var outer []outerCombo
	for _, adx := range g.Axes.ADX.values(bp.ADXMin) {
		for _, rr := range g.Axes.RR.values(bp.RR) {
			for _, s := range g.Axes.Sentiment {
				outer = append(outer, outerCombo{adx, rr, s})
			}
		}
	}
	var inner []innerCombo
	for _, sl := range g.Axes.SL.values(bp.SLMult) {
		for _, tp := range g.Axes.TP.values(bp.TPMult) {
			for _, risk := range g.Axes.Risk.values(bp.RiskPct) {
				inner = append(inner, innerCombo{sl, tp, risk})
			}
		}
	}

	emit := func(p Params) bool {
		if len(out) >= cfg.Budget || seen[p.key()] {
			return false
		}
		seen[p.key()] = true
		out = append(out, g.candidate("s1", p.Apply(baseline), CandidateMeta{Stage: StageCoarse, Params: p}))
		return true
	}
	// options lists the distinct feasible inner settings for one outer cell.
	options := func(o outerCombo) []Params {
		var ps []Params
		local := map[string]bool{}
		for _, in := range inner {
			p := Correct(Params{ADXMin: o.adx, RR: o.rr, SLMult: in.sl, TPMult: in.tp, RiskPct: in.risk, Sentiment: o.sentiment})
			if !g.Feasible(p) || local[p.key()] {
				continue
			}
			local[p.key()] = true
			ps = append(ps, p)
		}
		return ps
	}

	budget := cfg.Budget - 1
	if budget <= 0 || len(outer) == 0 || len(inner) == 0 {
		return out
	}
	if len(outer)*len(inner) <= budget {
		for _, o := range outer {
			for _, p := range options(o) {
				emit(p)
			}
		}
		return out
	}

	// Slots a cell cannot fill pass to the next one.
	picked := spread(len(outer), min(len(outer), budget), 0)
	per, extra := budget/len(picked), budget%len(picked)
	carry := 0
	for j, oi := range picked {
		k := per + carry
		if j < extra {
			k++
		}
		got := 0
		ps := options(outer[oi])
		for _, i := range spread(len(ps), k, j) {
			if emit(ps[i]) {
				got++
			}
		}
		carry = k - got
	}
	// Whatever is still short comes from the settings the sample skipped.
	for _, o := range outer {
		if len(out) >= cfg.Budget {
			break
		}
		for _, p := range options(o) {
			emit(p)
		}
	}
	return out
}

// Refine perturbs each of the top performers one step up and down on the
// ADX, RR, SL and risk axes. Variants that fail feasibility are dropped.
func (g *Generator) Refine(top []CandidateScore, cfg Config, baseline *rules.RuleSet) []Candidate {
	cfg = cfg.withDefaults()
	seen := map[string]bool{}
	for _, s := range top {
		seen[s.Candidate.Meta.Params.key()] = true
	}

	var out []Candidate
	n := 0
	for _, parent := range top {
		if n >= cfg.TopRefine {
			break
		}
		if parent.Dropped {
			continue
		}
		n++
		pp := parent.Candidate.Meta.Params
		a := g.Axes
		variants := []Params{
			withADX(pp, pp.ADXMin+a.ADX.Step), withADX(pp, pp.ADXMin-a.ADX.Step),
			withRR(pp, pp.RR+a.RR.Step), withRR(pp, pp.RR-a.RR.Step),
			withSL(pp, pp.SLMult+a.SL.Step), withSL(pp, pp.SLMult-a.SL.Step),
			withRisk(pp, pp.RiskPct+a.Risk.Step), withRisk(pp, pp.RiskPct-a.Risk.Step),
		}
		for _, v := range variants {
			v = Correct(v)
			if !g.Feasible(v) || seen[v.key()] {
				continue
			}
			seen[v.key()] = true
			out = append(out, g.candidate("s2", v.Apply(baseline), CandidateMeta{
				Stage:    StageRefine,
				ParentID: parent.Candidate.ID,
				Params:   v,
			}))
		}
	}
	return out
}

func (g *Generator) candidate(prefix string, rs *rules.RuleSet, meta CandidateMeta) Candidate {
	id := fmt.Sprintf("%s-%04d", prefix, g.next)
	c := Candidate{ID: id, Rules: rs.WithTag(id), Meta: meta, Order: g.next}
	g.next++
	return c
}

func withADX(p Params, v float64) Params  { p.ADXMin = round4(v); return p }
func withRR(p Params, v float64) Params   { p.RR = round4(v); return p }
func withSL(p Params, v float64) Params   { p.SLMult = round4(v); return p }
func withRisk(p Params, v float64) Params { p.RiskPct = round4(v); return p }

// spread picks k of n indices evenly, rotated by offset.
func spread(n, k, offset int) []int {
	if k >= n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	stride := float64(n) / float64(k)
	out := make([]int, k)
	for i := range out {
		out[i] = (int(float64(i)*stride) + offset) % n
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
