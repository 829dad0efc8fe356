// Package metrics records decision and calibration activity in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the fxcalib collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	decisions  *prometheus.CounterVec
	blocks     *prometheus.CounterVec
	faults     *prometheus.CounterVec
	candidates *prometheus.CounterVec
	stage      *prometheus.HistogramVec
	winner     *prometheus.GaugeVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxcalib_decisions_total",
				Help: "Decisions made, by pair and action",
			},
			[]string{"pair", "action"},
		),
		blocks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxcalib_decision_blocks_total",
				Help: "Blocked decisions by reason",
			},
			[]string{"reason"},
		),
		faults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxcalib_collaborator_faults_total",
				Help: "Ledger or clock failures replaced by conservative values",
			},
			[]string{"call"},
		),
		candidates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxcalib_candidates_total",
				Help: "Calibration candidates by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		stage: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxcalib_calibration_stage_seconds",
				Help:    "Duration of calibration stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		winner: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxcalib_winner_metric",
				Help: "Metrics of the last calibration winner",
			},
			[]string{"metric"},
		),
	}
}

// RecordDecision counts a decision and, when blocked, its reason.
func (r *Recorder) RecordDecision(pair, action string, blocked bool, reason string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(pair, action).Inc()
	if blocked {
		r.blocks.WithLabelValues(reason).Inc()
	}
}

// RecordFault counts a collaborator failure.
func (r *Recorder) RecordFault(call string) {
	if r == nil {
		return
	}
	r.faults.WithLabelValues(call).Inc()
}

// RecordCandidates adds n candidates for stage/outcome.
func (r *Recorder) RecordCandidates(stage, outcome string, n int) {
	if r == nil {
		return
	}
	r.candidates.WithLabelValues(stage, outcome).Add(float64(n))
}

// ObserveStage records how long a calibration stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stage.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordWinner publishes the winning candidate's headline metrics.
func (r *Recorder) RecordWinner(metrics map[string]float64) {
	if r == nil {
		return
	}
	for k, v := range metrics {
		r.winner.WithLabelValues(k).Set(v)
	}
}
