package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rustyeddy/fxcalib/decision"
	"github.com/rustyeddy/fxcalib/journal"
	"github.com/rustyeddy/fxcalib/pkg/events"
	"github.com/rustyeddy/fxcalib/pkg/id"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/rules"
	"github.com/rustyeddy/fxcalib/snapshot"
	"github.com/rustyeddy/fxcalib/store"
)

type RuleSetSummary struct {
	ID          int64     `json:"id"`
	Tag         string    `json:"tag"`
	Active      bool      `json:"active"`
	SourceTag   string    `json:"source_tag,omitempty"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
}

type RuleSetView struct {
	RuleSetSummary
	Rules       rules.Document   `json:"rules"`
	Metrics     map[string]any   `json:"metrics"`
	RiskBands   map[string]any   `json:"risk_bands"`
	Regime      map[string]any   `json:"regime"`
	Provenance  store.Provenance `json:"provenance"`
	FeatureHash string           `json:"feature_hash"`
	MCSeed      int64            `json:"mc_seed"`
}

func summarize(r store.Record) RuleSetSummary {
	return RuleSetSummary{
		ID:          r.ID,
		Tag:         r.Tag,
		Active:      r.IsActive,
		SourceTag:   r.Provenance.SourceTag,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		CreatedAt:   r.CreatedAt,
	}
}

func view(r *store.Record) RuleSetView {
	return RuleSetView{
		RuleSetSummary: summarize(*r),
		Rules:          r.Rules.Document(),
		Metrics:        r.Metrics,
		RiskBands:      r.RiskBands,
		Regime:         r.Regime,
		Provenance:     r.Provenance,
		FeatureHash:    r.FeatureHash,
		MCSeed:         r.MCSeed,
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuleSets(c echo.Context) error {
	recs, err := s.store.List(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]RuleSetSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, summarize(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) activeRuleSet(c echo.Context) error {
	rec, err := s.store.Active(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view(rec))
}

func (s *Server) getRuleSet(c echo.Context) error {
	rec, err := s.store.GetByTag(c.Request().Context(), c.Param("tag"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view(rec))
}

func (s *Server) activate(c echo.Context) error {
	ctx := c.Request().Context()
	tag := c.Param("tag")
	if err := s.store.Activate(ctx, tag); err != nil {
		return err
	}
	s.log.Info("rule set activated", logger.String("tag", tag))

	ev := events.Event{Type: events.TypeActivated, Tag: tag, At: s.clock.Now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		// Activation already committed.
		s.log.Warn("publish activation event", logger.String("tag", tag), logger.Error(err))
	}
	rec, err := s.store.GetByTag(ctx, tag)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view(rec))
}

// DecideRequest asks for a decision on one snapshot. Tag picks a stored
// rule set; without it the snapshot's embedded rules are used, then the
// active rule set.
type DecideRequest struct {
	Tag      string          `json:"tag"`
	Snapshot json.RawMessage `json:"snapshot" validate:"required"`
	// Journal records the decision when a journal is configured.
	Journal *bool `json:"journal" default:"true"`
	// Open also records an executable decision as an open trade.
	Open bool `json:"open"`
}

type DecideResponse struct {
	RuleSet string          `json:"rule_set"`
	Result  decision.Result `json:"result"`
	TradeID string          `json:"trade_id,omitempty"`
}

func (s *Server) decide(c echo.Context) error {
	var req DecideRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	snap, err := snapshot.FromJSON(req.Snapshot)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var rs *rules.RuleSet
	switch {
	case req.Tag != "":
		rec, err := s.store.GetByTag(ctx, req.Tag)
		if err != nil {
			return err
		}
		rs = rec.Rules
	case snap.Rules() != nil:
		rs = snap.Rules()
	default:
		rec, err := s.store.Active(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "no tag given and no active rule set")
		}
		if err != nil {
			return err
		}
		rs = rec.Rules
	}

	res := s.engine.Decide(ctx, snap, rs)
	resp := DecideResponse{RuleSet: rs.Tag(), Result: res}

	if s.journal != nil && *req.Journal {
		at := s.clock.Now().UTC()
		pair := snap.NormalizedPair()
		if err := s.journal.RecordDecision(ctx, journal.DecisionRecord{
			Time: at, Instrument: pair, Result: res, RuleSet: rs.Tag(),
		}); err != nil {
			s.log.Warn("journal decision", logger.Error(err))
		}
		if req.Open {
			if tr, ok := journal.FromResult(id.At(at), pair, rs.Tag(), at, res); ok {
				if err := s.journal.OpenTrade(ctx, tr); err != nil {
					return err
				}
				resp.TradeID = tr.TradeID
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}
