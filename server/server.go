// Package server exposes rule sets and the decision engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/fxcalib/decision"
	"github.com/rustyeddy/fxcalib/journal"
	"github.com/rustyeddy/fxcalib/pkg/events"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/store"
)

// Store is the rule set persistence the server reads and activates.
type Store interface {
	GetByTag(ctx context.Context, tag string) (*store.Record, error)
	Active(ctx context.Context) (*store.Record, error)
	List(ctx context.Context) ([]store.Record, error)
	Activate(ctx context.Context, tag string) error
}

// Option configures Server.
type Option func(*Server)

func WithJournal(j journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Server) { s.events = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics serves gatherer on path. An empty path disables the endpoint.
func WithMetrics(path string, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.gatherer = gatherer
	}
}

func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.shutdownTimeout = shutdown
	}
}

func WithClock(c decision.Clock) Option {
	return func(s *Server) { s.clock = c }
}

type Server struct {
	echo    *echo.Echo
	store   Store
	engine  *decision.Engine
	journal journal.Journal
	events  events.Publisher
	log     *logger.Logger
	clock   decision.Clock

	metricsPath     string
	gatherer        prometheus.Gatherer
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

func New(st Store, engine *decision.Engine, opts ...Option) *Server {
	s := &Server{
		store:           st,
		engine:          engine,
		events:          events.Nop{},
		log:             logger.Nop(),
		clock:           decision.SystemClock{},
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(s.recoverer)
	s.echo = e
	s.RegisterRoutes(e)
	return s
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.health)

	v1 := e.Group("/v1")
	v1.GET("/rulesets", s.listRuleSets)
	v1.GET("/rulesets/active", s.activeRuleSet)
	v1.GET("/rulesets/:tag", s.getRuleSet)
	v1.POST("/rulesets/:tag/activate", s.activate)
	v1.POST("/decide", s.decide)

	if s.metricsPath != "" {
		g := s.gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		e.GET(s.metricsPath, echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.echo.Server.ReadTimeout = s.readTimeout
	s.echo.Server.WriteTimeout = s.writeTimeout

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) recoverer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler panic", logger.Any("panic", r), logger.String("path", c.Path()))
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
			}
		}()
		return next(c)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields []ValidationError `json:"fields,omitempty"`
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	body := errorBody{Error: "internal error"}

	var (
		he *echo.HTTPError
		ve validationErrors
	)
	switch {
	case errors.As(err, &ve):
		code = http.StatusBadRequest
		body = errorBody{Error: "invalid request", Fields: ve}
	case errors.As(err, &he):
		code = he.Code
		body.Error = fmt.Sprint(he.Message)
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
		body.Error = err.Error()
	default:
		s.log.Error("request failed", logger.String("path", c.Path()), logger.Error(err))
	}
	if err := c.JSON(code, body); err != nil {
		s.log.Warn("write error response", logger.Error(err))
	}
}
