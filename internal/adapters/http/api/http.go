// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

const (
	defaultMaxBodyBytes = 1 << 20
	corsMaxAge          = 300
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	// Project inputs.
	SaveConfig(ctx context.Context, cfg model.WaterfallConfig) (model.WaterfallConfig, error)
	GetConfig(ctx context.Context, projectID string) (model.WaterfallConfig, error)
	SaveCashFlows(ctx context.Context, cf model.CashFlowSummary) (model.CashFlowSummary, error)
	GetCashFlows(ctx context.Context, projectID string) (model.CashFlowSummary, error)
	DeleteProject(ctx context.Context, projectID string) error

	// Project runs.
	RunProject(ctx context.Context, projectID string) (*model.WaterfallResult, error)
	EnqueueRecompute(ctx context.Context, projectID, reason string) (model.RecomputeJob, error)
	LatestResult(ctx context.Context, projectID string) (*model.WaterfallResult, error)
	Export(ctx context.Context, w io.Writer, projectID string, g types.Granularity) error

	// Table layouts.
	SaveLayout(ctx context.Context, projectID string, l layout.Layout) (service.LayoutView, error)
	GetLayout(ctx context.Context, projectID, table string) (service.LayoutView, error)

	// Ad-hoc runs.
	Run(ctx context.Context, in model.RunInput) (*model.WaterfallResult, error)
	RunBatch(ctx context.Context, inputs []model.RunInput) ([]service.BatchItem, error)
	Napkin(ctx context.Context, form waterfall.NapkinInput, in model.RunInput) ([]model.TierDefinition, *model.WaterfallResult, error)

	View(res *model.WaterfallResult, g types.Granularity) *model.WaterfallResult
	DefaultGranularity() types.Granularity
}

// Server wires HTTP routes for the waterfall API.
type Server struct {
	deps           Dependencies
	log            logger.Logger
	allowedOrigins []string
	maxBodyBytes   int64
	docs           func(chi.Router)

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		log:           logger.Get().Named("api"),
		maxBodyBytes:  defaultMaxBodyBytes,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router serving every API endpoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.log))
	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         corsMaxAge,
		}))
	}

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Delete("/", MetricsMiddleware(s.handleDeleteProject, "delete_project"))
		r.Get("/cashflows", MetricsMiddleware(s.handleGetCashFlows, "get_cashflows"))
		r.Put("/cashflows", MetricsMiddleware(s.handlePutCashFlows, "put_cashflows"))
		r.Get("/layouts/{table}", MetricsMiddleware(s.handleGetLayout, "get_layout"))
		r.Put("/layouts/{table}", MetricsMiddleware(s.handlePutLayout, "put_layout"))
		r.Get("/waterfall", MetricsMiddleware(s.handleLatest, "latest_waterfall"))
		r.Get("/waterfall/config", MetricsMiddleware(s.handleGetConfig, "get_config"))
		r.Put("/waterfall/config", MetricsMiddleware(s.handlePutConfig, "put_config"))
		r.Post("/waterfall/run", MetricsMiddleware(s.handleRunProject, "run_project"))
		r.Post("/waterfall/recompute", MetricsMiddleware(s.handleRecompute, "recompute"))
		r.Get("/waterfall/export.xlsx", MetricsMiddleware(s.handleExport, "export"))
	})

	r.Post("/waterfall/run", MetricsMiddleware(s.handleRun, "run"))
	r.Post("/waterfall/napkin", MetricsMiddleware(s.handleNapkin, "napkin"))
	r.Post("/waterfall/batch", MetricsMiddleware(s.handleBatch, "batch"))

	if s.docs != nil {
		s.docs(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
	return r
}

type errorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  []waterfall.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps service and domain errors onto a status and response body.
func classify(err error) (int, errorResponse) {
	var cerr *waterfall.ConfigurationError
	switch {
	case errors.As(err, &cerr):
		return http.StatusUnprocessableEntity, errorResponse{Code: "configuration_error", Message: err.Error(), Fields: cerr.Fields}
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrEmptyBatch):
		return http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, layout.ErrInvalidLayout):
		return http.StatusUnprocessableEntity, errorResponse{Code: "invalid_layout", Message: err.Error()}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()}
	case errors.Is(err, service.ErrBackpressure), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, errorResponse{Code: "backpressure", Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorResponse{Code: "canceled", Message: err.Error()}
	}
	return http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: http.StatusText(http.StatusInternalServerError)}
}

// fail writes the response for err. Unclassified errors are logged and hidden from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err),
		)
	}
	writeJSON(w, status, body)
}

// decode reads exactly one JSON document into v, rejecting unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	if r.Body == nil {
		return NewKind(op, ErrBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return WrapKind(op, ErrBadRequest, errors.New("body must hold a single JSON document"))
	}
	return nil
}

// granularity reads ?granularity=, falling back to the service default.
func granularity(r *http.Request, op string) (types.Granularity, error) {
	raw := r.URL.Query().Get("granularity")
	if raw == "" {
		return "", nil
	}
	g, err := types.ParseGranularity(raw)
	if err != nil {
		return "", WrapKind(op, ErrBadRequest, err)
	}
	return g, nil
}

func projectID(r *http.Request, op string) (string, error) {
	id := chi.URLParam(r, "projectID")
	if id == "" {
		return "", WrapKind(op, ErrBadRequest, errors.New("missing project id"))
	}
	return id, nil
}

func exportFilename(projectID string, now time.Time) string {
	return fmt.Sprintf("waterfall-%s-%s.xlsx", projectID, now.UTC().Format("20060102"))
}
