package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleGetConfig handles GET /projects/{projectID}/waterfall/config.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_config"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cfg, err := s.deps.GetConfig(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(cfg))
}

// handlePutConfig handles PUT /projects/{projectID}/waterfall/config.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_config"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req configRequest
	if err := s.decode(w, r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cfg, err := s.deps.SaveConfig(r.Context(), model.WaterfallConfig{
		ProjectID:         id,
		Tiers:             req.WaterfallTiers,
		Partners:          req.EquityPartners,
		GPContributionPct: req.GPContributionPct,
	})
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(cfg))
}

// handleGetCashFlows handles GET /projects/{projectID}/cashflows.
func (s *Server) handleGetCashFlows(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_cashflows"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cf, err := s.deps.GetCashFlows(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toCashFlowsResponse(cf))
}

// handlePutCashFlows handles PUT /projects/{projectID}/cashflows.
func (s *Server) handlePutCashFlows(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_cashflows"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req cashFlowsRequest
	if err := s.decode(w, r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cf, err := s.deps.SaveCashFlows(r.Context(), model.CashFlowSummary{
		ProjectID:     id,
		PeakEquity:    req.Summary.PeakEquity,
		Periods:       req.Periods,
		Contributions: req.Contributions,
	})
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toCashFlowsResponse(cf))
}

// handleRunProject handles POST /projects/{projectID}/waterfall/run.
func (s *Server) handleRunProject(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_project"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := granularity(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.RunProject(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	s.writeResult(w, http.StatusOK, res, g)
}

// handleRecompute handles POST /projects/{projectID}/waterfall/recompute.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.deps.GetConfig(r.Context(), id); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	job, err := s.deps.EnqueueRecompute(r.Context(), id, service.ReasonRequested)
	if err != nil {
		if errors.Is(err, service.ErrBackpressure) {
			s.fail(w, r, WrapKind(op, ErrBackpressure, err))
			return
		}
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, recomputeResponse{Status: "accepted", Job: job})
}

// handleLatest handles GET /projects/{projectID}/waterfall.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.latest_waterfall"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := granularity(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.LatestResult(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	s.writeResult(w, http.StatusOK, res, g)
}

// handleExport handles GET /projects/{projectID}/waterfall/export.xlsx.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := granularity(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// Buffer the workbook so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := s.deps.Export(r.Context(), &buf, id, g); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(id, time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleGetLayout handles GET /projects/{projectID}/layouts/{table}.
func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_layout"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.GetLayout(r.Context(), id, chi.URLParam(r, "table"))
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toLayoutResponse(view))
}

// handlePutLayout handles PUT /projects/{projectID}/layouts/{table}.
func (s *Server) handlePutLayout(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_layout"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	table := chi.URLParam(r, "table")
	var l layout.Layout
	if err := s.decode(w, r, op, &l); err != nil {
		s.fail(w, r, err)
		return
	}
	if l.Table != "" && l.Table != table {
		s.fail(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("body table %q does not match path table %q", l.Table, table)))
		return
	}
	l.Table = table
	view, err := s.deps.SaveLayout(r.Context(), id, l)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toLayoutResponse(view))
}

// handleDeleteProject handles DELETE /projects/{projectID}.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_project"
	id, err := projectID(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.DeleteProject(r.Context(), id); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
