package api

import (
	"net/http"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// writeResult renders res at g, or at the service default when g is empty.
func (s *Server) writeResult(w http.ResponseWriter, status int, res *model.WaterfallResult, g types.Granularity) {
	writeJSON(w, status, s.response(res, g))
}

func (s *Server) response(res *model.WaterfallResult, g types.Granularity) waterfallResponse {
	if g == "" {
		g = s.deps.DefaultGranularity()
	}
	return toWaterfallResponse(s.deps.View(res, g), g)
}

// handleRun handles POST /waterfall/run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.run"
	g, err := granularity(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in model.RunInput
	if err := s.decode(w, r, op, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Run(r.Context(), in)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	s.writeResult(w, http.StatusOK, res, g)
}

// handleNapkin handles POST /waterfall/napkin.
func (s *Server) handleNapkin(w http.ResponseWriter, r *http.Request) {
	const op = "api.napkin"
	g, err := granularity(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req napkinRequest
	if err := s.decode(w, r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tiers, res, err := s.deps.Napkin(r.Context(), req.Napkin, model.RunInput{
		ProjectID:     req.ProjectID,
		Periods:       req.Periods,
		Contributions: req.Contributions,
		PeakEquity:    req.PeakEquity,
	})
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, napkinResponse{
		TierDefinitions: toTierDefinitions(tiers),
		Result:          s.response(res, g),
	})
}

// handleBatch handles POST /waterfall/batch. Scenarios fail independently;
// each item carries either a result or an error body.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.batch"
	g, err := granularity(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req batchRequest
	if err := s.decode(w, r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.deps.RunBatch(r.Context(), req.Scenarios)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	out := batchResponse{Results: make([]batchItemDTO, 0, len(items))}
	for _, it := range items {
		dto := batchItemDTO{Index: it.Index}
		if it.Err != nil {
			_, body := classify(it.Err)
			dto.Error = &body
		} else {
			resp := s.response(it.Result, g)
			dto.Result = &resp
		}
		out.Results = append(out.Results, dto)
	}
	writeJSON(w, http.StatusOK, out)
}
