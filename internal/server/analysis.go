package server

import (
	"net/http"
	"strconv"

	"github.com/alexanderjulianmartinez/autodq/internal/anomaly"
	"github.com/alexanderjulianmartinez/autodq/internal/cleaning"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/schema"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

const defaultSampleRows = 1000

// frame returns the named table of the schema, or the loaded validation
// results when table is empty.
func (s *Server) frame(r *http.Request, table string, limit int) (*types.Frame, error) {
	if table != "" {
		return s.Reader.LoadTable(r.Context(), table, limit)
	}
	snap, err := s.snapshot(r)
	if err != nil {
		return nil, err
	}
	return snap.Frame, nil
}

func limitFrom(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultSampleRows, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("limit must be an integer")
	}
	return n, nil
}

func (s *Server) anomalyColumns(w http.ResponseWriter, r *http.Request) {
	f, err := s.frame(r, r.URL.Query().Get("table"), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": anomaly.NumericColumns(anomaly.Prepare(f)),
		"methods": anomaly.Methods(),
	})
}

type anomalyRequest struct {
	anomaly.Request
	Table string `json:"table,omitempty"`
}

func (s *Server) anomalies(w http.ResponseWriter, r *http.Request) {
	var req anomalyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.frame(r, req.Table, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := anomaly.Detect(f, req.Request)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == export.FormatCSV {
		s.writeCSV(w, "anomalies", export.FromFrame(res.Anomalies))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	limit, err := limitFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.frame(r, r.URL.Query().Get("table"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":    f.Len(),
		"columns": schema.Infer(f),
	})
}

type cleaningRequest struct {
	cleaning.Options
	Table string `json:"table,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) cleaning(w http.ResponseWriter, r *http.Request) {
	var req cleaningRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultSampleRows
	}
	f, err := s.frame(r, req.Table, req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := cleaning.Clean(f, req.Options)
	if r.URL.Query().Get("format") == export.FormatCSV {
		s.writeCSV(w, "cleaned_data", export.FromFrame(res.Frame))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows_before": f.Len(),
		"rows_after":  res.Frame.Len(),
		"changes":     res.Changes,
		"frame":       res.Frame,
	})
}
