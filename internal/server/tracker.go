package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
)

func trackerFilter(r *http.Request) tracker.Filter {
	return tracker.Filter{
		Statuses:  list(r, "status"),
		Tables:    list(r, "table"),
		Assignees: list(r, "assignee"),
	}
}

func (s *Server) trackerList(w http.ResponseWriter, r *http.Request) {
	f := trackerFilter(r)
	issues, err := s.Tracker.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.Tracker.FilteredSummary(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issues":  issues,
		"summary": summary,
	})
}

func (s *Server) trackerOptions(w http.ResponseWriter, r *http.Request) {
	assignees, err := s.Tracker.Assignees(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tables, err := s.Tracker.Tables(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses":  config.StatusOptions,
		"assignees": assignees,
		"tables":    tables,
	})
}

// trackerImport adds failed records from the warehouse that are not yet
// tracked.
func (s *Server) trackerImport(w http.ResponseWriter, r *http.Request) {
	failed, err := s.Reader.LoadFailed(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	added, err := s.Tracker.Import(r.Context(), failed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"failed":  len(failed),
		"added":   added,
		"skipped": len(failed) - added,
	})
}

func (s *Server) trackerGet(w http.ResponseWriter, r *http.Request) {
	issue, err := s.Tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) trackerUpdate(w http.ResponseWriter, r *http.Request) {
	var p tracker.Patch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	issue, err := s.Tracker.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type bulkRequest struct {
	Filter   tracker.Filter `json:"filter"`
	Status   string         `json:"action_status"`
	Assignee string         `json:"assignee"`
}

func (s *Server) trackerBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.Tracker.BulkUpdate(r.Context(), req.Filter, req.Status, req.Assignee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) trackerClearResolved(w http.ResponseWriter, r *http.Request) {
	n, err := s.Tracker.ClearResolved(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (s *Server) trackerMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.Tracker.Metrics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) trackerExport(w http.ResponseWriter, r *http.Request) {
	issues, err := s.Tracker.List(r.Context(), trackerFilter(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCSV(w, "dq_tracker", export.FromIssues(issues))
}

func (s *Server) trackerSummary(w http.ResponseWriter, r *http.Request) {
	report, err := s.Tracker.SummaryReport(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == export.FormatCSV {
		s.writeCSV(w, "dq_tracker_summary", export.Single(report.Header(), report.Row()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
