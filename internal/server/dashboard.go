package server

import (
	"net/http"
	"slices"

	"github.com/alexanderjulianmartinez/autodq/internal/alert"
	"github.com/alexanderjulianmartinez/autodq/internal/coverage"
	"github.com/alexanderjulianmartinez/autodq/internal/dashboard"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/refresh"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"backend":      s.Config.Backend,
		"schema":       s.Reader.Schema(),
		"last_refresh": s.Cache.LastRefresh(),
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Cache.Refresh(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":      len(snap.Results),
		"loaded_at": snap.LoadedAt,
	})
}

// snapshot loads the data under the session's refresh policy. A failed
// refresh with a previous snapshot still serves the stale data.
func (s *Server) snapshot(r *http.Request) (*refresh.Snapshot, error) {
	snap, err := s.Cache.GetWith(r.Context(), s.policyFor(r))
	if snap != nil {
		if err != nil {
			s.Log.Warn().Err(err).Msg("serving stale validation results")
		}
		return snap, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, errNoData
}

func (s *Server) results(r *http.Request) ([]types.ValidationResult, error) {
	snap, err := s.snapshot(r)
	if err != nil {
		return nil, err
	}
	return s.Cache.ScopedResults(snap), nil
}

func filterFrom(r *http.Request) (dashboard.Filter, error) {
	from, err := date(r, "from")
	if err != nil {
		return dashboard.Filter{}, err
	}
	to, err := date(r, "to")
	if err != nil {
		return dashboard.Filter{}, err
	}
	return dashboard.Filter{
		Tables:   list(r, "table"),
		Columns:  list(r, "column"),
		Metrics:  list(r, "metric"),
		Rules:    list(r, "rule"),
		Statuses: list(r, "status"),
		From:     from,
		To:       to,
	}, nil
}

func (s *Server) filtered(r *http.Request) ([]types.ValidationResult, dashboard.Filter, error) {
	f, err := filterFrom(r)
	if err != nil {
		return nil, f, err
	}
	results, err := s.results(r)
	return results, f, err
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	results, f, err := s.filtered(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard.BuildView(results, f))
}

func (s *Server) dashboardOptions(w http.ResponseWriter, r *http.Request) {
	results, err := s.results(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard.AvailableOptions(results))
}

func (s *Server) dashboardExport(w http.ResponseWriter, r *http.Request) {
	results, f, err := s.filtered(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCSV(w, "dq_dashboard_results", export.FromResults(dashboard.Detail(f.Apply(results))))
}

func (s *Server) intelligence(w http.ResponseWriter, r *http.Request) {
	results, f, err := s.filtered(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard.BuildIntelligence(results, f))
}

func (s *Server) intelligenceSummary(w http.ResponseWriter, r *http.Request) {
	results, f, err := s.filtered(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report := dashboard.BuildSummaryReport(f.Apply(results), s.now())
	s.writeCSV(w, "dq_intelligence_summary", export.Single(report.Header(), report.Row()))
}

func (s *Server) coverage(w http.ResponseWriter, r *http.Request) {
	results, err := s.results(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m := coverage.Build(results)
	writeJSON(w, http.StatusOK, map[string]any{
		"matrix":      m,
		"summary":     m.Summary(),
		"blind_spots": m.BlindSpots(),
	})
}

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	results, err := s.results(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	feed := alert.BuildFeed(results, s.Catalog)
	counts := alert.CountBySeverity(feed)
	if sev := list(r, "severity"); len(sev) > 0 {
		feed = slices.DeleteFunc(feed, func(a alert.Alert) bool {
			return !slices.Contains(sev, a.Severity)
		})
	}
	if r.URL.Query().Get("format") == export.FormatCSV {
		s.writeCSV(w, "dq_alerts", export.FromAlerts(feed))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": feed,
		"counts": counts,
	})
}
