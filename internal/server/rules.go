package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alexanderjulianmartinez/autodq/internal/jobs"
	"github.com/alexanderjulianmartinez/autodq/internal/rules"
)

// manager fails with jobs.ErrNoJob when rule execution is not configured.
func (s *Server) manager(w http.ResponseWriter, r *http.Request) (*rules.Manager, bool) {
	if s.Rules == nil {
		s.writeError(w, r, jobs.ErrNoJob)
		return nil, false
	}
	return s.Rules, true
}

func (s *Server) rulesSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := rules.Saved(r.Context(), s.Reader)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) rulesExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rules.Examples())
}

func (s *Server) rulesExecute(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	var req struct {
		Rule string `json:"rule"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	exec, err := m.Start(r.Context(), req.Rule)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (s *Server) rulesList(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.List())
}

func (s *Server) rulesGet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	exec, err := m.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) rulesRows(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	f, err := m.Rows(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) rulesStop(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := m.Stop(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	exec, err := m.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) rulesSave(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	n, err := m.Save(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"saved": n})
}

func (s *Server) rulesDiscard(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	n, err := m.Discard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"discarded": n})
}
