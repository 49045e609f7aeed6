package server

import (
	"net/http"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
)

func (s *Server) settingsStatus(w http.ResponseWriter, r *http.Request) {
	db := s.Config.Databricks
	writeJSON(w, http.StatusOK, map[string]any{
		"backend": s.Config.Backend,
		"schema":  s.Reader.Schema(),
		"databricks": map[string]any{
			"host":      db.Hostname(),
			"token":     config.MaskToken(db.Token),
			"http_path": db.HTTPPath,
			"catalog":   db.Catalog,
			"job_id":    db.JobID,
		},
		"rule_execution": s.Rules != nil,
		"refresh":        s.settingsFor(r),
		"tables":         s.Cache.Tables(),
		"scope":          s.Cache.Scope(),
		"statuses":       config.StatusOptions,
		"rules":          s.Catalog.Names(),
	})
}

func (s *Server) updateScope(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Table   string `json:"table"`
		Enabled bool   `json:"enabled"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Table == "" {
		s.writeError(w, r, badRequest("table is required"))
		return
	}
	s.Cache.SetScope(req.Table, req.Enabled)
	writeJSON(w, http.StatusOK, s.Cache.Scope())
}

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.Reader.TestConnection(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.Reader.Warehouse().ListSchemas(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	schema := r.URL.Query().Get("schema")
	if schema == "" {
		schema = s.Reader.Schema()
	}
	if !config.ValidIdentifier(schema) {
		s.writeError(w, r, badRequest("invalid schema %q", schema))
		return
	}
	tables, err := s.Reader.Warehouse().ListTables(r.Context(), schema)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}
