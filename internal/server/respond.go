package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexanderjulianmartinez/autodq/internal/anomaly"
	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/export"
	"github.com/alexanderjulianmartinez/autodq/internal/jobs"
	"github.com/alexanderjulianmartinez/autodq/internal/rules"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
)

// writeJSON encodes v before writing the header; encode failures become a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": fmt.Sprintf("encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (s *Server) writeCSV(w http.ResponseWriter, prefix string, t export.Table) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(prefix, s.now())))
	if err := export.WriteCSV(w, t); err != nil {
		s.Log.Warn().Err(err).Str("export", prefix).Msg("write csv")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrNotFound), errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrNotRunning), errors.Is(err, rules.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrInvalidStatus),
		errors.Is(err, rules.ErrEmptyRule),
		errors.Is(err, anomaly.ErrNoNumericColumns),
		errors.Is(err, anomaly.ErrNoCompleteRows),
		errors.Is(err, anomaly.ErrUnknownColumn),
		errors.Is(err, anomaly.ErrUnknownMethod),
		errors.Is(err, source.ErrInvalidIdentifier),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNoJob), errors.Is(err, config.ErrMissingConnection), errors.Is(err, errNoData):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var (
	errBadRequest = errors.New("bad request")
	errNoData     = errors.New("no validation results loaded")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

// list reads a query parameter given repeatedly or comma separated.
func list(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func date(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, badRequest("%s must be YYYY-MM-DD", key)
	}
	return &t, nil
}
