package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/refresh"
)

const (
	keyMode     = "refresh_mode"
	keyInterval = "refresh_interval_minutes"
	keyAt       = "refresh_at"
)

// policyFor returns the refresh policy saved in the caller's session,
// falling back to the process default.
func (s *Server) policyFor(r *http.Request) refresh.Policy {
	p := s.Cache.Policy()
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return p
	}
	mode, ok := sess.Values[keyMode].(string)
	if !ok {
		return p
	}

	custom := refresh.Policy{Mode: mode}
	if v, ok := sess.Values[keyInterval].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			custom.Interval = time.Duration(n) * time.Minute
		}
	}
	if v, ok := sess.Values[keyAt].(string); ok {
		custom.At, _ = time.Parse(time.RFC3339, v)
	}
	if custom.Validate() != nil {
		return p
	}
	return custom
}

type refreshSettings struct {
	Mode            string    `json:"mode"`
	IntervalMinutes int       `json:"interval_minutes"`
	At              string    `json:"at,omitempty"`
	LastRefresh     time.Time `json:"last_refresh,omitzero"`
	NextRefresh     time.Time `json:"next_refresh,omitzero"`
}

func (s *Server) settingsFor(r *http.Request) refreshSettings {
	p := s.policyFor(r)
	last := s.Cache.LastRefresh()
	out := refreshSettings{
		Mode:            p.Mode,
		IntervalMinutes: int(p.Interval / time.Minute),
		LastRefresh:     last,
	}
	if !p.At.IsZero() {
		out.At = p.At.Format(time.RFC3339)
	}
	if !last.IsZero() {
		out.NextRefresh = p.Next(last)
	}
	return out
}

func (s *Server) settingsRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settingsFor(r))
}

// updateSettingsRefresh stores a refresh policy for this session only.
func (s *Server) updateSettingsRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshSettings
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := refresh.Policy{Mode: in.Mode, Interval: time.Duration(in.IntervalMinutes) * time.Minute}
	if in.Mode == config.RefreshSpecific {
		at, err := time.Parse(time.RFC3339, in.At)
		if err != nil {
			s.writeError(w, r, badRequest("at must be an RFC 3339 time"))
			return
		}
		p.At = at
	}
	if err := p.Validate(); err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}

	sess, _ := s.sessions.Get(r, sessionName)
	sess.Values[keyMode] = p.Mode
	sess.Values[keyInterval] = strconv.Itoa(in.IntervalMinutes)
	if p.At.IsZero() {
		delete(sess.Values, keyAt)
	} else {
		sess.Values[keyAt] = p.At.Format(time.RFC3339)
	}
	if err := sess.Save(r, w); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Log.Info().Str("mode", p.Mode).Dur("interval", p.Interval).Msg("session refresh policy updated")
	// the request still carries the old cookie
	last := s.Cache.LastRefresh()
	out := refreshSettings{Mode: p.Mode, IntervalMinutes: in.IntervalMinutes, At: in.At, LastRefresh: last}
	if !last.IsZero() {
		out.NextRefresh = p.Next(last)
	}
	writeJSON(w, http.StatusOK, out)
}
