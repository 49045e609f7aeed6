package refresh

import (
	"fmt"
	"time"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
)

const (
	MinInterval = time.Minute
	MaxInterval = 1440 * time.Minute
)

// Policy decides when cached results are stale.
type Policy struct {
	Mode     string        `json:"mode"`
	Interval time.Duration `json:"interval"`
	At       time.Time     `json:"at,omitempty"`
}

// PolicyFromConfig builds a policy from the refresh config section.
func PolicyFromConfig(c config.RefreshConfig) Policy {
	p := Policy{
		Mode:     c.Mode,
		Interval: time.Duration(c.IntervalMinutes) * time.Minute,
	}
	if at, ok := c.RefreshAt(); ok {
		p.At = at
	}
	return p
}

func (p Policy) Validate() error {
	switch p.Mode {
	case config.RefreshInterval:
		if p.Interval < MinInterval || p.Interval > MaxInterval {
			return fmt.Errorf("refresh interval must be between 1 and 1440 minutes, got %s", p.Interval)
		}
	case config.RefreshSpecific, config.RefreshManual:
	default:
		return fmt.Errorf("unknown refresh mode %q", p.Mode)
	}
	return nil
}

// NeedsRefresh reports whether data last loaded at last is due at now.
func (p Policy) NeedsRefresh(now, last time.Time) bool {
	switch p.Mode {
	case config.RefreshInterval:
		return now.Sub(last) > p.Interval
	case config.RefreshSpecific:
		return !p.At.IsZero() && !now.Before(p.At) && last.Before(p.At)
	default:
		return false
	}
}

// Next returns when the next automatic refresh is due, or the zero time if
// none is scheduled.
func (p Policy) Next(last time.Time) time.Time {
	switch p.Mode {
	case config.RefreshInterval:
		return last.Add(p.Interval)
	case config.RefreshSpecific:
		if !p.At.IsZero() && last.Before(p.At) {
			return p.At
		}
	}
	return time.Time{}
}
