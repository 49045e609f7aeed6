package alert

import (
	"sort"
	"time"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

type Alert struct {
	Time     time.Time `json:"time"`
	Table    string    `json:"table"`
	Column   string    `json:"column"`
	Rule     string    `json:"rule"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	Action   string    `json:"action,omitempty"`
	Priority string    `json:"priority,omitempty"`
}

// BuildFeed turns failed checks into alerts, newest first. Remediation
// guidance comes from the rule catalog when the rule is catalogued.
func BuildFeed(results []types.ValidationResult, rules config.RuleCatalog) []Alert {
	var feed []Alert
	for _, r := range results {
		if !r.Failed() {
			continue
		}
		rule := r.DisplayRule()
		a := Alert{
			Time:     r.RunTimestamp,
			Table:    r.Table,
			Column:   r.Column,
			Rule:     rule,
			Status:   r.Status,
			Message:  MessageForAlert(r.FailureType, rule, r.Column),
			Severity: SeverityForRule(rule),
		}
		if guidance, ok := rules.Lookup(rule); ok {
			a.Action = guidance.Action
			a.Priority = guidance.Priority
		}
		feed = append(feed, a)
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Time.After(feed[j].Time)
	})
	return feed
}

// CountBySeverity tallies a feed.
func CountBySeverity(feed []Alert) map[string]int {
	out := map[string]int{SeverityCritical: 0, SeverityWarning: 0}
	for _, a := range feed {
		out[a.Severity]++
	}
	return out
}
