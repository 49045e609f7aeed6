package dashboard

import (
	"sort"
	"time"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Filter narrows a result set. Empty lists match everything; From and To
// compare calendar dates and are inclusive.
type Filter struct {
	Tables   []string   `json:"tables,omitempty"`
	Columns  []string   `json:"columns,omitempty"`
	Metrics  []string   `json:"metrics,omitempty"`
	Rules    []string   `json:"rules,omitempty"`
	Statuses []string   `json:"statuses,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

// Options lists the values a filter can select from.
type Options struct {
	Tables   []string   `json:"tables"`
	Columns  []string   `json:"columns"`
	Metrics  []string   `json:"metrics"`
	Rules    []string   `json:"rules"`
	Statuses []string   `json:"statuses"`
	MinDate  *time.Time `json:"min_date,omitempty"`
	MaxDate  *time.Time `json:"max_date,omitempty"`
}

func set(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func match(m map[string]struct{}, v string) bool {
	if m == nil {
		return true
	}
	_, ok := m[v]
	return ok
}

func day(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// Apply returns the results matching f, preserving order.
func (f Filter) Apply(results []types.ValidationResult) []types.ValidationResult {
	tables, columns := set(f.Tables), set(f.Columns)
	metrics, rules, statuses := set(f.Metrics), set(f.Rules), set(f.Statuses)

	out := make([]types.ValidationResult, 0, len(results))
	for _, r := range results {
		if !match(tables, r.Table) || !match(columns, r.Column) || !match(metrics, r.Metric) ||
			!match(rules, r.Rule) || !match(statuses, r.Status) {
			continue
		}
		d := day(r.RunTimestamp)
		if f.From != nil && d.Before(day(*f.From)) {
			continue
		}
		if f.To != nil && d.After(day(*f.To)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortedUnique(results []types.ValidationResult, field func(types.ValidationResult) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range results {
		v := field(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// AvailableOptions collects the sorted distinct values and the date span.
func AvailableOptions(results []types.ValidationResult) Options {
	o := Options{
		Tables:   sortedUnique(results, func(r types.ValidationResult) string { return r.Table }),
		Columns:  sortedUnique(results, func(r types.ValidationResult) string { return r.Column }),
		Metrics:  sortedUnique(results, func(r types.ValidationResult) string { return r.Metric }),
		Rules:    sortedUnique(results, func(r types.ValidationResult) string { return r.Rule }),
		Statuses: sortedUnique(results, func(r types.ValidationResult) string { return r.Status }),
	}
	for _, r := range results {
		d := day(r.RunTimestamp)
		if o.MinDate == nil || d.Before(*o.MinDate) {
			lo := d
			o.MinDate = &lo
		}
		if o.MaxDate == nil || d.After(*o.MaxDate) {
			hi := d
			o.MaxDate = &hi
		}
	}
	return o
}
