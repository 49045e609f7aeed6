package dashboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

type Summary struct {
	TotalChecks     int     `json:"total_checks"`
	FailedChecks    int     `json:"failed_checks"`
	SuccessRate     float64 `json:"success_rate"`
	TablesMonitored int     `json:"tables_monitored"`
	ActiveRules     int     `json:"active_rules"`
}

// Count is a label with its number of occurrences.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type TrendPoint struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
	Count  int       `json:"count"`
}

type TableStats struct {
	Table       string  `json:"table"`
	Total       int     `json:"total_validations"`
	Failed      int     `json:"failed_validations"`
	SuccessRate float64 `json:"success_rate"`
}

// SuccessRate is (total-failed)/total as a percentage, 0 for no checks.
func SuccessRate(total, failed int) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-failed) / float64(total) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func countFailed(results []types.ValidationResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}

func Summarize(results []types.ValidationResult) Summary {
	failed := countFailed(results)
	return Summary{
		TotalChecks:     len(results),
		FailedChecks:    failed,
		SuccessRate:     SuccessRate(len(results), failed),
		TablesMonitored: len(sortedUnique(results, func(r types.ValidationResult) string { return r.Table })),
		ActiveRules:     len(sortedUnique(results, func(r types.ValidationResult) string { return r.RuleDisplayName })),
	}
}

// ranked orders counts by count descending, then label ascending, keeping
// at most n entries (n <= 0 keeps all).
func ranked(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for label, c := range counts {
		out = append(out, Count{Label: label, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func StatusDistribution(results []types.ValidationResult) []Count {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	return ranked(counts, 0)
}

// DailyTrends counts checks per calendar day and status, ordered by date
// then status.
func DailyTrends(results []types.ValidationResult) []TrendPoint {
	type key struct {
		date   time.Time
		status string
	}
	counts := map[key]int{}
	for _, r := range results {
		counts[key{day(r.RunTimestamp), r.Status}]++
	}

	out := make([]TrendPoint, 0, len(counts))
	for k, c := range counts {
		out = append(out, TrendPoint{Date: k.date, Status: k.status, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Status < out[j].Status
	})
	return out
}

// FailedByTable returns the n tables with the most failed checks.
func FailedByTable(results []types.ValidationResult, n int) []Count {
	counts := map[string]int{}
	for _, r := range results {
		if r.Failed() {
			counts[r.Table]++
		}
	}
	return ranked(counts, n)
}

// RuleFailures returns the n rules, by display name, with the most
// failures.
func RuleFailures(results []types.ValidationResult, n int) []Count {
	counts := map[string]int{}
	for _, r := range results {
		if r.Failed() && r.RuleDisplayName != "" {
			counts[r.RuleDisplayName]++
		}
	}
	return ranked(counts, n)
}

// TablePerformance summarizes each table, lowest success rate first.
func TablePerformance(results []types.ValidationResult) []TableStats {
	byTable := map[string]*TableStats{}
	for _, r := range results {
		s, ok := byTable[r.Table]
		if !ok {
			s = &TableStats{Table: r.Table}
			byTable[r.Table] = s
		}
		s.Total++
		if r.Failed() {
			s.Failed++
		}
	}

	out := make([]TableStats, 0, len(byTable))
	for _, s := range byTable {
		s.SuccessRate = round2(SuccessRate(s.Total, s.Failed))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate < out[j].SuccessRate
		}
		return out[i].Table < out[j].Table
	})
	return out
}

const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityAttention = "attention"
)

type Insights struct {
	Quality          string   `json:"quality"`
	SuccessRate      float64  `json:"success_rate"`
	MostFailedRule   string   `json:"most_failed_rule,omitempty"`
	WorstTable       string   `json:"worst_table,omitempty"`
	WorstFailureRate float64  `json:"worst_failure_rate,omitempty"`
	Messages         []string `json:"messages"`
}

// BuildInsights grades overall quality and names the most failed rule and
// the table with the highest failure rate.
func BuildInsights(results []types.ValidationResult) Insights {
	var in Insights
	if len(results) == 0 {
		return in
	}

	in.SuccessRate = SuccessRate(len(results), countFailed(results))
	switch {
	case in.SuccessRate >= 95:
		in.Quality = QualityExcellent
		in.Messages = append(in.Messages, "Excellent data quality with >95% success rate")
	case in.SuccessRate >= 90:
		in.Quality = QualityGood
		in.Messages = append(in.Messages, "Good data quality but room for improvement")
	default:
		in.Quality = QualityAttention
		in.Messages = append(in.Messages, "Data quality issues detected - immediate attention required")
	}

	if top := RuleFailures(results, 1); len(top) > 0 {
		in.MostFailedRule = top[0].Label
		in.Messages = append(in.Messages, "Most problematic rule: "+in.MostFailedRule)
	}

	perf := TablePerformance(results)
	worst := ""
	worstRate := -1.0
	for _, p := range perf {
		rate := float64(p.Failed) / float64(p.Total) * 100
		if rate > worstRate || (rate == worstRate && p.Table < worst) {
			worst, worstRate = p.Table, rate
		}
	}
	if worst != "" {
		in.WorstTable = worst
		in.WorstFailureRate = worstRate
		in.Messages = append(in.Messages, fmt.Sprintf("Table needing attention: %s (%.1f%% failure rate)", worst, worstRate))
	}
	return in
}

// Detail returns results newest first.
func Detail(results []types.ValidationResult) []types.ValidationResult {
	out := append([]types.ValidationResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RunTimestamp.After(out[j].RunTimestamp)
	})
	return out
}

// FailedOnly keeps the failed checks.
func FailedOnly(results []types.ValidationResult) []types.ValidationResult {
	out := make([]types.ValidationResult, 0)
	for _, r := range results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

type SummaryReport struct {
	TotalValidations  int    `json:"Total_Validations"`
	FailedValidations int    `json:"Failed_Validations"`
	UniqueTables      int    `json:"Unique_Tables"`
	UniqueRules       int    `json:"Unique_Rules"`
	AnalysisDate      string `json:"Analysis_Date"`
}

func BuildSummaryReport(results []types.ValidationResult, now time.Time) SummaryReport {
	s := Summarize(results)
	return SummaryReport{
		TotalValidations:  s.TotalChecks,
		FailedValidations: s.FailedChecks,
		UniqueTables:      s.TablesMonitored,
		UniqueRules:       s.ActiveRules,
		AnalysisDate:      now.Format("2006-01-02 15:04:05"),
	}
}

// Header and Row let the report be written as CSV.
func (s SummaryReport) Header() []string {
	return []string{"Total_Validations", "Failed_Validations", "Unique_Tables", "Unique_Rules", "Analysis_Date"}
}

func (s SummaryReport) Row() []string {
	return []string{
		fmt.Sprint(s.TotalValidations), fmt.Sprint(s.FailedValidations),
		fmt.Sprint(s.UniqueTables), fmt.Sprint(s.UniqueRules), s.AnalysisDate,
	}
}
