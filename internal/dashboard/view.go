package dashboard

import "github.com/alexanderjulianmartinez/autodq/pkg/types"

const TopN = 10

// View is the validation dashboard for one filter.
type View struct {
	Summary            Summary                  `json:"summary"`
	StatusDistribution []Count                  `json:"status_distribution"`
	Trends             []TrendPoint             `json:"trends"`
	FailedByTable      []Count                  `json:"failed_by_table"`
	Results            []types.ValidationResult `json:"results"`
}

func BuildView(results []types.ValidationResult, f Filter) View {
	filtered := f.Apply(results)
	return View{
		Summary:            Summarize(filtered),
		StatusDistribution: StatusDistribution(filtered),
		Trends:             DailyTrends(filtered),
		FailedByTable:      FailedByTable(filtered, TopN),
		Results:            Detail(filtered),
	}
}

// Intelligence is the analytics hub over a date-filtered result set.
type Intelligence struct {
	Summary            Summary      `json:"summary"`
	StatusDistribution []Count      `json:"status_distribution"`
	RuleFailures       []Count      `json:"rule_failures"`
	Trends             []TrendPoint `json:"trends"`
	TablePerformance   []TableStats `json:"table_performance"`
	Insights           Insights     `json:"insights"`
}

func BuildIntelligence(results []types.ValidationResult, f Filter) Intelligence {
	filtered := f.Apply(results)
	return Intelligence{
		Summary:            Summarize(filtered),
		StatusDistribution: StatusDistribution(filtered),
		RuleFailures:       RuleFailures(filtered, TopN),
		Trends:             DailyTrends(filtered),
		TablePerformance:   TablePerformance(filtered),
		Insights:           BuildInsights(filtered),
	}
}
