package rules

import (
	"context"
	"time"

	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// RecentLimit is how many saved validations the summary lists.
const RecentLimit = 10

type SavedRow struct {
	RunTimestamp time.Time `json:"run_timestamp"`
	Rule         string    `json:"rule_display_name"`
	Status       string    `json:"status"`
}

// SavedSummary describes the user-rule results saved to the dashboard.
type SavedSummary struct {
	Total       int        `json:"total"`
	UniqueRules int        `json:"unique_rules"`
	Recent      []SavedRow `json:"recent"`
}

// Saved loads and summarizes the saved validations.
func Saved(ctx context.Context, r *source.Reader) (*SavedSummary, error) {
	f, err := r.LoadSaved(ctx)
	if err != nil {
		return nil, err
	}
	return SummarizeSaved(f), nil
}

// SummarizeSaved expects f ordered newest first.
func SummarizeSaved(f *types.Frame) *SavedSummary {
	out := &SavedSummary{Total: f.Len()}
	if f.Len() == 0 {
		return out
	}

	tsIdx, ruleIdx, statusIdx := f.Index("Run_Timestamp"), f.Index("Rule_Display_Name"), f.Index("Status")
	unique := map[string]struct{}{}
	for i, row := range f.Rows {
		var rule string
		if ruleIdx >= 0 && row[ruleIdx] != nil {
			rule = types.CellString(row[ruleIdx])
			unique[rule] = struct{}{}
		}
		if i >= RecentLimit {
			continue
		}
		sr := SavedRow{Rule: rule}
		if tsIdx >= 0 {
			sr.RunTimestamp, _ = types.ParseTimestamp(row[tsIdx])
		}
		if statusIdx >= 0 {
			sr.Status = types.CellString(row[statusIdx])
		}
		out.Recent = append(out.Recent, sr)
	}
	out.UniqueRules = len(unique)
	return out
}
