package types

import (
	"strings"
	"time"
)

const (
	StatusPassed  = "Passed"
	StatusFailed  = "Failed"
	StatusWarning = "Warning"
)

// ValidationResult is one row of a validation results table.
type ValidationResult struct {
	RunTimestamp    time.Time `json:"run_timestamp"`
	Table           string    `json:"table"`
	Column          string    `json:"column"`
	Rule            string    `json:"rule"`
	RuleDisplayName string    `json:"rule_display_name"`
	Status          string    `json:"status"`
	Metric          string    `json:"metric"`
	FailedValue     string    `json:"failed_value,omitempty"`
	FailedRowID     string    `json:"failed_row_id,omitempty"`
	FailureType     string    `json:"failure_type,omitempty"`
}

// Key returns the "table.column" identifier.
func (r ValidationResult) Key() string {
	return r.Table + "." + r.Column
}

// DisplayRule returns the display name, falling back to the rule name.
func (r ValidationResult) DisplayRule() string {
	if r.RuleDisplayName != "" {
		return r.RuleDisplayName
	}
	return r.Rule
}

func (r ValidationResult) Failed() bool {
	return r.Status == StatusFailed
}

// FailedRecord is a failed check as loaded for the action tracker.
type FailedRecord struct {
	Table           string `json:"table"`
	Column          string `json:"column"`
	RuleDisplayName string `json:"rule_display_name"`
	FailedRowID     string `json:"failed_row_id"`
	FailedValue     string `json:"failed_value"`
}

// DedupKey identifies a failed record across loads.
func (f FailedRecord) DedupKey() string {
	return strings.Join([]string{f.Table, f.Column, f.RuleDisplayName, f.FailedRowID}, "|")
}
