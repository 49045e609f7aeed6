package tracker

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Workflow states that count as open work.
const (
	StatusOpen       = "Open"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
)

var (
	ErrNotFound      = errors.New("issue not found")
	ErrInvalidStatus = errors.New("invalid action status")
)

// Issue is a failed validation tracked through remediation.
type Issue struct {
	ID          string    `json:"id"`
	Table       string    `json:"table"`
	Column      string    `json:"column"`
	Rule        string    `json:"rule_display_name"`
	FailedRowID string    `json:"failed_row_id"`
	FailedValue string    `json:"failed_value"`
	Status      string    `json:"action_status"`
	Assignee    string    `json:"assignee"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key is the identity used to skip records already tracked.
func (i Issue) Key() string {
	return strings.Join([]string{i.Table, i.Column, i.Rule, i.FailedRowID}, "|")
}

// IssueColumns is the export column order.
var IssueColumns = []string{
	"Table", "Column", "Rule_Display_Name", "Failed_Row_ID", "Failed_Value",
	"Action_Status", "Assignee", "Notes",
}

func (i Issue) Row() []string {
	return []string{i.Table, i.Column, i.Rule, i.FailedRowID, i.FailedValue, i.Status, i.Assignee, i.Notes}
}

// Filter narrows a listing. An empty slice matches everything.
type Filter struct {
	Statuses  []string `json:"statuses,omitempty"`
	Tables    []string `json:"tables,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// Patch holds the editable fields; nil leaves a field as is.
type Patch struct {
	Status   *string `json:"action_status,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type Metrics struct {
	Total          int     `json:"total"`
	Open           int     `json:"open"`
	Resolved       int     `json:"resolved"`
	ResolutionRate float64 `json:"resolution_rate"`
}

type FilteredSummary struct {
	Filtered       int `json:"filtered"`
	Priority       int `json:"priority"`
	AffectedTables int `json:"affected_tables"`
}

// SummaryReport is the one-row tracker report.
type SummaryReport struct {
	TotalIssues    int    `json:"Total Issues"`
	OpenIssues     int    `json:"Open Issues"`
	InProgress     int    `json:"In Progress"`
	ResolvedIssues int    `json:"Resolved Issues"`
	UniqueTables   int    `json:"Unique Tables"`
	UniqueRules    int    `json:"Unique Rules"`
	ReportDate     string `json:"Report Date"`
}

func (SummaryReport) Header() []string {
	return []string{
		"Total Issues", "Open Issues", "In Progress", "Resolved Issues",
		"Unique Tables", "Unique Rules", "Report Date",
	}
}

func (r SummaryReport) Row() []string {
	return []string{
		strconv.Itoa(r.TotalIssues), strconv.Itoa(r.OpenIssues), strconv.Itoa(r.InProgress),
		strconv.Itoa(r.ResolvedIssues), strconv.Itoa(r.UniqueTables), strconv.Itoa(r.UniqueRules),
		r.ReportDate,
	}
}

func resolutionRate(resolved, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(resolved)/float64(total)*1000) / 10
}
