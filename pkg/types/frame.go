package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame is a tabular query result. Cells hold driver values with []byte
// already converted to string; NULL is nil.
type Frame struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Index returns the position of col, matching case-insensitively on trimmed
// names, or -1.
func (f *Frame) Index(col string) int {
	want := strings.ToLower(strings.TrimSpace(col))
	for i, c := range f.Columns {
		if strings.ToLower(strings.TrimSpace(c)) == want {
			return i
		}
	}
	return -1
}

// Values returns the cells of col, or nil when the column is absent.
func (f *Frame) Values(col string) []any {
	idx := f.Index(col)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out
}

// Clone returns a deep copy of the row slices.
func (f *Frame) Clone() *Frame {
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	out.Rows = make([][]any, len(f.Rows))
	for i, row := range f.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// Append concatenates other onto f, aligning columns by name. Columns only
// present in other are added and back-filled with nil.
func (f *Frame) Append(other *Frame) {
	if other == nil {
		return
	}
	mapping := make([]int, len(other.Columns))
	for i, c := range other.Columns {
		idx := f.Index(c)
		if idx < 0 {
			f.Columns = append(f.Columns, strings.TrimSpace(c))
			for j := range f.Rows {
				f.Rows[j] = append(f.Rows[j], nil)
			}
			idx = len(f.Columns) - 1
		}
		mapping[i] = idx
	}
	for _, row := range other.Rows {
		merged := make([]any, len(f.Columns))
		for i, v := range row {
			merged[mapping[i]] = v
		}
		f.Rows = append(f.Rows, merged)
	}
}

// Subset returns a frame holding only the given row positions.
func (f *Frame) Subset(rows []int) *Frame {
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	for _, i := range rows {
		out.Rows = append(out.Rows, f.Rows[i])
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts a cell into a time. The second return is false
// for NULL or unparseable values.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// CellString renders a cell as text, returning "" for NULL.
func CellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// FromFrame converts a validation results frame into rows. Table and Column
// values are trimmed and tables lowercased; rows without a usable
// Run_Timestamp are dropped.
func FromFrame(f *Frame) ([]ValidationResult, error) {
	if f == nil {
		return nil, nil
	}
	tsIdx := f.Index("Run_Timestamp")
	if tsIdx < 0 {
		return nil, fmt.Errorf("frame has no Run_Timestamp column")
	}
	col := func(row []any, name string) string {
		idx := f.Index(name)
		if idx < 0 {
			return ""
		}
		return strings.TrimSpace(CellString(row[idx]))
	}

	results := make([]ValidationResult, 0, len(f.Rows))
	for _, row := range f.Rows {
		ts, ok := ParseTimestamp(row[tsIdx])
		if !ok {
			continue
		}
		results = append(results, ValidationResult{
			RunTimestamp:    ts,
			Table:           strings.ToLower(col(row, "Table")),
			Column:          col(row, "Column"),
			Rule:            col(row, "Rule"),
			RuleDisplayName: col(row, "Rule_Display_Name"),
			Status:          col(row, "Status"),
			Metric:          col(row, "Metric"),
			FailedValue:     col(row, "Failed_Value"),
			FailedRowID:     col(row, "Failed_Row_ID"),
			FailureType:     col(row, "Failure_Type"),
		})
	}
	return results, nil
}

// ResultColumns is the column order used when results are turned back into
// a frame.
var ResultColumns = []string{
	"Run_Timestamp", "Table", "Column", "Rule", "Rule_Display_Name",
	"Status", "Metric", "Failed_Value", "Failed_Row_ID", "Failure_Type",
}

// ToFrame converts rows into a frame, with empty failure fields as NULL.
func ToFrame(results []ValidationResult) *Frame {
	f := &Frame{Columns: append([]string(nil), ResultColumns...)}
	nullable := func(s string) any {
		if s == "" {
			return nil
		}
		return s
	}
	for _, r := range results {
		f.Rows = append(f.Rows, []any{
			r.RunTimestamp, r.Table, r.Column, r.Rule, nullable(r.RuleDisplayName),
			r.Status, r.Metric, nullable(r.FailedValue), nullable(r.FailedRowID), nullable(r.FailureType),
		})
	}
	return f
}
