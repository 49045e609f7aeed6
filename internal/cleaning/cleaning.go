package cleaning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Change log values.
const (
	AllTables        = "All Tables"
	AllColumns       = "All Columns"
	ChangeNullRows   = "Null Rows Removed"
	ChangeLowercased = "Lowercased"
	ChangeDuplicates = "Duplicates Removed"
)

type Options struct {
	RemoveNullRows   bool `json:"remove_null_rows"`
	Lowercase        bool `json:"lowercase"`
	RemoveDuplicates bool `json:"remove_duplicates"`
}

// Change is one change log entry.
type Change struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	Change  string `json:"change"`
	Details string `json:"details"`
}

// Result holds the cleaned frame and what was done to it.
type Result struct {
	Frame   *types.Frame `json:"frame"`
	Changes []Change     `json:"changes"`
}

// Clean applies the selected steps in order: null rows, lowercasing, then
// duplicates. The input frame is not modified. Steps that change nothing
// leave no log entry.
func Clean(f *types.Frame, opts Options) Result {
	if f == nil {
		f = &types.Frame{}
	}
	out := f.Clone()
	var log []Change

	if opts.RemoveNullRows {
		before := out.Len()
		out = dropNullRows(out)
		if removed := before - out.Len(); removed > 0 {
			log = append(log, Change{AllTables, AllColumns, ChangeNullRows, strconv.Itoa(removed)})
		}
	}

	if opts.Lowercase {
		for _, col := range lowercase(out) {
			log = append(log, Change{AllTables, col, ChangeLowercased, "Yes"})
		}
	}

	if opts.RemoveDuplicates {
		before := out.Len()
		out = dropDuplicates(out)
		if removed := before - out.Len(); removed > 0 {
			log = append(log, Change{AllTables, AllColumns, ChangeDuplicates, strconv.Itoa(removed)})
		}
	}

	return Result{Frame: out, Changes: log}
}

func dropNullRows(f *types.Frame) *types.Frame {
	var keep []int
rows:
	for i, row := range f.Rows {
		for _, v := range row {
			if v == nil {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	return f.Subset(keep)
}

// TextColumns returns the columns whose non-null cells are all strings.
func TextColumns(f *types.Frame) []int {
	var out []int
	for i := range f.Columns {
		text, seen := true, false
		for _, row := range f.Rows {
			switch row[i].(type) {
			case nil:
			case string:
				seen = true
			default:
				text = false
			}
		}
		if text && seen {
			out = append(out, i)
		}
	}
	return out
}

// lowercase rewrites text columns in place and returns the names of the
// ones that actually changed.
func lowercase(f *types.Frame) []string {
	var changed []string
	for _, idx := range TextColumns(f) {
		modified := false
		for _, row := range f.Rows {
			s, ok := row[idx].(string)
			if !ok {
				continue
			}
			if lower := strings.ToLower(s); lower != s {
				row[idx] = lower
				modified = true
			}
		}
		if modified {
			changed = append(changed, f.Columns[idx])
		}
	}
	return changed
}

// dropDuplicates keeps the first occurrence of each identical row.
func dropDuplicates(f *types.Frame) *types.Frame {
	seen := map[string]struct{}{}
	var keep []int
	for i, row := range f.Rows {
		key := rowKey(row)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	return f.Subset(keep)
}

// rowKey tags each cell with its type so 1 and "1" stay distinct, and
// keeps timestamps at full precision.
func rowKey(row []any) string {
	var b strings.Builder
	for _, v := range row {
		switch t := v.(type) {
		case nil:
			b.WriteString("\x00")
		case time.Time:
			b.WriteString("time:" + t.Format(time.RFC3339Nano))
		case []byte:
			b.WriteString("bytes:" + string(t))
		default:
			fmt.Fprintf(&b, "%T:%v", v, v)
		}
		b.WriteString("\x1f")
	}
	return b.String()
}
