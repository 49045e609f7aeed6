package coverage

import (
	"sort"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Coverage levels for a table/column cell.
const (
	LevelBlindSpot = "blind_spot"
	LevelPartial   = "partial"
	LevelCovered   = "covered"
)

// PartialThreshold is the highest rule count still considered partial.
const PartialThreshold = 10

// Level classifies a distinct rule count.
func Level(n int) string {
	switch {
	case n == 0:
		return LevelBlindSpot
	case n <= PartialThreshold:
		return LevelPartial
	default:
		return LevelCovered
	}
}

// Matrix counts distinct rules per table and column. Columns is the union
// over every table, so a table missing a column reads as zero for it.
type Matrix struct {
	Tables  []string         `json:"tables"`
	Columns []string         `json:"columns"`
	Counts  map[string][]int `json:"counts"`

	seen map[string]map[string]bool
}

// Cell is a single table/column entry.
type Cell struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Rules  int    `json:"rules"`
	Level  string `json:"level"`
	// Checked is true when the column appears for the table in the results
	// at all, even if none of its rows carried a rule name.
	Checked bool `json:"checked"`
}

// Build groups results by table and column and counts distinct rule display
// names. Rows with no display name are seen but not counted.
func Build(results []types.ValidationResult) *Matrix {
	rules := map[string]map[string]map[string]struct{}{}
	columns := map[string]struct{}{}
	for _, r := range results {
		byCol, ok := rules[r.Table]
		if !ok {
			byCol = map[string]map[string]struct{}{}
			rules[r.Table] = byCol
		}
		set, ok := byCol[r.Column]
		if !ok {
			set = map[string]struct{}{}
			byCol[r.Column] = set
		}
		if r.RuleDisplayName != "" {
			set[r.RuleDisplayName] = struct{}{}
		}
		columns[r.Column] = struct{}{}
	}

	m := &Matrix{
		Counts: map[string][]int{},
		seen:   map[string]map[string]bool{},
	}
	for c := range columns {
		m.Columns = append(m.Columns, c)
	}
	sort.Strings(m.Columns)

	for table, byCol := range rules {
		m.Tables = append(m.Tables, table)
		row := make([]int, len(m.Columns))
		seen := map[string]bool{}
		for i, c := range m.Columns {
			if set, ok := byCol[c]; ok {
				row[i] = len(set)
				seen[c] = true
			}
		}
		m.Counts[table] = row
		m.seen[table] = seen
	}
	sort.Strings(m.Tables)
	return m
}

// Cells flattens the matrix in table then column order.
func (m *Matrix) Cells() []Cell {
	var out []Cell
	for _, t := range m.Tables {
		for i, c := range m.Columns {
			n := m.Counts[t][i]
			out = append(out, Cell{
				Table:   t,
				Column:  c,
				Rules:   n,
				Level:   Level(n),
				Checked: m.seen[t][c],
			})
		}
	}
	return out
}

// BlindSpots returns the cells with no rules.
func (m *Matrix) BlindSpots() []Cell {
	var out []Cell
	for _, c := range m.Cells() {
		if c.Rules == 0 {
			out = append(out, c)
		}
	}
	return out
}

// Summary counts cells per level.
func (m *Matrix) Summary() map[string]int {
	out := map[string]int{LevelBlindSpot: 0, LevelPartial: 0, LevelCovered: 0}
	for _, c := range m.Cells() {
		out[c.Level]++
	}
	return out
}
