package anomaly

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

type Method string

const (
	MethodZScore          Method = "Z-Score"
	MethodIsolationForest Method = "Isolation Forest"
)

// ZThreshold is the absolute z-score above which a value is anomalous.
const ZThreshold = 3.0

// Contamination is the share of rows the isolation forest flags.
const Contamination = 0.05

var (
	ErrNoNumericColumns = errors.New("no numeric columns found for anomaly detection")
	ErrNoCompleteRows   = errors.New("no complete rows for selected columns")
	ErrUnknownColumn    = errors.New("column is not numeric")
	ErrUnknownMethod    = errors.New("unknown detection method")
)

// derivedColumns are coerced into numeric "<name>_num" companions.
var derivedColumns = []string{"Failed_Value", "Failed_Row_ID"}

// Methods lists the supported detection methods.
func Methods() []Method {
	return []Method{MethodZScore, MethodIsolationForest}
}

// Prepare returns a copy of f with a numeric companion for each derived
// column present. Values that do not parse to a finite number become NULL.
func Prepare(f *types.Frame) *types.Frame {
	out := f.Clone()
	for _, name := range derivedColumns {
		idx := out.Index(name)
		if idx < 0 || out.Index(name+"_num") >= 0 {
			continue
		}
		out.Columns = append(out.Columns, name+"_num")
		for i, row := range out.Rows {
			var v any
			if n, ok := coerce(row[idx]); ok {
				v = n
			}
			out.Rows[i] = append(row, v)
		}
	}
	return out
}

// NumericColumns returns the columns whose non-null cells are all numbers.
// Derived companions always count, even when every value failed to parse.
func NumericColumns(f *types.Frame) []string {
	var out []string
	for i, name := range f.Columns {
		if strings.HasSuffix(name, "_num") && slices.Contains(derivedColumns, strings.TrimSuffix(name, "_num")) {
			out = append(out, name)
			continue
		}
		numeric, seen := true, false
		for _, row := range f.Rows {
			if row[i] == nil {
				continue
			}
			if _, ok := toFloat(row[i]); !ok {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			out = append(out, name)
		}
	}
	return out
}

type Request struct {
	Method  Method   `json:"method"`
	Columns []string `json:"columns"`
}

type Result struct {
	Method    Method       `json:"method"`
	Columns   []string     `json:"columns"`
	Checked   int          `json:"checked"`
	Anomalies *types.Frame `json:"anomalies"`
}

// Detect prepares f, keeps the rows complete in the selected columns and
// returns the anomalous ones. No columns selected means every numeric one.
func Detect(f *types.Frame, req Request) (*Result, error) {
	prepared := Prepare(f)
	numeric := NumericColumns(prepared)
	if len(numeric) == 0 {
		return nil, ErrNoNumericColumns
	}

	cols := req.Columns
	if len(cols) == 0 {
		cols = numeric
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		if !slices.Contains(numeric, c) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}
		idx[i] = prepared.Index(c)
	}

	var (
		rows   []int
		matrix [][]float64
	)
	for i, row := range prepared.Rows {
		vals := make([]float64, len(idx))
		complete := true
		for j, k := range idx {
			v, ok := toFloat(row[k])
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
				break
			}
			vals[j] = v
		}
		if complete {
			rows = append(rows, i)
			matrix = append(matrix, vals)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoCompleteRows
	}

	var mask []bool
	switch req.Method {
	case MethodZScore, "":
		req.Method = MethodZScore
		mask = zScoreMask(matrix)
	case MethodIsolationForest:
		mask = forestMask(matrix)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}

	var flagged []int
	for i, hit := range mask {
		if hit {
			flagged = append(flagged, rows[i])
		}
	}
	return &Result{
		Method:    req.Method,
		Columns:   cols,
		Checked:   len(rows),
		Anomalies: prepared.Subset(flagged),
	}, nil
}

// zScoreMask flags rows where any column's population z-score exceeds the
// threshold. Constant columns never flag.
func zScoreMask(matrix [][]float64) []bool {
	mask := make([]bool, len(matrix))
	col := make([]float64, len(matrix))
	for j := range matrix[0] {
		for i, row := range matrix {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		for i, v := range col {
			if math.Abs((v-mean)/std) > ZThreshold {
				mask[i] = true
			}
		}
	}
	return mask
}

func forestMask(matrix [][]float64) []bool {
	forest := NewForest(DefaultTrees, DefaultSampleSize, DefaultSeed)
	forest.Fit(matrix)
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		scores[i] = forest.Score(row)
	}

	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	cut := stat.Quantile(1-Contamination, stat.LinInterp, sorted, nil)

	mask := make([]bool, len(matrix))
	for i, s := range scores {
		mask[i] = s > cut
	}
	return mask
}

// coerce parses v as a number. "inf" and "NaN" spellings count as invalid.
func coerce(v any) (float64, bool) {
	n, ok := toFloat(v)
	if !ok {
		var err error
		n, err = strconv.ParseFloat(strings.TrimSpace(types.CellString(v)), 64)
		ok = err == nil
	}
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}
