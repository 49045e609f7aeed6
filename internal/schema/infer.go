package schema

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeString    ColumnType = "string"
	TypeMixed     ColumnType = "mixed"
	TypeEmpty     ColumnType = "empty"
)

// ColumnProfile describes one column of a frame.
type ColumnProfile struct {
	Column      string     `json:"column"`
	Type        ColumnType `json:"data_type"`
	Nulls       int        `json:"nulls"`
	NullPercent float64    `json:"null_percent"`
	Uniques     int        `json:"uniques"`
}

// Infer profiles every column of f in column order.
func Infer(f *types.Frame) []ColumnProfile {
	if f == nil {
		return nil
	}
	out := make([]ColumnProfile, 0, len(f.Columns))
	for i, name := range f.Columns {
		out = append(out, profile(f, i, name))
	}
	return out
}

func profile(f *types.Frame, idx int, name string) ColumnProfile {
	p := ColumnProfile{Column: name}
	distinct := map[string]struct{}{}
	kinds := map[ColumnType]struct{}{}

	for _, row := range f.Rows {
		v := row[idx]
		if v == nil {
			p.Nulls++
			continue
		}
		kinds[kindOf(v)] = struct{}{}
		distinct[types.CellString(v)] = struct{}{}
	}

	p.Uniques = len(distinct)
	if n := len(f.Rows); n > 0 {
		p.NullPercent = math.Round(float64(p.Nulls)/float64(n)*100*100) / 100
	}
	p.Type = merge(kinds)
	return p
}

// kindOf classifies a single cell. Strings are sniffed so that text
// columns returned by a warehouse still infer numerically when they are.
func kindOf(v any) ColumnType {
	switch t := v.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeFloat
	case time.Time:
		return TypeTimestamp
	case string:
		s := strings.TrimSpace(t)
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return TypeInteger
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return TypeFloat
		}
		if _, ok := types.ParseTimestamp(s); ok {
			return TypeTimestamp
		}
		return TypeString
	default:
		return TypeString
	}
}

func merge(kinds map[ColumnType]struct{}) ColumnType {
	switch len(kinds) {
	case 0:
		return TypeEmpty
	case 1:
		for k := range kinds {
			return k
		}
	}
	// integers widen into floats
	if len(kinds) == 2 {
		_, hasInt := kinds[TypeInteger]
		_, hasFloat := kinds[TypeFloat]
		if hasInt && hasFloat {
			return TypeFloat
		}
	}
	return TypeMixed
}
