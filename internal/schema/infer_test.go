package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func TestInfer(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &types.Frame{
		Columns: []string{"id", "amount", "ok", "seen_at", "name", "mixed", "nothing"},
		Rows: [][]any{
			{int64(1), 1.5, true, ts, "alice", "x", nil},
			{int64(2), "2", false, "2024-01-02", "bob", int64(3), nil},
			{int64(2), nil, true, ts, nil, true, nil},
		},
	}
	got := Infer(f)
	require.Len(t, got, 7)

	byName := map[string]ColumnProfile{}
	for _, p := range got {
		byName[p.Column] = p
	}

	assert.Equal(t, TypeInteger, byName["id"].Type)
	assert.Equal(t, 2, byName["id"].Uniques)
	assert.Equal(t, TypeFloat, byName["amount"].Type)
	assert.Equal(t, 1, byName["amount"].Nulls)
	assert.Equal(t, 33.33, byName["amount"].NullPercent)
	assert.Equal(t, TypeBoolean, byName["ok"].Type)
	assert.Equal(t, TypeTimestamp, byName["seen_at"].Type)
	assert.Equal(t, TypeString, byName["name"].Type)
	assert.Equal(t, TypeMixed, byName["mixed"].Type)
	assert.Equal(t, TypeEmpty, byName["nothing"].Type)
	assert.Equal(t, 100.0, byName["nothing"].NullPercent)
	assert.Equal(t, 0, byName["nothing"].Uniques)
}

func TestInfer_Nil(t *testing.T) {
	assert.Nil(t, Infer(nil))
}

func TestInfer_NoRows(t *testing.T) {
	got := Infer(&types.Frame{Columns: []string{"a"}})
	require.Len(t, got, 1)
	assert.Equal(t, TypeEmpty, got[0].Type)
	assert.Zero(t, got[0].NullPercent)
}
