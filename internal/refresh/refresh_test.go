package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/testutil"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func TestNeedsRefresh(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	at := base.Add(time.Hour)

	tests := []struct {
		name   string
		policy Policy
		now    time.Time
		last   time.Time
		want   bool
	}{
		{"interval not elapsed", Policy{Mode: config.RefreshInterval, Interval: 10 * time.Minute}, base.Add(10 * time.Minute), base, false},
		{"interval elapsed", Policy{Mode: config.RefreshInterval, Interval: 10 * time.Minute}, base.Add(11 * time.Minute), base, true},
		{"specific before time", Policy{Mode: config.RefreshSpecific, At: at}, base.Add(30 * time.Minute), base, false},
		{"specific reached", Policy{Mode: config.RefreshSpecific, At: at}, at, base, true},
		{"specific already done", Policy{Mode: config.RefreshSpecific, At: at}, at.Add(time.Hour), at.Add(time.Minute), false},
		{"specific unset", Policy{Mode: config.RefreshSpecific}, at, base, false},
		{"manual", Policy{Mode: config.RefreshManual}, base.Add(48 * time.Hour), base, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.NeedsRefresh(tt.now, tt.last))
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Policy{Mode: config.RefreshInterval, Interval: time.Minute}.Validate())
	assert.NoError(t, Policy{Mode: config.RefreshInterval, Interval: 1440 * time.Minute}.Validate())
	assert.Error(t, Policy{Mode: config.RefreshInterval, Interval: 1441 * time.Minute}.Validate())
	assert.Error(t, Policy{Mode: config.RefreshInterval}.Validate())
	assert.Error(t, Policy{Mode: "Hourly"}.Validate())
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RefreshConfig{Mode: config.RefreshSpecific, IntervalMinutes: 5, At: "2024-06-01T13:00:00Z"})
	assert.Equal(t, 5*time.Minute, p.Interval)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), p.At)
}

func frameWith(tables ...string) *types.Frame {
	f := &types.Frame{Columns: []string{"Run_Timestamp", "Table", "Status"}}
	for _, tbl := range tables {
		f.Rows = append(f.Rows, []any{"2024-06-01 10:00:00", tbl, types.StatusPassed})
	}
	return f
}

func TestCache_GetLoadsOnceUntilDue(t *testing.T) {
	var calls atomic.Int32
	load := func(context.Context) (*types.Frame, error) {
		calls.Add(1)
		return frameWith("Orders", "customers"), nil
	}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(load, Policy{Mode: config.RefreshInterval, Interval: 10 * time.Minute}, testutil.NewLogger(t))
	c.now = func() time.Time { return now }

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Results, 2)

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(11 * time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, []string{"customers", "orders"}, c.Tables())
	assert.Equal(t, map[string]bool{"customers": true, "orders": true}, c.Scope())
}

func TestCache_RefreshErrorKeepsSnapshot(t *testing.T) {
	fail := false
	load := func(context.Context) (*types.Frame, error) {
		if fail {
			return nil, errors.New("warehouse stopped")
		}
		return frameWith("orders"), nil
	}
	c := NewCache(load, Policy{Mode: config.RefreshManual}, testutil.NewLogger(t))

	first, err := c.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	snap, err := c.Refresh(context.Background())
	assert.Error(t, err)
	assert.Same(t, first, snap)
	assert.Same(t, first, c.Peek())
}

func TestCache_ScopeInitialisedOnce(t *testing.T) {
	tables := []string{"orders"}
	load := func(context.Context) (*types.Frame, error) { return frameWith(tables...), nil }
	c := NewCache(load, Policy{Mode: config.RefreshManual}, testutil.NewLogger(t))

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	c.SetScope("orders", false)

	tables = []string{"orders", "payments"}
	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"orders"}, c.Tables())
	assert.False(t, c.Scope()["orders"])

	scoped := c.ScopedResults(snap)
	require.Len(t, scoped, 1)
	assert.Equal(t, "payments", scoped[0].Table)
}

func TestCache_HooksRunAfterRefresh(t *testing.T) {
	c := NewCache(func(context.Context) (*types.Frame, error) { return frameWith("orders"), nil },
		Policy{Mode: config.RefreshManual}, testutil.NewLogger(t))

	var got *Snapshot
	c.OnRefresh(func(_ context.Context, s *Snapshot) { got = s })

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, got)
}

func TestCache_SetPolicyValidates(t *testing.T) {
	c := NewCache(nil, Policy{Mode: config.RefreshManual}, testutil.NewLogger(t))
	assert.Error(t, c.SetPolicy(Policy{Mode: config.RefreshInterval, Interval: 0}))
	require.NoError(t, c.SetPolicy(Policy{Mode: config.RefreshInterval, Interval: 5 * time.Minute}))
	assert.Equal(t, 5*time.Minute, c.Policy().Interval)
}
