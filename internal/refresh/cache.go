package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/metrics"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Loader fetches the raw validation results.
type Loader func(ctx context.Context) (*types.Frame, error)

// Hook runs after every successful refresh.
type Hook func(ctx context.Context, snap *Snapshot)

// Snapshot is one successful load.
type Snapshot struct {
	Frame    *types.Frame
	Results  []types.ValidationResult
	LoadedAt time.Time
}

// Cache holds the latest snapshot and the tables discovered in it.
type Cache struct {
	load Loader
	log  zerolog.Logger
	now  func() time.Time

	mu     sync.RWMutex
	policy Policy
	snap   *Snapshot
	tables []string
	scope  map[string]bool
	hooks  []Hook

	refreshMu sync.Mutex
}

func NewCache(load Loader, policy Policy, log zerolog.Logger) *Cache {
	return &Cache{
		load:   load,
		policy: policy,
		log:    log,
		now:    time.Now,
		scope:  map[string]bool{},
	}
}

// OnRefresh registers a hook.
func (c *Cache) OnRefresh(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

func (c *Cache) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

func (c *Cache) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
	return nil
}

// Peek returns the current snapshot without loading. It may be nil.
func (c *Cache) Peek() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return time.Time{}
	}
	return c.snap.LoadedAt
}

// Due reports whether the snapshot is missing or stale under p.
func (c *Cache) Due(p Policy) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap == nil || p.NeedsRefresh(c.now(), c.snap.LoadedAt)
}

// Get returns the snapshot, loading first when none exists or the policy
// says it is due.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	return c.GetWith(ctx, c.Policy())
}

// GetWith is Get under a caller-supplied policy, used for per-session
// refresh settings.
func (c *Cache) GetWith(ctx context.Context, p Policy) (*Snapshot, error) {
	if c.Due(p) {
		return c.Refresh(ctx)
	}
	return c.Peek(), nil
}

// Refresh loads unconditionally. On failure the previous snapshot stays in
// place and the error is returned.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.now()
	frame, err := c.load(ctx)
	if err == nil {
		var results []types.ValidationResult
		results, err = types.FromFrame(frame)
		if err == nil {
			snap := &Snapshot{Frame: frame, Results: results, LoadedAt: start}
			hooks := c.store(snap)
			metrics.Refreshes.WithLabelValues("success").Inc()
			c.log.Info().Int("rows", len(results)).Dur("took", c.now().Sub(start)).Msg("refreshed validation results")
			for _, h := range hooks {
				h(ctx, snap)
			}
			return snap, nil
		}
	}

	metrics.Refreshes.WithLabelValues("error").Inc()
	c.log.Error().Err(err).Msg("refresh failed")
	return c.Peek(), fmt.Errorf("refresh: %w", err)
}

func (c *Cache) store(snap *Snapshot) []Hook {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap

	// Tables and scope are discovered from the first non-empty load only.
	if len(c.tables) == 0 {
		seen := map[string]struct{}{}
		for _, r := range snap.Results {
			if r.Table == "" {
				continue
			}
			if _, ok := seen[r.Table]; !ok {
				seen[r.Table] = struct{}{}
				c.tables = append(c.tables, r.Table)
			}
		}
		sort.Strings(c.tables)
		for _, t := range c.tables {
			c.scope[t] = true
		}
	}
	return append([]Hook(nil), c.hooks...)
}

// Tables returns the discovered tables.
func (c *Cache) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tables...)
}

// Scope returns a copy of the per-table enabled flags.
func (c *Cache) Scope() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.scope))
	for k, v := range c.scope {
		out[k] = v
	}
	return out
}

func (c *Cache) SetScope(table string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope[table] = enabled
}

// ScopedResults returns the snapshot's results restricted to enabled tables.
func (c *Cache) ScopedResults(snap *Snapshot) []types.ValidationResult {
	if snap == nil {
		return nil
	}
	scope := c.Scope()
	out := make([]types.ValidationResult, 0, len(snap.Results))
	for _, r := range snap.Results {
		if enabled, known := scope[r.Table]; known && !enabled {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Run checks the policy every tick until ctx is done.
func (c *Cache) Run(ctx context.Context, tick time.Duration) error {
	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := c.Get(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}
