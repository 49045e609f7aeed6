package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
)

var ErrUnknownBackend = errors.New("unknown warehouse backend")

// Opener connects a backend using the loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Warehouse, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{}
)

// Register adds a backend. Backends call it from init.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = open
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Warehouse, error) {
	registryMu.RLock()
	open, ok := registry[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, cfg.Backend, Backends())
	}

	wh, err := open(ctx, cfg, log.With().Str("backend", cfg.Backend).Logger())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
	}
	return wh, nil
}
