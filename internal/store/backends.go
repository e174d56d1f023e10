package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/axescan/axescan/internal/logging"
)

// Constructor builds a Store from the config and logger.
type Constructor func(ctx context.Context, cfg Config, logger logging.Logger) (Store, error)

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register registers a named backend constructor. Names are lower-cased;
// registering an existing name overwrites the previous constructor.
func Register(name string, ctor Constructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// Open constructs the configured backend. It returns an error if the named
// backend has not been registered.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "sqlite"
	}

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("store backend %q not registered: available backends=%v", backend, Backends())
	}

	s, err := ctor(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct store backend %q: %w", backend, err)
	}
	if s == nil {
		return nil, errors.New("store constructor returned nil")
	}
	return s, nil
}

// Backends returns the list of registered backend names.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// RegisterDefaultBackends registers the sqlite, postgres and memory backends.
// Call early in main() to make them available to Open.
func RegisterDefaultBackends() {
	Register("sqlite", func(_ context.Context, cfg Config, logger logging.Logger) (Store, error) {
		return NewSQLiteStore(cfg.Path, logger)
	})
	Register("postgres", func(ctx context.Context, cfg Config, logger logging.Logger) (Store, error) {
		return NewPostgresStore(ctx, cfg.URL, logger)
	})
	Register("memory", func(_ context.Context, _ Config, _ logging.Logger) (Store, error) {
		return NewMemoryStore(), nil
	})
}
