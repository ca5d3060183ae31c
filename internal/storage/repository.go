// Package storage persists scraped records into SQL backends.
//
// Backends register themselves under a kind string from an init() function;
// callers pick one by configuration. The schema model is deliberately flat:
// one table, one TEXT-affinity column per scraped field, values normalized
// to strings (NULL for the failed-conversion sentinel). Anything richer
// belongs in a downstream pipeline, not in the scraper.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config selects and connects a storage backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository stores scraped records.
//
// This interface is intentionally minimal: the scrape CLI only ever creates
// the target table and appends rows. Each backend implements these
// semantics idiomatically (Postgres CREATE TABLE IF NOT EXISTS, MSSQL
// OBJECT_ID guard, etc).
type Repository interface {
	// Close releases backend resources. Treat as "call once".
	Close()

	// EnsureTable creates table with one nullable TEXT column per field if
	// it does not already exist. Idempotent.
	EnsureTable(ctx context.Context, table string, fields []string) error

	// InsertRecords appends rows (aligned to fields order) and returns the
	// number of rows written.
	InsertRecords(ctx context.Context, table string, fields []string, rows [][]any) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Failing
//     fast beats ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
