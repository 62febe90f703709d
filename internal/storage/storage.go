// Package storage persists finished tables. Every sink implements
// TableWriter and registers a factory under its output kind; importing
// gdqvods/internal/storage/all enables every built-in sink.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"gdqvods/internal/table"
)

// TableWriter persists whole tables. Writing a table replaces any earlier
// copy with the same name.
type TableWriter interface {
	WriteTable(ctx context.Context, t *table.Table) error
	Close() error
}

// Config selects and configures a sink.
type Config struct {
	Kind string
	// Dir receives csv files and the xlsx workbook.
	Dir      string
	Workbook string
	// DSN is the SQL connection string.
	DSN string
	// BatchSize bounds rows per insert batch (default 500).
	BatchSize int
	Log       logrus.FieldLogger
}

// Factory opens a sink.
type Factory func(ctx context.Context, cfg Config) (TableWriter, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs f under kind, replacing any earlier registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the sink registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (TableWriter, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %s)", cfg.Kind, strings.Join(ListKinds(), ", "))
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
