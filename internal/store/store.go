// Package store persists scan records. Backends register themselves by name;
// the configured backend is selected at startup. All implementations must be
// safe for concurrent use and must enforce the terminal-write guard: Complete
// and Fail only apply to a record still in pending, so the orchestrator's
// single terminal write stays idempotent no matter who loses a race.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/axescan/axescan/internal/model"
)

// ErrNotFound is returned by Get for unknown scan identifiers.
var ErrNotFound = errors.New("store: scan not found")

// Store is the durable record of scan state.
type Store interface {
	// Create persists a new scan record.
	Create(ctx context.Context, scan *model.Scan) error

	// Get returns the scan with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Scan, error)

	// Complete transitions a pending scan to completed with its score,
	// findings and metadata. Returns false when the record was no longer
	// pending and nothing was written.
	Complete(ctx context.Context, id string, score int, findings *model.Findings, meta *model.PageMeta, completedAt time.Time) (bool, error)

	// Fail transitions a pending scan to failed with a failure reason.
	// Returns false when the record was no longer pending.
	Fail(ctx context.Context, id string, reason string, completedAt time.Time) (bool, error)

	// FindRecentCompleted returns the most recent completed scan of url whose
	// completion lies within the trailing window, or nil when there is none.
	FindRecentCompleted(ctx context.Context, url string, window time.Duration) (*model.Scan, error)

	// ListRecent returns up to limit scans, newest first.
	ListRecent(ctx context.Context, limit int) ([]*model.Scan, error)

	// FailStalePending fails every pending scan created more than olderThan
	// ago and returns their ids. Used by the janitor to recover records
	// orphaned by a crashed process.
	FailStalePending(ctx context.Context, olderThan time.Duration, reason string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Backend names a registered backend; empty means "sqlite".
	Backend string

	// Path is the database file location for the sqlite backend.
	Path string

	// URL is the connection string for the postgres backend.
	URL string
}
