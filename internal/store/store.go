package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Record is the last known state of an active watch, kept so a restarted
// daemon can find compilers left behind by its predecessor.
// Dir is the canonical source directory and is unique.
type Record struct {
	Dir       string    `json:"dir"`
	PID       int       `json:"pid"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists the pending-watch directory list and active watch records.
type Store interface {
	EnsureSchema(ctx context.Context) error

	// AddDir appends dir to the pending list; adding it again is a no-op.
	AddDir(ctx context.Context, dir string) error
	RemoveDir(ctx context.Context, dir string) error
	// ListDirs returns the pending list in insertion order.
	ListDirs(ctx context.Context) ([]string, error)

	RecordWatch(ctx context.Context, rec Record) error
	DeleteWatch(ctx context.Context, dir string) error
	ListWatches(ctx context.Context) ([]Record, error)

	Close() error
}
