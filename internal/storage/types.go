package storage

import (
	"context"
	"errors"
	"time"

	"taskd/internal/job"
)

// DefaultPath is the backing file used when none is configured.
const DefaultPath = "jobs.txt"

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Backend is the persistence API used by the registry.
type Backend interface {
	// Load returns the full job list in stored order. A missing store is an
	// empty list, not an error.
	Load(ctx context.Context) ([]job.Job, error)
	// Save replaces the full job list.
	Save(ctx context.Context, jobs []job.Job) error
	// Lock takes the cross-process advisory lock guarding a load+save pair.
	Lock(ctx context.Context) (unlock func(), err error)
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (or empty): flat file in the job line format
//   - "sqlite": SQLite database file
type Config struct {
	Driver string
	Path   string
	// Lock enables flock-based advisory locking on "<path>.lock".
	Lock        bool
	BusyTimeout time.Duration // sqlite only; 0 means default
}
