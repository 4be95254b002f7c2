// Package registry owns the job list: it assigns ids, enforces the capacity
// limit and runs every mutation as a locked load-modify-save against the
// storage backend.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskd/internal/job"
	"taskd/internal/storage"
	logx "taskd/pkg/logx"
)

const DefaultMaxJobs = 100

var (
	ErrCapacity = errors.New("too many jobs")
	ErrNotFound = errors.New("job not found")
)

type Options struct {
	MaxJobs         int
	MaxCommandBytes int
	// Location interprets and renders due times; nil means time.Local.
	Location *time.Location
}

type Registry struct {
	store storage.Backend
	opt   Options
	log   logx.Logger
}

func New(store storage.Backend, opt Options, log logx.Logger) *Registry {
	if opt.MaxJobs <= 0 {
		opt.MaxJobs = DefaultMaxJobs
	}
	if opt.MaxCommandBytes <= 0 {
		opt.MaxCommandBytes = job.DefaultMaxCommandBytes
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{store: store, opt: opt, log: log}
}

func (r *Registry) Location() *time.Location { return r.opt.Location }

// Load returns a fresh snapshot of the stored list.
func (r *Registry) Load(ctx context.Context) ([]job.Job, error) {
	jobs, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	return jobs, nil
}

// Add registers command. A nil dueText means due-immediately; otherwise it
// must parse with job.ParseDue. A full store is reported before any input
// error, and nothing is written on any error.
func (r *Registry) Add(ctx context.Context, command string, dueText *string) (job.Job, error) {
	var added job.Job
	err := r.update(ctx, func(jobs []job.Job) ([]job.Job, error) {
		if len(jobs) >= r.opt.MaxJobs {
			return nil, fmt.Errorf("%w (max %d)", ErrCapacity, r.opt.MaxJobs)
		}
		cmd, err := job.NormalizeCommand(command, r.opt.MaxCommandBytes)
		if err != nil {
			return nil, err
		}
		var due time.Time
		if dueText != nil {
			if due, err = job.ParseDue(*dueText, r.opt.Location); err != nil {
				return nil, err
			}
		}
		added = job.Job{ID: job.NextID(jobs), Command: cmd, Due: due}
		return append(jobs, added), nil
	})
	if err != nil {
		return job.Job{}, err
	}
	r.log.Debug("job added", logx.Int("id", added.ID), logx.String("due", job.FormatDue(added.Due, r.opt.Location)))
	return added, nil
}

// MarkExecuted flips the executed flag of id against a fresh load, so jobs
// added by other processes since the caller's snapshot are kept.
func (r *Registry) MarkExecuted(ctx context.Context, id int) error {
	return r.update(ctx, func(jobs []job.Job) ([]job.Job, error) {
		for i := range jobs {
			if jobs[i].ID == id {
				jobs[i].Executed = true
				return jobs, nil
			}
		}
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	})
}

func (r *Registry) update(ctx context.Context, fn func([]job.Job) ([]job.Job, error)) error {
	unlock, err := r.store.Lock(ctx)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	defer unlock()

	jobs, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	next, err := fn(jobs)
	if err != nil {
		return err
	}
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save jobs: %w", err)
	}
	return nil
}
