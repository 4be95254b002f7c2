package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"taskd/internal/job"
	logx "taskd/pkg/logx"
)

// fileStore keeps jobs in a flat file, one line per job.
//
// Files:
//   - <path>       the job list
//   - <path>.tmp   staging file for Save (renamed over <path>)
//   - <path>.lock  advisory lock target
type fileStore struct {
	log  logx.Logger
	path string
	lock *fileLock

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := filepath.Clean(cfg.Path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{
		log:  log,
		path: path,
		lock: newFileLock(path+".lock", cfg.Lock),
	}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]job.Job, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	jobs, err := job.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	s.log.Trace("jobs loaded", logx.String("path", s.path), logx.Int("count", len(jobs)))
	return jobs, nil
}

func (s *fileStore) Save(ctx context.Context, jobs []job.Job) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := job.Encode(f, jobs); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Trace("jobs saved", logx.String("path", s.path), logx.Int("count", len(jobs)))
	return nil
}

func (s *fileStore) Lock(ctx context.Context) (func(), error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.lock.Lock(ctx)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) check(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
