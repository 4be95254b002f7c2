package storage

import (
	"context"
	"sync"
	"time"
)

const lockRetryEvery = 25 * time.Millisecond

// fileLock serializes load+save pairs.
//
// Within a process a mutex is always held; across processes an flock on
// path is added when enabled (unix only).
type fileLock struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

func newFileLock(path string, enabled bool) *fileLock {
	return &fileLock{path: path, enabled: enabled}
}

func (l *fileLock) Lock(ctx context.Context) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// sync.Mutex has no context-aware acquire; poll TryLock instead.
	for !l.mu.TryLock() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryEvery):
		}
	}
	if !l.enabled {
		return l.mu.Unlock, nil
	}
	release, err := acquireFlock(ctx, l.path)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			l.mu.Unlock()
		})
	}, nil
}
