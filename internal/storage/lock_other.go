//go:build !unix

package storage

import "context"

// Advisory locking is unix-only; elsewhere only the in-process mutex applies.
func acquireFlock(ctx context.Context, path string) (func(), error) {
	_ = ctx
	_ = path
	return func() {}, nil
}
