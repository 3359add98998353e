//go:build !unix

package db

// RebuildLock is a no-op here: rebuild locking is advisory and only
// implemented on unix.
type RebuildLock struct{}

func acquireRebuildLock(string) (*RebuildLock, error) {
	return &RebuildLock{}, nil
}

func (*RebuildLock) Release() error { return nil }
