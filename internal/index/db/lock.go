package db

import "errors"

// ErrIndexLocked is returned when another process is rebuilding the index.
var ErrIndexLocked = errors.New("index is locked by another rebuild")

// lockPath returns the sidecar lock file guarding rebuilds of dbPath.
func lockPath(dbPath string) string {
	return dbPath + ".lock"
}
