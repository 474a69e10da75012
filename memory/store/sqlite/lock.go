package sqlite

import (
	"fmt"
	"os"
)

// acquireLock takes an advisory single-writer lock on path+".lock" using
// exclusive file creation. It is not robust to a process crashing without
// releasing the lock (the stale lock file must be removed by hand); that
// tradeoff is preferred here over cgo-based flock bindings, which would
// break the pure-Go build.
func acquireLock(path string) (*os.File, error) {
	lockPath := path + ".lock"
	fh, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("lock file %s already exists: another process may hold the store open", lockPath)
		}
		return nil, err
	}
	fmt.Fprintf(fh, "%d\n", os.Getpid())
	return fh, nil
}

func releaseLock(path string) {
	os.Remove(path + ".lock")
}
