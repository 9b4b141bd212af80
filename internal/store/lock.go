package store

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// FileLock is a cross-process advisory write lock backed by an O_EXCL lock
// file next to the database. The background watcher, a foreground CLI run and
// an out-of-process scheduled task all serialize their writes through it.
// Readers never take the lock; WAL mode keeps them unblocked.
type FileLock struct {
	path    string
	timeout time.Duration
	poll    time.Duration
}

// NewFileLock creates a lock with a 30s acquisition bound and 200ms polling.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:    path,
		timeout: 30 * time.Second,
		poll:    200 * time.Millisecond,
	}
}

// Acquire blocks until the lock file is created or the bound elapses. A lock
// file whose mtime is older than 4x the bound is presumed abandoned by a
// crashed writer and removed.
func (l *FileLock) Acquire() error {
	deadline := time.Now().Add(l.timeout)
	for {
		fd, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			fmt.Fprintf(fd, "%d %d", os.Getpid(), time.Now().Unix())
			fd.Close()
			return nil
		}
		if !os.IsExist(err) {
			return eris.Wrapf(err, "store: create lock file %s", l.path)
		}

		if info, statErr := os.Stat(l.path); statErr == nil {
			if time.Since(info.ModTime()) > 4*l.timeout {
				_ = os.Remove(l.path)
				continue
			}
		}

		if time.Now().After(deadline) {
			return eris.Errorf("store: write lock timeout after %s", l.timeout)
		}
		time.Sleep(l.poll)
	}
}

// Release removes the lock file. Safe to call when the file is already gone.
func (l *FileLock) Release() {
	_ = os.Remove(l.path)
}
