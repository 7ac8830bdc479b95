// Package lockfile provides the store's only unit of atomicity and
// exclusion: a sibling "<target>.lock" file created exclusively, written,
// then renamed over the target.
//
// Acquire never blocks. A second Acquire on the same target while a lock is
// outstanding fails with errs.ErrLockContention; callers that want to wait use
// a Policy.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/telos/internal/errs"
)

// Suffix is appended to the target path to form the lock path.
const Suffix = ".lock"

// Lock is an exclusive claim on a target path. Data written to the lock
// replaces the target atomically on Commit; Release without Commit leaves the
// target untouched.
//
// Lock is NOT safe for concurrent use.
type Lock struct {
	target string
	path   string
	file   *os.File
	done   bool
}

// Acquire creates target+".lock" exclusively. The parent directory is created
// if needed.
func Acquire(target string) (*Lock, error) {
	lockPath := target + Suffix
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: create parent of %s: %w", lockPath, err)
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, errs.Wrap(errs.ErrLockContention, "lockfile.acquire", lockPath, err)
		}
		return nil, fmt.Errorf("lockfile: open %s: %w", lockPath, err)
	}
	return &Lock{target: target, path: lockPath, file: f}, nil
}

// Target returns the path the lock replaces on commit.
func (l *Lock) Target() string { return l.target }

// Path returns the lock file's own path.
func (l *Lock) Path() string { return l.path }

// Write appends p to the pending contents.
func (l *Lock) Write(p []byte) (int, error) {
	if l.done {
		return 0, fmt.Errorf("lockfile: write to %s after commit or release", l.path)
	}
	return l.file.Write(p)
}

// Commit flushes the pending contents to disk and renames them over the
// target. After Commit the lock is released.
func (l *Lock) Commit() error {
	if l.done {
		return fmt.Errorf("lockfile: commit of %s after commit or release", l.path)
	}
	l.done = true

	if err := l.file.Sync(); err != nil {
		l.file.Close()
		os.Remove(l.path)
		return fmt.Errorf("lockfile: sync %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("lockfile: close %s: %w", l.path, err)
	}
	if err := os.Rename(l.path, l.target); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("lockfile: rename %s: %w", l.path, err)
	}
	syncDir(filepath.Dir(l.target))
	return nil
}

// Release drops the lock without touching the target. It is a no-op after
// Commit and safe to call more than once, so it can always be deferred.
func (l *Lock) Release() error {
	if l.done {
		return nil
	}
	l.done = true
	closeErr := l.file.Close()
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lockfile: remove %s: %w", l.path, err)
	}
	return closeErr
}

// WriteFile atomically replaces target with data under a single lock.
func WriteFile(target string, data []byte) error {
	l, err := Acquire(target)
	if err != nil {
		return err
	}
	defer l.Release()

	if _, err := l.Write(data); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", l.path, err)
	}
	return l.Commit()
}

// syncDir makes a rename durable. Errors are ignored: not every filesystem
// supports fsync on a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// Policy retries Acquire on contention. The zero value tries once.
type Policy struct {
	// Attempts is the total number of Acquire calls. Values < 1 mean 1.
	Attempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// DefaultPolicy is used by the reference store and index writer.
var DefaultPolicy = Policy{Attempts: 40, Backoff: 5 * time.Millisecond}

// Acquire calls Acquire until it succeeds, fails with something other than
// contention, or runs out of attempts.
func (p Policy) Acquire(target string) (*Lock, error) {
	attempts := max(p.Attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		var l *Lock
		l, err = Acquire(target)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, errs.ErrLockContention) {
			return nil, err
		}
		if i < attempts-1 && p.Backoff > 0 {
			time.Sleep(p.Backoff)
		}
	}
	return nil, err
}
