package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// StaleAge is how old a lock file must be before FindStale reports it. Every
// lock in the store is held for one small write, so a lock this old was left
// by a process that died.
const StaleAge = 10 * time.Minute

// Stale is a lock file no live writer is expected to hold.
type Stale struct {
	Path    string
	ModTime time.Time
}

// FindStale walks root and returns every lock file last modified before
// cutoff, sorted by path. A missing root has no locks.
func FindStale(root string, cutoff time.Time) ([]Stale, error) {
	var stale []Stale
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Suffix) {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Released while we walked.
			return nil
		}
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, Stale{Path: path, ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lockfile: find stale locks under %s: %w", root, err)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Path < stale[j].Path })
	return stale, nil
}

// Clear removes a stale lock file. It refuses anything that is not a lock
// file and treats an already removed lock as cleared.
func Clear(s Stale) error {
	if !strings.HasSuffix(s.Path, Suffix) {
		return fmt.Errorf("lockfile: %s is not a lock file", s.Path)
	}
	info, err := os.Lstat(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lockfile: stat %s: %w", s.Path, err)
	}
	if !info.ModTime().Equal(s.ModTime) {
		return fmt.Errorf("lockfile: %s changed since it was found stale", s.Path)
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lockfile: remove %s: %w", s.Path, err)
	}
	return nil
}
