// Package refs is the reference store: the only mutable state in a
// repository.
//
// Layout under the store directory:
//
//	HEAD                  "ref: refs/streams/<name>\n"
//	refs/streams/<name>   tip ID plus newline, or empty for an un-tipped stream
//
// Every mutation goes through a lockfile. Tips move only by AdvanceStream,
// a compare-and-swap against the caller's expected tip.
package refs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
)

const (
	// HeadFile names the file holding the selected stream.
	HeadFile = "HEAD"

	// StreamsDir is the directory of stream files, relative to the store.
	StreamsDir = "refs/streams"

	headPrefix = "ref: " + StreamsDir + "/"
)

// Store manages HEAD and the stream files of one repository.
// It is safe for concurrent use, including from several processes.
type Store struct {
	dir    string
	policy lockfile.Policy
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLockPolicy sets how long mutations wait on a held lock before failing
// with errs.ErrLockContention. Default: lockfile.DefaultPolicy.
func WithLockPolicy(p lockfile.Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New returns a Store rooted at dir (the repository's store directory).
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		policy: lockfile.DefaultPolicy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) headPath() string {
	return filepath.Join(s.dir, HeadFile)
}

func (s *Store) streamsDir() string {
	return filepath.Join(s.dir, filepath.FromSlash(StreamsDir))
}

func (s *Store) streamPath(name string) string {
	return filepath.Join(s.streamsDir(), filepath.FromSlash(name))
}

// ReadHead returns the name of the selected stream.
func (s *Store) ReadHead() (string, error) {
	b, err := os.ReadFile(s.headPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.Wrap(errs.ErrNotFound, "refs.read_head", HeadFile, err)
	}
	if err != nil {
		return "", fmt.Errorf("refs: read HEAD: %w", err)
	}

	content := strings.TrimSpace(string(b))
	name := strings.TrimPrefix(content, headPrefix)
	if err := ValidateName(name); err != nil {
		return "", errs.New(errs.ErrIntegrity, "refs.read_head", content, "HEAD does not name a valid stream")
	}
	return name, nil
}

// SetHead selects a stream. It does not check that the stream exists.
func (s *Store) SetHead(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	lock, err := s.policy.Acquire(s.headPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	if _, err := lock.Write([]byte(headPrefix + name + "\n")); err != nil {
		return fmt.Errorf("refs: write HEAD: %w", err)
	}
	if err := lock.Commit(); err != nil {
		return err
	}
	s.logger.Debug("head set", "stream", name)
	return nil
}

// CreateStream creates a stream pointing at tip (zero for none). It fails
// with errs.ErrExists if the stream exists or the name collides with part of
// an existing hierarchical name.
func (s *Store) CreateStream(name string, tip object.ID) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.checkHierarchy(name); err != nil {
		return err
	}

	path := s.streamPath(name)
	lock, err := s.policy.Acquire(path)
	if err != nil {
		return err
	}
	defer lock.Release()

	if _, err := os.Lstat(path); err == nil {
		return errs.New(errs.ErrExists, "refs.create_stream", name, "stream already exists")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("refs: stat stream %s: %w", name, err)
	}

	if _, err := lock.Write(encodeTip(tip)); err != nil {
		return fmt.Errorf("refs: write stream %s: %w", name, err)
	}
	if err := lock.Commit(); err != nil {
		return err
	}
	s.logger.Debug("stream created", "stream", name, "tip", tip.Short())
	return nil
}

// checkHierarchy rejects "a/b" when stream "a" exists and "a" when any
// "a/..." stream exists: one path cannot be both a file and a directory.
func (s *Store) checkHierarchy(name string) error {
	segs := strings.Split(name, "/")
	for i := 1; i < len(segs); i++ {
		prefix := strings.Join(segs[:i], "/")
		info, err := os.Lstat(s.streamPath(prefix))
		if err == nil && !info.IsDir() {
			return errs.New(errs.ErrExists, "refs.create_stream", name, "conflicts with existing stream "+prefix)
		}
	}
	if info, err := os.Lstat(s.streamPath(name)); err == nil && info.IsDir() {
		return errs.New(errs.ErrExists, "refs.create_stream", name, "conflicts with existing streams under "+name+"/")
	}
	return nil
}

// ReadStream returns the stream's tip; the zero ID means the stream has no
// tip yet.
func (s *Store) ReadStream(name string) (object.ID, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return s.readTip(name)
}

func (s *Store) readTip(name string) (object.ID, error) {
	b, err := os.ReadFile(s.streamPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.Wrap(errs.ErrNotFound, "refs.read_stream", name, err)
	}
	if err != nil {
		// A directory here is a hierarchy prefix, not a stream.
		if info, serr := os.Stat(s.streamPath(name)); serr == nil && info.IsDir() {
			return "", errs.New(errs.ErrNotFound, "refs.read_stream", name, "no such stream")
		}
		return "", fmt.Errorf("refs: read stream %s: %w", name, err)
	}

	content := strings.TrimSpace(string(b))
	if content == "" {
		return "", nil
	}
	id, err := object.ParseID(content)
	if err != nil {
		return "", errs.Wrap(errs.ErrIntegrity, "refs.read_stream", name, err)
	}
	return id, nil
}

// AdvanceStream moves the stream from expected to next. If the tip is not
// expected at the moment of the write, nothing changes and the error is
// errs.ErrConflict; the caller must re-read and retry.
func (s *Store) AdvanceStream(name string, expected, next object.ID) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	lock, err := s.lockStream(name)
	if err != nil {
		return err
	}
	defer lock.Release()

	current, err := s.readTip(name)
	if err != nil {
		return err
	}
	if current != expected {
		return errs.New(errs.ErrConflict, "refs.advance_stream", name,
			fmt.Sprintf("expected tip %s, found %s", displayTip(expected), displayTip(current)))
	}

	if _, err := lock.Write(encodeTip(next)); err != nil {
		return fmt.Errorf("refs: write stream %s: %w", name, err)
	}
	if err := lock.Commit(); err != nil {
		return err
	}
	s.logger.Debug("stream advanced", "stream", name, "from", expected.Short(), "to", next.Short())
	return nil
}

// DeleteStream removes a stream. Deleting the stream HEAD selects is
// errs.ErrForbidden; deleting a missing stream is errs.ErrNotFound.
//
// HEAD stays locked for the whole deletion so a concurrent SetHead cannot
// select the stream between the check and the removal.
func (s *Store) DeleteStream(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	headLock, err := s.policy.Acquire(s.headPath())
	if err != nil {
		return err
	}
	defer headLock.Release()

	head, err := s.ReadHead()
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if head == name {
		return errs.New(errs.ErrForbidden, "refs.delete_stream", name, "cannot delete the current stream")
	}

	lock, err := s.lockStream(name)
	if err != nil {
		return err
	}
	if _, err := s.readTip(name); err != nil {
		lock.Release()
		return err
	}
	path := s.streamPath(name)
	if err := os.Remove(path); err != nil {
		lock.Release()
		return fmt.Errorf("refs: delete stream %s: %w", name, err)
	}
	if err := lock.Release(); err != nil {
		return err
	}

	s.pruneEmptyParents(filepath.Dir(path))
	s.logger.Debug("stream deleted", "stream", name)
	return nil
}

// lockStream locks an existing stream. A missing stream is errs.ErrNotFound
// and leaves no directories behind.
func (s *Store) lockStream(name string) (*lockfile.Lock, error) {
	if _, err := s.readTip(name); err != nil {
		return nil, err
	}
	lock, err := s.policy.Acquire(s.streamPath(name))
	if err != nil {
		return nil, err
	}
	// The stream may have been deleted while we waited; Acquire then
	// recreated its parent directories.
	if _, err := s.readTip(name); errors.Is(err, errs.ErrNotFound) {
		lock.Release()
		s.pruneEmptyParents(filepath.Dir(s.streamPath(name)))
		return nil, err
	}
	return lock, nil
}

// pruneEmptyParents removes empty directories left behind by a deleted
// hierarchical stream, stopping at the streams root.
func (s *Store) pruneEmptyParents(dir string) {
	root := s.streamsDir()
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// ListStreams returns every stream name in sorted order.
func (s *Store) ListStreams() ([]string, error) {
	root := s.streamsDir()
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), lockfile.Suffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refs: list streams: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Current returns the selected stream and its tip.
func (s *Store) Current() (name string, tip object.ID, err error) {
	name, err = s.ReadHead()
	if err != nil {
		return "", "", err
	}
	tip, err = s.ReadStream(name)
	if err != nil {
		return "", "", err
	}
	return name, tip, nil
}

func encodeTip(tip object.ID) []byte {
	if tip.IsZero() {
		return nil
	}
	return []byte(string(tip) + "\n")
}

func displayTip(id object.ID) string {
	if id.IsZero() {
		return "(none)"
	}
	return id.Short()
}
