// Package odb is the content-addressable object database.
//
// Objects live at objects/<2-hex>/<62-hex>; the file holds the object's
// canonical encoding. Objects are never rewritten once committed, so writers
// need no coordination beyond the lock taken for the initial atomic write.
//
// Every Read recomputes the ID from the stored bytes. A mismatch is reported
// as errs.ErrIntegrity, never as the corrupted content.
package odb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
)

// DB is an object database rooted at a directory.
// It is safe for concurrent use, including from several processes.
type DB struct {
	dir    string
	logger *slog.Logger

	// settle bounds how long Write waits for a concurrent writer of the
	// same object to finish.
	settle time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

// New returns a DB rooted at dir. The directory is created lazily on first
// write.
func New(dir string, opts ...Option) *DB {
	db := &DB{
		dir:    dir,
		logger: slog.Default(),
		settle: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Dir returns the objects directory.
func (db *DB) Dir() string {
	return db.dir
}

// Path returns the storage path of id.
func (db *DB) Path(id object.ID) string {
	dir, file := id.FanOut()
	return filepath.Join(db.dir, dir, file)
}

// Write stores obj and returns its ID. Writing an object that already exists
// is a no-op.
func (db *DB) Write(ctx context.Context, obj object.Object) (id object.ID, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "Write", attribute.String("odb.kind", string(obj.Kind())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		recordLatency(ctx, "write", start, err == nil)
	}()

	encoded, err := object.Encode(obj)
	if err != nil {
		return "", err
	}
	id = object.Identify(encoded)
	span.SetAttributes(attribute.String("odb.id", string(id)))
	path := db.Path(id)

	if ok, err := fileExists(path); err != nil {
		return "", err
	} else if ok {
		db.logger.Debug("object exists", "id", id.Short(), "kind", obj.Kind())
		return id, nil
	}

	lock, err := lockfile.Acquire(path)
	if errors.Is(err, errs.ErrLockContention) {
		// Another writer holds the same content; wait for it to land.
		if db.awaitObject(ctx, path) {
			return id, nil
		}
		return "", err
	}
	if err != nil {
		return "", err
	}
	defer lock.Release()

	if ok, err := fileExists(path); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	if _, err := lock.Write(encoded); err != nil {
		return "", fmt.Errorf("odb: write %s: %w", id, err)
	}
	if err := lock.Commit(); err != nil {
		return "", err
	}

	recordWritten(ctx, string(obj.Kind()))
	db.logger.Debug("object written", "id", id.Short(), "kind", obj.Kind(), "bytes", len(encoded))
	return id, nil
}

func (db *DB) awaitObject(ctx context.Context, path string) bool {
	deadline := time.Now().Add(db.settle)
	for time.Now().Before(deadline) {
		if ok, _ := fileExists(path); ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(2 * time.Millisecond):
		}
	}
	ok, _ := fileExists(path)
	return ok
}

// Read loads the object stored under id and verifies that its bytes hash to
// id.
func (db *DB) Read(ctx context.Context, id object.ID) (obj object.Object, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "Read", attribute.String("odb.id", string(id)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		recordLatency(ctx, "read", start, err == nil)
	}()

	if len(id) != object.IDLen {
		return nil, errs.New(errs.ErrNotFound, "odb.read", string(id), "not a full object id")
	}
	encoded, err := os.ReadFile(db.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrNotFound, "odb.read", string(id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("odb: read %s: %w", id, err)
	}
	return db.verify(ctx, id, encoded)
}

func (db *DB) verify(ctx context.Context, id object.ID, encoded []byte) (object.Object, error) {
	if actual := object.Identify(encoded); actual != id {
		recordIntegrityFailure(ctx)
		return nil, errs.New(errs.ErrIntegrity, "odb.read", string(id), "content hashes to "+string(actual))
	}
	obj, err := object.Decode(encoded)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIntegrity, "odb.read", string(id), err)
	}
	return obj, nil
}

// Exists reports whether an object file exists for id. It does not verify
// the content.
func (db *DB) Exists(id object.ID) (bool, error) {
	if len(id) != object.IDLen {
		return false, nil
	}
	return fileExists(db.Path(id))
}

// ResolvePrefix expands a hex prefix of at least object.MinPrefixLen
// characters to the single ID it names.
func (db *DB) ResolvePrefix(prefix string) (object.ID, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if !object.IsPrefix(prefix) {
		return "", errs.New(errs.ErrInvalidObject, "odb.resolve_prefix", prefix,
			fmt.Sprintf("need %d to %d hex characters", object.MinPrefixLen, object.IDLen))
	}

	fan, rest := prefix[:object.FanOutLen], prefix[object.FanOutLen:]
	entries, err := os.ReadDir(filepath.Join(db.dir, fan))
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.New(errs.ErrNotFound, "odb.resolve_prefix", prefix, "no object matches")
	}
	if err != nil {
		return "", fmt.Errorf("odb: resolve %s: %w", prefix, err)
	}

	var matches []object.ID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isObjectName(name) || !strings.HasPrefix(name, rest) {
			continue
		}
		matches = append(matches, object.ID(fan+name))
	}

	switch len(matches) {
	case 0:
		return "", errs.New(errs.ErrNotFound, "odb.resolve_prefix", prefix, "no object matches")
	case 1:
		return matches[0], nil
	default:
		return "", errs.New(errs.ErrAmbiguous, "odb.resolve_prefix", prefix,
			fmt.Sprintf("%d objects match", len(matches)))
	}
}

// List returns the IDs of every object file in sorted order, from directory
// listings alone. Content is not read or verified.
func (db *DB) List() ([]object.ID, error) {
	fans, err := db.fanDirs()
	if err != nil {
		return nil, err
	}
	var ids []object.ID
	for _, fan := range fans {
		entries, err := os.ReadDir(filepath.Join(db.dir, fan))
		if err != nil {
			return nil, fmt.Errorf("odb: list %s: %w", fan, err)
		}
		for _, e := range entries {
			if !e.IsDir() && isObjectName(e.Name()) {
				ids = append(ids, object.ID(fan+e.Name()))
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// fanDirs lists the two-hex-character directories under the root.
func (db *DB) fanDirs() ([]string, error) {
	entries, err := os.ReadDir(db.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("odb: list %s: %w", db.dir, err)
	}
	var fans []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) == object.FanOutLen && isLowerHex(e.Name()) {
			fans = append(fans, e.Name())
		}
	}
	return fans, nil
}

func isObjectName(name string) bool {
	return len(name) == object.IDLen-object.FanOutLen && isLowerHex(name)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("odb: stat %s: %w", path, err)
}
