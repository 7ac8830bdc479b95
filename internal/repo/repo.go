// Package repo is the integrity layer of a Telos repository.
//
// A Repository ties the object database, the reference store, the indexes
// and the query engine to one project directory:
//
//	<root>/.telos/
//	    config.yaml
//	    HEAD
//	    objects/<2-hex>/<62-hex>
//	    refs/streams/<name...>
//	    indexes/{impact,codepath,symbols,commits}.json
//
// Every Create* method validates the object and resolves each ID it
// references before anything is written, so no dangling or mistyped edge
// can enter the graph through this package.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/telos/internal/config"
	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/index"
	"github.com/roach88/telos/internal/odb"
	"github.com/roach88/telos/internal/query"
	"github.com/roach88/telos/internal/refs"
)

const (
	// Dir is the store directory inside a project root.
	Dir = ".telos"

	// DefaultStream is the stream HEAD selects after Init.
	DefaultStream = "main"

	objectsDir = "objects"
	indexesDir = "indexes"
)

// Clock supplies timestamps for objects created without one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Repository is an open Telos repository.
type Repository struct {
	root string
	dir  string
	cfg  config.Config

	db     *odb.DB
	refs   *refs.Store
	idx    *index.Store
	engine *query.Engine

	clock  Clock
	logger *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the clock used to stamp new objects. Default: UTC wall time.
func WithClock(c Clock) Option {
	return func(r *Repository) {
		r.clock = c
	}
}

// WithLogger sets the logger handed to every layer. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// Init creates a repository under root and returns it open. It fails with
// errs.ErrExists if root already holds one.
func Init(ctx context.Context, root string, opts ...Option) (*Repository, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("repo: init: %w", err)
	}
	dir := filepath.Join(root, Dir)
	if _, err := os.Stat(dir); err == nil {
		return nil, errs.New(errs.ErrExists, "repo.init", dir, "repository already initialized")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("repo: init: %w", err)
	}

	for _, sub := range []string{objectsDir, filepath.FromSlash(refs.StreamsDir), indexesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("repo: init: %w", err)
		}
	}
	if err := config.Save(filepath.Join(dir, config.FileName), config.Default()); err != nil {
		return nil, err
	}

	r, err := open(root, opts...)
	if err != nil {
		return nil, err
	}
	if err := r.refs.CreateStream(DefaultStream, ""); err != nil {
		return nil, err
	}
	if err := r.refs.SetHead(DefaultStream); err != nil {
		return nil, err
	}
	if _, err := r.snapshot(ctx, DefaultStream, "", "Default intent stream", ""); err != nil {
		return nil, err
	}
	r.logger.Debug("repository initialized", "root", root)
	return r, nil
}

// Open opens the repository whose project root is root.
func Open(root string, opts ...Option) (*Repository, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("repo: open: %w", err)
	}
	info, err := os.Stat(filepath.Join(root, Dir))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, errs.New(errs.ErrNotFound, "repo.open", root, "not a telos repository")
	}
	if err != nil {
		return nil, fmt.Errorf("repo: open: %w", err)
	}
	return open(root, opts...)
}

// Discover opens the nearest repository at or above start.
func Discover(start string, opts ...Option) (*Repository, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("repo: discover: %w", err)
	}
	for {
		info, err := os.Stat(filepath.Join(dir, Dir))
		if err == nil && info.IsDir() {
			return open(dir, opts...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, errs.New(errs.ErrNotFound, "repo.discover", start,
				"not a telos repository (or any parent up to "+dir+")")
		}
		dir = parent
	}
}

func open(root string, opts ...Option) (*Repository, error) {
	r := &Repository{
		root:   root,
		dir:    filepath.Join(root, Dir),
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	cfg, err := config.Load(filepath.Join(r.dir, config.FileName))
	if err != nil {
		return nil, err
	}
	r.cfg = cfg

	policy := cfg.Lock.Policy()
	r.db = odb.New(filepath.Join(r.dir, objectsDir), odb.WithLogger(r.logger))
	r.refs = refs.New(r.dir, refs.WithLockPolicy(policy), refs.WithLogger(r.logger))
	r.idx = index.New(filepath.Join(r.dir, indexesDir), index.WithLockPolicy(policy), index.WithLogger(r.logger))
	r.engine = query.New(r.db, r.idx, query.WithStrict(cfg.Strict), query.WithLogger(r.logger))
	return r, nil
}

// Root returns the project root.
func (r *Repository) Root() string { return r.root }

// Dir returns the store directory (<root>/.telos).
func (r *Repository) Dir() string { return r.dir }

// Config returns the loaded settings.
func (r *Repository) Config() config.Config { return r.cfg }

// ODB returns the object database.
func (r *Repository) ODB() *odb.DB { return r.db }

// Refs returns the reference store.
func (r *Repository) Refs() *refs.Store { return r.refs }

// Indexes returns the index store.
func (r *Repository) Indexes() *index.Store { return r.idx }

// Engine returns the query engine.
func (r *Repository) Engine() *query.Engine { return r.engine }
