// Package query resolves filters and aggregations against a repository's
// objects.
//
// A query that names an indexed key (impact, path, symbol, commit) first
// asks the index for candidates. The index is only trusted when fresh, and
// every candidate is re-read and re-checked against the full filter; any
// doubt falls back to one verified scan of the object database. Results are
// therefore the same with or without indexes.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/index"
	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/odb"
)

// Result is one matched object.
type Result struct {
	ID     object.ID
	Object object.Object
}

// Engine answers queries over one object database and its indexes.
type Engine struct {
	db     *odb.DB
	idx    *index.Store
	strict bool
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrict makes every query fail with errs.ErrIntegrity while the object
// database holds a corrupted entry, instead of skipping it with a warning.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. idx may be nil, in which case every query scans.
func New(db *odb.DB, idx *index.Store, opts ...Option) *Engine {
	e := &Engine{db: db, idx: idx, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns every object matching f, newest first (ties by ID).
func (e *Engine) Query(ctx context.Context, f Filter) ([]Result, error) {
	ctx, span := startQuerySpan(ctx, "Query")
	defer span.End()

	results, viaIndex, err := e.fromIndex(ctx, f)
	if err != nil {
		return nil, err
	}
	if !viaIndex {
		results, err = e.scan(ctx, f.Matches)
		if err != nil {
			return nil, err
		}
	}

	sortResults(results)
	span.SetAttributes(
		attribute.Bool("query.via_index", viaIndex),
		attribute.Int("query.results", len(results)),
	)
	recordResults(ctx, len(results))
	return results, nil
}

// fromIndex answers f from a fresh index. ok is false when the caller must
// scan instead.
//
// Strict engines always scan: only a full pass can see corruption outside
// the candidate set, and strict answers must not depend on the indexes.
func (e *Engine) fromIndex(ctx context.Context, f Filter) (results []Result, ok bool, err error) {
	name, key, indexed := f.indexKey()
	if !indexed || e.idx == nil || e.strict {
		return nil, false, nil
	}

	listed, err := e.db.List()
	if err != nil {
		return nil, false, err
	}
	entries, fresh := e.idx.Lookup(name, key, listed)
	if !fresh {
		e.logger.Debug("index stale, scanning", "index", name, "key", key)
		recordFallback(ctx, string(name), "stale")
		return nil, false, nil
	}

	for _, entry := range entries {
		obj, err := e.db.Read(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrIntegrity) {
				e.logger.Warn("index points at unreadable object, scanning",
					"index", name, "id", entry.ID.Short(), "error", err)
				recordFallback(ctx, string(name), "unreadable")
				return nil, false, nil
			}
			return nil, false, err
		}
		if f.Matches(obj) {
			results = append(results, Result{ID: entry.ID, Object: obj})
		}
	}
	return results, true, nil
}

// scan runs one verified pass over the object database.
func (e *Engine) scan(ctx context.Context, keep func(object.Object) bool) ([]Result, error) {
	res, err := e.db.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.checkCorruption(res); err != nil {
		return nil, err
	}

	var results []Result
	for _, entry := range res.Objects {
		if keep(entry.Object) {
			results = append(results, Result{ID: entry.ID, Object: entry.Object})
		}
	}
	return results, nil
}

func (e *Engine) checkCorruption(res *odb.ScanResult) error {
	if len(res.Corrupted) == 0 {
		return nil
	}
	first := res.Corrupted[0]
	if e.strict {
		return &errs.Error{
			Kind:    errs.ErrIntegrity,
			Op:      "query.scan",
			Subject: first.Path,
			Message: fmt.Sprintf("%d corrupted entries", len(res.Corrupted)),
			Err:     first.Err,
		}
	}
	e.logger.Warn("skipping corrupted objects", "count", len(res.Corrupted), "first", first.Path)
	return nil
}

// sortResults orders newest first; objects without a time sort last. Ties
// break on ID so output is deterministic.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		ti, tj := results[i].Object.Time(), results[j].Object.Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].ID < results[j].ID
	})
}
