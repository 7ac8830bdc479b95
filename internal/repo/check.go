package repo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/index"
	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/odb"
	"github.com/roach88/telos/internal/query"
)

// BindingStatus is the result of checking one code binding against the
// working tree.
type BindingStatus struct {
	ID       object.ID
	Binding  object.CodeBinding
	Resolved bool
}

// CheckBindings reports, for every stored code binding, whether its path
// exists under the project root. Nothing is written; the resolution field on
// stored bindings is advisory.
func (r *Repository) CheckBindings(ctx context.Context) ([]BindingStatus, error) {
	results, err := r.engine.Query(ctx, query.Filter{Kind: object.KindCodeBinding})
	if err != nil {
		return nil, err
	}

	statuses := make([]BindingStatus, 0, len(results))
	for _, res := range results {
		b := res.Object.(object.CodeBinding)
		_, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(b.Path)))
		switch {
		case err == nil:
			statuses = append(statuses, BindingStatus{ID: res.ID, Binding: b, Resolved: true})
		case errors.Is(err, fs.ErrNotExist):
			statuses = append(statuses, BindingStatus{ID: res.ID, Binding: b})
		default:
			return nil, err
		}
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		if statuses[i].Binding.Path != statuses[j].Binding.Path {
			return statuses[i].Binding.Path < statuses[j].Binding.Path
		}
		return statuses[i].ID < statuses[j].ID
	})
	return statuses, nil
}

// BrokenRef is a stream whose tip cannot be read as an intent.
type BrokenRef struct {
	Stream string
	Tip    object.ID
	Err    error
}

// Report is the outcome of Verify.
type Report struct {
	Objects    int
	Corrupted  []odb.Corrupted
	BrokenRefs []BrokenRef

	// StaleLocks are lock files older than lockfile.StaleAge. Each one
	// blocks its target until removed.
	StaleLocks []lockfile.Stale
}

// OK reports whether Verify found nothing wrong.
func (rep *Report) OK() bool {
	return len(rep.Corrupted) == 0 && len(rep.BrokenRefs) == 0 && len(rep.StaleLocks) == 0
}

// Verify checks the whole repository: every object file is re-hashed and
// every stream tip must name a readable intent. Problems are collected in
// the report; the error is reserved for failures to walk the store.
func (r *Repository) Verify(ctx context.Context) (*Report, error) {
	res, err := r.db.Scan(ctx)
	if err != nil {
		return nil, err
	}
	rep := &Report{Objects: len(res.Objects), Corrupted: res.Corrupted}

	streams, err := r.ListStreams()
	if err != nil {
		return nil, err
	}
	for _, s := range streams {
		if s.Tip.IsZero() {
			continue
		}
		obj, err := r.db.Read(ctx, s.Tip)
		if err == nil && obj.Kind() != object.KindIntent {
			err = errs.New(errs.ErrInvalidReference, "repo.verify", string(s.Tip), "tip is a "+string(obj.Kind()))
		}
		if err != nil {
			rep.BrokenRefs = append(rep.BrokenRefs, BrokenRef{Stream: s.Name, Tip: s.Tip, Err: err})
		}
	}

	rep.StaleLocks, err = r.staleLocks()
	if err != nil {
		return nil, err
	}

	r.logger.Debug("verify finished", "objects", rep.Objects,
		"corrupted", len(rep.Corrupted), "broken_refs", len(rep.BrokenRefs),
		"stale_locks", len(rep.StaleLocks))
	return rep, nil
}

// staleLocks compares against the wall clock: lock ages come from file
// modification times, not from object timestamps.
func (r *Repository) staleLocks() ([]lockfile.Stale, error) {
	return lockfile.FindStale(r.dir, time.Now().Add(-lockfile.StaleAge))
}

// ClearStaleLocks removes every lock file older than lockfile.StaleAge and
// returns the ones removed. A lock retaken after it was found is left alone.
func (r *Repository) ClearStaleLocks(ctx context.Context) ([]lockfile.Stale, error) {
	stale, err := r.staleLocks()
	if err != nil {
		return nil, err
	}
	var cleared []lockfile.Stale
	for _, s := range stale {
		if err := ctx.Err(); err != nil {
			return cleared, err
		}
		if err := lockfile.Clear(s); err != nil {
			r.logger.Warn("stale lock not cleared", "path", s.Path, "error", err)
			continue
		}
		r.logger.Info("stale lock cleared", "path", s.Path, "modified", s.ModTime)
		cleared = append(cleared, s)
	}
	return cleared, nil
}

// Reindex rebuilds every index from one scan of the object database.
func (r *Repository) Reindex(ctx context.Context) (index.Stats, error) {
	return r.idx.Rebuild(ctx, r.db)
}

// Query runs a filter against the repository.
func (r *Repository) Query(ctx context.Context, f query.Filter) ([]query.Result, error) {
	return r.engine.Query(ctx, f)
}

// Context returns the intents touching impact together with their decision
// records.
func (r *Repository) Context(ctx context.Context, impact string) ([]query.Group, error) {
	return r.engine.Aggregate(ctx, query.Filter{Kind: object.KindIntent, Impact: impact}, query.Decisions)
}
