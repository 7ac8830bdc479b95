package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/object"
)

// create is the single write path: validate, resolve references, store,
// index. An index failure after a successful store is logged and not
// returned; the object is durable and queries fall back to scanning.
func (r *Repository) create(ctx context.Context, op string, obj object.Object) (object.ID, error) {
	obj = object.Normalize(obj)
	if err := object.Validate(obj); err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			e.Op = op
		}
		return "", err
	}
	if err := r.checkReferences(ctx, op, obj); err != nil {
		return "", err
	}

	id, err := r.db.Write(ctx, obj)
	if err != nil {
		return "", err
	}
	if err := r.idx.Update(ctx, id, obj); err != nil {
		r.logger.Warn("index update failed; queries will scan until reindex",
			"id", id.Short(), "kind", obj.Kind(), "error", err)
	}
	r.logger.Debug("object created", "op", op, "id", id.Short(), "kind", obj.Kind())
	return id, nil
}

// checkReferences resolves every outgoing edge of obj. A target that is
// missing, unreadable or of the wrong kind is reported against the field
// that holds it.
func (r *Repository) checkReferences(ctx context.Context, op string, obj object.Object) error {
	seen := make(map[object.ID]object.Kind)
	for _, ref := range obj.References() {
		kind, ok := seen[ref.ID]
		if !ok {
			target, err := r.db.Read(ctx, ref.ID)
			switch {
			case errors.Is(err, errs.ErrNotFound):
				return errs.InvalidReference(op, ref.Field, string(ref.ID), "does not exist")
			case errors.Is(err, errs.ErrIntegrity):
				return errs.InvalidReference(op, ref.Field, string(ref.ID), "target is corrupted")
			case err != nil:
				return err
			}
			kind = target.Kind()
			seen[ref.ID] = kind
		}
		if !ref.Accepts(kind) {
			return errs.InvalidReference(op, ref.Field, string(ref.ID),
				fmt.Sprintf("is a %s, expected %s", kind, kindList(ref.Allowed)))
		}
	}
	return nil
}

func kindList(kinds []object.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, " or ")
}

func (r *Repository) author(a object.Author) object.Author {
	if a.Name == "" {
		return r.cfg.Author
	}
	return a
}

func (r *Repository) now(t time.Time) time.Time {
	if t.IsZero() {
		return r.clock.Now()
	}
	return t
}

// CreateIntent stores in and advances the current stream from the tip it
// held when the call began to the new intent.
//
// in.Parents is taken as given. If the stream moved in the meantime the
// object is still stored, and the returned error is errs.ErrConflict along
// with the new ID; the caller decides whether to retry with fresh parents.
// An empty author or timestamp is filled from the config and clock.
func (r *Repository) CreateIntent(ctx context.Context, in object.Intent) (object.ID, error) {
	stream, tip, err := r.refs.Current()
	if err != nil {
		return "", err
	}
	return r.commitIntent(ctx, stream, tip, in)
}

// AppendIntent is CreateIntent with the current tip as the only parent
// when in has no parents of its own.
func (r *Repository) AppendIntent(ctx context.Context, in object.Intent) (object.ID, error) {
	stream, tip, err := r.refs.Current()
	if err != nil {
		return "", err
	}
	if len(in.Parents) == 0 && !tip.IsZero() {
		in.Parents = []object.ID{tip}
	}
	return r.commitIntent(ctx, stream, tip, in)
}

func (r *Repository) commitIntent(ctx context.Context, stream string, tip object.ID, in object.Intent) (object.ID, error) {
	in.Author = r.author(in.Author)
	in.Timestamp = r.now(in.Timestamp)

	id, err := r.create(ctx, "repo.create_intent", in)
	if err != nil {
		return "", err
	}
	if err := r.refs.AdvanceStream(stream, tip, id); err != nil {
		return id, err
	}
	return id, nil
}

// CreateConstraint stores a constraint. Author and timestamp default as in
// CreateIntent.
func (r *Repository) CreateConstraint(ctx context.Context, c object.Constraint) (object.ID, error) {
	c.Author = r.author(c.Author)
	c.Timestamp = r.now(c.Timestamp)
	return r.create(ctx, "repo.create_constraint", c)
}

// CreateDecision stores a decision record.
func (r *Repository) CreateDecision(ctx context.Context, d object.DecisionRecord) (object.ID, error) {
	d.Author = r.author(d.Author)
	d.Timestamp = r.now(d.Timestamp)
	return r.create(ctx, "repo.create_decision", d)
}

// CreateBinding stores a code binding. Resolution defaults to unchecked.
func (r *Repository) CreateBinding(ctx context.Context, b object.CodeBinding) (object.ID, error) {
	if b.Resolution == "" {
		b.Resolution = object.ResolutionUnchecked
	}
	return r.create(ctx, "repo.create_binding", b)
}

// CreateAgentOperation stores an agent operation. An empty result status
// defaults to success.
func (r *Repository) CreateAgentOperation(ctx context.Context, op object.AgentOperation) (object.ID, error) {
	op.Timestamp = r.now(op.Timestamp)
	if op.Result.Status == "" {
		op.Result.Status = object.ResultSuccess
	}
	return r.create(ctx, "repo.create_agent_operation", op)
}

// CreateChangeSet stores a change set.
func (r *Repository) CreateChangeSet(ctx context.Context, cs object.ChangeSet) (object.ID, error) {
	cs.Author = r.author(cs.Author)
	cs.Timestamp = r.now(cs.Timestamp)
	return r.create(ctx, "repo.create_change_set", cs)
}

// CreateBehaviorDiff stores a behavior diff.
func (r *Repository) CreateBehaviorDiff(ctx context.Context, d object.BehaviorDiff) (object.ID, error) {
	return r.create(ctx, "repo.create_behavior_diff", d)
}

// CreateStreamSnapshot stores a stream snapshot.
func (r *Repository) CreateStreamSnapshot(ctx context.Context, s object.StreamSnapshot) (object.ID, error) {
	s.CreatedAt = r.now(s.CreatedAt)
	return r.create(ctx, "repo.create_stream_snapshot", s)
}

// ReadObject loads the object named by a full ID or an unambiguous prefix.
func (r *Repository) ReadObject(ctx context.Context, ref string) (object.ID, object.Object, error) {
	id, err := r.db.ResolvePrefix(ref)
	if err != nil {
		return "", nil, err
	}
	obj, err := r.db.Read(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, obj, nil
}

// ResolveAs is ReadObject restricted to one kind. A match of another kind
// is errs.ErrInvalidReference.
func (r *Repository) ResolveAs(ctx context.Context, ref string, kind object.Kind) (object.ID, object.Object, error) {
	id, obj, err := r.ReadObject(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	if obj.Kind() != kind {
		return "", nil, errs.New(errs.ErrInvalidReference, "repo.resolve", string(id),
			fmt.Sprintf("is a %s, expected %s", obj.Kind(), kind))
	}
	return id, obj, nil
}
