package repo

import (
	"context"
	"fmt"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/object"
)

// Supersession reports the objects written by SupersedeConstraint.
type Supersession struct {
	// Old is the constraint that was replaced.
	Old object.ID

	// New is the active replacement.
	New object.ID

	// Record is the superseded copy of Old pointing at New.
	Record object.ID
}

// SupersedeConstraint replaces an active constraint. The replacement is a
// copy of the old one with a new statement, author and timestamp; severity
// is kept when empty. A superseded copy of the old constraint, pointing at
// the replacement and carrying reason, is written after it.
//
// Objects are immutable, so the original stays in the store as written.
func (r *Repository) SupersedeConstraint(ctx context.Context, ref, statement string, severity object.Severity, reason string) (Supersession, error) {
	const op = "repo.supersede_constraint"

	oldID, old, err := r.activeConstraint(ctx, op, ref)
	if err != nil {
		return Supersession{}, err
	}

	next := old
	next.Author = r.cfg.Author
	next.Timestamp = r.clock.Now()
	next.Statement = statement
	if severity != "" {
		next.Severity = severity
	}
	next.SupersededBy = ""
	next.DeprecationReason = ""

	newID, err := r.create(ctx, op, next)
	if err != nil {
		return Supersession{}, err
	}

	record := old
	record.Status = object.StatusSuperseded
	record.SupersededBy = newID
	if reason != "" {
		record.DeprecationReason = reason
	}
	recordID, err := r.create(ctx, op, record)
	if err != nil {
		return Supersession{}, err
	}

	r.logger.Debug("constraint superseded", "old", oldID.Short(), "new", newID.Short())
	return Supersession{Old: oldID, New: newID, Record: recordID}, nil
}

// DeprecateConstraint writes a deprecated copy of an active constraint and
// returns its ID. reason is required.
func (r *Repository) DeprecateConstraint(ctx context.Context, ref, reason string) (object.ID, error) {
	const op = "repo.deprecate_constraint"

	_, old, err := r.activeConstraint(ctx, op, ref)
	if err != nil {
		return "", err
	}

	dep := old
	dep.Author = r.cfg.Author
	dep.Timestamp = r.clock.Now()
	dep.Status = object.StatusDeprecated
	dep.DeprecationReason = reason
	return r.create(ctx, op, dep)
}

// activeConstraint resolves ref to a constraint whose status is active.
// Status only moves forward, so any other status is errs.ErrForbidden.
func (r *Repository) activeConstraint(ctx context.Context, op, ref string) (object.ID, object.Constraint, error) {
	id, obj, err := r.ResolveAs(ctx, ref, object.KindConstraint)
	if err != nil {
		return "", object.Constraint{}, err
	}
	c := obj.(object.Constraint)
	if c.Status != object.StatusActive {
		return "", object.Constraint{}, errs.New(errs.ErrForbidden, op, string(id),
			fmt.Sprintf("constraint is %s, not active", c.Status))
	}
	return id, c, nil
}
