package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/object"
)

// Relation names a secondary collection joined to primary results by a
// foreign key.
type Relation string

const (
	// Decisions joins decision records by intent_id.
	Decisions Relation = "decisions"

	// Constraints joins constraints by source_intent.
	Constraints Relation = "constraints"

	// BehaviorDiffs joins behavior diffs by intent_id.
	BehaviorDiffs Relation = "behavior_diffs"

	// Bindings joins code bindings by bound_object.
	Bindings Relation = "bindings"
)

// Relations lists every supported relation.
var Relations = []Relation{Decisions, Constraints, BehaviorDiffs, Bindings}

// ParseRelation returns the Relation named by s.
func ParseRelation(s string) (Relation, error) {
	for _, r := range Relations {
		if string(r) == s {
			return r, nil
		}
	}
	return "", errs.New(errs.ErrInvalidObject, "query.parse_relation", s, fmt.Sprintf("want one of %v", Relations))
}

// foreignKey returns the primary ID obj points at under r, if obj belongs
// to r's collection.
func (r Relation) foreignKey(obj object.Object) (object.ID, bool) {
	switch o := obj.(type) {
	case object.DecisionRecord:
		return o.IntentID, r == Decisions
	case object.Constraint:
		return o.SourceIntent, r == Constraints
	case object.BehaviorDiff:
		return o.IntentID, r == BehaviorDiffs
	case object.CodeBinding:
		return o.BoundObject, r == Bindings
	default:
		return "", false
	}
}

// Group is one primary result with the secondary objects that point at it.
type Group struct {
	Primary Result
	Related []Result
}

// Aggregate runs primary, then attaches to each result the members of rel
// that reference it. Related objects are grouped by foreign key in a single
// pass over the store, however many primaries match. Primaries with nothing
// related get an empty (non-nil) list.
func (e *Engine) Aggregate(ctx context.Context, primary Filter, rel Relation) ([]Group, error) {
	ctx, span := startQuerySpan(ctx, "Aggregate")
	defer span.End()
	span.SetAttributes(attribute.String("query.relation", string(rel)))

	if _, err := ParseRelation(string(rel)); err != nil {
		return nil, err
	}

	primaries, err := e.Query(ctx, primary)
	if err != nil {
		return nil, err
	}
	if len(primaries) == 0 {
		return nil, nil
	}

	wanted := make(map[object.ID][]Result, len(primaries))
	for _, p := range primaries {
		wanted[p.ID] = []Result{}
	}

	related, err := e.scan(ctx, func(obj object.Object) bool {
		key, ok := rel.foreignKey(obj)
		if !ok {
			return false
		}
		_, want := wanted[key]
		return want
	})
	if err != nil {
		return nil, err
	}
	for _, r := range related {
		key, _ := rel.foreignKey(r.Object)
		wanted[key] = append(wanted[key], r)
	}

	groups := make([]Group, 0, len(primaries))
	for _, p := range primaries {
		rs := wanted[p.ID]
		sortResults(rs)
		groups = append(groups, Group{Primary: p, Related: rs})
	}
	span.SetAttributes(attribute.Int("query.groups", len(groups)))
	return groups, nil
}

// ConstraintsForFile returns the constraints bound to path through code
// bindings, newest first.
func (e *Engine) ConstraintsForFile(ctx context.Context, path string) ([]Result, error) {
	return e.boundConstraints(ctx, Filter{Kind: object.KindCodeBinding, Path: path})
}

// ConstraintsForSymbol returns the constraints bound to symbol through code
// bindings, newest first.
func (e *Engine) ConstraintsForSymbol(ctx context.Context, symbol string) ([]Result, error) {
	return e.boundConstraints(ctx, Filter{Kind: object.KindCodeBinding, Symbol: symbol})
}

func (e *Engine) boundConstraints(ctx context.Context, bindings Filter) ([]Result, error) {
	found, err := e.Query(ctx, bindings)
	if err != nil {
		return nil, err
	}

	seen := make(map[object.ID]bool)
	var results []Result
	for _, b := range found {
		target := b.Object.(object.CodeBinding).BoundObject
		if seen[target] {
			continue
		}
		seen[target] = true

		obj, err := e.db.Read(ctx, target)
		if err != nil {
			return nil, err
		}
		if c, ok := obj.(object.Constraint); ok {
			results = append(results, Result{ID: target, Object: c})
		}
	}
	sortResults(results)
	return results, nil
}
