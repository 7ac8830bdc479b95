package object

import (
	"fmt"
	"time"
)

// Object is a storable record. The interface is sealed by the unexported
// normalize method; the eight variants in this package are the full set.
type Object interface {
	// Kind returns the variant's type tag.
	Kind() Kind

	// References lists every outgoing ID this object holds, with the kinds
	// each one is allowed to point at.
	References() []Reference

	// Time returns the time the object was recorded (zero if the variant
	// carries none). Used for result ordering.
	Time() time.Time

	normalize() Object
}

// Reference is one outgoing edge of an object.
type Reference struct {
	// Field is the JSON path of the edge, e.g. "parents[1]".
	Field string

	// ID is the referenced object.
	ID ID

	// Allowed lists the acceptable kinds. Empty means any kind.
	Allowed []Kind
}

// Accepts reports whether k is an acceptable target kind.
func (r Reference) Accepts(k Kind) bool {
	if len(r.Allowed) == 0 {
		return true
	}
	for _, a := range r.Allowed {
		if a == k {
			return true
		}
	}
	return false
}

func refList(field string, ids []ID, allowed ...Kind) []Reference {
	refs := make([]Reference, 0, len(ids))
	for i, id := range ids {
		refs = append(refs, Reference{Field: fmt.Sprintf("%s[%d]", field, i), ID: id, Allowed: allowed})
	}
	return refs
}

func refOpt(field string, id ID, allowed ...Kind) []Reference {
	if id.IsZero() {
		return nil
	}
	return []Reference{{Field: field, ID: id, Allowed: allowed}}
}

func (Intent) Kind() Kind { return KindIntent }
func (Constraint) Kind() Kind { return KindConstraint }
func (DecisionRecord) Kind() Kind { return KindDecisionRecord }
func (CodeBinding) Kind() Kind { return KindCodeBinding }
func (AgentOperation) Kind() Kind { return KindAgentOperation }
func (ChangeSet) Kind() Kind { return KindChangeSet }
func (BehaviorDiff) Kind() Kind { return KindBehaviorDiff }
func (StreamSnapshot) Kind() Kind { return KindStreamSnapshot }

func (o Intent) Time() time.Time { return o.Timestamp }
func (o Constraint) Time() time.Time { return o.Timestamp }
func (o DecisionRecord) Time() time.Time { return o.Timestamp }
func (CodeBinding) Time() time.Time { return time.Time{} }
func (o AgentOperation) Time() time.Time { return o.Timestamp }
func (o ChangeSet) Time() time.Time { return o.Timestamp }
func (BehaviorDiff) Time() time.Time { return time.Time{} }
func (o StreamSnapshot) Time() time.Time { return o.CreatedAt }

func (o Intent) References() []Reference {
	refs := refList("parents", o.Parents, KindIntent)
	return append(refs, refOpt("behavior_diff", o.BehaviorDiff, KindBehaviorDiff)...)
}

func (o Constraint) References() []Reference {
	refs := refOpt("source_intent", o.SourceIntent, KindIntent)
	refs = append(refs, refOpt("superseded_by", o.SupersededBy, KindConstraint)...)
	return append(refs, refList("scope", o.Scope, KindCodeBinding)...)
}

func (o DecisionRecord) References() []Reference {
	return refOpt("intent_id", o.IntentID, KindIntent)
}

func (o CodeBinding) References() []Reference {
	return refOpt("bound_object", o.BoundObject)
}

func (o AgentOperation) References() []Reference {
	refs := refList("context_refs", o.ContextRefs)
	return append(refs, refOpt("parent_op", o.ParentOp, KindAgentOperation)...)
}

func (o ChangeSet) References() []Reference {
	refs := refList("parents", o.Parents, KindChangeSet)
	refs = append(refs, refList("intents", o.Intents, KindIntent)...)
	refs = append(refs, refList("constraints", o.Constraints, KindConstraint)...)
	refs = append(refs, refList("decisions", o.Decisions, KindDecisionRecord)...)
	refs = append(refs, refList("code_bindings", o.CodeBindings, KindCodeBinding)...)
	return append(refs, refList("agent_operations", o.AgentOperations, KindAgentOperation)...)
}

func (o BehaviorDiff) References() []Reference {
	return refOpt("intent_id", o.IntentID, KindIntent)
}

func (o StreamSnapshot) References() []Reference {
	return refOpt("tip", o.Tip, KindIntent)
}

// normalize returns the form that is hashed: timestamps in UTC with the
// monotonic reading stripped.
func (o Intent) normalize() Object { o.Timestamp = utc(o.Timestamp); return o }
func (o Constraint) normalize() Object { o.Timestamp = utc(o.Timestamp); return o }
func (o DecisionRecord) normalize() Object { o.Timestamp = utc(o.Timestamp); return o }
func (o CodeBinding) normalize() Object { return o }
func (o AgentOperation) normalize() Object { o.Timestamp = utc(o.Timestamp); return o }
func (o ChangeSet) normalize() Object { o.Timestamp = utc(o.Timestamp); return o }
func (o BehaviorDiff) normalize() Object { return o }
func (o StreamSnapshot) normalize() Object { o.CreatedAt = utc(o.CreatedAt); return o }

// Normalize returns obj in its stored form: every timestamp in UTC without a
// monotonic reading. Decode(Encode(obj)) equals Normalize(obj) exactly.
func Normalize(obj Object) Object {
	if obj == nil {
		return nil
	}
	return obj.normalize()
}

func utc(t time.Time) time.Time {
	return t.Round(0).UTC()
}
