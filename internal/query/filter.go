package query

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/telos/internal/index"
	"github.com/roach88/telos/internal/object"
)

// Filter selects objects. Every set field must match; a field that does not
// apply to an object's kind (Tag on an intent, say) excludes it. The zero
// Filter matches everything.
type Filter struct {
	// Kind restricts results to one variant.
	Kind object.Kind

	// Impact matches intents and constraints carrying the tag.
	Impact string

	// Path matches code bindings on the path.
	Path string

	// Symbol matches code bindings on the symbol.
	Symbol string

	// Commit matches change sets for the external commit.
	Commit string

	// IntentID matches decisions and behavior diffs for the intent, and
	// constraints whose source_intent is the intent.
	IntentID object.ID

	// Tag matches decision records carrying the tag.
	Tag string

	// AgentID and SessionID match agent operations.
	AgentID   string
	SessionID string

	// Status matches constraints in the lifecycle state.
	Status object.Status

	// ConstraintContains matches intents with an inline constraint
	// containing the text, case-insensitively.
	ConstraintContains string
}

// indexKey picks the index that can narrow the candidate set, if any.
func (f Filter) indexKey() (index.Name, string, bool) {
	switch {
	case f.Impact != "":
		return index.Impact, f.Impact, true
	case f.Path != "":
		return index.CodePath, f.Path, true
	case f.Symbol != "":
		return index.Symbols, f.Symbol, true
	case f.Commit != "":
		return index.Commits, f.Commit, true
	default:
		return "", "", false
	}
}

// Matches reports whether obj satisfies every set field.
func (f Filter) Matches(obj object.Object) bool {
	if f.Kind != "" && obj.Kind() != f.Kind {
		return false
	}

	switch o := obj.(type) {
	case object.Intent:
		return f.only("Impact", "ConstraintContains") &&
			(f.Impact == "" || slices.Contains(o.Impacts, f.Impact)) &&
			(f.ConstraintContains == "" || containsFold(o.Constraints, f.ConstraintContains))
	case object.Constraint:
		return f.only("Impact", "IntentID", "Status") &&
			(f.Impact == "" || slices.Contains(o.Impacts, f.Impact)) &&
			(f.IntentID == "" || o.SourceIntent == f.IntentID) &&
			(f.Status == "" || o.Status == f.Status)
	case object.DecisionRecord:
		return f.only("IntentID", "Tag") &&
			(f.IntentID == "" || o.IntentID == f.IntentID) &&
			(f.Tag == "" || slices.Contains(o.Tags, f.Tag))
	case object.CodeBinding:
		return f.only("Path", "Symbol") &&
			(f.Path == "" || o.Path == f.Path) &&
			(f.Symbol == "" || o.Symbol == f.Symbol)
	case object.AgentOperation:
		return f.only("AgentID", "SessionID") &&
			(f.AgentID == "" || o.AgentID == f.AgentID) &&
			(f.SessionID == "" || o.SessionID == f.SessionID)
	case object.ChangeSet:
		return f.only("Commit") && (f.Commit == "" || o.Commit == f.Commit)
	case object.BehaviorDiff:
		return f.only("IntentID") && (f.IntentID == "" || o.IntentID == f.IntentID)
	case object.StreamSnapshot:
		return f.only()
	default:
		return false
	}
}

// only reports whether no field outside allowed is set.
func (f Filter) only(allowed ...string) bool {
	set := map[string]bool{
		"Impact":             f.Impact != "",
		"Path":               f.Path != "",
		"Symbol":             f.Symbol != "",
		"Commit":             f.Commit != "",
		"IntentID":           f.IntentID != "",
		"Tag":                f.Tag != "",
		"AgentID":            f.AgentID != "",
		"SessionID":          f.SessionID != "",
		"Status":             f.Status != "",
		"ConstraintContains": f.ConstraintContains != "",
	}
	for field, isSet := range set {
		if isSet && !slices.Contains(allowed, field) {
			return false
		}
	}
	return true
}

// containsFold reports whether any entry contains needle, ignoring case and
// the difference between composed and decomposed forms.
func containsFold(list []string, needle string) bool {
	fold := cases.Fold()
	needle = fold.String(norm.NFC.String(needle))
	for _, s := range list {
		if strings.Contains(fold.String(norm.NFC.String(s)), needle) {
			return true
		}
	}
	return false
}
