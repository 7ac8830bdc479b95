package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/query"
)

// ObjectView is the JSON shape of one object in command output.
type ObjectView struct {
	ID     object.ID     `json:"id"`
	Kind   object.Kind   `json:"kind"`
	Object object.Object `json:"object"`
}

func viewOf(id object.ID, obj object.Object) ObjectView {
	return ObjectView{ID: id, Kind: obj.Kind(), Object: obj}
}

func viewsOf(results []query.Result) []ObjectView {
	views := make([]ObjectView, 0, len(results))
	for _, r := range results {
		views = append(views, viewOf(r.ID, r.Object))
	}
	return views
}

// summary renders obj as a single line: short ID, then the fields a reader
// scans for.
func summary(id object.ID, obj object.Object) string {
	var detail string
	switch o := obj.(type) {
	case object.Intent:
		detail = o.Statement + tags(o.Impacts)
	case object.Constraint:
		detail = fmt.Sprintf("[%s/%s] %s%s", o.Severity, o.Status, o.Statement, tags(o.Impacts))
	case object.DecisionRecord:
		detail = fmt.Sprintf("%s -> %s%s", o.Question, o.Decision, tags(o.Tags))
	case object.CodeBinding:
		detail = o.Path
		if o.Symbol != "" {
			detail += "#" + o.Symbol
		}
		detail += fmt.Sprintf(" (%s) -> %s", o.BindingType, o.BoundObject.Short())
	case object.AgentOperation:
		detail = fmt.Sprintf("%s/%s %s: %s", o.AgentID, o.SessionID, o.Operation, o.Summary)
	case object.ChangeSet:
		detail = fmt.Sprintf("commit %s (%d intents)", o.Commit, len(o.Intents))
	case object.BehaviorDiff:
		detail = fmt.Sprintf("%d changes for %s", len(o.Changes), o.IntentID.Short())
	case object.StreamSnapshot:
		detail = fmt.Sprintf("stream %s at %s", o.Name, tipLabel(o.Tip))
	}
	return fmt.Sprintf("%s  %-15s %s", id.Short(), obj.Kind(), detail)
}

func tags(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return " [" + strings.Join(list, ", ") + "]"
}

func tipLabel(id object.ID) string {
	if id.IsZero() {
		return "(no tip)"
	}
	return id.Short()
}

func writeResults(w io.Writer, results []query.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching objects.")
		return
	}
	for _, r := range results {
		fmt.Fprintln(w, summary(r.ID, r.Object))
	}
}

// writeIntent renders an intent the way log and show print it.
func writeIntent(w io.Writer, id object.ID, in object.Intent) {
	fmt.Fprintf(w, "intent %s\n", id)
	fmt.Fprintf(w, "Author: %s <%s>\n", in.Author.Name, in.Author.Email)
	fmt.Fprintf(w, "Date:   %s\n", in.Timestamp.UTC().Format(time.RFC3339))
	if len(in.Parents) > 1 {
		short := make([]string, len(in.Parents))
		for i, p := range in.Parents {
			short[i] = p.Short()
		}
		fmt.Fprintf(w, "Merge:  %s\n", strings.Join(short, " "))
	}
	fmt.Fprintf(w, "\n    %s\n", in.Statement)
	if len(in.Impacts) > 0 {
		fmt.Fprintf(w, "\n    Impacts: %s\n", strings.Join(in.Impacts, ", "))
	}
	for _, c := range in.Constraints {
		fmt.Fprintf(w, "    Constraint: %s\n", c)
	}
	for _, b := range in.BehaviorSpec {
		fmt.Fprintf(w, "    GIVEN %s WHEN %s THEN %s\n", b.Given, b.When, b.Then)
	}
	fmt.Fprintln(w)
}
