package testutil

import "github.com/roach88/telos/internal/object"

// TestAuthor is the author stamped on every fixture object.
var TestAuthor = object.Author{Name: "Test", Email: "test@example.com"}

// Fixtures builds valid objects with timestamps from a DeterministicClock.
type Fixtures struct {
	Clock *DeterministicClock
}

// NewFixtures creates a Fixtures with a fresh clock.
func NewFixtures() *Fixtures {
	return &Fixtures{Clock: NewDeterministicClock()}
}

// Intent returns an intent with the given statement, impacts and parents.
func (f *Fixtures) Intent(statement string, impacts []string, parents ...object.ID) object.Intent {
	return object.Intent{
		Author:    TestAuthor,
		Timestamp: f.Clock.Now(),
		Statement: statement,
		Impacts:   impacts,
		Parents:   parents,
	}
}

// Constraint returns an active constraint derived from source.
func (f *Fixtures) Constraint(source object.ID, statement string, impacts ...string) object.Constraint {
	return object.Constraint{
		Author:       TestAuthor,
		Timestamp:    f.Clock.Now(),
		Statement:    statement,
		Severity:     object.SeverityShould,
		Status:       object.StatusActive,
		SourceIntent: source,
		Impacts:      impacts,
	}
}

// Decision returns a decision record for intentID.
func (f *Fixtures) Decision(intentID object.ID, question, decision string, tags ...string) object.DecisionRecord {
	return object.DecisionRecord{
		IntentID:  intentID,
		Author:    TestAuthor,
		Timestamp: f.Clock.Now(),
		Question:  question,
		Decision:  decision,
		Tags:      tags,
	}
}

// Binding returns an unchecked code binding of bound to path. A non-empty
// symbol makes it a function binding.
func (f *Fixtures) Binding(bound object.ID, path, symbol string) object.CodeBinding {
	bt := object.BindFile
	if symbol != "" {
		bt = object.BindFunction
	}
	return object.CodeBinding{
		Path:        path,
		Symbol:      symbol,
		BindingType: bt,
		Resolution:  object.ResolutionUnchecked,
		BoundObject: bound,
	}
}

// AgentOp returns a successful operation in session.
func (f *Fixtures) AgentOp(agent, session, summary string, parent object.ID) object.AgentOperation {
	return object.AgentOperation{
		AgentID:   agent,
		SessionID: session,
		Timestamp: f.Clock.Now(),
		Operation: object.OpReview,
		Result:    object.OperationResult{Status: object.ResultSuccess},
		Summary:   summary,
		ParentOp:  parent,
	}
}

// ChangeSet returns a change set for commit linking intents.
func (f *Fixtures) ChangeSet(commit string, intents ...object.ID) object.ChangeSet {
	return object.ChangeSet{
		Author:    TestAuthor,
		Timestamp: f.Clock.Now(),
		Commit:    commit,
		Intents:   intents,
	}
}
