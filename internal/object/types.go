package object

import "time"

// Kind is the type tag of an object variant. It is the first segment of the
// encoded bytes and therefore part of every ID.
type Kind string

const (
	KindIntent         Kind = "intent"
	KindConstraint     Kind = "constraint"
	KindDecisionRecord Kind = "decision_record"
	KindCodeBinding    Kind = "code_binding"
	KindAgentOperation Kind = "agent_operation"
	KindChangeSet      Kind = "change_set"
	KindBehaviorDiff   Kind = "behavior_diff"
	KindStreamSnapshot Kind = "intent_stream_snapshot"
)

// Kinds lists every variant in a fixed order.
var Kinds = []Kind{
	KindIntent,
	KindConstraint,
	KindDecisionRecord,
	KindCodeBinding,
	KindAgentOperation,
	KindChangeSet,
	KindBehaviorDiff,
	KindStreamSnapshot,
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Author identifies who recorded an object.
type Author struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email"`
}

// BehaviorClause is one GIVEN/WHEN/THEN line of a behavior specification.
type BehaviorClause struct {
	Given string `json:"given" validate:"required"`
	When  string `json:"when" validate:"required"`
	Then  string `json:"then" validate:"required"`
}

// Intent is the unit of the reasoning DAG. Parents empty = root, one =
// linear history, several = merge.
type Intent struct {
	Author       Author            `json:"author"`
	Timestamp    time.Time         `json:"timestamp" validate:"required"`
	Statement    string            `json:"statement" validate:"required"`
	Constraints  []string          `json:"constraints,omitempty" validate:"dive,required"`
	BehaviorSpec []BehaviorClause  `json:"behavior_spec,omitempty" validate:"dive"`
	Parents      []ID              `json:"parents,omitempty" validate:"dive,objectid"`
	Impacts      []string          `json:"impacts,omitempty" validate:"dive,required"`
	BehaviorDiff ID                `json:"behavior_diff,omitempty" validate:"omitempty,objectid"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Severity ranks how binding a constraint is.
type Severity string

const (
	SeverityMust   Severity = "must"
	SeverityShould Severity = "should"
	SeverityPrefer Severity = "prefer"
)

// Status is the lifecycle state of a constraint. Transitions only go from
// Active to Superseded or Deprecated.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusDeprecated Status = "deprecated"
)

// Constraint is a rule derived from an intent.
type Constraint struct {
	Author            Author            `json:"author"`
	Timestamp         time.Time         `json:"timestamp" validate:"required"`
	Statement         string            `json:"statement" validate:"required"`
	Severity          Severity          `json:"severity" validate:"required,oneof=must should prefer"`
	Status            Status            `json:"status" validate:"required,oneof=active superseded deprecated"`
	SourceIntent      ID                `json:"source_intent" validate:"required,objectid"`
	SupersededBy      ID                `json:"superseded_by,omitempty" validate:"omitempty,objectid"`
	DeprecationReason string            `json:"deprecation_reason,omitempty"`
	Scope             []ID              `json:"scope,omitempty" validate:"dive,objectid"`
	Impacts           []string          `json:"impacts,omitempty" validate:"dive,required"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Alternative is an option that was considered and rejected.
type Alternative struct {
	Description     string `json:"description" validate:"required"`
	RejectionReason string `json:"rejection_reason"`
}

// DecisionRecord captures a question answered while pursuing an intent.
type DecisionRecord struct {
	IntentID     ID            `json:"intent_id" validate:"required,objectid"`
	Author       Author        `json:"author"`
	Timestamp    time.Time     `json:"timestamp" validate:"required"`
	Question     string        `json:"question" validate:"required"`
	Decision     string        `json:"decision" validate:"required"`
	Rationale    string        `json:"rationale,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty" validate:"dive"`
	Tags         []string      `json:"tags,omitempty" validate:"dive,required"`
}

// BindingType is the granularity of a code binding.
type BindingType string

const (
	BindFile     BindingType = "file"
	BindFunction BindingType = "function"
	BindModule   BindingType = "module"
	BindAPI      BindingType = "api"
	BindType     BindingType = "type"
)

// Resolution records whether a binding was last seen to resolve. It is
// advisory and never enforced by the store.
type Resolution string

const (
	ResolutionResolved   Resolution = "resolved"
	ResolutionUnresolved Resolution = "unresolved"
	ResolutionUnchecked  Resolution = "unchecked"
)

// Span is an inclusive 1-based line range.
type Span struct {
	Start int `json:"start" validate:"gte=1"`
	End   int `json:"end" validate:"gtefield=Start"`
}

// CodeBinding ties any object to a location in the source tree.
type CodeBinding struct {
	Path        string            `json:"path" validate:"required"`
	Symbol      string            `json:"symbol,omitempty"`
	Span        *Span             `json:"span,omitempty"`
	BindingType BindingType       `json:"binding_type" validate:"required,oneof=file function module api type"`
	Resolution  Resolution        `json:"resolution" validate:"required,oneof=resolved unresolved unchecked"`
	BoundObject ID                `json:"bound_object" validate:"required,objectid"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OperationKind names what an agent did. The constants cover the common
// cases; any other non-empty string is a custom kind.
type OperationKind string

const (
	OpReview    OperationKind = "review"
	OpGenerate  OperationKind = "generate"
	OpDecide    OperationKind = "decide"
	OpQuery     OperationKind = "query"
	OpViolation OperationKind = "violation"
)

// ResultStatus is the outcome class of an agent operation.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultWarning ResultStatus = "warning"
	ResultFailure ResultStatus = "failure"
	ResultSkipped ResultStatus = "skipped"
)

// OperationResult is the outcome of an agent operation. Message is set for
// warnings and failures.
type OperationResult struct {
	Status  ResultStatus `json:"status" validate:"required,oneof=success warning failure skipped"`
	Message string       `json:"message,omitempty"`
}

// AgentOperation logs one step taken by an automated agent. ParentOp links
// the steps of a session into a chain.
type AgentOperation struct {
	AgentID      string            `json:"agent_id" validate:"required"`
	SessionID    string            `json:"session_id" validate:"required"`
	Timestamp    time.Time         `json:"timestamp" validate:"required"`
	Operation    OperationKind     `json:"operation" validate:"required"`
	Result       OperationResult   `json:"result"`
	Summary      string            `json:"summary" validate:"required"`
	ContextRefs  []ID              `json:"context_refs,omitempty" validate:"dive,objectid"`
	FilesTouched []string          `json:"files_touched,omitempty" validate:"dive,required"`
	ParentOp     ID                `json:"parent_op,omitempty" validate:"omitempty,objectid"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ChangeSet links an external commit to the reasoning behind it.
type ChangeSet struct {
	Author          Author            `json:"author"`
	Timestamp       time.Time         `json:"timestamp" validate:"required"`
	Commit          string            `json:"git_commit" validate:"required"`
	Parents         []ID              `json:"parents,omitempty" validate:"dive,objectid"`
	Intents         []ID              `json:"intents,omitempty" validate:"dive,objectid"`
	Constraints     []ID              `json:"constraints,omitempty" validate:"dive,objectid"`
	Decisions       []ID              `json:"decisions,omitempty" validate:"dive,objectid"`
	CodeBindings    []ID              `json:"code_bindings,omitempty" validate:"dive,objectid"`
	AgentOperations []ID              `json:"agent_operations,omitempty" validate:"dive,objectid"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// BehaviorChange is one observable difference in behavior.
type BehaviorChange struct {
	Description string `json:"description" validate:"required"`
	Before      string `json:"before,omitempty"`
	After       string `json:"after" validate:"required"`
}

// ImpactRadius lists the areas a behavior change touches.
type ImpactRadius struct {
	Direct   []string `json:"direct,omitempty" validate:"dive,required"`
	Indirect []string `json:"indirect,omitempty" validate:"dive,required"`
}

// VerificationStatus tracks whether a behavior diff was checked.
type VerificationStatus string

const (
	VerificationPending VerificationStatus = "pending"
	VerificationPassed  VerificationStatus = "passed"
	VerificationFailed  VerificationStatus = "failed"
)

// Verification is the result of checking a behavior diff.
type Verification struct {
	Status  VerificationStatus `json:"status" validate:"required,oneof=pending passed failed"`
	Details string             `json:"details,omitempty"`
}

// BehaviorDiff describes how behavior changes under an intent.
type BehaviorDiff struct {
	IntentID     ID               `json:"intent_id" validate:"required,objectid"`
	Changes      []BehaviorChange `json:"changes,omitempty" validate:"dive"`
	Impact       ImpactRadius     `json:"impact"`
	Verification *Verification    `json:"verification,omitempty"`
}

// StreamSnapshot is an immutable record of a stream's tip at a point in time.
type StreamSnapshot struct {
	Name         string    `json:"name" validate:"required"`
	Tip          ID        `json:"tip,omitempty" validate:"omitempty,objectid"`
	CreatedAt    time.Time `json:"created_at" validate:"required"`
	Description  string    `json:"description,omitempty"`
	ParentStream string    `json:"parent_stream,omitempty"`
}
