package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/repo"
	"github.com/roach88/telos/internal/testutil"
)

// cliEnv runs commands against one project directory with a shared clock,
// the way a user would run them one after another.
type cliEnv struct {
	t     *testing.T
	dir   string
	clock *testutil.DeterministicClock
}

type runResult struct {
	stdout string
	stderr string
	code   int
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("TELOS_AUTHOR_NAME", "")
	t.Setenv("TELOS_AUTHOR_EMAIL", "")
	return &cliEnv{t: t, dir: t.TempDir(), clock: testutil.NewDeterministicClock()}
}

func newInitializedEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := newCLIEnv(t)
	env.mustRun(nil, "init")
	return env
}

func (e *cliEnv) run(args ...string) runResult {
	e.t.Helper()
	opts := &RootOptions{
		Clock:    e.clock,
		Sessions: testutil.NewFixedSessionGenerator("test-session"),
	}
	// Dir is bound to a flag, so it has to arrive through the arguments.
	args = append([]string{"-C", e.dir}, args...)
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), opts, args, &stdout, &stderr)
	return runResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// mustRun runs args with --json, requires success and decodes the data
// payload into out when out is non-nil.
func (e *cliEnv) mustRun(out any, args ...string) {
	e.t.Helper()
	res := e.run(append([]string{"--json"}, args...)...)
	require.Equal(e.t, ExitSuccess, res.code, "args %v\nstdout: %s\nstderr: %s", args, res.stdout, res.stderr)
	if out == nil {
		return
	}
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)
	require.Equal(e.t, "ok", resp.Status)
	require.NoError(e.t, json.Unmarshal(resp.Data, out))
}

// failingCode runs args with --json, requires failure with wantExit and
// returns the error code from the JSON response.
func (e *cliEnv) failingCode(wantExit int, args ...string) string {
	e.t.Helper()
	res := e.run(append([]string{"--json"}, args...)...)
	require.Equal(e.t, wantExit, res.code, "args %v\nstdout: %s\nstderr: %s", args, res.stdout, res.stderr)
	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)
	require.Equal(e.t, "error", resp.Status)
	require.NotNil(e.t, resp.Error)
	return resp.Error.Code
}

func (e *cliEnv) create(args ...string) object.ID {
	e.t.Helper()
	var res CreatedResult
	e.mustRun(&res, args...)
	require.False(e.t, res.ID.IsZero())
	return res.ID
}

// view is ObjectView with the body left undecoded.
type view struct {
	ID     object.ID       `json:"id"`
	Kind   object.Kind     `json:"kind"`
	Object json.RawMessage `json:"object"`
}

func ids(views []view) []object.ID {
	out := make([]object.ID, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func TestInitCommand(t *testing.T) {
	env := newCLIEnv(t)

	var res InitResult
	env.mustRun(&res, "init")
	assert.Equal(t, repo.DefaultStream, res.Stream)
	assert.DirExists(t, filepath.Join(env.dir, repo.Dir))

	assert.Equal(t, "EXISTS", env.failingCode(ExitCommandError, "init"))
}

func TestDirFlagSelectsProject(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(nil, "init")

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(wd, repo.Dir))

	var in []view
	env.mustRun(&in, "log")
	assert.Empty(t, in)
}

func TestCommandsOutsideRepository(t *testing.T) {
	env := newCLIEnv(t)

	res := env.run("log")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "not a Telos repository")
	assert.Empty(t, res.stdout)
}

func TestIntentAndLog(t *testing.T) {
	env := newInitializedEnv(t)

	var empty []view
	env.mustRun(&empty, "log")
	assert.Empty(t, empty)

	root := env.create("intent", "-s", "Add login", "--impact", "auth",
		"--constraint", "no plaintext passwords",
		"--behavior", "GIVEN a user|WHEN they log in|THEN a session starts")
	child := env.create("intent", "-s", "Expire sessions", "--impact", "auth")

	var log []view
	env.mustRun(&log, "log")
	assert.Equal(t, []object.ID{child, root}, ids(log))

	var in object.Intent
	require.NoError(t, json.Unmarshal(log[0].Object, &in))
	assert.Equal(t, []object.ID{root}, in.Parents)
	assert.Equal(t, "Unknown", in.Author.Name)
	assert.True(t, in.Timestamp.After(testutil.Epoch), "stamped by the injected clock after init's snapshot")

	var limited []view
	env.mustRun(&limited, "log", "-n", "1")
	assert.Equal(t, []object.ID{child}, ids(limited))

	text := env.run("log")
	require.Equal(t, ExitSuccess, text.code)
	assert.Contains(t, text.stdout, "intent "+string(child))
	assert.Contains(t, text.stdout, "Constraint: no plaintext passwords")
	assert.Contains(t, text.stdout, "GIVEN a user WHEN they log in THEN a session starts")
}

func TestIntentRejectsMalformedInput(t *testing.T) {
	env := newInitializedEnv(t)

	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "intent", "-s", "x", "--behavior", "only one part"))
	assert.Equal(t, "NOT_FOUND", env.failingCode(ExitCommandError, "intent", "-s", "x", "--parent", "deadbeef"))
	assert.Equal(t, "INVALID_OBJECT", env.failingCode(ExitCommandError, "intent", "-s", ""))
}

func TestShowByPrefix(t *testing.T) {
	env := newInitializedEnv(t)
	id := env.create("intent", "-s", "Add login")

	var v view
	env.mustRun(&v, "show", string(id)[:8])
	assert.Equal(t, id, v.ID)
	assert.Equal(t, object.KindIntent, v.Kind)

	assert.Equal(t, "NOT_FOUND", env.failingCode(ExitCommandError, "show", "deadbeef"))
}

func TestConstraintLifecycleCommands(t *testing.T) {
	env := newInitializedEnv(t)
	intent := env.create("intent", "-s", "Secure sessions", "--impact", "auth")

	old := env.create("constraint", "-s", "Sessions expire after 30 minutes", "--severity", "must", "--impact", "auth")

	var c object.Constraint
	var v view
	env.mustRun(&v, "show", string(old))
	require.NoError(t, json.Unmarshal(v.Object, &c))
	assert.Equal(t, intent, c.SourceIntent, "source defaults to the stream tip")
	assert.Equal(t, object.SeverityMust, c.Severity)

	var sup SupersedeResult
	env.mustRun(&sup, "supersede", string(old), "-s", "Sessions expire after 15 minutes", "--reason", "audit")
	assert.Equal(t, old, sup.Old)

	var superseded []view
	env.mustRun(&superseded, "query", "constraints", "--status", "superseded")
	require.Len(t, superseded, 1)
	assert.Equal(t, sup.Record, superseded[0].ID)
	require.NoError(t, json.Unmarshal(superseded[0].Object, &c))
	assert.Equal(t, sup.New, c.SupersededBy)

	var all []view
	env.mustRun(&all, "query", "constraints", "--status", "all", "--intent", string(intent))
	assert.Len(t, all, 3)

	assert.Equal(t, "FORBIDDEN", env.failingCode(ExitCommandError, "deprecate", string(sup.Record), "--reason", "again"))

	var dep CreatedResult
	env.mustRun(&dep, "deprecate", string(sup.New), "--reason", "moved to the gateway")
	var deprecated []view
	env.mustRun(&deprecated, "query", "constraints", "--status", "deprecated")
	assert.Equal(t, []object.ID{dep.ID}, ids(deprecated))

	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "query", "constraints", "--status", "retired"))
}

func TestConstraintNeedsSourceIntent(t *testing.T) {
	env := newInitializedEnv(t)

	res := env.run("constraint", "-s", "Hash passwords")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "no intents yet")
}

func TestBindQueryAndCheck(t *testing.T) {
	env := newInitializedEnv(t)
	env.create("intent", "-s", "Secure sessions")
	constraint := env.create("constraint", "-s", "Sessions expire")
	binding := env.create("bind", string(constraint), "--file", "internal/auth/session.go",
		"--symbol", "Expire", "--type", "function", "--lines", "10-42")

	var bound []view
	env.mustRun(&bound, "query", "constraints", "--file", "internal/auth/session.go")
	assert.Equal(t, []object.ID{constraint}, ids(bound))

	env.mustRun(&bound, "query", "constraints", "--symbol", "Expire")
	assert.Equal(t, []object.ID{constraint}, ids(bound))

	var bindings []view
	env.mustRun(&bindings, "query", "bindings", "--file", "internal/auth/session.go")
	assert.Equal(t, []object.ID{binding}, ids(bindings))

	res := env.run("--json", "check")
	assert.Equal(t, ExitFailure, res.code, "the bound file does not exist yet")
	var resp struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, 1, resp.Data.Unresolved)

	path := filepath.Join(env.dir, "internal", "auth", "session.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("package auth\n"), 0o644))

	var ok CheckResult
	env.mustRun(&ok, "check")
	require.Len(t, ok.Bindings, 1)
	assert.True(t, ok.Bindings[0].Resolved)
	assert.Equal(t, constraint, ok.Bindings[0].BoundObject)

	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "bind", string(constraint), "--file", "x.go", "--lines", "a-b"))
}

func TestDecideAndContext(t *testing.T) {
	env := newInitializedEnv(t)
	auth := env.create("intent", "-s", "Add login", "--impact", "auth")
	env.create("intent", "-s", "Add billing", "--impact", "billing")
	decision := env.create("decide", "--intent", string(auth), "--question", "Which hash?",
		"--decision", "argon2id", "--alternative", "bcrypt|72 byte limit", "--tag", "crypto")

	var entries []struct {
		Intent    view   `json:"intent"`
		Decisions []view `json:"decisions"`
	}
	env.mustRun(&entries, "context", "--impact", "auth")
	require.Len(t, entries, 1)
	assert.Equal(t, auth, entries[0].Intent.ID)
	assert.Equal(t, []object.ID{decision}, ids(entries[0].Decisions))

	var d object.DecisionRecord
	require.NoError(t, json.Unmarshal(entries[0].Decisions[0].Object, &d))
	require.Len(t, d.Alternatives, 1)
	assert.Equal(t, "72 byte limit", d.Alternatives[0].RejectionReason)

	var tagged []view
	env.mustRun(&tagged, "query", "decisions", "--tag", "crypto", "--intent", string(auth)[:8])
	assert.Equal(t, []object.ID{decision}, ids(tagged))

	var intents []view
	env.mustRun(&intents, "query", "intents", "--impact", "billing")
	assert.Len(t, intents, 1)

	assert.Equal(t, "INVALID_REFERENCE", env.failingCode(ExitCommandError,
		"decide", "--intent", string(decision), "--question", "q", "--decision", "d"))
}

func TestAgentLogChainsSession(t *testing.T) {
	env := newInitializedEnv(t)
	intent := env.create("intent", "-s", "Add login")

	var first AgentLogResult
	env.mustRun(&first, "agent-log", "--agent", "reviewer", "--operation", "review",
		"--summary", "checked login", "--context", string(intent), "--files", "auth.go")
	assert.Equal(t, "test-session", first.Session)

	var second AgentLogResult
	env.mustRun(&second, "agent-log", "--agent", "reviewer", "--operation", "violation",
		"--summary", "plaintext password", "--result", "failure", "--message", "found in auth.go",
		"--session", first.Session, "--parent", string(first.ID))

	var ops []view
	env.mustRun(&ops, "query", "agent-ops", "--session", "test-session")
	assert.ElementsMatch(t, []object.ID{first.ID, second.ID}, ids(ops))

	var op object.AgentOperation
	var v view
	env.mustRun(&v, "show", string(second.ID))
	require.NoError(t, json.Unmarshal(v.Object, &op))
	assert.Equal(t, first.ID, op.ParentOp)
	assert.Equal(t, object.ResultFailure, op.Result.Status)
}

func TestChangeSetCommand(t *testing.T) {
	env := newInitializedEnv(t)
	intent := env.create("intent", "-s", "Add login")
	cs := env.create("changeset", "3f2a9c1", "--intent", string(intent))

	var found []view
	env.mustRun(&found, "query", "changesets", "--commit", "3f2a9c1")
	assert.Equal(t, []object.ID{cs}, ids(found))

	assert.Equal(t, "INVALID_REFERENCE", env.failingCode(ExitCommandError,
		"changeset", "abc", "--constraint", string(intent)))
}

func TestStreamCommands(t *testing.T) {
	env := newInitializedEnv(t)
	tip := env.create("intent", "-s", "Add login")

	var created StreamResult
	env.mustRun(&created, "stream", "create", "feature/onboarding", "--switch")
	assert.Equal(t, "feature/onboarding", created.Name)

	var streams []repo.Stream
	env.mustRun(&streams, "stream", "list")
	assert.Equal(t, []repo.Stream{
		{Name: "feature/onboarding", Tip: tip, Current: true},
		{Name: "main", Tip: tip},
	}, streams)

	onFeature := env.create("intent", "-s", "Welcome screen")
	var log []view
	env.mustRun(&log, "log")
	assert.Equal(t, []object.ID{onFeature, tip}, ids(log))

	assert.Equal(t, "FORBIDDEN", env.failingCode(ExitCommandError, "stream", "delete", "feature/onboarding"))
	assert.Equal(t, "NOT_FOUND", env.failingCode(ExitCommandError, "stream", "switch", "nope"))
	assert.Equal(t, "INVALID_NAME", env.failingCode(ExitCommandError, "stream", "create", "../escape"))

	env.mustRun(nil, "stream", "switch", "main")
	env.mustRun(nil, "stream", "delete", "feature/onboarding")
	env.mustRun(&streams, "stream", "list")
	assert.Equal(t, []repo.Stream{{Name: "main", Tip: tip, Current: true}}, streams)
}

func TestFsckAndReindex(t *testing.T) {
	env := newInitializedEnv(t)
	intent := env.create("intent", "-s", "Add login", "--impact", "auth")

	var clean FsckResult
	env.mustRun(&clean, "fsck")
	assert.Equal(t, 2, clean.Objects, "init snapshot and intent")
	assert.Empty(t, clean.Corrupted)

	var stats ReindexResult
	env.mustRun(&stats, "reindex")
	assert.Equal(t, 2, stats.Objects)

	r, err := repo.Open(env.dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(r.ODB().Path(intent), []byte("garbage"), 0o644))

	res := env.run("--json", "fsck")
	assert.Equal(t, ExitFailure, res.code)
	var resp struct {
		Data FsckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), "fsck reports once, as data")
	require.Len(t, resp.Data.Corrupted, 1)
	assert.Equal(t, "INTEGRITY", resp.Data.Corrupted[0].Code)
	require.Len(t, resp.Data.BrokenRefs, 1)
	assert.Equal(t, "main", resp.Data.BrokenRefs[0].Stream)
}

func TestFsckClearsStaleLocks(t *testing.T) {
	env := newInitializedEnv(t)

	lockPath := filepath.Join(env.dir, repo.Dir, "refs", "streams", "main.lock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0o644))
	hour := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, hour, hour))

	res := env.run("--json", "fsck")
	assert.Equal(t, ExitFailure, res.code)
	var resp struct {
		Data FsckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, []string{lockPath}, resp.Data.StaleLocks)

	var fixed FsckResult
	env.mustRun(&fixed, "fsck", "--clear-stale-locks")
	assert.Equal(t, []string{lockPath}, fixed.ClearedLocks)
	assert.Empty(t, fixed.StaleLocks)
	assert.NoFileExists(t, lockPath)

	env.create("intent", "-s", "Writable again")
}

func TestExportCommand(t *testing.T) {
	env := newInitializedEnv(t)
	intent := env.create("intent", "-s", "Add login", "--impact", "auth")
	env.create("constraint", "-s", "Hash passwords", "--impact", "auth", "--intent", string(intent))

	var stats struct {
		Objects int `json:"objects"`
		Edges   int `json:"edges"`
		Streams int `json:"streams"`
	}
	db := filepath.Join(t.TempDir(), "telos.db")
	env.mustRun(&stats, "export", db)
	assert.Equal(t, 3, stats.Objects)
	assert.Equal(t, 1, stats.Edges, "constraint -> source intent")
	assert.Equal(t, 1, stats.Streams)

	var fromDB, live []view
	env.mustRun(&fromDB, "query", "constraints", "--db", db, "--impact", "auth", "--intent", string(intent))
	env.mustRun(&live, "query", "constraints", "--impact", "auth", "--intent", string(intent))
	require.Len(t, live, 1)
	assert.Equal(t, ids(live), ids(fromDB))

	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "query", "intents", "--db", filepath.Join(t.TempDir(), "missing.db")))
	assert.Equal(t, "INVALID_OBJECT", env.failingCode(ExitCommandError, "query", "decisions", "--db", db, "--intent", string(intent)[:8]))
}

func TestUsageErrorsAreCommandErrors(t *testing.T) {
	env := newInitializedEnv(t)

	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "decide", "--question", "q"))
	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "show"))
	assert.Equal(t, "USAGE", env.failingCode(ExitCommandError, "log", "--no-such-flag"))

	res := env.run("show")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid usage")
}
