package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/query"
	"github.com/roach88/telos/internal/testutil"
)

const missingID = object.ID("0000000000000000000000000000000000000000000000000000000000000001")

func newRepo(t *testing.T) (*Repository, *testutil.Fixtures) {
	t.Helper()
	t.Setenv("TELOS_AUTHOR_NAME", "")
	t.Setenv("TELOS_AUTHOR_EMAIL", "")
	r, err := Init(context.Background(), t.TempDir(), WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	return r, testutil.NewFixtures()
}

func appendIntent(t *testing.T, r *Repository, in object.Intent) object.ID {
	t.Helper()
	id, err := r.AppendIntent(context.Background(), in)
	require.NoError(t, err)
	return id
}

func requireField(t *testing.T, err error, kind error, field string) {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, field, e.Field)
}

func TestInit(t *testing.T) {
	r, _ := newRepo(t)

	for _, sub := range []string{"objects", "refs/streams", "indexes", "config.yaml", "HEAD"} {
		_, err := os.Stat(filepath.Join(r.Dir(), filepath.FromSlash(sub)))
		assert.NoError(t, err, sub)
	}

	cur, err := r.CurrentStream()
	require.NoError(t, err)
	assert.Equal(t, Stream{Name: DefaultStream, Current: true}, cur)

	snaps, err := r.Query(context.Background(), query.Filter{Kind: object.KindStreamSnapshot})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Default intent stream", snaps[0].Object.(object.StreamSnapshot).Description)

	_, err = Init(context.Background(), r.Root())
	assert.ErrorIs(t, err, errs.ErrExists)
}

func TestOpenAndDiscover(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	r, _ := newRepo(t)
	nested := filepath.Join(r.Root(), "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, r.Root(), found.Root())

	_, err = Discover(t.TempDir())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAppendIntentAdvancesStream(t *testing.T) {
	r, fx := newRepo(t)

	first := appendIntent(t, r, fx.Intent("Add login", []string{"auth"}))
	second := appendIntent(t, r, fx.Intent("Add logout", []string{"auth"}))

	_, obj, err := r.ReadObject(context.Background(), string(second))
	require.NoError(t, err)
	assert.Equal(t, []object.ID{first}, obj.(object.Intent).Parents)

	cur, err := r.CurrentStream()
	require.NoError(t, err)
	assert.Equal(t, second, cur.Tip)
}

func TestCreateIntentFillsAuthorAndTime(t *testing.T) {
	r, _ := newRepo(t)

	id, err := r.CreateIntent(context.Background(), object.Intent{Statement: "bare"})
	require.NoError(t, err)

	_, obj, err := r.ReadObject(context.Background(), string(id))
	require.NoError(t, err)
	in := obj.(object.Intent)
	assert.Equal(t, "Unknown", in.Author.Name)
	assert.False(t, in.Timestamp.IsZero())
}

func TestReadReturnsWhatWasWritten(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()

	in := fx.Intent("cafe\u0301 menu", []string{"billing"})
	in.Timestamp = in.Timestamp.In(time.FixedZone("UTC-3", -3*3600))
	id := appendIntent(t, r, in)

	_, obj, err := r.ReadObject(ctx, string(id))
	require.NoError(t, err)
	got := obj.(object.Intent)
	assert.Equal(t, in.Statement, got.Statement)
	assert.True(t, in.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, object.Normalize(in), obj)
}

func TestCreateIntentConflictKeepsObject(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	appendIntent(t, r, fx.Intent("Add login", nil))

	// Commit against a tip the stream no longer holds.
	id, err := r.commitIntent(ctx, DefaultStream, "", fx.Intent("stale writer", nil))
	require.ErrorIs(t, err, errs.ErrConflict)
	require.NotEmpty(t, id)

	exists, err := r.ODB().Exists(id)
	require.NoError(t, err)
	assert.True(t, exists)

	cur, err := r.CurrentStream()
	require.NoError(t, err)
	assert.NotEqual(t, id, cur.Tip)
}

func TestReferentialIntegrity(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	intent := appendIntent(t, r, fx.Intent("Add login", []string{"auth"}))
	constraint, err := r.CreateConstraint(ctx, fx.Constraint(intent, "Hash passwords"))
	require.NoError(t, err)

	before, err := r.ODB().List()
	require.NoError(t, err)

	t.Run("missing parent", func(t *testing.T) {
		_, err := r.CreateIntent(ctx, fx.Intent("orphan", nil, missingID))
		requireField(t, err, errs.ErrInvalidReference, "parents[0]")
	})

	t.Run("parent of wrong kind", func(t *testing.T) {
		_, err := r.CreateIntent(ctx, fx.Intent("bad parent", nil, intent, constraint))
		requireField(t, err, errs.ErrInvalidReference, "parents[1]")
		assert.Contains(t, err.Error(), "is a constraint")
	})

	t.Run("decision on missing intent", func(t *testing.T) {
		_, err := r.CreateDecision(ctx, fx.Decision(missingID, "Which hash?", "argon2id"))
		requireField(t, err, errs.ErrInvalidReference, "intent_id")
	})

	t.Run("decision on a constraint", func(t *testing.T) {
		_, err := r.CreateDecision(ctx, fx.Decision(constraint, "Which hash?", "argon2id"))
		requireField(t, err, errs.ErrInvalidReference, "intent_id")
	})

	t.Run("constraint source missing", func(t *testing.T) {
		_, err := r.CreateConstraint(ctx, fx.Constraint(missingID, "dangling"))
		requireField(t, err, errs.ErrInvalidReference, "source_intent")
	})

	t.Run("change set listing a constraint as intent", func(t *testing.T) {
		_, err := r.CreateChangeSet(ctx, fx.ChangeSet("abc123", constraint))
		requireField(t, err, errs.ErrInvalidReference, "intents[0]")
	})

	t.Run("invalid field", func(t *testing.T) {
		_, err := r.CreateIntent(ctx, fx.Intent("", nil))
		requireField(t, err, errs.ErrInvalidObject, "statement")
		var e *errs.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "repo.create_intent", e.Op)
	})

	after, err := r.ODB().List()
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected objects must not be stored")
}

func TestBindingAcceptsAnyKind(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	intent := appendIntent(t, r, fx.Intent("Add login", nil))
	constraint, err := r.CreateConstraint(ctx, fx.Constraint(intent, "Hash passwords"))
	require.NoError(t, err)

	for _, target := range []object.ID{intent, constraint} {
		_, err := r.CreateBinding(ctx, fx.Binding(target, "auth/login.go", "Login"))
		assert.NoError(t, err)
	}

	_, err = r.CreateBinding(ctx, fx.Binding(missingID, "auth/login.go", ""))
	requireField(t, err, errs.ErrInvalidReference, "bound_object")
}

func TestIndexUpdatedOnCreate(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	id := appendIntent(t, r, fx.Intent("Add login", []string{"auth"}))

	entries, ok := r.Indexes().Lookup("impact", "auth", mustList(t, r))
	require.True(t, ok, "index should be fresh after create")
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)

	// Re-creating the same object is a no-op for the index too.
	_, obj, err := r.ReadObject(ctx, string(id))
	require.NoError(t, err)
	_, err = r.create(ctx, "test", obj)
	require.NoError(t, err)
	entries, _ = r.Indexes().Lookup("impact", "auth", mustList(t, r))
	assert.Len(t, entries, 1)
}

func mustList(t *testing.T, r *Repository) []object.ID {
	t.Helper()
	ids, err := r.ODB().List()
	require.NoError(t, err)
	return ids
}

func TestSupersedeConstraint(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	intent := appendIntent(t, r, fx.Intent("Add login", []string{"auth"}))
	oldID, err := r.CreateConstraint(ctx, fx.Constraint(intent, "Sessions expire after 1h", "auth"))
	require.NoError(t, err)

	sup, err := r.SupersedeConstraint(ctx, oldID.Short(), "Sessions expire after 30m", object.SeverityMust, "too long")
	require.NoError(t, err)
	assert.Equal(t, oldID, sup.Old)

	_, obj, err := r.ReadObject(ctx, string(sup.New))
	require.NoError(t, err)
	next := obj.(object.Constraint)
	assert.Equal(t, object.StatusActive, next.Status)
	assert.Equal(t, object.SeverityMust, next.Severity)
	assert.Equal(t, intent, next.SourceIntent)
	assert.Equal(t, []string{"auth"}, next.Impacts)

	_, obj, err = r.ReadObject(ctx, string(sup.Record))
	require.NoError(t, err)
	record := obj.(object.Constraint)
	assert.Equal(t, object.StatusSuperseded, record.Status)
	assert.Equal(t, sup.New, record.SupersededBy)
	assert.Equal(t, "too long", record.DeprecationReason)
	assert.Equal(t, "Sessions expire after 1h", record.Statement)

	_, err = r.SupersedeConstraint(ctx, string(sup.Record), "again", "", "")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = r.SupersedeConstraint(ctx, string(intent), "not a constraint", "", "")
	assert.ErrorIs(t, err, errs.ErrInvalidReference)

	active, err := r.Query(ctx, query.Filter{Kind: object.KindConstraint, Status: object.StatusSuperseded})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sup.Record, active[0].ID)
}

func TestDeprecateConstraint(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	intent := appendIntent(t, r, fx.Intent("Add login", nil))
	id, err := r.CreateConstraint(ctx, fx.Constraint(intent, "Use MD5"))
	require.NoError(t, err)

	_, err = r.DeprecateConstraint(ctx, string(id), "")
	requireField(t, err, errs.ErrInvalidObject, "deprecation_reason")

	depID, err := r.DeprecateConstraint(ctx, string(id), "insecure")
	require.NoError(t, err)

	_, obj, err := r.ReadObject(ctx, string(depID))
	require.NoError(t, err)
	dep := obj.(object.Constraint)
	assert.Equal(t, object.StatusDeprecated, dep.Status)
	assert.Equal(t, "insecure", dep.DeprecationReason)

	_, err = r.DeprecateConstraint(ctx, string(depID), "twice")
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestStreams(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	base := appendIntent(t, r, fx.Intent("base", nil))

	snapID, err := r.CreateStream(ctx, "feature/onboarding", "onboarding work")
	require.NoError(t, err)
	_, obj, err := r.ReadObject(ctx, string(snapID))
	require.NoError(t, err)
	snap := obj.(object.StreamSnapshot)
	assert.Equal(t, base, snap.Tip)
	assert.Equal(t, DefaultStream, snap.ParentStream)

	_, err = r.CreateStream(ctx, "feature/onboarding", "")
	assert.ErrorIs(t, err, errs.ErrExists)
	_, err = r.CreateStream(ctx, "../escape", "")
	assert.ErrorIs(t, err, errs.ErrInvalidName)

	require.NoError(t, r.SwitchStream("feature/onboarding"))
	feature := appendIntent(t, r, fx.Intent("welcome screen", nil))

	streams, err := r.ListStreams()
	require.NoError(t, err)
	assert.Equal(t, []Stream{
		{Name: "feature/onboarding", Tip: feature, Current: true},
		{Name: DefaultStream, Tip: base},
	}, streams)

	assert.ErrorIs(t, r.DeleteStream("feature/onboarding"), errs.ErrForbidden)
	assert.ErrorIs(t, r.SwitchStream("nope"), errs.ErrNotFound)

	require.NoError(t, r.SwitchStream(DefaultStream))
	require.NoError(t, r.DeleteStream("feature/onboarding"))
	assert.ErrorIs(t, r.DeleteStream("feature/onboarding"), errs.ErrNotFound)

	// The feature intent is still stored; only the ref is gone.
	_, _, err = r.ReadObject(ctx, string(feature))
	assert.NoError(t, err)
}

func TestLog(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()

	entries, err := r.Log(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	root := appendIntent(t, r, fx.Intent("root", nil))
	left, err := r.CreateIntent(ctx, fx.Intent("left", nil, root))
	require.NoError(t, err)
	right, err := r.commitIntent(ctx, DefaultStream, left, fx.Intent("right", nil, root))
	require.NoError(t, err)
	merge, err := r.commitIntent(ctx, DefaultStream, right, fx.Intent("merge", nil, left, right))
	require.NoError(t, err)

	entries, err = r.Log(ctx, 0)
	require.NoError(t, err)
	var got []object.ID
	for _, e := range entries {
		got = append(got, e.ID)
	}
	assert.Equal(t, []object.ID{merge, left, right, root}, got, "breadth-first, each intent once")

	entries, err = r.Log(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = r.LogFrom(ctx, left, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCheckBindings(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	intent := appendIntent(t, r, fx.Intent("Add login", nil))

	require.NoError(t, os.MkdirAll(filepath.Join(r.Root(), "auth"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(r.Root(), "auth", "login.go"), []byte("package auth\n"), 0o644))

	_, err := r.CreateBinding(ctx, fx.Binding(intent, "auth/login.go", "Login"))
	require.NoError(t, err)
	_, err = r.CreateBinding(ctx, fx.Binding(intent, "auth/gone.go", ""))
	require.NoError(t, err)

	statuses, err := r.CheckBindings(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "auth/gone.go", statuses[0].Binding.Path)
	assert.False(t, statuses[0].Resolved)
	assert.Equal(t, "auth/login.go", statuses[1].Binding.Path)
	assert.True(t, statuses[1].Resolved)
}

func TestVerify(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	intent := appendIntent(t, r, fx.Intent("Add login", nil))
	_, err := r.CreateConstraint(ctx, fx.Constraint(intent, "Hash passwords"))
	require.NoError(t, err)

	rep, err := r.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 3, rep.Objects, "snapshot, intent, constraint")

	require.NoError(t, os.WriteFile(r.ODB().Path(intent), []byte("garbage"), 0o644))

	rep, err = r.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, rep.OK())
	require.Len(t, rep.Corrupted, 1)
	assert.Equal(t, intent, rep.Corrupted[0].ID)
	require.Len(t, rep.BrokenRefs, 1)
	assert.Equal(t, DefaultStream, rep.BrokenRefs[0].Stream)
	assert.ErrorIs(t, rep.BrokenRefs[0].Err, errs.ErrIntegrity)

	_, err = r.Log(ctx, 0)
	assert.ErrorIs(t, err, errs.ErrIntegrity)
}

func TestVerifyReportsAndClearsStaleLocks(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()

	// A writer that died while holding the lock for an object.
	obj := fx.Intent("never landed", nil)
	id, err := object.IDOf(obj)
	require.NoError(t, err)
	lockPath := r.ODB().Path(id) + lockfile.Suffix
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	require.NoError(t, os.WriteFile(lockPath, nil, 0o644))

	rep, err := r.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "a fresh lock may belong to a live writer")

	hour := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, hour, hour))

	rep, err = r.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, rep.OK())
	require.Len(t, rep.StaleLocks, 1)
	assert.Equal(t, lockPath, rep.StaleLocks[0].Path)

	cleared, err := r.ClearStaleLocks(ctx)
	require.NoError(t, err)
	assert.Len(t, cleared, 1)
	assert.NoFileExists(t, lockPath)

	rep, err = r.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, rep.OK())

	_, err = r.CreateIntent(ctx, obj)
	assert.NoError(t, err, "the object is writable again")
}

func TestReindexAndContext(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	auth := appendIntent(t, r, fx.Intent("Add login", []string{"auth"}))
	appendIntent(t, r, fx.Intent("Add billing", []string{"billing"}))
	decision, err := r.CreateDecision(ctx, fx.Decision(auth, "Which hash?", "argon2id"))
	require.NoError(t, err)

	require.NoError(t, r.Indexes().Remove())
	stats, err := r.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Objects)
	assert.Zero(t, stats.Corrupted)

	groups, err := r.Context(ctx, "auth")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, auth, groups[0].Primary.ID)
	require.Len(t, groups[0].Related, 1)
	assert.Equal(t, decision, groups[0].Related[0].ID)
}

func TestReadObjectByPrefix(t *testing.T) {
	r, fx := newRepo(t)
	ctx := context.Background()
	id := appendIntent(t, r, fx.Intent("Add login", nil))

	got, _, err := r.ReadObject(ctx, id.Short())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, _, err = r.ReadObject(ctx, "xyz")
	assert.ErrorIs(t, err, errs.ErrInvalidObject)

	_, _, err = r.ResolveAs(ctx, string(id), object.KindConstraint)
	assert.ErrorIs(t, err, errs.ErrInvalidReference)
}
