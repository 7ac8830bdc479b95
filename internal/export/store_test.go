package export

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/repo"
	"github.com/roach88/telos/internal/testutil"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRepo(t *testing.T) (*repo.Repository, *testutil.Fixtures) {
	t.Helper()
	r, err := repo.Init(context.Background(), t.TempDir(), repo.WithClock(testutil.NewDeterministicClock()))
	if err != nil {
		t.Fatalf("repo.Init() failed: %v", err)
	}
	return r, testutil.NewFixtures()
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"objects", "edges", "impacts", "streams", "corrupted"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct{ name, expected string }{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		got, err := s.pragma(tt.name)
		if err != nil {
			t.Fatalf("pragma(%q) failed: %v", tt.name, err)
		}
		if got != tt.expected {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestOpen_RefusesOtherFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if s, err := Open(path); err == nil {
		s.Close()
		t.Fatal("Open() accepted a database in another format")
	}
}

func TestOpen_IndexesReverseEdges(t *testing.T) {
	s := createTestStore(t)
	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_edges_dst'").Scan(&name)
	if err != nil {
		t.Fatalf("idx_edges_dst missing: %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	r, fx := createTestRepo(t)

	intent, err := r.AppendIntent(ctx, fx.Intent("Add login", []string{"auth", "security"}))
	if err != nil {
		t.Fatalf("AppendIntent() failed: %v", err)
	}
	decision, err := r.CreateDecision(ctx, fx.Decision(intent, "Which hash?", "argon2id"))
	if err != nil {
		t.Fatalf("CreateDecision() failed: %v", err)
	}
	constraint, err := r.CreateConstraint(ctx, fx.Constraint(intent, "Hash passwords", "auth"))
	if err != nil {
		t.Fatalf("CreateConstraint() failed: %v", err)
	}

	s := createTestStore(t)
	stats, err := s.Snapshot(ctx, r)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	want := Stats{Objects: 4, Edges: 2, Impacts: 3, Streams: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	counts, err := s.CountByKind(ctx)
	if err != nil {
		t.Fatalf("CountByKind() failed: %v", err)
	}
	if counts[object.KindIntent] != 1 || counts[object.KindConstraint] != 1 || counts[object.KindDecisionRecord] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	got, err := s.ReadObject(ctx, intent)
	if err != nil {
		t.Fatalf("ReadObject() failed: %v", err)
	}
	if got.(object.Intent).Statement != "Add login" {
		t.Errorf("statement = %q", got.(object.Intent).Statement)
	}

	edges, err := s.Referrers(ctx, intent)
	if err != nil {
		t.Fatalf("Referrers() failed: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("got %d referrers, want 2", len(edges))
	}
	srcs := map[object.ID]string{edges[0].Src: edges[0].Field, edges[1].Src: edges[1].Field}
	if srcs[decision] != "intent_id" || srcs[constraint] != "source_intent" {
		t.Errorf("unexpected referrers: %+v", edges)
	}

	name, tip, err := s.CurrentStream(ctx)
	if err != nil {
		t.Fatalf("CurrentStream() failed: %v", err)
	}
	if name != repo.DefaultStream || tip != intent {
		t.Errorf("current stream = %s@%s, want %s@%s", name, tip, repo.DefaultStream, intent)
	}
}

func TestSnapshot_ReplacesPreviousContents(t *testing.T) {
	ctx := context.Background()
	r, fx := createTestRepo(t)
	s := createTestStore(t)

	if _, err := s.Snapshot(ctx, r); err != nil {
		t.Fatalf("first Snapshot() failed: %v", err)
	}
	if _, err := r.AppendIntent(ctx, fx.Intent("Add login", nil)); err != nil {
		t.Fatalf("AppendIntent() failed: %v", err)
	}
	stats, err := s.Snapshot(ctx, r)
	if err != nil {
		t.Fatalf("second Snapshot() failed: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM objects").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != stats.Objects || n != 2 {
		t.Errorf("objects = %d, stats = %d, want 2", n, stats.Objects)
	}
}

func TestSnapshot_RecordsCorruption(t *testing.T) {
	ctx := context.Background()
	r, fx := createTestRepo(t)

	intent, err := r.AppendIntent(ctx, fx.Intent("Add login", nil))
	if err != nil {
		t.Fatalf("AppendIntent() failed: %v", err)
	}
	if err := os.WriteFile(r.ODB().Path(intent), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	s := createTestStore(t)
	stats, err := s.Snapshot(ctx, r)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if stats.Corrupted != 1 {
		t.Errorf("corrupted = %d, want 1", stats.Corrupted)
	}

	_, err = s.ReadObject(ctx, intent)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadObject() error = %v, want sql.ErrNoRows", err)
	}
}

func TestReadObject_DetectsEditedRow(t *testing.T) {
	ctx := context.Background()
	r, fx := createTestRepo(t)
	intent, err := r.AppendIntent(ctx, fx.Intent("Add login", nil))
	if err != nil {
		t.Fatalf("AppendIntent() failed: %v", err)
	}

	s := createTestStore(t)
	if _, err := s.Snapshot(ctx, r); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE objects SET body = replace(body, 'login', 'logout') WHERE id = ?`, string(intent)); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if _, err := s.ReadObject(ctx, intent); err == nil {
		t.Error("expected error reading an edited row")
	}
}
