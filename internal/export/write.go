package export

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/repo"
)

// Stats counts the rows written by Snapshot.
type Stats struct {
	Objects   int `json:"objects"`
	Edges     int `json:"edges"`
	Impacts   int `json:"impacts"`
	Streams   int `json:"streams"`
	Corrupted int `json:"corrupted"`
}

// Snapshot replaces the database contents with the current state of r in
// one transaction: a single verified scan of the object store plus the
// stream list.
func (s *Store) Snapshot(ctx context.Context, r *repo.Repository) (Stats, error) {
	res, err := r.ODB().Scan(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot: %w", err)
	}
	streams, err := r.ListStreams()
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, table := range []string{"edges", "impacts", "objects", "streams", "corrupted"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return Stats{}, fmt.Errorf("snapshot: clear %s: %w", table, err)
		}
	}

	var stats Stats
	for _, e := range res.Objects {
		n, err := writeObject(ctx, tx, e.ID, e.Object)
		if err != nil {
			return Stats{}, err
		}
		stats.Objects++
		stats.Edges += n.edges
		stats.Impacts += n.impacts
	}

	for _, st := range streams {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO streams (name, tip, current) VALUES (?, ?, ?)
		`, st.Name, nullID(st.Tip), st.Current); err != nil {
			return Stats{}, fmt.Errorf("snapshot: write stream %s: %w", st.Name, err)
		}
		stats.Streams++
	}

	for _, c := range res.Corrupted {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO corrupted (path, id, error) VALUES (?, ?, ?)
			ON CONFLICT(path) DO NOTHING
		`, c.Path, nullID(c.ID), c.Err.Error()); err != nil {
			return Stats{}, fmt.Errorf("snapshot: write corrupted %s: %w", c.Path, err)
		}
		stats.Corrupted++
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("snapshot: commit: %w", err)
	}
	return stats, nil
}

type rowCounts struct {
	edges   int
	impacts int
}

func writeObject(ctx context.Context, tx *sql.Tx, id object.ID, obj object.Object) (rowCounts, error) {
	body, err := canonicalBody(obj)
	if err != nil {
		return rowCounts{}, fmt.Errorf("write object %s: %w", id.Short(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects (id, kind, time, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, string(id), string(obj.Kind()), nullTime(obj.Time()), body)
	if err != nil {
		return rowCounts{}, fmt.Errorf("write object %s: %w", id.Short(), err)
	}

	var n rowCounts
	for _, ref := range obj.References() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges (src, field, dst) VALUES (?, ?, ?)
			ON CONFLICT(src, field) DO NOTHING
		`, string(id), ref.Field, string(ref.ID)); err != nil {
			return rowCounts{}, fmt.Errorf("write edge %s.%s: %w", id.Short(), ref.Field, err)
		}
		n.edges++
	}

	for _, tag := range impactsOf(obj) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO impacts (id, tag) VALUES (?, ?)
			ON CONFLICT(id, tag) DO NOTHING
		`, string(id), tag)
		if err != nil {
			return rowCounts{}, fmt.Errorf("write impact %s: %w", id.Short(), err)
		}
		if added, _ := res.RowsAffected(); added > 0 {
			n.impacts++
		}
	}
	return n, nil
}

// canonicalBody returns the JSON half of obj's encoding, so the stored text
// is exactly what was hashed.
func canonicalBody(obj object.Object) (string, error) {
	encoded, err := object.Encode(obj)
	if err != nil {
		return "", err
	}
	i := bytes.IndexByte(encoded, 0)
	return string(encoded[i+1:]), nil
}

func impactsOf(obj object.Object) []string {
	switch o := obj.(type) {
	case object.Intent:
		return o.Impacts
	case object.Constraint:
		return o.Impacts
	default:
		return nil
	}
}

func nullID(id object.ID) sql.NullString {
	return sql.NullString{String: string(id), Valid: !id.IsZero()}
}

// timeLayout is fixed width so the time column sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
