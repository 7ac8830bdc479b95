package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/telos/internal/object"
)

// Edge is one stored reference.
type Edge struct {
	Src   object.ID
	Field string
	Dst   object.ID
}

// ReadObject decodes the object stored under id. The row is re-encoded and
// re-hashed, so a hand-edited body is an error rather than a wrong answer.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadObject(ctx context.Context, id object.ID) (object.Object, error) {
	var kind, body string
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, body FROM objects WHERE id = ?
	`, string(id)).Scan(&kind, &body)
	if err != nil {
		return nil, err
	}

	return decodeRow(id, kind, body)
}

// decodeRow rebuilds the encoding of one objects row and checks it against
// the row's ID.
func decodeRow(id object.ID, kind, body string) (object.Object, error) {
	encoded := append([]byte(kind+"\x00"), body...)
	if got := object.Identify(encoded); got != id {
		return nil, fmt.Errorf("read object %s: row hashes to %s", id.Short(), got.Short())
	}
	return object.Decode(encoded)
}

// Referrers returns the edges pointing at id, ordered by source and field.
func (s *Store) Referrers(ctx context.Context, id object.ID) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src, field, dst FROM edges
		WHERE dst = ?
		ORDER BY src COLLATE BINARY ASC, field COLLATE BINARY ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("query referrers: %w", err)
	}
	defer rows.Close()

	edges := []Edge{}
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Src, &e.Field, &e.Dst); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrers: %w", err)
	}
	return edges, nil
}

// CountByKind returns the number of stored objects of each kind present.
func (s *Store) CountByKind(ctx context.Context) (map[object.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM objects GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count objects: %w", err)
	}
	defer rows.Close()

	counts := make(map[object.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[object.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// CurrentStream returns the stream marked current and its tip (zero if the
// stream has none). Returns sql.ErrNoRows if no stream is marked.
func (s *Store) CurrentStream(ctx context.Context) (string, object.ID, error) {
	var name string
	var tip sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT name, tip FROM streams WHERE current = 1
	`).Scan(&name, &tip)
	if err != nil {
		return "", "", err
	}
	return name, object.ID(tip.String), nil
}
