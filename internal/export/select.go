package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/query"
)

// Select answers f from the snapshot. The SQL narrows candidates; each row
// is then verified, decoded and checked with f.Matches, so the answer is the
// one the live engine gives for the repository state that was exported.
// Results come newest first, untimed objects last, ties by ID.
func (s *Store) Select(ctx context.Context, f query.Filter) ([]query.Result, error) {
	stmt, params := compileFilter(f)
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	results := []query.Result{}
	for rows.Next() {
		var id, kind, body string
		if err := rows.Scan(&id, &kind, &body); err != nil {
			return nil, fmt.Errorf("select: scan: %w", err)
		}
		obj, err := decodeRow(object.ID(id), kind, body)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		if f.Matches(obj) {
			results = append(results, query.Result{ID: object.ID(id), Object: obj})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return results, nil
}

// compileFilter turns f into parameterized SQL over the objects table.
// Values are always bound, never interpolated, and every statement carries
// a total ORDER BY.
func compileFilter(f query.Filter) (string, []any) {
	var where []string
	var params []any
	add := func(clause string, value any) {
		where = append(where, clause)
		params = append(params, value)
	}

	if f.Kind != "" {
		add("o.kind = ?", string(f.Kind))
	}
	if f.Impact != "" {
		add("EXISTS (SELECT 1 FROM impacts i WHERE i.id = o.id AND i.tag = ?)", f.Impact)
	}
	if f.IntentID != "" {
		add(`EXISTS (SELECT 1 FROM edges e WHERE e.src = o.id
			AND e.field IN ('intent_id', 'source_intent') AND e.dst = ?)`, string(f.IntentID))
	}
	if f.Tag != "" {
		add("EXISTS (SELECT 1 FROM json_each(o.body, '$.tags') t WHERE t.value = ?)", f.Tag)
	}

	fields := []struct {
		path  string
		value string
	}{
		{"$.path", f.Path},
		{"$.symbol", f.Symbol},
		{"$.git_commit", f.Commit},
		{"$.agent_id", f.AgentID},
		{"$.session_id", f.SessionID},
		{"$.status", string(f.Status)},
	}
	for _, fl := range fields {
		if fl.value != "" {
			add(fmt.Sprintf("json_extract(o.body, '%s') = ?", fl.path), fl.value)
		}
	}

	stmt := "SELECT o.id, o.kind, o.body FROM objects o"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY o.time IS NULL, o.time DESC, o.id COLLATE BINARY ASC"
	return stmt, params
}
