package repo

import (
	"context"

	"github.com/roach88/telos/internal/object"
)

// LogEntry is one intent reached by Log.
type LogEntry struct {
	ID     object.ID
	Intent object.Intent
}

// Log walks the intent DAG breadth-first from the current stream's tip,
// following parents and visiting each intent once. max <= 0 means no limit.
// An un-tipped stream yields an empty log.
func (r *Repository) Log(ctx context.Context, max int) ([]LogEntry, error) {
	_, tip, err := r.refs.Current()
	if err != nil {
		return nil, err
	}
	return r.walk(ctx, tip, max)
}

// LogFrom is Log starting at an arbitrary intent.
func (r *Repository) LogFrom(ctx context.Context, start object.ID, max int) ([]LogEntry, error) {
	return r.walk(ctx, start, max)
}

func (r *Repository) walk(ctx context.Context, start object.ID, max int) ([]LogEntry, error) {
	entries := []LogEntry{}
	if start.IsZero() {
		return entries, nil
	}

	visited := map[object.ID]bool{start: true}
	queue := []object.ID{start}
	for len(queue) > 0 && (max <= 0 || len(entries) < max) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]

		obj, err := r.db.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		intent, ok := obj.(object.Intent)
		if !ok {
			continue
		}
		entries = append(entries, LogEntry{ID: id, Intent: intent})

		for _, p := range intent.Parents {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return entries, nil
}
