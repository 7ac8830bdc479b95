package repo

import (
	"context"
	"errors"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/object"
)

// Stream describes one intent stream.
type Stream struct {
	Name    string    `json:"name"`
	Tip     object.ID `json:"tip,omitempty"`
	Current bool      `json:"current"`
}

// CurrentStream returns the stream HEAD selects and its tip.
func (r *Repository) CurrentStream() (Stream, error) {
	name, tip, err := r.refs.Current()
	if err != nil {
		return Stream{}, err
	}
	return Stream{Name: name, Tip: tip, Current: true}, nil
}

// CreateStream forks a stream at the current stream's tip and records a
// snapshot of the fork. It returns the snapshot's ID.
func (r *Repository) CreateStream(ctx context.Context, name, description string) (object.ID, error) {
	from, tip, err := r.refs.Current()
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return "", err
	}
	if err := r.refs.CreateStream(name, tip); err != nil {
		return "", err
	}
	return r.snapshot(ctx, name, tip, description, from)
}

func (r *Repository) snapshot(ctx context.Context, name string, tip object.ID, description, parent string) (object.ID, error) {
	return r.CreateStreamSnapshot(ctx, object.StreamSnapshot{
		Name:         name,
		Tip:          tip,
		Description:  description,
		ParentStream: parent,
	})
}

// ListStreams returns every stream with its tip, sorted by name.
func (r *Repository) ListStreams() ([]Stream, error) {
	names, err := r.refs.ListStreams()
	if err != nil {
		return nil, err
	}
	head, err := r.refs.ReadHead()
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	streams := make([]Stream, 0, len(names))
	for _, name := range names {
		tip, err := r.refs.ReadStream(name)
		if err != nil {
			return nil, err
		}
		streams = append(streams, Stream{Name: name, Tip: tip, Current: name == head})
	}
	return streams, nil
}

// SwitchStream points HEAD at an existing stream.
func (r *Repository) SwitchStream(name string) error {
	if _, err := r.refs.ReadStream(name); err != nil {
		return err
	}
	return r.refs.SetHead(name)
}

// DeleteStream removes a stream other than the current one.
func (r *Repository) DeleteStream(name string) error {
	return r.refs.DeleteStream(name)
}
