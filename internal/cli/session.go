package cli

import "github.com/google/uuid"

// SessionGenerator produces agent session IDs for agent-log when --session
// is not given.
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs, so the
// operations of consecutive sessions sort in the order they ran.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (o *RootOptions) sessions() SessionGenerator {
	if o.Sessions != nil {
		return o.Sessions
	}
	return UUIDv7Generator{}
}
