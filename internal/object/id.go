package object

import (
	"strings"

	"github.com/roach88/telos/internal/errs"
)

const (
	// IDLen is the length of a full hex object ID (SHA-256).
	IDLen = 64

	// MinPrefixLen is the shortest prefix accepted for prefix lookup.
	MinPrefixLen = 4

	// FanOutLen is the number of hex characters used as the fan-out directory.
	FanOutLen = 2
)

// ID is a content address: 64 lowercase hex characters.
// The zero value means "no reference".
type ID string

// ParseID validates a full-length hex ID. Surrounding whitespace is trimmed
// and upper-case hex is accepted and lowered.
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != IDLen || !isHex(s) {
		return "", errs.New(errs.ErrInvalidObject, "object.parse_id", s, "want 64 hex characters")
	}
	return ID(s), nil
}

// MustParseID is like ParseID but panics on error.
// Use only in tests or with known-good constants.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the full hex form.
func (id ID) String() string {
	return string(id)
}

// Short returns the first 8 characters, for display.
func (id ID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// FanOut splits the ID into its directory prefix and file name.
func (id ID) FanOut() (dir, file string) {
	return string(id[:FanOutLen]), string(id[FanOutLen:])
}

// HasPrefix reports whether the ID starts with the given hex prefix.
func (id ID) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(id), strings.ToLower(prefix))
}

// IsPrefix reports whether s is usable as an ID prefix: hex only and at
// least MinPrefixLen characters.
func IsPrefix(s string) bool {
	return len(s) >= MinPrefixLen && len(s) <= IDLen && isHex(strings.ToLower(s))
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
