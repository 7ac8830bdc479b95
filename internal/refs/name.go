package refs

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/lockfile"
)

// ValidateName checks that a stream name is safe to map onto the refs tree.
// Hierarchical names such as "feature/onboarding" are allowed; anything that
// could escape refs/streams or hide among dotfiles is not.
func ValidateName(name string) error {
	invalid := func(msg string) error {
		return errs.New(errs.ErrInvalidName, "refs.validate_name", strings.ReplaceAll(name, "\x00", `\0`), msg)
	}

	if name == "" {
		return invalid("stream name cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return invalid("stream name cannot contain null bytes")
	}
	if strings.ContainsRune(name, '\\') {
		return invalid("stream name cannot contain backslashes")
	}
	if !norm.NFC.IsNormalString(name) {
		// Filesystems disagree on whether composed and decomposed names
		// are the same file.
		return invalid("stream name must be in Unicode NFC form")
	}
	if strings.HasSuffix(name, lockfile.Suffix) {
		return invalid("stream name cannot end in " + lockfile.Suffix)
	}
	for _, seg := range strings.Split(name, "/") {
		switch {
		case seg == "":
			return invalid("stream name cannot have empty path segments")
		case seg == "..":
			return invalid("stream name cannot contain '..'")
		case strings.HasPrefix(seg, "."):
			return invalid("path segments cannot start with '.'")
		}
	}
	return nil
}
