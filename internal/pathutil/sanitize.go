// Package pathutil turns user-supplied hierarchical paths into object keys.
//
// Paths always use "/" as the separator. Empty segments collapse, and "." and
// ".." are kept verbatim: the object store has no working directory, so
// resolving them is left to callers.
package pathutil

import (
	"errors"
	"fmt"
	"strings"
)

// Separator is the only separator accepted in paths and emitted in keys.
const Separator = "/"

// ErrInvalidPath is returned for malformed paths or paths containing reserved characters.
var ErrInvalidPath = errors.New("invalid path")

// ValidatePath rejects paths that cannot be mapped onto a key without ambiguity.
// An empty path is valid and denotes the root.
func ValidatePath(path string) error {
	// Check for null bytes (can be used to bypass file extension checks)
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: contains NUL byte", ErrInvalidPath)
	}

	// A second separator would let one logical path map onto two prefixes.
	if strings.Contains(path, "\\") {
		return fmt.Errorf("%w: %q uses a backslash separator", ErrInvalidPath, path)
	}

	for _, char := range path {
		if char < 32 || char == 127 {
			return fmt.Errorf("%w: contains control character %U", ErrInvalidPath, char)
		}
	}

	return nil
}

// Split validates path and returns its non-empty segments.
func Split(path string) ([]string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	raw := strings.Split(path, Separator)
	segments := raw[:0]
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments, nil
}

// IsRooted reports whether path starts at the namespace root.
func IsRooted(path string) bool {
	return strings.HasPrefix(path, Separator)
}

// Join joins segments with the separator, collapsing empty segments. The
// result is rooted when the first non-empty argument is rooted.
func Join(segments ...string) string {
	rooted := false
	for _, s := range segments {
		if s != "" {
			rooted = IsRooted(s)
			break
		}
	}

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		for _, p := range strings.Split(s, Separator) {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}

	joined := strings.Join(parts, Separator)
	if rooted {
		return Separator + joined
	}
	return joined
}

// ParentOf returns the parent of path. The root and single-segment relative
// paths have no parent and yield "/" and "" respectively.
func ParentOf(path string) string {
	trimmed := strings.TrimRight(path, Separator)
	idx := strings.LastIndex(trimmed, Separator)
	switch {
	case trimmed == "":
		if IsRooted(path) {
			return Separator
		}
		return ""
	case idx < 0:
		return ""
	case idx == 0:
		return Separator
	}
	return Join(trimmed[:idx])
}

// LeafName returns the last segment of path, ignoring trailing separators.
func LeafName(path string) string {
	trimmed := strings.TrimRight(path, Separator)
	if idx := strings.LastIndex(trimmed, Separator); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
