package pathutil

import (
	"strings"
)

// Key is a normalized object key. It never starts with the separator; a key
// that ends with the separator addresses a directory prefix.
type Key string

// RootKey is the prefix of the namespace root.
const RootKey Key = ""

// String returns the key as a plain string.
func (k Key) String() string { return string(k) }

// IsPrefix reports whether k addresses a directory prefix rather than an object.
func (k Key) IsPrefix() bool {
	return k == RootKey || strings.HasSuffix(string(k), Separator)
}

// Path returns the rooted path form of k, without a trailing separator.
func (k Key) Path() string {
	return Separator + strings.TrimSuffix(string(k), Separator)
}

// Normalizer converts paths to keys. The zero value is case-sensitive.
type Normalizer struct {
	foldCase bool
}

// NewNormalizer returns a Normalizer. When caseInsensitive is set every key is
// lower-cased so that paths differing only in case address the same object.
func NewNormalizer(caseInsensitive bool) Normalizer {
	return Normalizer{foldCase: caseInsensitive}
}

// CaseSensitive reports whether keys produced by n preserve case.
func (n Normalizer) CaseSensitive() bool {
	return !n.foldCase
}

// Normalize returns the object key for path. The root path maps to RootKey.
func (n Normalizer) Normalize(path string) (Key, error) {
	segments, err := Split(path)
	if err != nil {
		return "", err
	}

	key := strings.Join(segments, Separator)
	if n.foldCase {
		key = strings.ToLower(key)
	}
	return Key(key), nil
}

// DirectoryPrefix returns the key prefix for a directory path. Apart from the
// root, the prefix always ends with the separator.
func (n Normalizer) DirectoryPrefix(path string) (Key, error) {
	key, err := n.Normalize(path)
	if err != nil {
		return "", err
	}
	if key == RootKey {
		return RootKey, nil
	}
	return key + Separator, nil
}
