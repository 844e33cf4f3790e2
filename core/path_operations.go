package core

import (
	"github.com/google/uuid"

	"github.com/ebogdum/bucketfs/internal/pathutil"
)

// Combine joins path segments with the separator, collapsing empty segments
func (e *Engine) Combine(parts ...string) string {
	return pathutil.Join(parts...)
}

// GetFileName returns the last segment of path
func (e *Engine) GetFileName(path string) string {
	return pathutil.LeafName(path)
}

// GetDirectoryName returns the parent of path
func (e *Engine) GetDirectoryName(path string) string {
	return pathutil.ParentOf(path)
}

// IsRooted reports whether path starts at the store root
func (e *Engine) IsRooted(path string) bool {
	return pathutil.IsRooted(path)
}

// RandomDirectoryName returns a fresh name suitable for a scratch directory
func (e *Engine) RandomDirectoryName() string {
	return uuid.NewString()
}

// RootDirectory returns the path of the store root
func (e *Engine) RootDirectory() string {
	return pathutil.Separator
}

// DefaultDirectory returns the directory relative paths are resolved against
func (e *Engine) DefaultDirectory() string {
	return e.defaultDir
}

// IsCaseSensitive reports whether paths differing only in case address
// different objects.
func (e *Engine) IsCaseSensitive() bool {
	return e.paths.CaseSensitive()
}
