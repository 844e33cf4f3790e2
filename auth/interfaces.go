// Package auth provides API key authentication and per-key scopes for the
// bucketfs HTTP API.
package auth

import (
	"context"
	"errors"
)

// PermissionType represents different permission types for authorization
type PermissionType int

const (
	ReadPerm PermissionType = iota
	WritePerm
	DeletePerm
)

func (p PermissionType) String() string {
	switch p {
	case ReadPerm:
		return "read"
	case WritePerm:
		return "write"
	case DeletePerm:
		return "delete"
	}
	return "unknown"
}

// Common authentication/authorization errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPermissionDenied     = errors.New("permission denied")
)

// Authenticator defines the interface for user authentication
type Authenticator interface {
	// Authenticate validates a token and returns the associated user ID
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// Authorizer defines the interface for authorization checks
type Authorizer interface {
	// Authorize checks if a user has the specified permission for a path
	Authorize(ctx context.Context, userID string, path string, perm PermissionType) error
}
