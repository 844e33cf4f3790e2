package auth

import (
	"context"
	"fmt"
)

// ScopeAuthorizer grants every authenticated user full access except the
// users derived from read-only keys, which may only read.
type ScopeAuthorizer struct {
	readOnly map[string]bool
}

// NewScopeAuthorizer creates an authorizer that limits the given keys to reads
func NewScopeAuthorizer(readOnlyKeys []string) *ScopeAuthorizer {
	readOnly := make(map[string]bool, len(readOnlyKeys))
	for _, key := range readOnlyKeys {
		if key != "" {
			readOnly[UserIDForKey(key)] = true
		}
	}
	return &ScopeAuthorizer{readOnly: readOnly}
}

// Authorize checks if a user has the specified permission for a path
func (a *ScopeAuthorizer) Authorize(ctx context.Context, userID string, path string, perm PermissionType) error {
	if userID == "" {
		return ErrAuthenticationFailed
	}
	if perm != ReadPerm && a.readOnly[userID] {
		return fmt.Errorf("%w: %s requires %s access", ErrPermissionDenied, userID, perm)
	}
	return nil
}
