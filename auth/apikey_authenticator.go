package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys
type APIKeyAuthenticator struct {
	validKeys map[string]string // key -> user ID
}

// NewAPIKeyAuthenticator creates an authenticator accepting every key in the
// given lists. Empty keys are ignored.
func NewAPIKeyAuthenticator(keyLists ...[]string) *APIKeyAuthenticator {
	validKeys := make(map[string]string)
	for _, keys := range keyLists {
		for _, key := range keys {
			if key != "" {
				validKeys[key] = UserIDForKey(key)
			}
		}
	}

	return &APIKeyAuthenticator{
		validKeys: validKeys,
	}
}

// Authenticate validates a token and returns the associated user ID
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	userID, ok := a.validKeys[token]
	if !ok {
		return "", ErrAuthenticationFailed
	}
	return userID, nil
}

// UserIDForKey derives a stable user ID from an API key without exposing
// the key itself in logs.
func UserIDForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key-" + hex.EncodeToString(sum[:6])
}
