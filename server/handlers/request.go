package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/server/middleware"
)

// authorize checks the caller's permission and writes the error response
// when it is missing.
func authorize(w http.ResponseWriter, r *http.Request, authorizer auth.Authorizer, path string, perm auth.PermissionType, logger *zap.Logger) bool {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
		return false
	}
	if err := authorizer.Authorize(r.Context(), userID, path, perm); err != nil {
		SendErrorResponse(w, logger, err, http.StatusForbidden)
		return false
	}
	return true
}

// fileContext bounds a file operation by the configured timeout
func fileContext(r *http.Request, cfg *config.ServerConfig) (context.Context, context.CancelFunc) {
	if cfg == nil || cfg.FileOpTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), cfg.FileOpTimeout)
}

// ifMatch returns the version token from the If-Match header. Weak
// validators are accepted by dropping the W/ prefix.
func ifMatch(r *http.Request) backends.VersionToken {
	value := strings.TrimSpace(r.Header.Get("If-Match"))
	return backends.VersionToken(strings.TrimPrefix(value, "W/"))
}
