package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/core"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Current is the object's version token after a failed precondition
	Current string `json:"current_etag,omitempty"`
}

// customError is a simple error type for custom error messages
type customError struct {
	message string
}

func (e *customError) Error() string {
	return e.message
}

// errorStatus maps an error kind onto an HTTP status and error code
func errorStatus(err error, defaultStatusCode int) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidPath):
		return http.StatusBadRequest, "INVALID_PATH"
	case errors.Is(err, core.ErrTokenRequired):
		return http.StatusPreconditionRequired, "VERSION_TOKEN_REQUIRED"
	case errors.Is(err, core.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "PRECONDITION_FAILED"
	case errors.Is(err, core.ErrObjectNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrDirectoryNotEmpty):
		return http.StatusConflict, "DIRECTORY_NOT_EMPTY"
	case errors.Is(err, core.ErrPartialFailure):
		return http.StatusMultiStatus, "PARTIAL_FAILURE"
	case errors.Is(err, core.ErrNotSupported):
		return http.StatusNotImplemented, "NOT_SUPPORTED"
	case errors.Is(err, core.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "AUTHENTICATION_FAILED"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	}

	if defaultStatusCode == http.StatusBadRequest {
		return defaultStatusCode, "BAD_REQUEST"
	}
	return defaultStatusCode, "INTERNAL_ERROR"
}

// SendErrorResponse sends a standardized JSON error response
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	statusCode, errorCode := errorStatus(err, defaultStatusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: err.Error(),
	}

	var pe *core.PreconditionError
	if errors.As(err, &pe) {
		response.Current = string(pe.Current)
		if pe.Current != "" {
			w.Header().Set("ETag", string(pe.Current))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err),
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("Error response sent", fields...)
		return
	}
	logger.Info("Error response sent", fields...)
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone; the client sees a truncated body
		fmt.Fprintf(w, `{"code":"INTERNAL_ERROR","message":"failed to encode response"}`)
	}
}
