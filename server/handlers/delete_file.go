package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
)

// DeleteResponse itemizes the keys touched by a directory delete
type DeleteResponse struct {
	Path   string               `json:"path"`
	Result *core.TransferResult `json:"result"`
	Error  string               `json:"error,omitempty"`
}

// V1DeleteFile handles DELETE /v1/files/{path}. Deleting a missing file
// succeeds. A trailing slash deletes the directory, recursively with
// ?recursive=true; a recursive delete that did not finish answers 207 with
// the per-key outcome.
func V1DeleteFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"))
		if pathInfo.IsInvalid {
			SendErrorResponse(w, logger, &customError{message: "invalid path"}, http.StatusBadRequest)
			return
		}

		if !authorize(w, r, authorizer, pathInfo.FullPath, auth.DeletePerm, logger) {
			return
		}

		ctx, cancel := fileContext(r, cfg)
		defer cancel()

		if !pathInfo.IsDirectory {
			if err := engine.DeleteFile(ctx, pathInfo.FullPath); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		recursive := false
		if raw := r.URL.Query().Get("recursive"); raw != "" {
			var err error
			if recursive, err = strconv.ParseBool(raw); err != nil {
				SendErrorResponse(w, logger, &customError{message: "invalid recursive parameter"}, http.StatusBadRequest)
				return
			}
		}

		result, err := engine.DeleteDirectory(ctx, pathInfo.FullPath, recursive)

		var pfe *core.PartialFailureError
		if errors.As(err, &pfe) {
			logger.Warn("Directory delete incomplete",
				log.Path("path", pathInfo.FullPath),
				zap.Int("succeeded", len(pfe.Result.Succeeded)),
				zap.Int("failed", len(pfe.Result.Failed)),
				zap.Int("pending", len(pfe.Result.Pending)))
			SendJSONResponse(w, http.StatusMultiStatus, DeleteResponse{
				Path:   pathInfo.FullPath,
				Result: pfe.Result,
				Error:  err.Error(),
			})
			return
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusOK, DeleteResponse{Path: pathInfo.FullPath, Result: result})
	}
}
