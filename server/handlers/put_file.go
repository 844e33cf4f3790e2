package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
)

// PutResponse reports the version token of a written file
type PutResponse struct {
	Path string `json:"path"`
	ETag string `json:"etag,omitempty"`
}

// V1PutFile handles PUT /v1/files/{path}. The body is streamed to the store
// and replaces the file; If-Match turns the write into a compare-and-swap.
// A trailing slash creates the directory instead.
func V1PutFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"))
		if pathInfo.IsInvalid {
			SendErrorResponse(w, logger, &customError{message: "invalid path"}, http.StatusBadRequest)
			return
		}

		if !authorize(w, r, authorizer, pathInfo.FullPath, auth.WritePerm, logger) {
			return
		}

		ctx, cancel := fileContext(r, cfg)
		defer cancel()

		if pathInfo.IsDirectory {
			if err := engine.CreateDirectory(ctx, pathInfo.FullPath); err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
			w.Header().Set(TypeHeader, "directory")
			SendJSONResponse(w, http.StatusCreated, PutResponse{Path: pathInfo.FullPath})
			return
		}

		token, err := engine.WriteIfMatch(ctx, pathInfo.FullPath, ifMatch(r), r.Body, r.ContentLength)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		metrics.FileOperationsTotal.WithLabelValues("http_upload").Inc()
		logger.Info("File uploaded",
			log.Path("path", pathInfo.FullPath),
			zap.Int64("size", log.SanitizeSize(r.ContentLength)))

		w.Header().Set("ETag", string(token))
		SendJSONResponse(w, http.StatusOK, PutResponse{Path: pathInfo.FullPath, ETag: string(token)})
	}
}
