package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
	"github.com/ebogdum/bucketfs/server/middleware"
)

// TypeHeader tells clients whether a path named a file or a directory
const TypeHeader = "X-BucketFS-Type"

// V1GetFile handles GET /v1/files/{path}. A trailing slash lists the
// directory as JSON; anything else streams the file. With If-Match the read
// only starts while the file still has that version.
func V1GetFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"))
		if pathInfo.IsInvalid {
			SendErrorResponse(w, logger, &customError{message: "invalid path"}, http.StatusBadRequest)
			return
		}

		if !authorize(w, r, authorizer, pathInfo.FullPath, auth.ReadPerm, logger) {
			return
		}

		ctx, cancel := fileContext(r, cfg)
		defer cancel()

		if pathInfo.IsDirectory {
			listDirectory(ctx, w, r, engine, pathInfo.FullPath, logger)
			return
		}

		var (
			h   *core.ReadHandle
			err error
		)
		if token := ifMatch(r); token != "" {
			h, err = engine.ReadIfMatch(ctx, pathInfo.FullPath, token)
		} else {
			h, err = engine.OpenReadHandle(ctx, pathInfo.FullPath)
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer h.Close()

		setFileHeaders(w, h.Size(), h.LastModified(), string(h.Version()))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)

		buf := make([]byte, engine.BufferSize())
		n, err := io.CopyBuffer(struct{ io.Writer }{w}, h, buf)
		if err != nil {
			// Headers are already sent; the client sees a short body
			logger.Warn("Failed to stream file content",
				log.Path("path", pathInfo.FullPath),
				zap.Int64("bytes", n),
				zap.Error(err))
			return
		}

		metrics.FileOperationsTotal.WithLabelValues("http_download").Inc()
		logger.Info("File downloaded",
			log.Path("path", pathInfo.FullPath),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Int64("size", log.SanitizeSize(n)))
	}
}

// V1HeadFile handles HEAD /v1/files/{path}: file metadata in headers, or
// directory existence for a trailing slash.
func V1HeadFile(engine *core.Engine, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathInfo := ParseFilePath(chi.URLParam(r, "*"))
		if pathInfo.IsInvalid {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if !authorize(w, r, authorizer, pathInfo.FullPath, auth.ReadPerm, logger) {
			return
		}

		ctx, cancel := fileContext(r, cfg)
		defer cancel()

		if pathInfo.IsDirectory {
			exists, err := engine.DirectoryExists(ctx, pathInfo.FullPath)
			if err != nil {
				status, _ := errorStatus(err, http.StatusInternalServerError)
				w.WriteHeader(status)
				return
			}
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set(TypeHeader, "directory")
			w.WriteHeader(http.StatusOK)
			return
		}

		entry, err := engine.Stat(ctx, pathInfo.FullPath)
		if err != nil {
			status, _ := errorStatus(err, http.StatusInternalServerError)
			w.WriteHeader(status)
			return
		}

		setFileHeaders(w, entry.Size, entry.LastModified, string(entry.Version))
		w.WriteHeader(http.StatusOK)
	}
}

func setFileHeaders(w http.ResponseWriter, size int64, modified time.Time, etag string) {
	h := w.Header()
	h.Set(TypeHeader, "file")
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	if etag != "" {
		h.Set("ETag", etag)
	}
	if !modified.IsZero() {
		h.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
}
