package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/links"
	"github.com/ebogdum/bucketfs/metrics"
)

// GenerateLinkRequest is the body of POST /v1/links
type GenerateLinkRequest struct {
	Path          string `json:"path"`
	ExpirySeconds int64  `json:"expiry_seconds,omitempty"`
}

// GenerateLinkResponse describes a newly issued download link
type GenerateLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	Path      string    `json:"path"`
	ETag      string    `json:"etag"`
	ExpiresAt time.Time `json:"expires_at"`
}

// V1GenerateLink handles POST /v1/links. The link is pinned to the file's
// current version.
func V1GenerateLink(engine *core.Engine, linkManager *links.LinkManager, authorizer auth.Authorizer, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateLinkRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
			SendErrorResponse(w, logger, &customError{message: "invalid request body"}, http.StatusBadRequest)
			return
		}

		pathInfo := ParseFilePath(strings.TrimPrefix(req.Path, "/"))
		if pathInfo.IsInvalid || pathInfo.IsDirectory {
			SendErrorResponse(w, logger, &customError{message: "path must name a file"}, http.StatusBadRequest)
			return
		}

		if !authorize(w, r, authorizer, pathInfo.FullPath, auth.ReadPerm, logger) {
			return
		}

		ctx, cancel := fileContext(r, cfg)
		defer cancel()

		entry, err := engine.Stat(ctx, pathInfo.FullPath)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		token, link, err := linkManager.GenerateLink(pathInfo.FullPath, entry.Version, time.Duration(req.ExpirySeconds)*time.Second)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, http.StatusCreated, GenerateLinkResponse{
			URL:       downloadURL(r, cfg, token),
			Token:     token,
			Path:      link.Path,
			ETag:      string(link.Version),
			ExpiresAt: link.Expires(),
		})
	}
}

// V1DownloadLink handles GET /download/{token}. The token is the only
// credential; the file is served only while it still has the version the
// link was issued for.
func V1DownloadLink(engine *core.Engine, linkManager *links.LinkManager, cfg *config.ServerConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := linkManager.ValidateLink(chi.URLParam(r, "token"))
		if err != nil {
			status, code := http.StatusNotFound, "LINK_INVALID"
			if errors.Is(err, links.ErrLinkExpired) {
				status, code = http.StatusGone, "LINK_EXPIRED"
			}
			sendLinkError(w, status, code, err.Error())
			return
		}

		ctx, cancel := fileContext(r, cfg)
		defer cancel()

		h, err := engine.ReadIfMatch(ctx, link.Path, link.Version)
		if err != nil {
			if errors.Is(err, core.ErrPreconditionFailed) || errors.Is(err, core.ErrObjectNotFound) {
				sendLinkError(w, http.StatusGone, "LINK_STALE", "the linked file has changed")
				return
			}
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		defer h.Close()

		setFileHeaders(w, h.Size(), h.LastModified(), string(h.Version()))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", engine.GetFileName(link.Path)))
		w.WriteHeader(http.StatusOK)

		buf := make([]byte, engine.BufferSize())
		if n, err := io.CopyBuffer(struct{ io.Writer }{w}, h, buf); err != nil {
			logger.Warn("Failed to stream linked file",
				log.Path("path", link.Path),
				zap.Int64("bytes", n),
				zap.Error(err))
			return
		}

		metrics.FileOperationsTotal.WithLabelValues("link_download").Inc()
	}
}

func sendLinkError(w http.ResponseWriter, status int, code, message string) {
	SendJSONResponse(w, status, ErrorResponse{Code: code, Message: message})
}

// downloadURL builds the public URL for token, preferring the configured
// external URL over the request's own host.
func downloadURL(r *http.Request, cfg *config.ServerConfig, token string) string {
	if cfg != nil && cfg.ExternalURL != "" {
		return strings.TrimRight(cfg.ExternalURL, "/") + "/download/" + token
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/download/%s", scheme, r.Host, token)
}
