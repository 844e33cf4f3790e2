// Package server wires the bucketfs HTTP API.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/links"
	"github.com/ebogdum/bucketfs/metrics"
	"github.com/ebogdum/bucketfs/server/handlers"
	authMiddleware "github.com/ebogdum/bucketfs/server/middleware"
)

// NewRouter creates and configures the HTTP router. /metrics is mounted only
// when serveMetrics is set; otherwise metrics are expected on their own
// listener. Download links are served only with a non-nil linkManager.
func NewRouter(
	engine *core.Engine,
	authenticator auth.Authenticator,
	authorizer auth.Authorizer,
	linkManager *links.LinkManager,
	serverConfig *config.ServerConfig,
	serveMetrics bool,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware.V1SecurityHeaders())
	r.Use(requestMetrics(logger))

	// Health check endpoint (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": engine.Account().BackendType(),
		})
	})

	if serveMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	var limiter *authMiddleware.ClientLimiter
	if serverConfig.RateLimit > 0 {
		limiter = authMiddleware.NewClientLimiter(serverConfig.RateLimit, serverConfig.RateBurst)
	}

	if linkManager != nil {
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(authMiddleware.V1RateLimitMiddleware(limiter, logger))
			}
			r.Get("/download/{token}", handlers.V1DownloadLink(engine, linkManager, serverConfig, logger))
		})
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))
		if limiter != nil {
			r.Use(authMiddleware.V1RateLimitMiddleware(limiter, logger))
		}

		r.Route("/files", func(r chi.Router) {
			r.Get("/*", handlers.V1GetFile(engine, authorizer, serverConfig, logger))
			r.Head("/*", handlers.V1HeadFile(engine, authorizer, serverConfig, logger))
			r.Put("/*", handlers.V1PutFile(engine, authorizer, serverConfig, logger))
			r.Delete("/*", handlers.V1DeleteFile(engine, authorizer, serverConfig, logger))
		})

		r.Get("/ws/files/*", handlers.V1WebSocketTransfer(engine, authorizer, logger))

		if linkManager != nil {
			r.Post("/links", handlers.V1GenerateLink(engine, linkManager, authorizer, serverConfig, logger))
		}
	})

	logger.Info("HTTP router configured successfully",
		zap.String("backend", engine.Account().BackendType()),
		zap.Bool("metrics", serveMetrics),
		zap.Bool("links", linkManager != nil))

	return r
}

// requestMetrics records request counts and durations per route pattern and
// logs every request.
func requestMetrics(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("request_id", authMiddleware.GetRequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
