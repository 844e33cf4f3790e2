package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go/http3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/links"
	"github.com/ebogdum/bucketfs/server"
)

var rootCmd = &cobra.Command{
	Use:   "bucketfs",
	Short: "bucketfs - a hierarchical filesystem over object storage",
	Long: `bucketfs presents a flat object store (S3, a local directory, or memory)
as a filesystem with directories, streaming transfers and version-checked writes.`,
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the bucketfs server",
	Long:  "Start the bucketfs HTTP API over the configured object store",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the bucketfs configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd)
	addClientCommands(rootCmd)

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServer starts the bucketfs server
func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		// Sync fails on some terminals; there is nowhere left to report it
		_ = logger.Sync()
	}()

	logger.Info("Starting bucketfs server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("store", cfg.Store.Type))

	engine, account, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer account.Close()

	if len(cfg.Auth.APIKeys)+len(cfg.Auth.ReadOnlyAPIKeys) == 0 {
		logger.Warn("No API keys configured; every /v1 request will be rejected")
	}
	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys, cfg.Auth.ReadOnlyAPIKeys)
	authorizer := auth.NewScopeAuthorizer(cfg.Auth.ReadOnlyAPIKeys)

	var linkManager *links.LinkManager
	if cfg.Auth.LinkSecret != "" {
		linkManager, err = links.NewLinkManager(cfg.Auth.LinkSecret, cfg.Auth.MaxLinkExpiry, logger)
		if err != nil {
			return fmt.Errorf("failed to create link manager: %w", err)
		}
	}

	separateMetrics := cfg.Metrics.ListenAddr != "" && cfg.Metrics.ListenAddr != cfg.Server.ListenAddr
	router := server.NewRouter(engine, authenticator, authorizer, linkManager, &cfg.Server, !separateMetrics, logger)

	var h3 *http3.Server
	var handler http.Handler = router
	if cfg.Server.EnableQUIC {
		h3 = &http3.Server{
			Addr:    cfg.Server.QUICListenAddr,
			Handler: router,
		}
		// Advertise HTTP/3 on every TCP response
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h3.SetQUICHeaders(w.Header()); err != nil {
				logger.Debug("Failed to set Alt-Svc header", zap.Error(err))
			}
			router.ServeHTTP(w, r)
		})
	}

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 3)

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("protocol", cfg.Server.Protocol))
		var err error
		if cfg.Server.Protocol == "https" {
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if h3 != nil {
		go func() {
			logger.Info("Starting HTTP/3 server", zap.String("addr", cfg.Server.QUICListenAddr))
			if err := h3.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http3 server: %w", err)
			}
		}()
	}

	var metricsSrv *http.Server
	if separateMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case runErr = <-errCh:
		logger.Error("Server failed", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	if h3 != nil {
		if err := h3.Close(); err != nil {
			logger.Warn("Failed to close HTTP/3 server", zap.Error(err))
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down metrics server", zap.Error(err))
		}
	}

	if runErr == nil {
		logger.Info("Server exited gracefully")
	}
	return runErr
}

// validateConfig validates the bucketfs configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "Listen Address: %s (%s)\n", cfg.Server.ListenAddr, cfg.Server.Protocol)
	if cfg.Server.EnableQUIC {
		fmt.Fprintf(out, "HTTP/3 Address: %s\n", cfg.Server.QUICListenAddr)
	}
	fmt.Fprintf(out, "Store: %s\n", cfg.Store.Type)
	switch cfg.Store.Type {
	case "s3":
		fmt.Fprintf(out, "S3 Bucket: %s\n", cfg.Store.Bucket)
		fmt.Fprintf(out, "S3 Region: %s\n", cfg.Store.Region)
		if cfg.Store.Endpoint != "" {
			fmt.Fprintf(out, "S3 Endpoint: %s\n", cfg.Store.Endpoint)
		}
		if cfg.Store.AccessKey != "" {
			fmt.Fprintf(out, "S3 Access Key: %s\n", maskSecret(cfg.Store.AccessKey))
		}
	case "localfs":
		fmt.Fprintf(out, "Local FS Root: %s\n", cfg.Store.LocalFSRootPath)
		fmt.Fprintf(out, "Lock Manager: %s\n", cfg.DLM.Type)
		if cfg.DLM.Type == "redis" {
			fmt.Fprintf(out, "Redis Address: %s\n", cfg.DLM.RedisAddr)
		}
	}
	if cfg.Store.KeyPrefix != "" {
		fmt.Fprintf(out, "Key Prefix: %s\n", cfg.Store.KeyPrefix)
	}
	fmt.Fprintf(out, "Case Sensitive: %t\n", !cfg.Store.CaseInsensitive)
	fmt.Fprintf(out, "API Keys: %d (%d read-only)\n",
		len(cfg.Auth.APIKeys)+len(cfg.Auth.ReadOnlyAPIKeys), len(cfg.Auth.ReadOnlyAPIKeys))
	if cfg.Auth.LinkSecret != "" {
		fmt.Fprintf(out, "Download Links: enabled (max expiry %s)\n", cfg.Auth.MaxLinkExpiry)
	} else {
		fmt.Fprintln(out, "Download Links: disabled")
	}

	return nil
}

// maskSecret keeps only the first and last characters of a credential
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-2:]
}
