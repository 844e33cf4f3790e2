package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/backends/localfs"
	"github.com/ebogdum/bucketfs/backends/memory"
	"github.com/ebogdum/bucketfs/backends/s3"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/locks"
)

// initializeLogger creates a zap logger and applies the path redaction mode
func initializeLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	mode, err := log.ParseMode(logCfg.Mode)
	if err != nil {
		return nil, err
	}
	log.SetMode(mode)

	return log.New(logCfg.Level, logCfg.Format)
}

// openStore builds the configured backend. The returned namespace names the
// store for logs and the health endpoint.
func openStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (backends.ObjectStore, string, error) {
	switch cfg.Store.Type {
	case "s3":
		logger.Info("Initializing S3 backend",
			zap.String("bucket", cfg.Store.Bucket),
			zap.String("region", cfg.Store.Region))
		store, err := s3.NewS3Adapter(ctx, cfg.Store, cfg.Transfer, logger)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		return store, "s3://" + cfg.Store.Bucket + "/" + cfg.Store.KeyPrefix, nil

	case "localfs":
		lockManager, err := openLockManager(ctx, cfg.DLM, logger)
		if err != nil {
			return nil, "", err
		}
		logger.Info("Initializing LocalFS backend", zap.String("root_path", cfg.Store.LocalFSRootPath))
		store, err := localfs.NewLocalFSAdapter(cfg.Store.LocalFSRootPath, lockManager, logger)
		if err != nil {
			lockManager.Close()
			return nil, "", fmt.Errorf("failed to initialize LocalFS backend: %w", err)
		}
		return store, "file://" + cfg.Store.LocalFSRootPath, nil

	case "memory":
		logger.Warn("Using the in-memory backend; data is lost on exit")
		return memory.NewMemoryAdapter(logger), "memory://", nil
	}
	return nil, "", fmt.Errorf("unknown store type %q", cfg.Store.Type)
}

// openLockManager returns the manager serializing localfs version checks.
// Redis is needed when several processes share one root.
func openLockManager(ctx context.Context, cfg config.DLMConfig, logger *zap.Logger) (locks.Manager, error) {
	if cfg.Type != "redis" {
		return locks.NewLocalManager(), nil
	}

	logger.Info("Initializing distributed lock manager", zap.String("redis_addr", cfg.RedisAddr))
	manager, err := locks.NewRedisManager(ctx, locks.RedisOptions{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       cfg.TTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock manager: %w", err)
	}
	return manager, nil
}

// openEngine wires store, account and engine from configuration. Closing
// the account releases the backend.
func openEngine(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*core.Engine, *core.StoreAccount, error) {
	store, namespace, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	name := cfg.Store.Bucket
	if name == "" {
		name = cfg.Store.Type
	}
	account := core.NewStoreAccount(name, cfg.Store.Type, namespace, store)
	engine, err := core.NewEngine(account, engineOptions(cfg), logger)
	if err != nil {
		account.Close()
		return nil, nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	return engine, account, nil
}

func engineOptions(cfg config.AppConfig) core.Options {
	return core.Options{
		DefaultDirectory: cfg.Store.DefaultDirectory,
		CaseInsensitive:  cfg.Store.CaseInsensitive,
		Retry: core.RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Multiplier:     cfg.Retry.Multiplier,
		},
		PartSize:   cfg.Transfer.PartSize,
		BufferSize: cfg.Transfer.BufferSize,
	}
}
