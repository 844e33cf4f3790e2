package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override config values.
// BUCKETFS_STORE_KEY_PREFIX maps to store.key_prefix.
const EnvPrefix = "BUCKETFS_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration the same way as LoadConfig but reads
// the given file instead of searching the working directory.
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := loadFile(k, configFilePath); err != nil {
			return AppConfig{}, err
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := loadFile(k, configFile); err != nil {
					return AppConfig{}, err
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		parser = yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps BUCKETFS_SECTION_FIELD_NAME to section.field_name. Only the
// first underscore separates the section so field names keep theirs.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks that the configuration is complete and consistent
func Validate(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	switch cfg.Server.Protocol {
	case "http":
	case "https":
		if cfg.Server.CertFile == "" || cfg.Server.KeyFile == "" {
			return fmt.Errorf("server.cert_file and server.key_file are required for https")
		}
	default:
		return fmt.Errorf("server.protocol must be http or https, got %q", cfg.Server.Protocol)
	}

	if cfg.Server.EnableQUIC && cfg.Server.Protocol != "https" {
		return fmt.Errorf("server.enable_quic requires server.protocol https")
	}

	if cfg.Auth.LinkSecret != "" && cfg.Auth.MaxLinkExpiry <= 0 {
		return fmt.Errorf("auth.max_link_expiry must be positive when auth.link_secret is set")
	}

	switch cfg.Store.Type {
	case "s3":
		if cfg.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for the s3 backend")
		}
		if cfg.Store.ServerSideEncryption == "aws:kms" && cfg.Store.KMSKeyID == "" {
			return fmt.Errorf("store.kms_key_id is required when store.server_side_encryption is aws:kms")
		}
	case "localfs":
		if cfg.Store.LocalFSRootPath == "" {
			return fmt.Errorf("store.localfs_root_path is required for the localfs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("store.type must be s3, localfs or memory, got %q", cfg.Store.Type)
	}

	if cfg.Store.KeyPrefix != "" && !strings.HasSuffix(cfg.Store.KeyPrefix, "/") {
		return fmt.Errorf("store.key_prefix must end with /")
	}

	if cfg.Transfer.PartSize < MinPartSize || cfg.Transfer.PartSize > MaxPartSize {
		return fmt.Errorf("transfer.part_size must be between %d and %d bytes", MinPartSize, MaxPartSize)
	}
	if cfg.Transfer.Concurrency < 1 {
		return fmt.Errorf("transfer.concurrency must be at least 1")
	}
	if cfg.Transfer.BufferSize < 1 {
		return fmt.Errorf("transfer.buffer_size must be positive")
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if cfg.Retry.InitialBackoff <= 0 || cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		return fmt.Errorf("retry.initial_backoff must be positive and not exceed retry.max_backoff")
	}
	if cfg.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}

	switch cfg.DLM.Type {
	case "local":
	case "redis":
		if cfg.DLM.RedisAddr == "" {
			return fmt.Errorf("dlm.redis_addr is required for the redis lock manager")
		}
		if cfg.DLM.TTL < time.Second {
			return fmt.Errorf("dlm.ttl must be at least 1s")
		}
	default:
		return fmt.Errorf("dlm.type must be local or redis, got %q", cfg.DLM.Type)
	}

	return nil
}
