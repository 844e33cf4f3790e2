// Package config provides configuration management for bucketfs.
// It handles loading and validating configuration from YAML or JSON files and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Store    StoreConfig    `koanf:"store"`
	Transfer TransferConfig `koanf:"transfer"`
	Retry    RetryConfig    `koanf:"retry"`
	DLM      DLMConfig      `koanf:"dlm"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string        `koanf:"listen_addr"`
	Protocol       string        `koanf:"protocol"` // "http" or "https"
	CertFile       string        `koanf:"cert_file"`
	KeyFile        string        `koanf:"key_file"`
	EnableQUIC     bool          `koanf:"enable_quic"` // Serve HTTP/3 next to HTTPS
	QUICListenAddr string        `koanf:"quic_listen_addr"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	FileOpTimeout  time.Duration `koanf:"file_op_timeout"`
	RateLimit      float64       `koanf:"rate_limit"` // Requests per second per client, 0 disables
	RateBurst      int           `koanf:"rate_burst"`
	ExternalURL    string        `koanf:"external_url"` // Base URL used in generated download links
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys         []string      `koanf:"api_keys"`
	ReadOnlyAPIKeys []string      `koanf:"read_only_api_keys"` // Keys limited to GET and HEAD
	LinkSecret      string        `koanf:"link_secret"`        // Enables download links when set
	MaxLinkExpiry   time.Duration `koanf:"max_link_expiry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Mode   string `koanf:"mode"`   // Path redaction: "production", "development" or "debug"
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// StoreConfig selects and configures the object storage backend
type StoreConfig struct {
	Type                 string `koanf:"type"` // "s3", "localfs" or "memory"
	Bucket               string `koanf:"bucket"`
	Region               string `koanf:"region"`
	Endpoint             string `koanf:"endpoint"` // Custom S3 endpoint (e.g., for MinIO)
	AccessKey            string `koanf:"access_key"`
	SecretKey            string `koanf:"secret_key"`
	DisableSSL           bool   `koanf:"disable_ssl"`
	KeyPrefix            string `koanf:"key_prefix"`             // Namespace inside the bucket
	ServerSideEncryption string `koanf:"server_side_encryption"` // SSE algorithm (AES256, aws:kms)
	ACL                  string `koanf:"acl"`                    // Object ACL (private, public-read, etc.)
	KMSKeyID             string `koanf:"kms_key_id"`             // KMS key ID for SSE-KMS
	LocalFSRootPath      string `koanf:"localfs_root_path"`
	DefaultDirectory     string `koanf:"default_directory"`
	CaseInsensitive      bool   `koanf:"case_insensitive"` // Fold keys to lower case
}

// TransferConfig tunes streaming uploads and downloads
type TransferConfig struct {
	PartSize    int64 `koanf:"part_size"`
	Concurrency int   `koanf:"concurrency"`
	BufferSize  int   `koanf:"buffer_size"`
}

// RetryConfig controls retries of single-object backend calls
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	Multiplier     float64       `koanf:"multiplier"`
}

// DLMConfig holds distributed lock manager configuration
type DLMConfig struct {
	Type          string        `koanf:"type"` // "local" or "redis"
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	TTL           time.Duration `koanf:"ttl"`
}
