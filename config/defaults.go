package config

import "time"

// Transfer limits imposed by S3 multipart uploads.
const (
	MinPartSize = 5 * 1024 * 1024
	MaxPartSize = 5 * 1024 * 1024 * 1024
)

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:     ":8443",
			Protocol:       "https",
			CertFile:       "server.crt",
			KeyFile:        "server.key",
			EnableQUIC:     false,
			QUICListenAddr: ":8443",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   0, // Streaming transfers are bounded by file_op_timeout instead
			FileOpTimeout:  10 * time.Minute,
			RateLimit:      100,
			RateBurst:      200,
		},
		Auth: AuthConfig{
			APIKeys:         []string{},
			ReadOnlyAPIKeys: []string{},
			MaxLinkExpiry:   24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Mode:   "production",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		Store: StoreConfig{
			Type:                 "localfs",
			Region:               "us-east-1",
			ServerSideEncryption: "",
			ACL:                  "",
			LocalFSRootPath:      "/var/lib/bucketfs",
			DefaultDirectory:     "/",
			CaseInsensitive:      false,
		},
		Transfer: TransferConfig{
			PartSize:    8 * 1024 * 1024,
			Concurrency: 4,
			BufferSize:  64 * 1024,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
		DLM: DLMConfig{
			Type:      "local",
			RedisAddr: "localhost:6379",
			KeyPrefix: "bucketfs:lock:",
			TTL:       30 * time.Second,
		},
	}
}
