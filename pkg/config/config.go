// Package config loads runtime configuration from a YAML file with
// environment-variable overrides for the values that differ per
// deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radiant-labs/uep/pkg/artifacts"
)

// Config is the full runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Codec     CodecConfig     `yaml:"codec"`
	Stream    StreamConfig    `yaml:"stream"`
	Routing   RoutingConfig   `yaml:"routing"`
	Security  SecurityConfig  `yaml:"security"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CodecConfig controls payload encoding policy.
type CodecConfig struct {
	InlineMaxBytes int64  `yaml:"inline_max_bytes"`
	HashAlgorithm  string `yaml:"hash_algorithm"`
}

// StreamConfig controls the chunked-stream state machine.
type StreamConfig struct {
	Store              string        `yaml:"store"` // "memory" | "sqlite" | "redis"
	SQLitePath         string        `yaml:"sqlite_path"`
	RedisAddr          string        `yaml:"redis_addr"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ResumeTokenTTL     time.Duration `yaml:"resume_token_ttl"`
	ResumeSecret       string        `yaml:"resume_secret"`
	ChunkRatePerSecond float64       `yaml:"chunk_rate_per_second"`
	ChunkBurst         int           `yaml:"chunk_burst"`
}

// RoutingSubsystem declares one subsystem prefix and where its targets
// live.
type RoutingSubsystem struct {
	Prefix  string `yaml:"prefix"`
	Backend string `yaml:"backend"` // "memory" | "postgres"
}

// RoutingConfig controls the destination registry.
type RoutingConfig struct {
	PostgresDSN string             `yaml:"postgres_dsn"`
	Subsystems  []RoutingSubsystem `yaml:"subsystems"`
}

// SecurityConfig controls signing and encryption.
type SecurityConfig struct {
	KeystorePath      string `yaml:"keystore_path"`
	DefaultEncryption string `yaml:"default_encryption"` // "aes-256-gcm" | "chacha20-poly1305"
}

// ArtifactsConfig controls artifact storage.
type ArtifactsConfig struct {
	Backend string `yaml:"backend"` // "fs" | "s3" | "gcs"
	DataDir string `yaml:"data_dir"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`

	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
}

// Factory converts the section into the artifact store factory config.
func (c ArtifactsConfig) Factory() artifacts.FactoryConfig {
	return artifacts.FactoryConfig{
		Backend: artifacts.Backend(c.Backend),
		DataDir: c.DataDir,
		S3: artifacts.S3StoreConfig{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.S3Prefix,
		},
		GCS: artifacts.GCSStoreConfig{
			Bucket: c.GCSBucket,
			Prefix: c.GCSPrefix,
		},
	}
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	ServiceName  string `yaml:"service_name"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Codec: CodecConfig{
			InlineMaxBytes: 1 << 20,
			HashAlgorithm:  "sha-256",
		},
		Stream: StreamConfig{
			Store:          "memory",
			IdleTimeout:    10 * time.Minute,
			ResumeTokenTTL: 24 * time.Hour,
			ChunkBurst:     32,
		},
		Security: SecurityConfig{
			KeystorePath:      "data/keys.json",
			DefaultEncryption: "aes-256-gcm",
		},
		Artifacts: ArtifactsConfig{
			Backend: "fs",
			DataDir: "data/artifacts",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "uep",
			SampleRate: 1,
		},
	}
}

// Load reads configuration from path (or from $UEP_CONFIG when path is
// empty), layers environment overrides on top, and validates the
// result. A missing file yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("UEP_CONFIG")
	}
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("UEP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("UEP_RESUME_SECRET"); v != "" {
		cfg.Stream.ResumeSecret = v
	}
	if v := os.Getenv("UEP_REDIS_ADDR"); v != "" {
		cfg.Stream.RedisAddr = v
	}
	if v := os.Getenv("UEP_POSTGRES_DSN"); v != "" {
		cfg.Routing.PostgresDSN = v
	}
	if v := os.Getenv("UEP_KEYSTORE_PATH"); v != "" {
		cfg.Security.KeystorePath = v
	}
	if v := os.Getenv("UEP_ARTIFACTS_BACKEND"); v != "" {
		cfg.Artifacts.Backend = v
	}
	if v := os.Getenv("UEP_INLINE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Codec.InlineMaxBytes = n
		}
	}
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Stream.Store {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown stream store %q", c.Stream.Store)
	}
	if c.Stream.Store == "sqlite" && c.Stream.SQLitePath == "" {
		return fmt.Errorf("config: stream store sqlite requires sqlite_path")
	}
	if c.Stream.Store == "redis" && c.Stream.RedisAddr == "" {
		return fmt.Errorf("config: stream store redis requires redis_addr")
	}
	for _, sub := range c.Routing.Subsystems {
		if sub.Prefix == "" {
			return fmt.Errorf("config: routing subsystem without prefix")
		}
		if sub.Backend == "postgres" && c.Routing.PostgresDSN == "" {
			return fmt.Errorf("config: subsystem %q needs postgres_dsn", sub.Prefix)
		}
	}
	if c.Codec.InlineMaxBytes <= 0 {
		return fmt.Errorf("config: inline_max_bytes must be positive")
	}
	return nil
}
