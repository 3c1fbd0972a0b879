package submission

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/originality/artifact"
	"github.com/hazyhaar/originality/scoring"
	"github.com/hazyhaar/originality/shield"
)

// Config holds the full originality service configuration.
type Config struct {
	Listen        string          `yaml:"listen"`
	DataDir       string          `yaml:"data_dir"`
	LogLevel      string          `yaml:"log_level"`
	MaxUploadMB   int             `yaml:"max_upload_mb"`
	BatchParallel int             `yaml:"batch_parallel"`
	Storage       artifact.Config `yaml:"storage"`
	Scoring       scoring.Config  `yaml:"scoring"`
	Redis         RedisConfig     `yaml:"redis"`
	Kafka         KafkaConfig     `yaml:"kafka"`
	// TrustedProxies are the reverse proxies (CIDRs or addresses) whose
	// X-Forwarded-For header the rate limiter believes.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// RedisConfig enables the shared score cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig enables outcome publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8090",
		DataDir:       "data",
		LogLevel:      "info",
		MaxUploadMB:   50,
		BatchParallel: 4,
		Storage: artifact.Config{
			Backend: "fs",
			BaseDir: "uploads",
		},
		Scoring: scoring.Config{
			Provider: "mock",
			Timeout:  30 * time.Second,
		},
		Redis: RedisConfig{TTL: 24 * time.Hour},
		Kafka: KafkaConfig{Topic: "originality.submissions"},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables. Unset or empty
// variables leave the current value alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Scoring.Provider, "PLAGIARISM_API_PROVIDER")
	set(&c.Scoring.APIKey, "PLAGIARISM_API_KEY")
	set(&c.Scoring.Email, "COPYLEAKS_EMAIL")
	set(&c.Scoring.BaseURL, "PLAGIARISM_API_URL")
	set(&c.Scoring.PublicBaseURL, "PUBLIC_BASE_URL", "NEXT_PUBLIC_BASE_URL")
	set(&c.Storage.BaseDir, "UPLOAD_DIR")
	set(&c.Storage.Backend, "STORAGE_BACKEND")
	set(&c.Storage.S3.Bucket, "S3_BUCKET")
	set(&c.Storage.S3.Prefix, "S3_PREFIX")
	set(&c.Storage.S3.Region, "S3_REGION")
	set(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Kafka.Topic, "KAFKA_TOPIC")
	set(&c.DataDir, "DATA_DIR")
	set(&c.Listen, "LISTEN")
	set(&c.LogLevel, "LOG_LEVEL")

	if v := strings.TrimSpace(getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := strings.TrimSpace(getenv("TRUSTED_PROXIES")); v != "" {
		c.TrustedProxies = splitList(v)
	}

	if v := strings.TrimSpace(getenv("PLAGIARISM_TIMEOUT")); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("PLAGIARISM_TIMEOUT: %w", err)
		}
		c.Scoring.Timeout = d
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseTimeout accepts a Go duration ("45s") or a bare number of
// milliseconds ("30000").
func parseTimeout(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("must be > 0, got %d", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0, got %s", d)
	}
	return d, nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.BatchParallel <= 0 {
		return fmt.Errorf("batch_parallel must be > 0")
	}
	switch c.Storage.Backend {
	case "fs", "":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q (use fs or s3)", c.Storage.Backend)
	}
	if c.Scoring.Timeout < 0 {
		return fmt.Errorf("scoring.timeout must be >= 0")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	if _, err := shield.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return nil
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// DBPath is the SQLite file holding metrics, events and pending scans.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "originality.db") }
