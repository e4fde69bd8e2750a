package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MaxUploadMb int64 `yaml:"max_upload_mb"`

	PoolSize int `yaml:"pool_size"`

	JobTTL          time.Duration `yaml:"job_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	Redis        Redis   `yaml:"redis"`
	InputBucket  MinIO   `yaml:"input_bucket"`
	OutputBucket MinIO   `yaml:"output_bucket"`
	NATS         NATS    `yaml:"nats"`
	Extractor    Service `yaml:"extractor"`
	Generator    GenAI   `yaml:"generator"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
}

type NATS struct {
	URL           string `yaml:"url"`
	QueueName     string `yaml:"queue_name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Subject       string `yaml:"subject"`
}

// Service points at an external HTTP collaborator.
type Service struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type GenAI struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal yaml: %w", err)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("config: addr is empty")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("config: redis.addr is empty")
	}
	if cfg.NATS.Subject == "" {
		return nil, fmt.Errorf("config: nats.subject is empty")
	}
	if cfg.InputBucket.Bucket == "" {
		return nil, fmt.Errorf("config: input_bucket.bucket is empty")
	}
	if cfg.OutputBucket.Bucket == "" {
		return nil, fmt.Errorf("config: output_bucket.bucket is empty")
	}
	if cfg.JobTTL <= 0 {
		return nil, fmt.Errorf("config: job_ttl must be positive, got %s", cfg.JobTTL)
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadMb <= 0 {
		cfg.MaxUploadMb = 50
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Extractor.Timeout <= 0 {
		cfg.Extractor.Timeout = 30 * time.Second
	}
	if cfg.Generator.Timeout <= 0 {
		cfg.Generator.Timeout = 2 * time.Minute
	}
	if cfg.Generator.MaxTokens <= 0 {
		cfg.Generator.MaxTokens = 2000
	}

	return &cfg, nil
}

// MustLoad reads the config at path, or at $CONFIG_PATH when set,
// and exits on any problem.
func MustLoad(path string) *Config {
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		path = env
	}

	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}

	return cfg
}
