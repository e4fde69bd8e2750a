package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
addr: ":8080"
job_ttl: 30m
redis:
  addr: "localhost:6379"
nats:
  url: "nats://localhost:4222"
  subject: "book.jobs"
input_bucket:
  endpoint: "localhost:9000"
  bucket: "mybook-input"
output_bucket:
  endpoint: "localhost:9000"
  bucket: "mybook-output"
extractor:
  base_url: "http://localhost:9998"
generator:
  base_url: "http://localhost:8000"
  model: "llama"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("job_ttl = %s", cfg.JobTTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis.addr = %q", cfg.Redis.Addr)
	}
	if cfg.NATS.Subject != "book.jobs" {
		t.Errorf("nats.subject = %q", cfg.NATS.Subject)
	}
	if cfg.InputBucket.Bucket != "mybook-input" || cfg.OutputBucket.Bucket != "mybook-output" {
		t.Errorf("buckets = %q / %q", cfg.InputBucket.Bucket, cfg.OutputBucket.Bucket)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown_timeout = %s", cfg.ShutdownTimeout)
	}
	if cfg.MaxUploadMb != 50 {
		t.Errorf("max_upload_mb = %d", cfg.MaxUploadMb)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("pool_size = %d", cfg.PoolSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("cleanup_interval = %s", cfg.CleanupInterval)
	}
	if cfg.Generator.MaxTokens != 2000 {
		t.Errorf("generator.max_tokens = %d", cfg.Generator.MaxTokens)
	}
	if cfg.Generator.Timeout != 2*time.Minute {
		t.Errorf("generator.timeout = %s", cfg.Generator.Timeout)
	}
	if cfg.Extractor.Timeout != 30*time.Second {
		t.Errorf("extractor.timeout = %s", cfg.Extractor.Timeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	cases := []struct {
		name   string
		remove string
		want   string
	}{
		{"no addr", `addr: ":8080"`, "addr is empty"},
		{"no redis addr", `  addr: "localhost:6379"`, "redis.addr is empty"},
		{"no subject", `  subject: "book.jobs"`, "nats.subject is empty"},
		{"no job ttl", `job_ttl: 30m`, "job_ttl must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broken := strings.Replace(validYAML, tc.remove, "", 1)
			_, err := Load(writeConfig(t, broken))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoad_FileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "addr: [")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
