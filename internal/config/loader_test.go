package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalConfig = `
kafka:
  bootstrap_servers:
    - localhost:9092
  topics:
    - events
  group_id: block-store
coordinator:
  endpoint: http://localhost:8085
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Application.Name != "kafka-block-store" {
		t.Errorf("application name = %q, want kafka-block-store", cfg.Application.Name)
	}
	if cfg.Block.IntervalMS != 200 {
		t.Errorf("block interval = %d, want 200", cfg.Block.IntervalMS)
	}
	if cfg.Block.QueueCapacity != 10 {
		t.Errorf("queue capacity = %d, want 10", cfg.Block.QueueCapacity)
	}
	if cfg.Block.RateLimit != 0 {
		t.Errorf("rate limit = %v, want 0", cfg.Block.RateLimit)
	}
	if cfg.Receiver.Host == "" {
		t.Error("receiver host default is empty, want hostname")
	}
	if cfg.Kafka.SecurityProtocol != "PLAINTEXT" {
		t.Errorf("security protocol = %q, want PLAINTEXT", cfg.Kafka.SecurityProtocol)
	}
	if cfg.Kafka.AutoOffsetReset != "earliest" {
		t.Errorf("auto offset reset = %q, want earliest", cfg.Kafka.AutoOffsetReset)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("storage backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Storage.Format != "parquet" {
		t.Errorf("storage format = %q, want parquet", cfg.Storage.Format)
	}
	if cfg.Storage.File.BasePath != "./data/blocks" {
		t.Errorf("file base path = %q, want ./data/blocks", cfg.Storage.File.BasePath)
	}
	if cfg.Coordinator.TimeoutMS != 10000 {
		t.Errorf("coordinator timeout = %d, want 10000", cfg.Coordinator.TimeoutMS)
	}
	if cfg.Observability.Metrics.Port != 9090 {
		t.Errorf("metrics port = %d, want 9090", cfg.Observability.Metrics.Port)
	}
	if cfg.Observability.Health.Port != 8080 {
		t.Errorf("health port = %d, want 8080", cfg.Observability.Health.Port)
	}
	if !cfg.Observability.Control.Enabled || cfg.Observability.Control.Port != 8081 {
		t.Errorf("control = %+v, want enabled on 8081", cfg.Observability.Control)
	}
	if cfg.Shutdown.GracePeriodSeconds != 30 {
		t.Errorf("grace period = %d, want 30", cfg.Shutdown.GracePeriodSeconds)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := minimalConfig + `
receiver:
  stream_id: 4
  host: node-4
block:
  interval_ms: 500
  queue_capacity: 32
  rate_limit: 1000
storage:
  backend: memory
  format: avro
  compression: gzip
`
	loader := NewLoader()
	cfg, err := loader.Load(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Receiver.StreamID != 4 {
		t.Errorf("stream id = %d, want 4", cfg.Receiver.StreamID)
	}
	if cfg.Receiver.Host != "node-4" {
		t.Errorf("host = %q, want node-4", cfg.Receiver.Host)
	}
	if cfg.Block.IntervalMS != 500 {
		t.Errorf("interval = %d, want 500", cfg.Block.IntervalMS)
	}
	if cfg.Block.RateLimit != 1000 {
		t.Errorf("rate limit = %v, want 1000", cfg.Block.RateLimit)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Storage.Format != "avro" {
		t.Errorf("format = %q, want avro", cfg.Storage.Format)
	}
}

func TestLoadExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("TEST_COORD_ENDPOINT", "http://coordinator:8085")
	content := strings.Replace(minimalConfig,
		"endpoint: http://localhost:8085",
		"endpoint: ${TEST_COORD_ENDPOINT}", 1)

	loader := NewLoader()
	cfg, err := loader.Load(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Coordinator.Endpoint != "http://coordinator:8085" {
		t.Errorf("endpoint = %q, want expanded env value", cfg.Coordinator.Endpoint)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing bootstrap servers",
			content: `
kafka:
  topics:
    - events
  group_id: g
coordinator:
  endpoint: http://localhost:8085
`,
			wantErr: "bootstrap_servers",
		},
		{
			name: "missing topics",
			content: `
kafka:
  bootstrap_servers:
    - localhost:9092
  group_id: g
coordinator:
  endpoint: http://localhost:8085
`,
			wantErr: "topics",
		},
		{
			name: "missing group id",
			content: `
kafka:
  bootstrap_servers:
    - localhost:9092
  topics:
    - events
coordinator:
  endpoint: http://localhost:8085
`,
			wantErr: "group_id",
		},
		{
			name: "missing coordinator endpoint",
			content: `
kafka:
  bootstrap_servers:
    - localhost:9092
  topics:
    - events
  group_id: g
`,
			wantErr: "coordinator endpoint",
		},
		{
			name: "unsupported backend",
			content: minimalConfig + `
storage:
  backend: tape
`,
			wantErr: "unsupported storage backend",
		},
		{
			name: "unsupported format",
			content: minimalConfig + `
storage:
  backend: memory
  format: csv
`,
			wantErr: "unsupported storage format",
		},
		{
			name: "s3 backend without bucket",
			content: minimalConfig + `
storage:
  backend: s3
  s3:
    region: us-east-1
`,
			wantErr: "s3 bucket",
		},
		{
			name: "negative rate limit",
			content: minimalConfig + `
block:
  rate_limit: -1
`,
			wantErr: "rate limit",
		},
		{
			name: "invalid metrics port",
			content: minimalConfig + `
observability:
  metrics:
    port: 70000
`,
			wantErr: "metrics port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader()
			_, err := loader.Load(writeConfigFile(t, tt.content))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	// Defaults alone cannot satisfy the source validation.
	if err == nil {
		t.Fatal("Load() without kafka settings succeeded, want error")
	}
	if !strings.Contains(err.Error(), "bootstrap_servers") {
		t.Errorf("error = %q, want bootstrap_servers validation", err.Error())
	}
}
