package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prospector.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
[general]
log_level = "info"
poll_interval = "2s"
stale_after = "5m"
worker_count = 4

[store]
path = "/tmp/prospector-test.db"

[fetcher]
timeout = "20s"
max_redirects = 5
max_body_bytes = 10485760
respect_robots = true

[enrichment]
ttl = "24h"

[export]
storage_root = "/tmp/prospector-export"
max_zip_bytes = 67108864

[temporal]
host_port = "127.0.0.1:7233"

[health]
check_interval = "30s"

[api]
bind = "127.0.0.1:8088"

[providers.deterministic]
enabled = true
allow_mock = true
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.General.PollInterval.Duration != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.General.PollInterval)
	}
	if cfg.General.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.General.WorkerCount)
	}
	if cfg.Store.Path != "/tmp/prospector-test.db" {
		t.Errorf("Store.Path = %q, want /tmp/prospector-test.db", cfg.Store.Path)
	}
	if cfg.Export.StorageRoot != "/tmp/prospector-export" {
		t.Errorf("Export.StorageRoot = %q", cfg.Export.StorageRoot)
	}
	if !cfg.Providers["deterministic"].AllowMock {
		t.Error("deterministic provider should allow mock")
	}
	if cfg.API.Bind != "127.0.0.1:8088" {
		t.Errorf("API.Bind = %q, want 127.0.0.1:8088", cfg.API.Bind)
	}
}

func TestLoadMissingStorageRoot(t *testing.T) {
	cfg := `
[general]
worker_count = 1
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing export.storage_root")
	}
}

func TestLoadDefaultsApplied(t *testing.T) {
	cfg := `
[export]
storage_root = "/tmp/prospector-export"
`
	path := writeTestConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.General.WorkerCount != 4 {
		t.Errorf("default WorkerCount = %d, want 4", loaded.General.WorkerCount)
	}
	if loaded.Fetcher.MaxAttempts != 3 {
		t.Errorf("default Fetcher.MaxAttempts = %d, want 3", loaded.Fetcher.MaxAttempts)
	}
	if loaded.Enrichment.TTL.Duration != 24*time.Hour {
		t.Errorf("default Enrichment.TTL = %v, want 24h", loaded.Enrichment.TTL)
	}
	if loaded.Temporal.HostPort != "127.0.0.1:7233" {
		t.Errorf("default Temporal.HostPort = %q", loaded.Temporal.HostPort)
	}
}

func TestLoadSecurityEnabledRequiresTokens(t *testing.T) {
	cfg := validConfig + `

[api.security]
enabled = true
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for enabled security with no tokens")
	}
}

func TestLoadNonLocalBindRequiresSecurity(t *testing.T) {
	cfg := strings.Replace(validConfig, `bind = "127.0.0.1:8088"`, `bind = "0.0.0.0:8088"`, 1)
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for non-local bind with security disabled")
	}
}

func TestLoadProviderMissingCredentials(t *testing.T) {
	cfg := `
[export]
storage_root = "/tmp/prospector-export"

[providers.search_api]
enabled = true
allow_mock = false
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for enabled non-mock provider with no credentials")
	}
}

func TestLoadStorageRootTraversalRejected(t *testing.T) {
	cfg := `
[export]
storage_root = "/tmp/../etc"
`
	path := writeTestConfig(t, cfg)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for storage_root containing ..")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"60s", 60 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h", time.Hour},
		{"500ms", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		if err := d.UnmarshalText([]byte(tt.input)); err != nil {
			t.Errorf("UnmarshalText(%q) error: %v", tt.input, err)
			continue
		}
		if d.Duration != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.input, d.Duration, tt.want)
		}
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestConfigCloneIsIndependent(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	clone := cfg.Clone()
	clone.Providers["deterministic"] = Provider{Enabled: false}
	if !cfg.Providers["deterministic"].Enabled {
		t.Fatal("mutating a clone's providers map must not affect the original")
	}
}
