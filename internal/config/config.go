// Package config loads and validates the prospector TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root of the prospector TOML configuration.
type Config struct {
	General   General             `toml:"general"`
	Store     Store               `toml:"store"`
	Fetcher   FetcherConfig       `toml:"fetcher"`
	Enrichment Enrichment         `toml:"enrichment"`
	Export    Export              `toml:"export"`
	Temporal  Temporal            `toml:"temporal"`
	Health    Health              `toml:"health"`
	API       API                 `toml:"api"`
	Providers map[string]Provider `toml:"providers"`
}

// General holds process-wide settings: logging, the advisory lock file, and
// the worker pool's poll/claim cadence.
type General struct {
	LogLevel       string   `toml:"log_level"`
	LockFile       string   `toml:"lock_file"`
	PollInterval   Duration `toml:"poll_interval"`
	StaleAfter     Duration `toml:"stale_after"`
	WorkerCount    int      `toml:"worker_count"`
	MaxRetries     int      `toml:"max_retries"`
}

// Store configures the single shared sqlite database.
type Store struct {
	Path string `toml:"path"`
}

// FetcherConfig holds the [fetcher] table. Load fills its defaults and
// validates it, but these values are not passed to internal/fetcher: the
// orchestrator and the runstate activities call Fetch with their own
// fetcher.Options, so the fetcher's built-in defaults apply.
type FetcherConfig struct {
	Timeout         Duration `toml:"timeout"`
	MaxRedirects    int      `toml:"max_redirects"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	MaxAttempts     int      `toml:"max_attempts"`
	RespectRobots   bool     `toml:"respect_robots"`
	UserAgent       string   `toml:"user_agent"`
}

// Enrichment configures the reuse-window the enrichment ledger checks
// before re-running a provider.
type Enrichment struct {
	TTL Duration `toml:"ttl"`
}

// Export configures the export-pack and evidence-bundle builders.
type Export struct {
	StorageRoot    string `toml:"storage_root"`
	MaxZipBytes    int64  `toml:"max_zip_bytes"`
	EvidenceMaxZip int64  `toml:"evidence_max_zip_bytes"`
}

// Temporal configures the run-state workflow's Temporal connection.
type Temporal struct {
	HostPort string `toml:"host_port"`
}

// Health holds the [health] table. Load defaults CheckInterval to 30s, but
// no component reads it; the single-instance lock path is General.LockFile.
type Health struct {
	CheckInterval Duration `toml:"check_interval"`
}

// API configures the control-plane HTTP surface.
type API struct {
	Bind     string      `toml:"bind"`
	Security APISecurity `toml:"security"`
}

// APISecurity configures bearer-token auth for control endpoints.
type APISecurity struct {
	Enabled          bool     `toml:"enabled"`            // enable auth for control endpoints
	AllowedTokens    []string `toml:"allowed_tokens"`     // valid bearer tokens
	RequireLocalOnly bool     `toml:"require_local_only"` // only allow local connections when auth disabled
	AuditLog         string   `toml:"audit_log"`          // path to audit log file
}

// Provider configures one discovery provider's credentials and gating.
// allow_mock lets a provider run in deterministic/fixture mode in
// environments with no real external access, the same gate discussed in
// internal/discovery.Gate.
type Provider struct {
	Enabled     bool              `toml:"enabled"`
	AllowMock   bool              `toml:"allow_mock"`
	Credentials map[string]string `toml:"credentials"`
}

// Clone returns a deep copy so a caller can't mutate a shared live config
// through a pointer handed out by a manager.
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Providers = cloneProviders(cfg.Providers)
	out.API.Security.AllowedTokens = cloneStringSlice(cfg.API.Security.AllowedTokens)
	return &out
}

func cloneProviders(in map[string]Provider) map[string]Provider {
	if in == nil {
		return nil
	}
	out := make(map[string]Provider, len(in))
	for k, v := range in {
		cp := v
		cp.Credentials = cloneStringMap(v.Credentials)
		out[k] = cp
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Load reads and validates a prospector TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	normalizePaths(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Reload reads and validates a prospector TOML configuration file.
//
// This mirrors Load but is intentionally named to reflect runtime refresh paths.
func Reload(path string) (*Config, error) {
	return Load(path)
}

// LoadManager reads config from path and returns an RWMutex-backed thread-safe manager.
func LoadManager(path string) (ConfigManager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}

	cfg, err := Reload(path)
	if err != nil {
		return nil, err
	}
	return NewRWMutexManager(cfg), nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LockFile == "" {
		cfg.General.LockFile = "~/.prospector/prospector.lock"
	}
	if cfg.General.PollInterval.Duration == 0 {
		cfg.General.PollInterval.Duration = 2 * time.Second
	}
	if cfg.General.StaleAfter.Duration == 0 {
		cfg.General.StaleAfter.Duration = 5 * time.Minute
	}
	if cfg.General.WorkerCount == 0 {
		cfg.General.WorkerCount = 4
	}
	if cfg.General.MaxRetries == 0 {
		cfg.General.MaxRetries = 5
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.prospector/prospector.db"
	}

	if cfg.Fetcher.Timeout.Duration == 0 {
		cfg.Fetcher.Timeout.Duration = 20 * time.Second
	}
	if cfg.Fetcher.MaxRedirects == 0 {
		cfg.Fetcher.MaxRedirects = 5
	}
	if cfg.Fetcher.MaxBodyBytes == 0 {
		cfg.Fetcher.MaxBodyBytes = 10 << 20
	}
	if cfg.Fetcher.MaxAttempts == 0 {
		cfg.Fetcher.MaxAttempts = 3
	}
	if cfg.Fetcher.UserAgent == "" {
		cfg.Fetcher.UserAgent = "prospector-fetcher/1.0"
	}

	if cfg.Enrichment.TTL.Duration == 0 {
		cfg.Enrichment.TTL.Duration = 24 * time.Hour
	}

	if cfg.Export.MaxZipBytes == 0 {
		cfg.Export.MaxZipBytes = 64 << 20
	}
	if cfg.Export.EvidenceMaxZip == 0 {
		cfg.Export.EvidenceMaxZip = 128 << 20
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "127.0.0.1:7233"
	}

	if cfg.Health.CheckInterval.Duration == 0 {
		cfg.Health.CheckInterval.Duration = 30 * time.Second
	}

	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1:8088"
	}
}

func normalizePaths(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Store.Path = ExpandHome(strings.TrimSpace(cfg.Store.Path))
	cfg.General.LockFile = ExpandHome(strings.TrimSpace(cfg.General.LockFile))
	cfg.Export.StorageRoot = ExpandHome(strings.TrimSpace(cfg.Export.StorageRoot))
	cfg.API.Security.AuditLog = ExpandHome(strings.TrimSpace(cfg.API.Security.AuditLog))
}

// isLocalBind reports whether a bind address is local (localhost, 127.0.0.1,
// a unix socket, or a bare port).
func isLocalBind(bind string) bool {
	if bind == "" {
		return true
	}
	if bind[0] == '/' || bind[0] == '@' {
		return true
	}
	if strings.HasPrefix(bind, "localhost:") || strings.HasPrefix(bind, "127.0.0.1:") || strings.HasPrefix(bind, ":") {
		return true
	}
	return false
}

func validate(cfg *Config) error {
	if cfg.Export.StorageRoot == "" {
		return fmt.Errorf("export.storage_root is required")
	}
	if strings.Contains(cfg.Export.StorageRoot, "..") {
		return fmt.Errorf("export.storage_root must not contain ..")
	}

	if cfg.General.WorkerCount < 1 {
		return fmt.Errorf("general.worker_count must be >= 1")
	}
	if cfg.General.PollInterval.Duration <= 0 {
		return fmt.Errorf("general.poll_interval must be > 0")
	}
	if cfg.General.StaleAfter.Duration <= 0 {
		return fmt.Errorf("general.stale_after must be > 0")
	}

	if cfg.Fetcher.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetcher.max_body_bytes must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.API.Security.Enabled && len(cfg.API.Security.AllowedTokens) == 0 {
		return fmt.Errorf("api.security.allowed_tokens is required when api.security.enabled is true")
	}
	if !cfg.API.Security.Enabled && !cfg.API.Security.RequireLocalOnly && !isLocalBind(cfg.API.Bind) {
		return fmt.Errorf("api.bind %q is non-local and api.security.enabled is false", cfg.API.Bind)
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := cfg.Providers[name]
		if p.Enabled && !p.AllowMock && len(p.Credentials) == 0 {
			return fmt.Errorf("providers.%s: enabled, non-mock provider has no credentials configured", name)
		}
	}

	return nil
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
