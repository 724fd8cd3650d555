// Package config provides hierarchical configuration loading for codevet.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the codevet service.
type Config struct {
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	LSP     LSP     `yaml:"lsp"`
	Cache   Cache   `yaml:"cache"`
	Checker Checker `yaml:"checker"`
	MCP     MCP     `yaml:"mcp"`
}

// Server holds the optional HTTP status API configuration.
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// LSP holds language-server session tuning.
type LSP struct {
	StartTimeout    time.Duration `yaml:"start_timeout"`    // spawn + initialize handshake budget
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`    // toolchain version probe budget
	RequestTimeout  time.Duration `yaml:"request_timeout"`  // single request/response budget
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // graceful stop grace period
	SettleDelay     time.Duration `yaml:"settle_delay"`     // post-handshake startup chatter window
	DiagnosticsWait time.Duration `yaml:"diagnostics_wait"` // initial wait before collecting diagnostics
	PollTimeout     time.Duration `yaml:"poll_timeout"`     // budget for a fresh publishDiagnostics to arrive
	MaxDiagnostics  int           `yaml:"max_diagnostics"`  // per-publish cap, 0 = unlimited
}

// Cache holds diagnostics cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"` // 0 = no expiry
}

// Checker holds workspace and report-filtering configuration.
type Checker struct {
	Workspace        string   `yaml:"workspace"`
	IgnoreSubstrings []string `yaml:"ignore_substrings"` // update_and_check message ignore-list
}

// MCP holds the stdio tool-server configuration.
type MCP struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
// The ignore-list defaults cover diagnostics that incremental generation
// routinely triggers mid-file (partial assignments, not-yet-used symbols).
func Defaults() Config {
	return Config{
		Server: Server{
			Enabled: false,
			Port:    "8080",
		},
		Logging: Logging{
			Level:   "info",
			Service: "codevet",
		},
		LSP: LSP{
			StartTimeout:    30 * time.Second,
			ProbeTimeout:    10 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			SettleDelay:     time.Second,
			DiagnosticsWait: 500 * time.Millisecond,
			PollTimeout:     6 * time.Second,
			MaxDiagnostics:  0,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       0,
		},
		Checker: Checker{
			Workspace: ".",
			IgnoreSubstrings: []string{
				"cannot be assigned to",
				"is not assignable to",
				"cannot assign to",
				"is unknown",
				`"none"`,
				"vue",
				"never used",
				"never read",
				"implicitly has",
			},
		},
		MCP: MCP{
			Enabled: true,
		},
	}
}
