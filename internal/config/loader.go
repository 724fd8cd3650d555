package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codevet.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setBool(&cfg.Server.Enabled, "CODEVET_HTTP_ENABLED")
	setString(&cfg.Server.Port, "CODEVET_PORT")
	setString(&cfg.Logging.Level, "CODEVET_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODEVET_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CODEVET_LOG_ASYNC")
	setDuration(&cfg.LSP.StartTimeout, "CODEVET_LSP_START_TIMEOUT")
	setDuration(&cfg.LSP.ProbeTimeout, "CODEVET_LSP_PROBE_TIMEOUT")
	setDuration(&cfg.LSP.RequestTimeout, "CODEVET_LSP_REQUEST_TIMEOUT")
	setDuration(&cfg.LSP.ShutdownTimeout, "CODEVET_LSP_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.LSP.SettleDelay, "CODEVET_LSP_SETTLE_DELAY")
	setDuration(&cfg.LSP.DiagnosticsWait, "CODEVET_LSP_DIAGNOSTICS_WAIT")
	setDuration(&cfg.LSP.PollTimeout, "CODEVET_LSP_POLL_TIMEOUT")
	setInt(&cfg.LSP.MaxDiagnostics, "CODEVET_LSP_MAX_DIAGNOSTICS")
	setInt64(&cfg.Cache.MaxSizeMB, "CODEVET_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "CODEVET_CACHE_TTL")
	setString(&cfg.Checker.Workspace, "CODEVET_WORKSPACE")
	setBool(&cfg.MCP.Enabled, "CODEVET_MCP_ENABLED")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Enabled && cfg.Server.Port == "" {
		return errors.New("server.port is required when the HTTP API is enabled")
	}
	if cfg.Checker.Workspace == "" {
		return errors.New("checker.workspace is required")
	}
	if cfg.LSP.StartTimeout <= 0 {
		return errors.New("lsp.start_timeout must be > 0")
	}
	if cfg.LSP.RequestTimeout <= 0 {
		return errors.New("lsp.request_timeout must be > 0")
	}
	if cfg.LSP.PollTimeout <= 0 {
		return errors.New("lsp.poll_timeout must be > 0")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
