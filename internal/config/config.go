// Package config holds all convo configuration from <state dir>/config.json
// (or config.yaml). This is the single source of truth for configuration;
// environment variables (optionally loaded from a .env file) override
// individual fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"convo/internal/logging"
)

// DefaultBaseURL points at the hosted backend. Self-hosted deployments
// override it via config.json or CONVO_API_BASE_URL.
const DefaultBaseURL = "https://api.convo.chat"

// Config is everything convo reads at startup.
type Config struct {
	// Backend base URL, e.g. https://api.convo.chat
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url" validate:"required,url"`

	// Theme for the TUI ("light" or "dark"). Empty means auto-detect
	// from the terminal background.
	Theme string `json:"theme,omitempty" yaml:"theme,omitempty" validate:"omitempty,oneof=light dark"`

	// RequestTimeoutSeconds bounds every backend call. Zero means the
	// default of 60s (assistant replies can be slow).
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty" validate:"gte=0,lte=600"`

	// PageSize for session listing.
	PageSize int `json:"page_size,omitempty" yaml:"page_size,omitempty" validate:"gte=0,lte=200"`

	// Logging controls the category file logger.
	Logging logging.Config `json:"logging,omitempty" yaml:"logging,omitempty"`
}

var validate = validator.New()

// StateDir returns the directory holding config, tokens, chats and logs.
// CONVO_STATE_DIR overrides the default ~/.convo (tests rely on this).
func StateDir() (string, error) {
	if dir := os.Getenv("CONVO_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".convo"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBaseURL:            DefaultBaseURL,
		RequestTimeoutSeconds: 60,
		PageSize:              50,
	}
}

// Load reads the config file from the state directory, applies environment
// overrides and validates the result. config.json wins when both formats
// exist; a missing file yields the defaults; a malformed file is an error
// (the user edited it by hand and should know).
func Load() (*Config, error) {
	dir, err := StateDir()
	if err != nil {
		return nil, err
	}
	jsonPath := filepath.Join(dir, "config.json")
	if _, err := os.Stat(jsonPath); os.IsNotExist(err) {
		for _, name := range []string{"config.yaml", "config.yml"} {
			yamlPath := filepath.Join(dir, name)
			if _, err := os.Stat(yamlPath); err == nil {
				return LoadFrom(yamlPath)
			}
		}
	}
	return LoadFrom(jsonPath)
}

// LoadFrom reads a specific config file path. The extension selects the
// format: .yaml/.yml parse as YAML, anything else as JSON.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 60
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the config back to the state directory.
func (c *Config) Save() error {
	dir, err := StateDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// applyEnvOverrides layers CONVO_* environment variables over the file.
// A .env in the working directory is honored the same way server-side
// deployments of the product do it.
func applyEnvOverrides(cfg *Config) {
	_ = godotenv.Load() // best effort; absence of .env is the normal case

	if v := os.Getenv("CONVO_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("CONVO_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("CONVO_REQUEST_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeoutSeconds = secs
		}
	}
	if v := os.Getenv("CONVO_DEBUG"); v == "1" || v == "true" {
		cfg.Logging.DebugMode = true
	}
}
