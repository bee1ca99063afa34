// Package config handles application configuration: a YAML file loaded
// from disk with environment-variable overrides layered on top for
// secrets and per-deployment values, following the two-layer pattern of
// internal/config/config.go and internal/config/env.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wbarena/arena/internal/llm"
	"github.com/wbarena/arena/internal/storage"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds SQLite persistence settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig holds the provider adapter's settings. APIKey is never read
// from the YAML file; it is always supplied by an environment variable
// (*_API_KEY) so secrets never land on disk.
type LLMConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	APIKey          string        `yaml:"-"`
}

// Default returns the default configuration: a mock LLM provider (so the
// server runs with no external dependencies out of the box) and a
// home-directory-scoped SQLite database.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8182},
		Database: DatabaseConfig{
			Path: storage.DefaultDBPath(),
		},
		LLM: LLMConfig{
			Provider:        "mock",
			Model:           "",
			Temperature:     0.7,
			MaxOutputTokens: 2048,
			Timeout:         60 * time.Second,
		},
	}
}

// Load loads configuration from the default path, then applies .env and
// process environment overrides.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific YAML path, falling back to
// defaults for anything the file omits or when the file does not exist.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if env, err := LoadEnv(".env"); err == nil {
		ApplyEnvOverrides(cfg, env)
	}
	ApplyEnvOverrides(cfg, processEnv())

	return cfg, nil
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo writes the configuration to a specific path. The LLM API key is
// never persisted.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// CreateProvider builds the llm.Provider this configuration names,
// wrapped in the adapter-layer retry policy.
func (c *Config) CreateProvider() (llm.Provider, error) {
	if c.LLM.Provider == "mock" || c.LLM.Provider == "" {
		return llm.WithRetries(llm.NewMockProvider(), llm.DefaultRetryBudget), nil
	}

	real, err := llm.NewRealProvider(llm.RealProviderConfig{
		Name:            c.LLM.Provider,
		APIKey:          c.LLM.APIKey,
		Model:           c.LLM.Model,
		Temperature:     c.LLM.Temperature,
		MaxOutputTokens: c.LLM.MaxOutputTokens,
		Timeout:         c.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", c.LLM.Provider, err)
	}
	return llm.WithRetries(real, llm.DefaultRetryBudget), nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wbarena.yaml"
	}
	return filepath.Join(home, ".wbarena", "config.yaml")
}

// GenerateExample returns example YAML for a fresh installation.
func GenerateExample() string {
	return `# wbarena configuration file
# Place this file at ~/.wbarena/config.yaml

server:
  port: 8182

database:
  path: ~/.wbarena/wbarena.db

llm:
  provider: mock        # mock | openai | anthropic | gemini
  model: ""              # provider default if empty
  temperature: 0.7
  max_output_tokens: 2048
  timeout: 60s
  # API keys are never read from this file — set OPENAI_API_KEY,
  # ANTHROPIC_API_KEY, or GOOGLE_API_KEY in the environment instead.
`
}
