// Package config loads API keys, role routing, and session defaults from
// ~/.storyloom/config.yaml with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	Roles           *RoleConfig
	Sessions        SessionConfig
	ConfigDir       string
}

// FileConfig represents the structure of ~/.storyloom/config.yaml
type FileConfig struct {
	APIKeys  APIKeysConfig `yaml:"api_keys"`
	Sessions SessionConfig `yaml:"sessions"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
}

// SessionConfig holds overridable session defaults.
type SessionConfig struct {
	StoryMaxIterations int     `yaml:"story_max_iterations,omitempty"`
	SceneMaxIterations int     `yaml:"scene_max_iterations,omitempty"`
	VideoMaxIterations int     `yaml:"video_max_iterations,omitempty"`
	SceneCount         int     `yaml:"scene_count,omitempty"`
	TraceDir           string  `yaml:"trace_dir,omitempty"`
	VideoConcurrency   int     `yaml:"video_concurrency,omitempty"`
	ExpectedDuration   float64 `yaml:"expected_duration,omitempty"`
}

// Load reads configuration from .env, the config file, and environment
// variables. Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		Sessions:        fileConfig.Sessions,
		ConfigDir:       configDir,
	}

	rolesPath := filepath.Join(configDir, "roles.yaml")
	if _, err := os.Stat(rolesPath); err == nil {
		roles, err := LoadRoleConfig(rolesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load role config: %w", err)
		}
		cfg.Roles = roles
	} else {
		cfg.Roles = DefaultRoleConfig()
	}

	return cfg, nil
}

// LoadWithRoleFile loads config with a specific role routing file.
func LoadWithRoleFile(rolesPath string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	roles, err := LoadRoleConfig(rolesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load role config from %s: %w", rolesPath, err)
	}
	cfg.Roles = roles
	return cfg, nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg // Return empty config if file doesn't exist
	}

	_ = yaml.Unmarshal(data, cfg) // Ignore parse errors, use defaults
	return cfg
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".storyloom")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
