package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	GitHub GitHubConfig `yaml:"github"`
	AI     AIConfig     `yaml:"ai"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
	SessionCookie   string `yaml:"session_cookie"`
}

// GitHubConfig contains repository fetcher configuration
type GitHubConfig struct {
	APIBaseURL     string `yaml:"api_base_url"`
	MaxFileSize    int64  `yaml:"max_file_size"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

// AIConfig contains AI-related configuration
type AIConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	TopK            int32   `yaml:"top_k"`
	TopP            float32 `yaml:"top_p"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

var globalConfig *Config

// LoadConfig loads configuration from the specified file
func LoadConfig(configPath string) (*Config, error) {
	// If no path provided, use default
	if configPath == "" {
		configPath = "config/development.yaml"
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// Set global config
	globalConfig = &config

	return &config, nil
}

// GetConfig returns the global configuration instance
func GetConfig() *Config {
	if globalConfig == nil {
		// Try to load default config
		config, err := LoadConfig("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.SessionTTLHours <= 0 {
		c.Server.SessionTTLHours = 12
	}
	if c.Server.SessionCookie == "" {
		c.Server.SessionCookie = "repochat_session"
	}
	if c.GitHub.MaxFileSize <= 0 {
		c.GitHub.MaxFileSize = 1 << 20
	}
	if c.GitHub.RequestTimeout <= 0 {
		c.GitHub.RequestTimeout = 30
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.0-flash"
	}
	if c.AI.MaxOutputTokens <= 0 {
		c.AI.MaxOutputTokens = 8192
	}
	if c.AI.MaxContextChars <= 0 {
		c.AI.MaxContextChars = 1_600_000
	}
}
