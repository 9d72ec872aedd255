package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	databasePathEnv = "REVIEWPULSE_DB"
	llmAPIKeyEnv    = "OPENAI_API_KEY"
	llmModelEnv     = "OPENAI_MODEL"
	listenAddrEnv   = "REVIEWPULSE_ADDR"
)

// Config holds all process-wide settings. It is loaded once at startup and
// passed explicitly into the engine and its components.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Collector struct {
		Source         string        `yaml:"source"`
		BaseURL        string        `yaml:"base_url"`
		PageSize       int           `yaml:"page_size"`
		RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"collector"`

	LLM struct {
		Provider      string `yaml:"provider"`
		Model         string `yaml:"model"`
		APIKey        string `yaml:"api_key"`
		Endpoint      string `yaml:"endpoint"`
		OllamaBaseURL string `yaml:"ollama_base_url"`
		MaxConcurrent int    `yaml:"max_concurrent"`
	} `yaml:"llm"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./reviewpulse.db"
	cfg.Server.Addr = ":8080"
	cfg.Collector.Source = "apple_store"
	cfg.Collector.BaseURL = "https://itunes.apple.com"
	cfg.Collector.PageSize = 50
	cfg.Collector.RateLimitDelay = 500 * time.Millisecond
	cfg.Collector.RequestTimeout = 30 * time.Second
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.Endpoint = "https://api.openai.com/v1/chat/completions"
	cfg.LLM.OllamaBaseURL = "http://localhost:11434"
	cfg.LLM.MaxConcurrent = 50
	return cfg
}

// Load reads YAML configuration from path (if it exists) over the defaults
// and applies environment overrides. A missing file is not an error: the
// defaults plus environment are a complete configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
}
