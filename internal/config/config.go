// Package config loads tavern configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all tavern configuration.
type Config struct {
	// Core settings
	Name string `yaml:"name"`

	// LLM backend configuration
	LLM LLMConfig `yaml:"llm"`

	// Task queue configuration
	Queue QueueConfig `yaml:"queue"`

	// World state configuration
	World WorldConfig `yaml:"world"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns a configuration with sane defaults for local use.
func Default() *Config {
	return &Config{
		Name: "tavern",
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Timeout:  "60s",
		},
		Queue: QueueConfig{
			DatabasePath:   "tavern.db",
			PollInterval:   "500ms",
			EnqueueRetries: 3,
			EnqueueBackoff: "250ms",
			AwaitInterval:  "500ms",
			ClaimBackoff:   "1s",
		},
		World: WorldConfig{
			DatabasePath: "tavern.db",
		},
		Logging: LoggingConfig{
			Enabled: false,
			Dir:     "logs",
			Level:   "info",
		},
	}
}

// Load reads configuration from path and applies environment overrides.
// A missing file yields Default() rather than an error, so a bare checkout
// works without any setup.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets from the environment. Keys in files are a
// footgun; TAVERN_API_KEY always wins when set.
func (c *Config) applyEnv() {
	if key := os.Getenv("TAVERN_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Queue.DatabasePath == "" {
		return fmt.Errorf("queue.database_path is required")
	}
	if c.World.DatabasePath == "" {
		return fmt.Errorf("world.database_path is required")
	}
	return nil
}
