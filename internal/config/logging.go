package config

import "tavern/internal/logging"

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Settings converts the config into logging package settings.
func (c LoggingConfig) Settings() logging.Settings {
	return logging.Settings{
		Enabled:    c.Enabled,
		Dir:        c.Dir,
		Level:      c.Level,
		Categories: c.Categories,
	}
}
