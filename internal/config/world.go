package config

// WorldConfig configures the world state store.
type WorldConfig struct {
	DatabasePath string `yaml:"database_path"`

	// SeedPath is an optional YAML file of avatars, locations, and items
	// loaded by `tavern world seed`.
	SeedPath string `yaml:"seed_path"`
}
