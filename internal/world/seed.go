package world

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tavern/internal/logging"
)

// SeedData is the YAML shape for `tavern world seed`.
type SeedData struct {
	Locations []Location `yaml:"locations"`
	Avatars   []Avatar   `yaml:"avatars"`
	Items     []Item     `yaml:"items"`
}

// LoadSeed parses a seed file.
func LoadSeed(path string) (*SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedData
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// Seed upserts locations, avatars, and items. Existing rows are replaced,
// so re-seeding resets the world to the file's state.
func (s *Store) Seed(ctx context.Context, seed *SeedData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, loc := range seed.Locations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO locations (name, description) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET description = excluded.description;
		`, loc.Name, loc.Description); err != nil {
			return fmt.Errorf("seed location %s: %w", loc.Name, err)
		}
	}

	for _, a := range seed.Avatars {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO avatars (name, location, persona) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET location = excluded.location, persona = excluded.persona;
		`, a.Name, a.Location, a.Persona); err != nil {
			return fmt.Errorf("seed avatar %s: %w", a.Name, err)
		}
	}

	for _, item := range seed.Items {
		if (item.Location == "") == (item.Holder == "") {
			return fmt.Errorf("item %s must have exactly one of location or holder", item.Name)
		}
		location := nullable(item.Location)
		holder := nullable(item.Holder)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items (name, location, holder, description, persona) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				location = excluded.location,
				holder = excluded.holder,
				description = excluded.description,
				persona = excluded.persona;
		`, item.Name, location, holder, item.Description, item.Persona); err != nil {
			return fmt.Errorf("seed item %s: %w", item.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	logging.World("seeded world: %d locations, %d avatars, %d items",
		len(seed.Locations), len(seed.Avatars), len(seed.Items))
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
