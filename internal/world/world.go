// Package world implements the shared world state: avatars, locations, and
// items. It is the only resource mutated by more than one logical actor, so
// every ownership mutation is a single conditional UPDATE — the same
// compare-and-swap discipline the task store uses for claims. Two concurrent
// TAKEs of one item cannot both succeed.
package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sahilm/fuzzy"

	"tavern/internal/logging"
)

// Avatar is an agent's in-world identity.
type Avatar struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Persona  string `json:"persona,omitempty"`
}

// Location is a named place avatars can move between.
type Location struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Item is a world object. Exactly one of Location or Holder is set once the
// item is placed in the world, never both, never neither.
type Item struct {
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Holder      string `json:"holder,omitempty"`
	Description string `json:"description,omitempty"`

	// Persona, when set, is the narrower system prompt used for the
	// item's USE side effect.
	Persona string `json:"persona,omitempty"`
}

// Store provides typed access to the world database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the world database at path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.WorldDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.WorldDebug("failed to set journal_mode=WAL: %v", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.World("world store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS locations (
			name        TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS avatars (
			name     TEXT PRIMARY KEY,
			location TEXT NOT NULL REFERENCES locations(name),
			persona  TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS items (
			name        TEXT PRIMARY KEY,
			location    TEXT REFERENCES locations(name),
			holder      TEXT REFERENCES avatars(name),
			description TEXT NOT NULL DEFAULT '',
			persona     TEXT NOT NULL DEFAULT '',
			CHECK ((location IS NULL) != (holder IS NULL))
		);
	`)
	if err != nil {
		return fmt.Errorf("initialize world schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Avatar returns the avatar with the given name.
func (s *Store) Avatar(ctx context.Context, name string) (*Avatar, error) {
	var a Avatar
	err := s.db.QueryRowContext(ctx,
		`SELECT name, location, persona FROM avatars WHERE name = ?;`, name).
		Scan(&a.Name, &a.Location, &a.Persona)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAvatarNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("select avatar: %w", err)
	}
	return &a, nil
}

// LocationNames returns all known location names, sorted.
func (s *Store) LocationNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM locations;`)
	if err != nil {
		return nil, fmt.Errorf("select locations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, rows.Err()
}

// ResolveLocation fuzzy-matches query against known location names and
// returns the best match. Exact matches (case-insensitive) win outright.
func (s *Store) ResolveLocation(ctx context.Context, query string) (string, error) {
	names, err := s.LocationNames(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if strings.EqualFold(name, query) {
			return name, nil
		}
	}
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q", ErrLocationUnknown, query)
	}
	return matches[0].Str, nil
}

// MoveAvatar updates the avatar's location. The location must already be
// resolved via ResolveLocation; an unknown avatar is a precondition error.
func (s *Store) MoveAvatar(ctx context.Context, avatarName, location string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE avatars SET location = ? WHERE name = ?;`, location, avatarName)
	if err != nil {
		return fmt.Errorf("move avatar: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("move rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: %s", ErrAvatarNotFound, avatarName)
	}
	logging.World("avatar %s moved to %s", avatarName, location)
	return nil
}

// Item returns the item with the given name.
func (s *Store) Item(ctx context.Context, name string) (*Item, error) {
	var (
		item     Item
		location sql.NullString
		holder   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, location, holder, description, persona FROM items WHERE name = ?;`, name).
		Scan(&item.Name, &location, &holder, &item.Description, &item.Persona)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("select item: %w", err)
	}
	item.Location = location.String
	item.Holder = holder.String
	return &item, nil
}

// ItemsAt lists items lying at a location.
func (s *Store) ItemsAt(ctx context.Context, location string) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT name, location, holder, description, persona FROM items WHERE location = ? ORDER BY name;`,
		location)
}

// Inventory lists items held by an avatar.
func (s *Store) Inventory(ctx context.Context, avatarName string) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT name, location, holder, description, persona FROM items WHERE holder = ? ORDER BY name;`,
		avatarName)
}

func (s *Store) queryItems(ctx context.Context, query string, arg any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item     Item
			location sql.NullString
			holder   sql.NullString
		)
		if err := rows.Scan(&item.Name, &location, &holder, &item.Description, &item.Persona); err != nil {
			return nil, err
		}
		item.Location = location.String
		item.Holder = holder.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// TakeItem transfers an item from the avatar's location into their
// inventory. The ownership check and the mutation are one conditional
// UPDATE: the row only changes if the item is still lying at the expected
// location, so two racing TAKEs resolve to one winner.
func (s *Store) TakeItem(ctx context.Context, avatarName, itemName, atLocation string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET holder = ?, location = NULL
		WHERE name = ? AND location = ? AND holder IS NULL;
	`, avatarName, itemName, atLocation)
	if err != nil {
		return fmt.Errorf("take item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("take rows affected: %w", err)
	}
	if affected == 1 {
		logging.World("%s took %s at %s", avatarName, itemName, atLocation)
		return nil
	}

	// Lost or impossible. Re-read to say why.
	item, err := s.Item(ctx, itemName)
	if err != nil {
		return err
	}
	if item.Holder != "" {
		return fmt.Errorf("%w: %s (held by %s)", ErrItemHeld, itemName, item.Holder)
	}
	return fmt.Errorf("%w: %s is at %s", ErrItemNotHere, itemName, item.Location)
}

// DropItem moves a held item to the avatar's current location, guarded on
// the avatar actually holding it.
func (s *Store) DropItem(ctx context.Context, avatarName, itemName, atLocation string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET holder = NULL, location = ?
		WHERE name = ? AND holder = ?;
	`, atLocation, itemName, avatarName)
	if err != nil {
		return fmt.Errorf("drop item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop rows affected: %w", err)
	}
	if affected == 1 {
		logging.World("%s dropped %s at %s", avatarName, itemName, atLocation)
		return nil
	}

	if _, err := s.Item(ctx, itemName); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrItemNotHeld, itemName)
}
