package world

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

func newTestWorld(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	seed := &SeedData{
		Locations: []Location{
			{Name: "The Tavern", Description: "A warm common room."},
			{Name: "The Cellar", Description: "Cold and dark."},
			{Name: "Market Square"},
		},
		Avatars: []Avatar{
			{Name: "Mabel", Location: "The Tavern"},
			{Name: "Orin", Location: "The Cellar"},
		},
		Items: []Item{
			{Name: "rusty key", Location: "The Cellar"},
			{Name: "lantern", Location: "The Tavern", Persona: "You are an old lantern with opinions."},
			{Name: "coin purse", Holder: "Mabel"},
		},
	}
	if err := s.Seed(context.Background(), seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return s
}

func TestAvatarLookup(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	a, err := s.Avatar(ctx, "Mabel")
	if err != nil {
		t.Fatalf("Avatar: %v", err)
	}
	if a.Location != "The Tavern" {
		t.Errorf("location = %q", a.Location)
	}

	_, err = s.Avatar(ctx, "Nobody")
	if !errors.Is(err, ErrAvatarNotFound) {
		t.Errorf("err = %v, want ErrAvatarNotFound", err)
	}
}

func TestResolveLocation(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	cases := []struct {
		query string
		want  string
	}{
		{"The Cellar", "The Cellar"},
		{"the cellar", "The Cellar"}, // case-insensitive exact
		{"cellar", "The Cellar"},     // fuzzy
		{"market", "Market Square"},
	}
	for _, tc := range cases {
		got, err := s.ResolveLocation(ctx, tc.query)
		if err != nil {
			t.Errorf("ResolveLocation(%q): %v", tc.query, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ResolveLocation(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}

	_, err := s.ResolveLocation(ctx, "zzgribble")
	if !errors.Is(err, ErrLocationUnknown) {
		t.Errorf("unknown query: err = %v, want ErrLocationUnknown", err)
	}
}

func TestMoveAvatar(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	if err := s.MoveAvatar(ctx, "Mabel", "The Cellar"); err != nil {
		t.Fatalf("MoveAvatar: %v", err)
	}
	a, _ := s.Avatar(ctx, "Mabel")
	if a.Location != "The Cellar" {
		t.Errorf("location = %q, want The Cellar", a.Location)
	}

	if err := s.MoveAvatar(ctx, "Nobody", "The Cellar"); !errors.Is(err, ErrAvatarNotFound) {
		t.Errorf("err = %v, want ErrAvatarNotFound", err)
	}
}

func TestTakeAndDrop(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	if err := s.TakeItem(ctx, "Orin", "rusty key", "The Cellar"); err != nil {
		t.Fatalf("TakeItem: %v", err)
	}
	item, _ := s.Item(ctx, "rusty key")
	if item.Holder != "Orin" || item.Location != "" {
		t.Errorf("after take: holder=%q location=%q", item.Holder, item.Location)
	}

	// Taking a held item fails.
	if err := s.TakeItem(ctx, "Mabel", "rusty key", "The Cellar"); !errors.Is(err, ErrItemHeld) {
		t.Errorf("take held item: err = %v, want ErrItemHeld", err)
	}

	// Taking from the wrong place fails.
	if err := s.TakeItem(ctx, "Mabel", "lantern", "The Cellar"); !errors.Is(err, ErrItemNotHere) {
		t.Errorf("take elsewhere: err = %v, want ErrItemNotHere", err)
	}

	if err := s.DropItem(ctx, "Orin", "rusty key", "The Cellar"); err != nil {
		t.Fatalf("DropItem: %v", err)
	}
	item, _ = s.Item(ctx, "rusty key")
	if item.Holder != "" || item.Location != "The Cellar" {
		t.Errorf("after drop: holder=%q location=%q", item.Holder, item.Location)
	}

	// Dropping something you don't hold fails.
	if err := s.DropItem(ctx, "Orin", "rusty key", "The Cellar"); !errors.Is(err, ErrItemNotHeld) {
		t.Errorf("drop unheld: err = %v, want ErrItemNotHeld", err)
	}
}

// After any sequence of takes and drops, an item has exactly one of
// location/holder set.
func TestItemInvariant(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	check := func(stage string) {
		t.Helper()
		item, err := s.Item(ctx, "rusty key")
		if err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
		if (item.Location == "") == (item.Holder == "") {
			t.Errorf("%s: invariant broken, location=%q holder=%q", stage, item.Location, item.Holder)
		}
	}

	check("initial")
	s.TakeItem(ctx, "Orin", "rusty key", "The Cellar")
	check("after take")
	s.DropItem(ctx, "Orin", "rusty key", "The Cellar")
	check("after drop")
	s.TakeItem(ctx, "Orin", "rusty key", "The Cellar")
	s.TakeItem(ctx, "Mabel", "rusty key", "The Cellar") // loses
	check("after contested take")
}

// Two avatars racing for the same item: exactly one wins.
func TestTakeItem_Race(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	avatars := []string{"Mabel", "Orin", "Mabel", "Orin", "Mabel", "Orin"}
	var (
		mu   sync.Mutex
		wins int
	)
	var g errgroup.Group
	for _, name := range avatars {
		g.Go(func() error {
			err := s.TakeItem(ctx, name, "rusty key", "The Cellar")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return nil
			}
			if errors.Is(err, ErrItemHeld) || errors.Is(err, ErrItemNotHere) {
				return nil // Expected loser outcome.
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("racing TakeItem: %v", err)
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}

func TestItemsAtAndInventory(t *testing.T) {
	s := newTestWorld(t)
	ctx := context.Background()

	items, err := s.ItemsAt(ctx, "The Tavern")
	if err != nil {
		t.Fatalf("ItemsAt: %v", err)
	}
	if len(items) != 1 || items[0].Name != "lantern" {
		t.Errorf("ItemsAt = %+v", items)
	}

	inv, err := s.Inventory(ctx, "Mabel")
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(inv) != 1 || inv[0].Name != "coin purse" {
		t.Errorf("Inventory = %+v", inv)
	}
}

func TestSeed_RejectsAmbiguousItem(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	seed := &SeedData{
		Locations: []Location{{Name: "Somewhere"}},
		Items:     []Item{{Name: "ghost item"}}, // neither location nor holder
	}
	if err := s.Seed(context.Background(), seed); err == nil {
		t.Error("expected seed to reject item with no placement")
	}
}
