package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tavern/internal/types"
	"tavern/internal/world"
)

// worldTools builds the five world operation tools.
func worldTools(ws *world.Store, chat types.ChatClient) []*Tool {
	return []*Tool{
		{
			Name:        types.ToolMove,
			Description: "Move to a named location. Location names are matched loosely.",
			InputSchema: objectSchema(map[string]any{
				"location": map[string]any{"type": "string", "description": "Destination location name"},
			}, "location"),
			Handler: moveHandler(ws),
		},
		{
			Name:        types.ToolUse,
			Description: "Use an item you are holding.",
			InputSchema: objectSchema(map[string]any{
				"item": map[string]any{"type": "string", "description": "Name of a held item"},
			}, "item"),
			Handler: useHandler(ws, chat),
		},
		{
			Name:        types.ToolSearch,
			Description: "Look around your current location and list the items lying there.",
			InputSchema: objectSchema(map[string]any{}),
			Handler:     searchHandler(ws),
		},
		{
			Name:        types.ToolTake,
			Description: "Pick up an item at your current location.",
			InputSchema: objectSchema(map[string]any{
				"item": map[string]any{"type": "string", "description": "Name of the item to pick up"},
			}, "item"),
			Handler: takeHandler(ws),
		},
		{
			Name:        types.ToolDrop,
			Description: "Drop an item you are holding at your current location.",
			InputSchema: objectSchema(map[string]any{
				"item": map[string]any{"type": "string", "description": "Name of the held item to drop"},
			}, "item"),
			Handler: dropHandler(ws),
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// isPrecondition separates expected world-state violations from storage
// faults.
func isPrecondition(err error) bool {
	return errors.Is(err, world.ErrAvatarNotFound) ||
		errors.Is(err, world.ErrLocationUnknown) ||
		errors.Is(err, world.ErrItemNotFound) ||
		errors.Is(err, world.ErrItemHeld) ||
		errors.Is(err, world.ErrItemNotHere) ||
		errors.Is(err, world.ErrItemNotHeld)
}

func moveHandler(ws *world.Store) HandlerFunc {
	return func(ctx context.Context, avatar *world.Avatar, args map[string]any) (Outcome, error) {
		query, ok := stringArg(args, "location")
		if !ok {
			return Errorf("MOVE requires a location argument"), nil
		}

		location, err := ws.ResolveLocation(ctx, query)
		if err != nil {
			if isPrecondition(err) {
				return Errorf("no such location: %s", query), nil
			}
			return Outcome{}, err
		}
		if avatar.Location == location {
			return Errorf("%s is already at %s", avatar.Name, location), nil
		}

		if err := ws.MoveAvatar(ctx, avatar.Name, location); err != nil {
			if isPrecondition(err) {
				return Errorf("%v", err), nil
			}
			return Outcome{}, err
		}
		return Resultf("%s moves to %s.", avatar.Name, location), nil
	}
}

func useHandler(ws *world.Store, chat types.ChatClient) HandlerFunc {
	return func(ctx context.Context, avatar *world.Avatar, args map[string]any) (Outcome, error) {
		name, ok := stringArg(args, "item")
		if !ok {
			return Errorf("USE requires an item argument"), nil
		}

		item, err := ws.Item(ctx, name)
		if err != nil {
			if isPrecondition(err) {
				return Errorf("no such item: %s", name), nil
			}
			return Outcome{}, err
		}
		if item.Holder != avatar.Name {
			return Errorf("%s is not holding %s", avatar.Name, item.Name), nil
		}

		// Items with a persona speak for themselves through the backend.
		// A failure of that nested call is an outcome, not a task failure:
		// the item misbehaving is part of the fiction.
		if item.Persona != "" && chat != nil {
			resp, err := chat.Generate(ctx, types.ChatRequest{
				SystemPrompt: item.Persona,
				Messages: []types.Message{{
					Role:    types.RoleUser,
					Content: fmt.Sprintf("%s uses the %s. Describe what happens in one or two sentences.", avatar.Name, item.Name),
				}},
			})
			if err != nil {
				return Errorf("the %s does nothing: %v", item.Name, err), nil
			}
			return Outcome{Result: resp.Content}, nil
		}

		if item.Description != "" {
			return Resultf("%s uses the %s. %s", avatar.Name, item.Name, item.Description), nil
		}
		return Resultf("%s uses the %s. Nothing remarkable happens.", avatar.Name, item.Name), nil
	}
}

func searchHandler(ws *world.Store) HandlerFunc {
	return func(ctx context.Context, avatar *world.Avatar, _ map[string]any) (Outcome, error) {
		items, err := ws.ItemsAt(ctx, avatar.Location)
		if err != nil {
			return Outcome{}, err
		}
		if len(items) == 0 {
			return Resultf("%s searches %s and finds nothing.", avatar.Name, avatar.Location), nil
		}
		names := make([]string, len(items))
		for i, item := range items {
			names[i] = item.Name
		}
		return Resultf("%s searches %s and finds: %s.", avatar.Name, avatar.Location, strings.Join(names, ", ")), nil
	}
}

func takeHandler(ws *world.Store) HandlerFunc {
	return func(ctx context.Context, avatar *world.Avatar, args map[string]any) (Outcome, error) {
		name, ok := stringArg(args, "item")
		if !ok {
			return Errorf("TAKE requires an item argument"), nil
		}

		if err := ws.TakeItem(ctx, avatar.Name, name, avatar.Location); err != nil {
			if isPrecondition(err) {
				return Errorf("%s cannot take %s: %v", avatar.Name, name, err), nil
			}
			return Outcome{}, err
		}
		return Resultf("%s picks up the %s.", avatar.Name, name), nil
	}
}

func dropHandler(ws *world.Store) HandlerFunc {
	return func(ctx context.Context, avatar *world.Avatar, args map[string]any) (Outcome, error) {
		name, ok := stringArg(args, "item")
		if !ok {
			return Errorf("DROP requires an item argument"), nil
		}

		if err := ws.DropItem(ctx, avatar.Name, name, avatar.Location); err != nil {
			if isPrecondition(err) {
				return Errorf("%s cannot drop %s: %v", avatar.Name, name, err), nil
			}
			return Outcome{}, err
		}
		return Resultf("%s drops the %s.", avatar.Name, name), nil
	}
}
