package worker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"tavern/internal/config"
	"tavern/internal/store"
	"tavern/internal/tools"
	"tavern/internal/types"
	"tavern/internal/world"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedChat plays back canned responses in order and records every
// request it sees.
type scriptedChat struct {
	responses []*types.ChatResponse
	err       error
	requests  []types.ChatRequest
}

func (s *scriptedChat) Generate(_ context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &types.ChatResponse{Content: "..."}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type fixture struct {
	store  *store.TaskStore
	world  *world.Store
	chat   *scriptedChat
	worker *Worker
}

func newFixture(t *testing.T, chat *scriptedChat) *fixture {
	t.Helper()
	dir := t.TempDir()

	ts, err := store.NewTaskStore(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("NewTaskStore: %v", err)
	}
	t.Cleanup(func() { ts.Close() })

	ws, err := world.NewStore(filepath.Join(dir, "world.db"))
	if err != nil {
		t.Fatalf("world.NewStore: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	seed := &world.SeedData{
		Locations: []world.Location{
			{Name: "The Tavern", Description: "A warm common room."},
			{Name: "The Cellar", Description: "Cold and dark."},
		},
		Avatars: []world.Avatar{{Name: "Mabel", Location: "The Tavern"}},
		Items:   []world.Item{{Name: "lantern", Location: "The Tavern"}},
	}
	if err := ws.Seed(context.Background(), seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	registry := tools.NewRegistry(ws, chat)
	w := New(ts, chat, registry, config.QueueConfig{
		PollInterval: "10ms",
		ClaimBackoff: "10ms",
	})
	return &fixture{store: ts, world: ws, chat: chat, worker: w}
}

// enqueueAndClaim creates a task and claims it, returning the claimed task.
func (f *fixture) enqueueAndClaim(t *testing.T, content string, toolNames ...types.ToolName) *store.Task {
	t.Helper()
	ctx := context.Background()

	defs := f.worker.registry.Definitions(toolNames...)
	id, err := f.store.Create(ctx, "Mabel", "test-model", "You are Mabel.",
		[]types.Message{{Role: types.RoleUser, Content: content}}, defs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	task, err := f.store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task == nil || task.ID != id {
		t.Fatalf("claimed %+v, want %s", task, id)
	}
	return task
}

func TestProcess_PlainRoundTrip(t *testing.T) {
	chat := &scriptedChat{responses: []*types.ChatResponse{{Content: "hello there"}}}
	f := newFixture(t, chat)

	task := f.enqueueAndClaim(t, "hi")
	f.worker.process(context.Background(), task)

	got, err := f.store.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed (error=%q)", got.Status, got.Error)
	}
	if got.Response != "hello there" {
		t.Errorf("response = %q", got.Response)
	}
	if len(chat.requests) != 1 {
		t.Errorf("backend calls = %d, want 1", len(chat.requests))
	}
}

func TestProcess_ToolRoundTrip(t *testing.T) {
	chat := &scriptedChat{responses: []*types.ChatResponse{
		{ToolCalls: []types.ToolCall{{
			ID:   "call_1",
			Name: types.ToolMove,
			Args: map[string]any{"location": "The Cellar"},
		}}},
		{Content: "I head down into the cellar."},
	}}
	f := newFixture(t, chat)

	task := f.enqueueAndClaim(t, "go to the cellar", types.ToolMove)
	f.worker.process(context.Background(), task)

	got, _ := f.store.Get(context.Background(), task.ID)
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %s (error=%q)", got.Status, got.Error)
	}
	if got.Response != "I head down into the cellar." {
		t.Errorf("response = %q", got.Response)
	}

	// Exactly one world mutation.
	avatar, err := f.world.Avatar(context.Background(), "Mabel")
	if err != nil {
		t.Fatalf("Avatar: %v", err)
	}
	if avatar.Location != "The Cellar" {
		t.Errorf("avatar location = %q, want The Cellar", avatar.Location)
	}

	if len(chat.requests) != 2 {
		t.Fatalf("backend calls = %d, want 2", len(chat.requests))
	}
	followUp := chat.requests[1]
	if len(followUp.Tools) != 0 {
		t.Errorf("follow-up request carries %d tools, want 0", len(followUp.Tools))
	}
	last := followUp.Messages[len(followUp.Messages)-1]
	if last.Role != types.RoleSystem || !strings.Contains(last.Content, "[tool MOVE]") {
		t.Errorf("tool outcome not folded into history: %+v", last)
	}
}

func TestProcess_ToolErrorFolded(t *testing.T) {
	chat := &scriptedChat{responses: []*types.ChatResponse{
		{ToolCalls: []types.ToolCall{{
			ID:   "call_1",
			Name: types.ToolMove,
			Args: map[string]any{"location": "Atlantis"},
		}}},
		{Content: "I look around, confused."},
	}}
	f := newFixture(t, chat)

	task := f.enqueueAndClaim(t, "go to atlantis", types.ToolMove)
	f.worker.process(context.Background(), task)

	got, _ := f.store.Get(context.Background(), task.ID)
	if got.Status != store.StatusCompleted {
		t.Fatalf("unknown location must not fail the task: status = %s (error=%q)", got.Status, got.Error)
	}
	if got.Response != "I look around, confused." {
		t.Errorf("response = %q", got.Response)
	}

	followUp := chat.requests[1]
	last := followUp.Messages[len(followUp.Messages)-1]
	if !strings.Contains(last.Content, `"error"`) {
		t.Errorf("error outcome not folded into history: %q", last.Content)
	}

	avatar, _ := f.world.Avatar(context.Background(), "Mabel")
	if avatar.Location != "The Tavern" {
		t.Errorf("avatar moved on failed tool call: %q", avatar.Location)
	}
}

func TestProcess_BackendFailure(t *testing.T) {
	chat := &scriptedChat{err: errors.New("backend unreachable")}
	f := newFixture(t, chat)

	task := f.enqueueAndClaim(t, "hi")
	f.worker.process(context.Background(), task)

	got, _ := f.store.Get(context.Background(), task.ID)
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "backend unreachable") {
		t.Errorf("error = %q", got.Error)
	}
}

func TestProcess_FollowUpToolCallsIgnored(t *testing.T) {
	chat := &scriptedChat{responses: []*types.ChatResponse{
		{ToolCalls: []types.ToolCall{{
			ID:   "call_1",
			Name: types.ToolSearch,
			Args: map[string]any{},
		}}},
		{
			Content: "I see a lantern.",
			ToolCalls: []types.ToolCall{{
				ID:   "call_2",
				Name: types.ToolTake,
				Args: map[string]any{"item": "lantern"},
			}},
		},
	}}
	f := newFixture(t, chat)

	task := f.enqueueAndClaim(t, "look around", types.ToolSearch)
	f.worker.process(context.Background(), task)

	got, _ := f.store.Get(context.Background(), task.ID)
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %s (error=%q)", got.Status, got.Error)
	}
	if got.Response != "I see a lantern." {
		t.Errorf("response = %q", got.Response)
	}

	// The follow-up TAKE must not have run.
	item, err := f.world.Item(context.Background(), "lantern")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Holder != "" {
		t.Errorf("follow-up tool call executed: lantern held by %q", item.Holder)
	}
	if len(chat.requests) != 2 {
		t.Errorf("backend calls = %d, want 2", len(chat.requests))
	}
}

func TestRun_ProcessesAndStops(t *testing.T) {
	chat := &scriptedChat{responses: []*types.ChatResponse{{Content: "done"}}}
	f := newFixture(t, chat)

	id, err := f.store.Create(context.Background(), "Mabel", "test-model", "s",
		[]types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		got, err := f.store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == store.StatusCompleted {
			if got.Response != "done" {
				t.Errorf("response = %q", got.Response)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task never completed, status = %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
