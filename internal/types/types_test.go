package types

import "testing"

func TestParseToolName_KnownNames(t *testing.T) {
	cases := map[string]ToolName{
		"MOVE":   ToolMove,
		"USE":    ToolUse,
		"SEARCH": ToolSearch,
		"TAKE":   ToolTake,
		"DROP":   ToolDrop,
	}
	for raw, want := range cases {
		if got := ParseToolName(raw); got != want {
			t.Errorf("ParseToolName(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParseToolName_Unknown(t *testing.T) {
	for _, raw := range []string{"", "move", "FLY", "TAKE_ALL"} {
		if got := ParseToolName(raw); got != ToolUnknown {
			t.Errorf("ParseToolName(%q) = %q, want ToolUnknown", raw, got)
		}
	}
}

func TestChatResponse_HasToolCalls(t *testing.T) {
	resp := &ChatResponse{Content: "hello"}
	if resp.HasToolCalls() {
		t.Error("expected no tool calls")
	}
	resp.ToolCalls = []ToolCall{{Name: ToolSearch}}
	if !resp.HasToolCalls() {
		t.Error("expected tool calls")
	}
}
