package context

import (
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/entity"
)

func TestEstimateText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"Empty", "", 0},
		{"Short", "abc", 2},
		{"Thirty bytes", strings.Repeat("x", 30), 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateText(tt.text); got != tt.want {
				t.Errorf("EstimateText(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateMessageCountsToolCalls(t *testing.T) {
	plain := entity.UserMessage("hello")
	withCall := entity.Message{
		Role: "assistant",
		ToolCalls: []entity.ToolCall{
			{ID: "call_1", Type: "function", Function: entity.ToolCallFunc{
				Name:      "file_system",
				Arguments: `{"operation":"read","path":"main.go"}`,
			}},
		},
	}

	if EstimateMessage(withCall) <= EstimateMessage(plain) {
		t.Error("Expected tool call payload to add to the estimate")
	}
}

func TestWindowKeepsSystemAndTail(t *testing.T) {
	w := NewWindow(WindowConfig{MaxContext: 300, Buffer: 50, KeepRecent: 4})

	messages := []entity.Message{
		entity.SystemMessage("You are Ghost."),
	}
	for i := 0; i < 30; i++ {
		messages = append(messages, entity.UserMessage(strings.Repeat("question ", 10)))
		messages = append(messages, entity.AssistantMessage(strings.Repeat("answer ", 10)))
	}

	result := w.Apply(messages)

	if len(result) >= len(messages) {
		t.Fatalf("Expected pruning, got %d of %d messages", len(result), len(messages))
	}
	if result[0].Role != "system" {
		t.Errorf("Expected system message pinned first, got role %q", result[0].Role)
	}
	last := result[len(result)-1]
	origLast := messages[len(messages)-1]
	if last.Content != origLast.Content {
		t.Error("Expected the newest message to survive the window")
	}
}

func TestWindowKeepsLiveMessageOverBudget(t *testing.T) {
	w := NewWindow(WindowConfig{MaxContext: 60, Buffer: 10, KeepRecent: 4})

	huge := entity.UserMessage(strings.Repeat("data ", 200))
	result := w.Apply([]entity.Message{entity.UserMessage("old"), huge})

	if len(result) != 1 {
		t.Fatalf("Expected only the live message, got %d", len(result))
	}
	if result[0].Content != huge.Content {
		t.Error("Expected the live message to survive even over budget")
	}
}

func TestEmergencyPrune(t *testing.T) {
	w := NewWindow(DefaultWindowConfig())

	messages := []entity.Message{entity.SystemMessage("sys")}
	for i := 0; i < 10; i++ {
		messages = append(messages, entity.UserMessage("turn"))
	}

	result := w.EmergencyPrune(messages)

	if len(result) != 5 {
		t.Fatalf("Expected system + last 4, got %d messages", len(result))
	}
	if result[0].Role != "system" {
		t.Errorf("Expected system first, got %q", result[0].Role)
	}
}

func TestWindowRepairsBrokenPairs(t *testing.T) {
	w := NewWindow(WindowConfig{MaxContext: 100, Buffer: 10, KeepRecent: 4})

	messages := []entity.Message{
		{Role: "assistant", ToolCalls: []entity.ToolCall{
			{ID: "call_old", Type: "function", Function: entity.ToolCallFunc{Name: "web_search", Arguments: `{"query":"` + strings.Repeat("q", 400) + `"}`}},
		}},
		entity.ToolMessage("call_old", "web_search", strings.Repeat("result ", 50)),
		entity.UserMessage("now something small"),
		entity.AssistantMessage("done"),
	}

	result := w.Apply(messages)
	for _, m := range result {
		if m.Role == "tool" && m.ToolCallID == "call_old" {
			// the assistant call must have survived too
			found := false
			for _, o := range result {
				for _, tc := range o.ToolCalls {
					if tc.ID == "call_old" {
						found = true
					}
				}
			}
			if !found {
				t.Error("Tool result kept without its originating call")
			}
		}
	}
}
