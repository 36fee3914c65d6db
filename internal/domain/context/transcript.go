package context

import (
	"fmt"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
)

const (
	transcriptMaxMessages = 40
	transcriptMaxChars    = 500
)

// FormatTranscript renders the dialog tail for planner consumption:
// the last 40 non-system messages, each capped at 500 chars.
func FormatTranscript(messages []entity.Message) string {
	var dialog []entity.Message
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		dialog = append(dialog, m)
	}

	start := len(dialog) - transcriptMaxMessages
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, m := range dialog[start:] {
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			names := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				names = append(names, tc.Function.Name)
			}
			content = "(calling: " + strings.Join(names, ", ") + ")"
		}
		if len(content) > transcriptMaxChars {
			content = content[:transcriptMaxChars]
		}
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RecentToolOutputs returns up to the last n tool results, each capped,
// for the planner's situational context.
func RecentToolOutputs(messages []entity.Message, n, maxChars int) []string {
	var outputs []string
	for i := len(messages) - 1; i >= 0 && len(outputs) < n; i-- {
		if messages[i].Role != "tool" {
			continue
		}
		out := messages[i].Content
		if len(out) > maxChars {
			out = out[:maxChars]
		}
		outputs = append(outputs, fmt.Sprintf("TOOL %s => %s", messages[i].Name, out))
	}
	// restore chronological order
	for i, j := 0, len(outputs)-1; i < j; i, j = i+1, j-1 {
		outputs[i], outputs[j] = outputs[j], outputs[i]
	}
	return outputs
}
