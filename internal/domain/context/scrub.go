package context

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/google/uuid"
)

var (
	thinkBlockRe      = regexp.MustCompile(`(?s)<think>.*?</think>`)
	openThinkRe       = regexp.MustCompile(`(?s)<think>.*$`)
	toolCallBlockRe   = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)
	partialToolCallRe = regexp.MustCompile(`(?s)<tool_call>.*$`)

	toolResponseRe     = regexp.MustCompile(`(?s)<tool_response>.*?</tool_response>`)
	openToolResponseRe = regexp.MustCompile(`(?s)<tool_response>.*$`)
	toolsBlockRe       = regexp.MustCompile(`(?s)<tools>.*?</tools>`)
	execBannerRe       = regexp.MustCompile(`(?m)^-{2,}\s*EXECUTION RESULT.*$`)
	treeLineRe         = regexp.MustCompile(`(?m)^\s*-\s*\[(PENDING|ACTIVE|DONE|FAILED|BLOCKED)\]\s.*$`)
	headerLineRe       = regexp.MustCompile(`(?m)^\s*(FOCUS TASK|PLAN|THOUGHT|PLANNER THOUGHT|CRITICAL INSTRUCTION)\s*:.*$`)
	schemaDumpRe       = regexp.MustCompile(`(?m)^\s*\{"type":\s*"function".*$`)
	blankRunRe         = regexp.MustCompile(`\n{3,}`)
)

// Lines opening with these are system-prompt bleed: the model echoed
// part of its tool harness back as prose.
var bleedPrefixes = []string{
	"# Tools",
	"<tools>",
	"You may call one or more functions",
}

// Scrub strips reasoning and protocol artifacts that small models leak
// into plain content: think blocks and stray closing tags, tool-call and
// tool-response fragments, echoed tool-schema bleed, execution-result
// banners, and rendered plan lines or headers from the directive block.
func Scrub(content string) string {
	out := thinkBlockRe.ReplaceAllString(content, "")
	out = openThinkRe.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "</think>", "")
	out = partialToolCallRe.ReplaceAllString(out, "")
	out = toolResponseRe.ReplaceAllString(out, "")
	out = openToolResponseRe.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "</tool_response>", "")
	out = toolsBlockRe.ReplaceAllString(out, "")
	out = execBannerRe.ReplaceAllString(out, "")
	out = treeLineRe.ReplaceAllString(out, "")
	out = headerLineRe.ReplaceAllString(out, "")
	out = schemaDumpRe.ReplaceAllString(out, "")
	out = dropBleedLines(out)
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func dropBleedLines(s string) string {
	if !strings.Contains(s, "#") && !strings.Contains(s, "<tools>") && !strings.Contains(s, "You may call") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		bleed := false
		for _, prefix := range bleedPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				bleed = true
				break
			}
		}
		if !bleed {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

type inlineToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// HealToolCallSyntax promotes well-formed <tool_call>{...}</tool_call>
// blocks embedded in assistant content into real tool calls. Models that
// miss the native tool-call channel still get their intent executed.
// Malformed blocks are left for Scrub to remove.
func HealToolCallSyntax(m *entity.Message) bool {
	if m.Role != "assistant" || len(m.ToolCalls) > 0 {
		return false
	}

	matches := toolCallBlockRe.FindAllStringSubmatch(m.Content, -1)
	if len(matches) == 0 {
		return false
	}

	var promoted []entity.ToolCall
	for _, match := range matches {
		var call inlineToolCall
		if err := json.Unmarshal([]byte(match[1]), &call); err != nil || call.Name == "" {
			continue
		}
		args := "{}"
		if len(call.Arguments) > 0 {
			args = string(call.Arguments)
		}
		promoted = append(promoted, entity.ToolCall{
			ID:   "call_" + uuid.NewString()[:8],
			Type: "function",
			Function: entity.ToolCallFunc{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}

	if len(promoted) == 0 {
		return false
	}

	m.ToolCalls = promoted
	m.Content = Scrub(toolCallBlockRe.ReplaceAllString(m.Content, ""))
	return true
}

// RepairToolPairs drops tool results whose originating assistant call was
// pruned away, and strips tool_calls from assistant messages whose results
// no longer follow. Upstreams reject transcripts with either orphan.
func RepairToolPairs(messages []entity.Message) []entity.Message {
	callIDs := make(map[string]bool)
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			callIDs[tc.ID] = true
		}
	}

	answered := make(map[string]bool)
	for _, m := range messages {
		if m.Role == "tool" && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	result := make([]entity.Message, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == "tool":
			if m.ToolCallID == "" || !callIDs[m.ToolCallID] {
				continue
			}
			result = append(result, m)
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			kept := make([]entity.ToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if answered[tc.ID] {
					kept = append(kept, tc)
				}
			}
			if len(kept) == 0 {
				// tool results gone: demote to a plain assistant turn
				m.ToolCalls = nil
				if strings.TrimSpace(m.Content) == "" {
					continue
				}
			} else {
				m.ToolCalls = kept
			}
			result = append(result, m)
		default:
			result = append(result, m)
		}
	}
	return result
}
