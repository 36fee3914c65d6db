package context

import "github.com/ghostagent/ghost/internal/domain/entity"

// Token estimation without a tokenizer dependency. llama.cpp tokenizers
// average roughly 3 bytes per token on mixed English/code text, so len/3
// is a usable upper-leaning estimate.

const (
	bytesPerToken      = 3
	perMessageOverhead = 4  // role framing and separators
	perToolCallExtra   = 8  // call id and function wrapper
)

// EstimateText estimates the token count of a raw string.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/bytesPerToken + 1
}

// EstimateMessage estimates one message including tool call payloads.
func EstimateMessage(m entity.Message) int {
	total := EstimateText(m.Content) + perMessageOverhead
	for _, tc := range m.ToolCalls {
		total += EstimateText(tc.Function.Name) + EstimateText(tc.Function.Arguments) + perToolCallExtra
	}
	return total
}

// EstimateMessages estimates a full transcript.
func EstimateMessages(msgs []entity.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(m)
	}
	return total
}
