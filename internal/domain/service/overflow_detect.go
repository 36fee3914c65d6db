package service

import (
	"strings"

	apperrors "github.com/ghostagent/ghost/pkg/errors"
)

// IsContextOverflowError reports whether an upstream failure means the
// prompt no longer fits the node's context window. llama.cpp answers
// these with a 400 whose body mentions the context; proxy layers use
// their own phrasing, so the match is deliberately broad.
func IsContextOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsContextOverflow(err) {
		return true
	}
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "context length exceeded") ||
		strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "exceeds model context window") ||
		strings.Contains(msg, "context overflow") ||
		strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "request_too_large") ||
		(strings.Contains(msg, "status 400") && strings.Contains(msg, "context")) ||
		(strings.Contains(msg, "413") && strings.Contains(msg, "too large"))
}
