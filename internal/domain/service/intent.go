package service

import (
	"regexp"
	"strings"
)

// Intent is the coarse classification of the live user turn. It selects
// the persona prompt and the base sampling temperature for the run.
type Intent string

const (
	IntentConversational Intent = "conversational"
	IntentCoding         Intent = "coding"
	IntentDBA            Intent = "dba"
	IntentMeta           Intent = "meta"
	IntentAction         Intent = "action"
)

var (
	codingPattern = regexp.MustCompile(`(?i)\b(python|javascript|typescript|golang|script|code|coding|function|class|debug|bug|compile|refactor|algorithm|regex|program|html|css|json|api|library|install|pip|npm)\b`)
	dbaPattern    = regexp.MustCompile(`(?i)\b(sql|postgres|postgresql|database|query|queries|index|explain analyze|vacuum|schema|table|jsonb|cte|pg_stat)\b`)
	metaPattern   = regexp.MustCompile(`(?i)\b(learn|skill|lesson|playbook|profile|remember me|my name|forget|memory|memorize)\b`)
	actionPattern = regexp.MustCompile(`(?i)\b(create|make|build|write|download|fetch|search|run|execute|schedule|delete|move|rename|list|install|deploy|analyze|scrape|ingest|check)\b`)

	// Pure arithmetic looks like coding to the keyword net but needs no
	// specialist persona or sandbox at all.
	arithmeticPattern = regexp.MustCompile(`^[\s\d\+\-\*/\(\)\.\^%=xX?]+$`)
	arithmeticAsk     = regexp.MustCompile(`(?i)^(what\s+is|what's|calculate|compute|solve)?\s*[\d\s\+\-\*/\(\)\.\^%]+[\s?]*$`)
)

// ClassifyIntent inspects the live user turn. Specialist matches win over
// the generic action-verb net; anything else is conversational.
func ClassifyIntent(userTurn string) Intent {
	text := strings.TrimSpace(userTurn)
	if text == "" {
		return IntentConversational
	}
	if arithmeticPattern.MatchString(text) || arithmeticAsk.MatchString(text) {
		return IntentConversational
	}
	if dbaPattern.MatchString(text) {
		return IntentDBA
	}
	if codingPattern.MatchString(text) {
		return IntentCoding
	}
	if metaPattern.MatchString(text) {
		return IntentMeta
	}
	if actionPattern.MatchString(text) {
		return IntentAction
	}
	return IntentConversational
}

// BaseTemperature returns the sampling temperature the intent starts at.
// Specialist intents run cold; conversation keeps the configured default
// but never below 0.7 so replies stay natural.
func BaseTemperature(intent Intent, configured float64) float64 {
	switch intent {
	case IntentDBA:
		return 0.15
	case IntentCoding:
		return 0.2
	case IntentConversational:
		if configured < 0.7 {
			return 0.7
		}
		return configured
	default:
		return configured
	}
}

// EscalateTemperature widens sampling after repeated failures so the
// model stops resubmitting the same broken attempt. The ladder is
// 0.40, 0.60, then +0.1 per further failure capped at 0.80.
func EscalateTemperature(current float64, failures int) float64 {
	switch {
	case failures <= 0:
		return current
	case failures == 1:
		if current < 0.40 {
			return 0.40
		}
		return current
	case failures == 2:
		if current < 0.60 {
			return 0.60
		}
		return current
	default:
		next := current + 0.1
		if next > 0.80 {
			return 0.80
		}
		return next
	}
}
