package service

import (
	"context"
)

// PromptProvider supplies the prompt texts the loop and its background
// jobs inject. The infrastructure prompt package implements it.
type PromptProvider interface {
	// System returns the persona prompt for the intent with the profile
	// and playbook context already substituted in.
	System(intent Intent, profile, playbook string) string
	// Planner returns the strategic cortex system prompt.
	Planner() string
	// Critic returns the pre-execution code auditor prompt.
	Critic() string
	// SmartMemory returns the fact extraction gate prompt.
	SmartMemory() string
	// PostMortem returns the lesson extraction prompt.
	PostMortem() string
	// PerfectIt returns the final revision pass prompt.
	PerfectIt() string
	// Dream returns the memory consolidation prompt.
	Dream() string
	// SelfPlayChallenge returns the synthetic curriculum generator prompt.
	SelfPlayChallenge() string
	// Judge returns the self-play evaluation prompt.
	Judge() string
	// PlaybookCompression returns the playbook merge prompt.
	PlaybookCompression() string
}

// PlaybookLesson is one entry of the skills playbook.
type PlaybookLesson struct {
	Timestamp string `json:"timestamp"`
	Task      string `json:"task"`
	Mistake   string `json:"mistake"`
	Solution  string `json:"solution"`
}

// PlaybookAdmin extends PlaybookSource with the bulk operations the
// dream cycle needs.
type PlaybookAdmin interface {
	PlaybookSource
	Snapshot() []PlaybookLesson
	Replace(lessons []PlaybookLesson)
	RecentFailures() string
}

// ProfileSource is the loop's view of the persistent user profile.
type ProfileSource interface {
	ContextString() string
	Update(category, key, value string) (string, error)
}

// PlaybookSource retrieves lessons relevant to the live request.
type PlaybookSource interface {
	Context(ctx context.Context, query string) string
	LearnLesson(task, mistake, solution string)
}

// ScratchSource renders the shared scratchpad into prompt context.
type ScratchSource interface {
	StateString() string
}

// EventSink receives run lifecycle notifications. The eventbus adapter
// implements it; a nil sink disables publication.
type EventSink interface {
	RunStarted(requestID string, intent string)
	RunTurn(requestID string, turn int, state string)
	ToolExecuted(requestID, toolName string, success bool)
	RunFinished(requestID string, failed bool, turns int)
}
