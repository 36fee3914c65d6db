package entity

import "time"

// RunRequest describes one reasoning session handed to the agent loop.
type RunRequest struct {
	RequestID  string
	Messages   []Message // full conversation, last entry is the live user turn
	Stream     bool
	Background bool // scheduler-originated run, notification delivery disabled
	NoMemory   bool // skip the memory writer for this run
	PerfectIt  bool // run the revision pass over the final answer
}

// RunResult is the outcome of a reasoning session.
type RunResult struct {
	FinalContent string
	Turns        int
	TokensUsed   int
	ToolsUsed    []string
	Intent       string
	ForceStopped bool // redundancy guard tripped three strikes
	Failed       bool // drives the post-mortem lesson
	Duration     time.Duration
}
