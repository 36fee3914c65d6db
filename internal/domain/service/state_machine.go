package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunState is one phase of a reasoning session.
type RunState string

const (
	StateIdle       RunState = "idle"       // waiting for the first turn
	StatePlanning   RunState = "planning"   // strategic cortex call in flight
	StateResponding RunState = "responding" // responder model call in flight
	StateToolExec   RunState = "tool_exec"  // dispatching requested tools
	StatePruning    RunState = "pruning"    // emergency context prune after overflow
	StateComplete   RunState = "complete"   //
	StateError      RunState = "error"      //
	StateAborted    RunState = "aborted"    // cancelled by caller or context
)

// validTransitions maps each phase to its legal successors.
var validTransitions = map[RunState]map[RunState]bool{
	StateIdle: {
		StatePlanning:   true,
		StateResponding: true,
		StateAborted:    true,
	},
	StatePlanning: {
		StateResponding: true,
		StatePruning:    true,
		StateComplete:   true,
		StateError:      true,
		StateAborted:    true,
	},
	StateResponding: {
		StateToolExec: true,
		StatePruning:  true,
		StatePlanning: true,
		StateComplete: true,
		StateError:    true,
		StateAborted:  true,
	},
	StateToolExec: {
		StatePlanning:   true,
		StateResponding: true,
		StateComplete:   true,
		StateError:      true,
		StateAborted:    true,
	},
	StatePruning: {
		StateResponding: true,
		StatePlanning:   true,
		StateError:      true,
		StateAborted:    true,
	},
	// terminal
	StateComplete: {},
	StateError:    {},
	StateAborted:  {},
}

// StateSnapshot captures the run's counters at a point in time.
type StateSnapshot struct {
	State         RunState      `json:"state"`
	Turn          int           `json:"turn"`
	MaxTurns      int           `json:"max_turns"`
	TokensUsed    int           `json:"tokens_used"`
	ToolsExecuted int           `json:"tools_executed"`
	PruneCount    int           `json:"prune_count"`
	ErrorCount    int           `json:"error_count"`
	Elapsed       time.Duration `json:"elapsed"`
	ModelUsed     string        `json:"model_used,omitempty"`
	LastTool      string        `json:"last_tool,omitempty"`
}

// StateMachine tracks the phase of one run. Reads are safe from any
// goroutine; listeners fire outside the lock.
type StateMachine struct {
	mu            sync.RWMutex
	state         RunState
	turn          int
	maxTurns      int
	tokensUsed    int
	toolsExecuted int
	pruneCount    int
	errorCount    int
	startTime     time.Time
	modelUsed     string
	lastTool      string
	logger        *zap.Logger

	listeners []func(from, to RunState, snap StateSnapshot)
}

func NewStateMachine(maxTurns int, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{
		state:     StateIdle,
		maxTurns:  maxTurns,
		startTime: time.Now(),
		logger:    logger,
	}
}

func (sm *StateMachine) State() RunState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

func (sm *StateMachine) Snapshot() StateSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:         sm.state,
		Turn:          sm.turn,
		MaxTurns:      sm.maxTurns,
		TokensUsed:    sm.tokensUsed,
		ToolsExecuted: sm.toolsExecuted,
		PruneCount:    sm.pruneCount,
		ErrorCount:    sm.errorCount,
		Elapsed:       time.Since(sm.startTime),
		ModelUsed:     sm.modelUsed,
		LastTool:      sm.lastTool,
	}
}

// Transition moves to a new phase, rejecting moves the lifecycle does
// not allow.
func (sm *StateMachine) Transition(to RunState) error {
	sm.mu.Lock()
	from := sm.state

	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		err := fmt.Errorf("invalid state transition: %s -> %s", from, to)
		sm.logger.Error("State machine violation", zap.Error(err))
		return err
	}

	sm.state = to
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to RunState, snap StateSnapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Debug("State transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("turn", snap.Turn),
	)
	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// OnTransition registers a listener called on every phase change.
func (sm *StateMachine) OnTransition(fn func(from, to RunState, snap StateSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

func (sm *StateMachine) SetTurn(turn int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.turn = turn
}

func (sm *StateMachine) AddTokens(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tokensUsed += n
}

func (sm *StateMachine) RecordToolExec(toolName string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.toolsExecuted++
	sm.lastTool = toolName
}

func (sm *StateMachine) RecordPrune() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.pruneCount++
}

func (sm *StateMachine) RecordError() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.errorCount++
}

func (sm *StateMachine) SetModel(model string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.modelUsed = model
}

func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	switch sm.state {
	case StateComplete, StateError, StateAborted:
		return true
	}
	return false
}
