package service

import (
	"context"
	"sync"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// Approval modes for mutating tool calls.
const (
	ApprovalAuto        = "auto"
	ApprovalAskMutating = "ask_mutating"
	ApprovalAskAll      = "ask_all"
)

// ApprovalFunc requests out-of-band confirmation for a tool batch. It
// blocks until a decision arrives or the context is cancelled.
type ApprovalFunc func(ctx context.Context, calls []entity.ToolCall) (bool, error)

// ApprovalHook gates tool execution behind user confirmation. In auto
// mode everything passes; ask_mutating asks only when the batch contains
// a mutating tool; ask_all asks for every non-trusted batch.
type ApprovalHook struct {
	NoOpHook

	mu       sync.RWMutex
	mode     string
	trusted  map[string]bool
	mutators map[tool.Kind]bool
	registry tool.Registry
	approve  ApprovalFunc
	logger   *zap.Logger
}

func NewApprovalHook(mode string, trusted []string, registry tool.Registry, approve ApprovalFunc, logger *zap.Logger) *ApprovalHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	trustedSet := make(map[string]bool, len(trusted))
	for _, name := range trusted {
		trustedSet[name] = true
	}
	return &ApprovalHook{
		mode:     mode,
		trusted:  trustedSet,
		mutators: tool.MutatorKinds,
		registry: registry,
		approve:  approve,
		logger:   logger.With(zap.String("component", "approval-hook")),
	}
}

func (h *ApprovalHook) BeforeTool(ctx context.Context, calls []entity.ToolCall) bool {
	h.mu.RLock()
	mode := h.mode
	approve := h.approve
	h.mu.RUnlock()

	if mode == ApprovalAuto || approve == nil {
		return true
	}
	if !h.needsApproval(mode, calls) {
		return true
	}

	approved, err := approve(ctx, calls)
	if err != nil {
		h.logger.Error("Approval request failed", zap.Error(err))
		return false
	}
	if !approved {
		h.logger.Info("Tool batch denied", zap.Int("calls", len(calls)))
	}
	return approved
}

func (h *ApprovalHook) needsApproval(mode string, calls []entity.ToolCall) bool {
	for _, call := range calls {
		name := call.Function.Name
		if h.trusted[name] {
			continue
		}
		if mode == ApprovalAskAll {
			return true
		}
		if h.isMutating(name) {
			return true
		}
	}
	return false
}

func (h *ApprovalHook) isMutating(name string) bool {
	if h.registry == nil {
		return true
	}
	t, ok := h.registry.Get(name)
	if !ok {
		return true
	}
	return h.mutators[t.Kind()]
}

// SetMode changes the approval mode at runtime.
func (h *ApprovalHook) SetMode(mode string) {
	h.mu.Lock()
	h.mode = mode
	h.mu.Unlock()
}

// Trust marks a tool as pre-approved.
func (h *ApprovalHook) Trust(name string) {
	h.mu.Lock()
	h.trusted[name] = true
	h.mu.Unlock()
}

// Untrust removes a tool from the pre-approved set.
func (h *ApprovalHook) Untrust(name string) {
	h.mu.Lock()
	delete(h.trusted, name)
	h.mu.Unlock()
}

// SetApprovalFunc injects the confirmation callback after transport
// wiring completes.
func (h *ApprovalHook) SetApprovalFunc(fn ApprovalFunc) {
	h.mu.Lock()
	h.approve = fn
	h.mu.Unlock()
}
