package service

import (
	"context"

	"github.com/ghostagent/ghost/internal/domain/entity"
)

// RunHook receives lifecycle callbacks from the agent loop. All methods
// are optional; embed NoOpHook and override what you need. Hooks run
// synchronously on the loop goroutine, so keep them fast.
type RunHook interface {
	// BeforeChat fires before each upstream chat call.
	BeforeChat(ctx context.Context, pool Pool, req *ChatRequest, turn int)

	// AfterChat fires after each successful upstream reply.
	AfterChat(ctx context.Context, resp *ChatResponse, turn int)

	// BeforeTool fires before a tool batch executes. Returning false
	// vetoes the whole batch.
	BeforeTool(ctx context.Context, calls []entity.ToolCall) bool

	// AfterTool fires per tool result.
	AfterTool(ctx context.Context, toolName string, output string, success bool)

	// OnError fires when the loop records a failure.
	OnError(ctx context.Context, err error, turn int)

	// OnComplete fires once per run with the final result.
	OnComplete(ctx context.Context, result *entity.RunResult)

	// OnStateChange mirrors the state machine transitions.
	OnStateChange(from, to RunState, snap StateSnapshot)
}

// NoOpHook is the embeddable default implementation.
type NoOpHook struct{}

func (NoOpHook) BeforeChat(context.Context, Pool, *ChatRequest, int)       {}
func (NoOpHook) AfterChat(context.Context, *ChatResponse, int)            {}
func (NoOpHook) BeforeTool(context.Context, []entity.ToolCall) bool       { return true }
func (NoOpHook) AfterTool(context.Context, string, string, bool)          {}
func (NoOpHook) OnError(context.Context, error, int)                      {}
func (NoOpHook) OnComplete(context.Context, *entity.RunResult)            {}
func (NoOpHook) OnStateChange(RunState, RunState, StateSnapshot)          {}

// HookChain fans callbacks out to every registered hook in order.
type HookChain struct {
	hooks []RunHook
}

func NewHookChain(hooks ...RunHook) *HookChain {
	return &HookChain{hooks: hooks}
}

func (c *HookChain) Add(h RunHook) {
	c.hooks = append(c.hooks, h)
}

func (c *HookChain) BeforeChat(ctx context.Context, pool Pool, req *ChatRequest, turn int) {
	for _, h := range c.hooks {
		h.BeforeChat(ctx, pool, req, turn)
	}
}

func (c *HookChain) AfterChat(ctx context.Context, resp *ChatResponse, turn int) {
	for _, h := range c.hooks {
		h.AfterChat(ctx, resp, turn)
	}
}

func (c *HookChain) BeforeTool(ctx context.Context, calls []entity.ToolCall) bool {
	for _, h := range c.hooks {
		if !h.BeforeTool(ctx, calls) {
			return false // any hook can veto
		}
	}
	return true
}

func (c *HookChain) AfterTool(ctx context.Context, toolName string, output string, success bool) {
	for _, h := range c.hooks {
		h.AfterTool(ctx, toolName, output, success)
	}
}

func (c *HookChain) OnError(ctx context.Context, err error, turn int) {
	for _, h := range c.hooks {
		h.OnError(ctx, err, turn)
	}
}

func (c *HookChain) OnComplete(ctx context.Context, result *entity.RunResult) {
	for _, h := range c.hooks {
		h.OnComplete(ctx, result)
	}
}

func (c *HookChain) OnStateChange(from, to RunState, snap StateSnapshot) {
	for _, h := range c.hooks {
		h.OnStateChange(from, to, snap)
	}
}

// Compile-time check: HookChain implements RunHook
var _ RunHook = (*HookChain)(nil)

// CountingHook tracks call counts, mostly for tests and the /metrics
// endpoint.
type CountingHook struct {
	NoOpHook
	ChatCalls int
	ToolCalls int
	Errors    int
}

func (h *CountingHook) AfterChat(context.Context, *ChatResponse, int)   { h.ChatCalls++ }
func (h *CountingHook) AfterTool(context.Context, string, string, bool) { h.ToolCalls++ }
func (h *CountingHook) OnError(context.Context, error, int)             { h.Errors++ }
