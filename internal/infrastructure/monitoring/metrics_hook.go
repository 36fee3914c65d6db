package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
)

// MetricsHook instruments the agent loop with Monitor counters. Add it
// to the loop's hook chain; it observes only and never vetoes tools.
type MetricsHook struct {
	service.NoOpHook
	monitor *Monitor

	mu        sync.Mutex
	chatStart time.Time
	toolStart time.Time
}

func NewMetricsHook(monitor *Monitor) *MetricsHook {
	return &MetricsHook{monitor: monitor}
}

var _ service.RunHook = (*MetricsHook)(nil)

func (h *MetricsHook) BeforeChat(ctx context.Context, pool service.Pool, req *service.ChatRequest, turn int) {
	h.monitor.IncModelCall()
	h.mu.Lock()
	h.chatStart = time.Now()
	h.mu.Unlock()
}

func (h *MetricsHook) AfterChat(ctx context.Context, resp *service.ChatResponse, turn int) {
	h.monitor.AddTokensUsed(resp.TokensUsed)
	h.mu.Lock()
	start := h.chatStart
	h.mu.Unlock()
	if !start.IsZero() {
		h.monitor.RecordModelLatency(time.Since(start))
	}
}

func (h *MetricsHook) BeforeTool(ctx context.Context, calls []entity.ToolCall) bool {
	for range calls {
		h.monitor.IncToolCall()
	}
	h.mu.Lock()
	h.toolStart = time.Now()
	h.mu.Unlock()
	return true
}

func (h *MetricsHook) AfterTool(ctx context.Context, toolName string, output string, success bool) {
	if success {
		h.monitor.IncToolCallSuccess()
	} else {
		h.monitor.IncToolCallFailed()
	}
	h.mu.Lock()
	start := h.toolStart
	h.mu.Unlock()
	if !start.IsZero() {
		h.monitor.RecordToolLatency(time.Since(start))
	}
}

func (h *MetricsHook) OnError(ctx context.Context, err error, turn int) {
	h.monitor.IncError()
}

func (h *MetricsHook) OnComplete(ctx context.Context, result *entity.RunResult) {
	h.monitor.IncRun()
	if result.Failed {
		h.monitor.IncRunFailed()
	}
	if result.ForceStopped {
		h.monitor.IncRunForceStopped()
	}
}
