package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"go.uber.org/zap"
)

// BudgetHook enforces per-run token and wall-clock budgets. Once either
// budget is blown it vetoes further tool batches, which forces the loop
// to synthesize a final answer from what it has.
type BudgetHook struct {
	NoOpHook

	maxTokens   int64
	maxDuration time.Duration
	tokens      atomic.Int64
	start       time.Time
	tripped     atomic.Bool
	logger      *zap.Logger
}

func NewBudgetHook(maxTokens int64, maxDuration time.Duration, logger *zap.Logger) *BudgetHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetHook{
		maxTokens:   maxTokens,
		maxDuration: maxDuration,
		start:       time.Now(),
		logger:      logger.With(zap.String("component", "budget-hook")),
	}
}

func (h *BudgetHook) AfterChat(_ context.Context, resp *ChatResponse, _ int) {
	if resp == nil {
		return
	}
	total := h.tokens.Add(int64(resp.TokensUsed))
	if h.maxTokens > 0 && total > h.maxTokens && h.tripped.CompareAndSwap(false, true) {
		h.logger.Warn("Token budget exceeded",
			zap.Int64("used", total),
			zap.Int64("max", h.maxTokens))
	}
}

func (h *BudgetHook) BeforeTool(_ context.Context, _ []entity.ToolCall) bool {
	if h.tripped.Load() {
		return false
	}
	if h.maxDuration > 0 && time.Since(h.start) > h.maxDuration {
		if h.tripped.CompareAndSwap(false, true) {
			h.logger.Warn("Time budget exceeded",
				zap.Duration("elapsed", time.Since(h.start)),
				zap.Duration("max", h.maxDuration))
		}
		return false
	}
	return true
}

// Usage reports consumed tokens and elapsed wall-clock time.
func (h *BudgetHook) Usage() (tokens int64, elapsed time.Duration) {
	return h.tokens.Load(), time.Since(h.start)
}

// Tripped reports whether either budget has been exceeded.
func (h *BudgetHook) Tripped() bool {
	return h.tripped.Load()
}
