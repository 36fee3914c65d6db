package tool

import (
	"context"
	"fmt"
	"strings"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// DreamRunner is the dream cycle surface the meta tools trigger.
type DreamRunner interface {
	Dream(ctx context.Context) (string, error)
	SelfPlay(ctx context.Context) (string, error)
}

// ReplanTool signals a strategy reset. It does nothing itself; the
// output lands in the transcript where the next planner turn reads it.
type ReplanTool struct{}

func NewReplanTool() *ReplanTool { return &ReplanTool{} }

func (t *ReplanTool) Name() string          { return "replan" }
func (t *ReplanTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ReplanTool) Description() string {
	return "Abandon the current strategy and force a fresh plan. Use when the approach is clearly not working."
}

func (t *ReplanTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reason": map[string]interface{}{
				"type":        "string",
				"description": "Why the current strategy failed.",
			},
		},
		"required": []string{"reason"},
	}
}

func (t *ReplanTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	reason := strings.TrimSpace(strArg(args, "reason"))
	if reason == "" {
		return fail("Error: 'reason' parameter is required")
	}
	return ok(fmt.Sprintf(
		"Strategy Reset Triggered. Reason: %s\nSYSTEM: The planner sees this and should update the TaskTree accordingly.", reason))
}

// DreamModeTool triggers a memory consolidation cycle on demand.
type DreamModeTool struct {
	dreamer DreamRunner
	logger  *zap.Logger
}

func NewDreamModeTool(dreamer DreamRunner, logger *zap.Logger) *DreamModeTool {
	return &DreamModeTool{
		dreamer: dreamer,
		logger:  logger.With(zap.String("tool", "dream_mode")),
	}
}

func (t *DreamModeTool) Name() string          { return "dream_mode" }
func (t *DreamModeTool) Kind() domaintool.Kind { return domaintool.KindMemory }
func (t *DreamModeTool) Description() string {
	return "Run a dream cycle: consolidate fragmented memories and extract heuristics from recent activity."
}

func (t *DreamModeTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *DreamModeTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	report, err := t.dreamer.Dream(ctx)
	if err != nil {
		return fail("Error: dream cycle failed: %v", err)
	}
	return ok(report)
}

// SelfPlayTool triggers one synthetic training round.
type SelfPlayTool struct {
	dreamer DreamRunner
	logger  *zap.Logger
}

func NewSelfPlayTool(dreamer DreamRunner, logger *zap.Logger) *SelfPlayTool {
	return &SelfPlayTool{
		dreamer: dreamer,
		logger:  logger.With(zap.String("tool", "self_play")),
	}
}

func (t *SelfPlayTool) Name() string          { return "self_play" }
func (t *SelfPlayTool) Kind() domaintool.Kind { return domaintool.KindMemory }
func (t *SelfPlayTool) Description() string {
	return "Run a self-play training round: generate a challenge targeting recent weaknesses, attempt it, and learn from the judge's verdict."
}

func (t *SelfPlayTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *SelfPlayTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	report, err := t.dreamer.SelfPlay(ctx)
	if err != nil {
		return fail("Error: self-play round failed: %v", err)
	}
	return ok(report)
}
