package tool

import (
	"context"
	"fmt"
	"strings"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// ScratchPad is the shared short-term key-value surface. Swarm workers
// write results here; the loop renders it into planning context.
type ScratchPad interface {
	Set(key, value string)
	Get(key string) (string, bool)
	Keys() []string
	Clear()
}

// ScratchpadTool exposes the pad to the model.
type ScratchpadTool struct {
	pad    ScratchPad
	logger *zap.Logger
}

func NewScratchpadTool(pad ScratchPad, logger *zap.Logger) *ScratchpadTool {
	return &ScratchpadTool{
		pad:    pad,
		logger: logger.With(zap.String("tool", "scratchpad")),
	}
}

func (t *ScratchpadTool) Name() string          { return "scratchpad" }
func (t *ScratchpadTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ScratchpadTool) Description() string {
	return "Short-term working memory shared with swarm workers: set, get, list or clear keyed notes."
}

func (t *ScratchpadTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"set", "get", "list", "clear"},
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "The note's key.",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "The note's content for 'set'.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ScratchpadTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	key := strings.TrimSpace(strArg(args, "key"))

	switch strArg(args, "action") {
	case "set":
		if key == "" {
			return fail("Error: 'key' parameter is required for set")
		}
		t.pad.Set(key, strArg(args, "value"))
		return ok(fmt.Sprintf("Scratchpad key '%s' set.", key))
	case "get":
		if key == "" {
			return fail("Error: 'key' parameter is required for get")
		}
		value, exists := t.pad.Get(key)
		if !exists {
			return ok(fmt.Sprintf("Scratchpad key '%s' is not set.", key))
		}
		return ok(value)
	case "list":
		keys := t.pad.Keys()
		if len(keys) == 0 {
			return ok("The scratchpad is empty.")
		}
		return ok("Scratchpad keys:\n- " + strings.Join(keys, "\n- "))
	case "clear":
		t.pad.Clear()
		return ok("Scratchpad cleared.")
	default:
		return fail("Error: unknown action '%s'", strArg(args, "action"))
	}
}
