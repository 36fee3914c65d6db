package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/memory"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

const recallTopK = 5

// RecallTool is semantic search over everything the agent remembers:
// auto-memories, knowledge base documents and indexed skills.
type RecallTool struct {
	mem    *memory.Manager
	logger *zap.Logger
}

func NewRecallTool(mem *memory.Manager, logger *zap.Logger) *RecallTool {
	return &RecallTool{
		mem:    mem,
		logger: logger.With(zap.String("tool", "recall")),
	}
}

func (t *RecallTool) Name() string          { return "recall" }
func (t *RecallTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *RecallTool) Description() string {
	return "Search long-term memory semantically. Use before asking the user for information they may have already given."
}

func (t *RecallTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to look for.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *RecallTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	query := strings.TrimSpace(strArg(args, "query"))
	if query == "" {
		return fail("Error: 'query' parameter is required")
	}

	entries, err := t.mem.Recall(ctx, query, recallTopK, nil)
	if err != nil {
		return fail("Error: memory search failed: %v", err)
	}
	if len(entries) == 0 {
		return ok(fmt.Sprintf("No memories found for '%s'.", query))
	}

	var lines []string
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- (%s, distance %.2f) %s", e.Kind, e.Distance, e.Content))
	}
	return ok(fmt.Sprintf("Recalled %d memories:\n%s", len(entries), strings.Join(lines, "\n")))
}
