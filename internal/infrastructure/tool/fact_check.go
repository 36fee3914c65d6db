package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// FactCheckTool verifies a claim: deep research gathers evidence, then a
// low-temperature forensic pass issues a verdict. The research tool is
// the only capability this flow is allowed to touch.
type FactCheckTool struct {
	research *DeepResearchTool
	upstream service.UpstreamClient
	persona  string // forensic verifier system prompt
	model    string
	logger   *zap.Logger
}

func NewFactCheckTool(research *DeepResearchTool, upstream service.UpstreamClient, persona, model string, logger *zap.Logger) *FactCheckTool {
	return &FactCheckTool{
		research: research,
		upstream: upstream,
		persona:  persona,
		model:    model,
		logger:   logger.With(zap.String("tool", "fact_check")),
	}
}

func (t *FactCheckTool) Name() string          { return "fact_check" }
func (t *FactCheckTool) Kind() domaintool.Kind { return domaintool.KindNetwork }
func (t *FactCheckTool) Description() string {
	return "Verify a factual claim against live web sources and return a verdict with evidence."
}

func (t *FactCheckTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The claim or question to verify.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *FactCheckTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	query := strings.TrimSpace(strArg(args, "query"))
	if query == "" {
		return fail("Error: 'query' parameter is required")
	}

	evidence, err := t.research.Execute(ctx, map[string]interface{}{"query": query})
	if err != nil {
		return nil, err
	}
	if !evidence.Success {
		return fail("Error: evidence gathering failed: %s", evidence.Output)
	}

	resp, err := t.upstream.Chat(ctx, service.PoolWorker, &service.ChatRequest{
		Messages: []entity.Message{
			entity.SystemMessage(t.persona),
			entity.UserMessage(fmt.Sprintf("CLAIM TO VERIFY: %s\n\nEVIDENCE:\n%s", query, evidence.Output)),
		},
		Model:       t.model,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return fail("Error: verification pass failed: %v", err)
	}

	t.logger.Info("Fact check completed", zap.String("query", truncate(query, 120)))
	return ok(fmt.Sprintf("FACT CHECK COMPLETE:\n%s", strings.TrimSpace(resp.Message.Content)))
}
