package tool

import (
	"context"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// LearnSkillTool files a lesson into the playbook on the model's own
// initiative, outside the automatic post-mortem flow.
type LearnSkillTool struct {
	playbook service.PlaybookSource
	logger   *zap.Logger
}

func NewLearnSkillTool(playbook service.PlaybookSource, logger *zap.Logger) *LearnSkillTool {
	return &LearnSkillTool{
		playbook: playbook,
		logger:   logger.With(zap.String("tool", "learn_skill")),
	}
}

func (t *LearnSkillTool) Name() string          { return "learn_skill" }
func (t *LearnSkillTool) Kind() domaintool.Kind { return domaintool.KindMemory }
func (t *LearnSkillTool) Description() string {
	return "Record a lesson learned: the task, the mistake made, and the correct solution. Applied to future runs."
}

func (t *LearnSkillTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "What was being attempted.",
			},
			"mistake": map[string]interface{}{
				"type":        "string",
				"description": "What went wrong.",
			},
			"solution": map[string]interface{}{
				"type":        "string",
				"description": "The approach that works.",
			},
		},
		"required": []string{"task", "mistake", "solution"},
	}
}

func (t *LearnSkillTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	task := strings.TrimSpace(strArg(args, "task"))
	mistake := strings.TrimSpace(strArg(args, "mistake"))
	solution := strings.TrimSpace(strArg(args, "solution"))
	if task == "" || mistake == "" || solution == "" {
		return fail("Error: 'task', 'mistake' and 'solution' are all required")
	}

	t.playbook.LearnLesson(task, mistake, solution)
	t.logger.Info("Lesson recorded", zap.String("task", truncate(task, 80)))
	return ok("Lesson recorded in the skills playbook.")
}
