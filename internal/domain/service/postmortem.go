package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/planner"
	"go.uber.org/zap"
)

// PostMortem extracts a reusable lesson from complex or failed runs and
// files it into the skills playbook.
type PostMortem struct {
	upstream UpstreamClient
	playbook PlaybookSource
	prompt   string
	model    string
	logger   *zap.Logger
}

type lesson struct {
	Task     string `json:"task"`
	Mistake  string `json:"mistake"`
	Solution string `json:"solution"`
}

func NewPostMortem(upstream UpstreamClient, playbook PlaybookSource, prompt, model string, logger *zap.Logger) *PostMortem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostMortem{
		upstream: upstream,
		playbook: playbook,
		prompt:   prompt,
		model:    model,
		logger:   logger.With(zap.String("component", "post-mortem")),
	}
}

// Analyze asks a worker to name what went wrong and how it was (or
// should have been) fixed, then files the lesson. Incomplete verdicts
// are dropped; a bad lesson is worse than none.
func (p *PostMortem) Analyze(ctx context.Context, userTurn string, result *entity.RunResult) {
	if p.playbook == nil {
		return
	}

	outcome := "SUCCESS"
	if result.Failed {
		outcome = "FAILURE"
	} else if result.ForceStopped {
		outcome = "FORCE-STOPPED"
	}

	summary := fmt.Sprintf(
		"OBJECTIVE:\n%s\n\nOUTCOME: %s\nTURNS: %d\nTOOLS USED: %s\nFINAL ANSWER:\n%s",
		capText(userTurn, 1500),
		outcome,
		result.Turns,
		strings.Join(result.ToolsUsed, ", "),
		capText(result.FinalContent, 1500),
	)

	resp, err := p.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: p.model,
		Messages: []entity.Message{
			entity.SystemMessage(p.prompt),
			entity.UserMessage(summary),
		},
		Temperature: 0.1,
		MaxTokens:   512,
		JSONMode:    true,
	})
	if err != nil {
		p.logger.Warn("Post-mortem call failed", zap.Error(err))
		return
	}

	payload, err := planner.ExtractJSON(resp.Message.Content)
	if err != nil {
		return
	}
	var l lesson
	if err := json.Unmarshal([]byte(payload), &l); err != nil {
		return
	}
	if l.Task == "" || l.Mistake == "" || l.Solution == "" {
		return
	}

	p.playbook.LearnLesson(l.Task, l.Mistake, l.Solution)
	p.logger.Info("Lesson filed", zap.String("task", capText(l.Task, 60)))
}
