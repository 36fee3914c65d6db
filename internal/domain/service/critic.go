package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/planner"
	"go.uber.org/zap"
)

// Scripts at or under this many lines skip review. Short snippets fail
// fast and cheap in the sandbox; the critic earns its latency only on
// substantial code.
const criticMinLines = 10

// Critic is the pre-execution code auditor. It reviews substantial
// scripts on a worker node before they reach the sandbox and may swap
// in a revised version. Every failure mode is fail-open: a broken
// critic must never block execution.
type Critic struct {
	upstream UpstreamClient
	prompt   string
	model    string
	logger   *zap.Logger
}

type criticVerdict struct {
	Status      string `json:"status"`
	Critique    string `json:"critique"`
	RevisedCode string `json:"revised_code"`
}

func NewCritic(upstream UpstreamClient, prompt, model string, logger *zap.Logger) *Critic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Critic{
		upstream: upstream,
		prompt:   prompt,
		model:    model,
		logger:   logger.With(zap.String("component", "critic")),
	}
}

// Review audits the script in an execute call's arguments. It may swap
// in a revised script, or veto the call outright: a non-empty second
// return is the critique for a BLOCKED verdict and the script must not
// run. After the first sandbox failure the gate stands down: the model
// is already iterating on real error output, second-guessing it adds
// nothing.
func (c *Critic) Review(ctx context.Context, args map[string]interface{}, priorFailures int) (map[string]interface{}, string) {
	if c == nil || c.upstream == nil || priorFailures > 0 {
		return args, ""
	}
	content, _ := args["content"].(string)
	if strings.Count(content, "\n")+1 <= criticMinLines {
		return args, ""
	}
	filename, _ := args["filename"].(string)

	resp, err := c.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: c.model,
		Messages: []entity.Message{
			entity.SystemMessage(c.prompt),
			entity.UserMessage("FILENAME: " + filename + "\n\nPROPOSED CODE:\n" + content),
		},
		Temperature: 0.0,
		MaxTokens:   2048,
		JSONMode:    true,
	})
	if err != nil {
		c.logger.Warn("Critic review failed, executing unreviewed", zap.Error(err))
		return args, ""
	}

	payload, err := planner.ExtractJSON(resp.Message.Content)
	if err != nil {
		return args, ""
	}
	var verdict criticVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return args, ""
	}

	switch {
	case strings.EqualFold(verdict.Status, "BLOCKED"):
		critique := strings.TrimSpace(verdict.Critique)
		if critique == "" {
			critique = "the script was rejected by review"
		}
		c.logger.Warn("Critic blocked script",
			zap.String("filename", filename),
			zap.String("critique", critique))
		return args, critique

	case strings.EqualFold(verdict.Status, "REVISED") && strings.TrimSpace(verdict.RevisedCode) != "":
		revised := ExtractCodeBlock(verdict.RevisedCode)
		if strings.TrimSpace(revised) != "" {
			c.logger.Info("Critic revised script",
				zap.String("filename", filename),
				zap.String("critique", verdict.Critique))
			out := make(map[string]interface{}, len(args))
			for k, v := range args {
				out[k] = v
			}
			out["content"] = revised
			return out, ""
		}
	}
	return args, ""
}

var codeFencePattern = regexp.MustCompile("(?s)```[ \t]*[a-zA-Z]*[ \t]*\n?(.*?)```")

// ExtractCodeBlock pulls code out of a markdown fence. Unfenced input
// comes back trimmed of stray backticks; a truncated fence (no closer)
// yields everything after the opener.
func ExtractCodeBlock(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), "`")
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		return strings.Trim(strings.TrimSpace(rest), "`")
	}
	return strings.Trim(strings.TrimSpace(text), "`")
}
