package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/planner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	dreamMinMemories    = 3
	dreamFetchLimit     = 100
	dreamAnalyzeLimit   = 50
	compressAtLessons   = 20
	selfPlayMaxAttempts = 5
)

// RunFunc executes one isolated reasoning session. The dreamer uses it
// for self-play so the simulation runs through the real loop without
// the dreamer importing the application wiring.
type RunFunc func(ctx context.Context, req *entity.RunRequest) (*entity.RunResult, error)

// Dreamer is the offline consolidation engine. Dream merges fragmented
// auto-memories into dense facts and files extracted heuristics;
// SelfPlay generates a synthetic challenge, replays it through the loop
// against a judge, and banks the lesson either way.
type Dreamer struct {
	upstream UpstreamClient
	memory   *memory.Manager
	playbook PlaybookAdmin
	prompts  PromptProvider
	run      RunFunc
	model    string
	logger   *zap.Logger
}

func NewDreamer(upstream UpstreamClient, mem *memory.Manager, playbook PlaybookAdmin, prompts PromptProvider, run RunFunc, model string, logger *zap.Logger) *Dreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dreamer{
		upstream: upstream,
		memory:   mem,
		playbook: playbook,
		prompts:  prompts,
		run:      run,
		model:    model,
		logger:   logger.With(zap.String("component", "dreamer")),
	}
}

type dreamVerdict struct {
	Consolidations []struct {
		Synthesis string   `json:"synthesis"`
		MergedIDs []string `json:"merged_ids"`
	} `json:"consolidations"`
	Heuristics []string `json:"heuristics"`
}

// Dream runs one consolidation cycle and returns a human-readable
// operations summary.
func (d *Dreamer) Dream(ctx context.Context) (string, error) {
	if d.memory == nil {
		return "", fmt.Errorf("memory system not available")
	}

	entries, err := d.memory.ListByKind(ctx, memory.KindAuto, dreamFetchLimit)
	if err != nil {
		return "", fmt.Errorf("dream fetch: %w", err)
	}
	if len(entries) < dreamMinMemories {
		return "Not enough entropy to dream. Need more than 3 auto-memories to form heuristics.", nil
	}

	d.logger.Info("Dream cycle started", zap.Int("fragments", len(entries)))

	var lines []string
	byID := make(map[string]*memory.Entry, len(entries))
	for i, e := range entries {
		if i >= dreamAnalyzeLimit {
			break
		}
		lines = append(lines, fmt.Sprintf("ID:%s | %s", e.ID, e.Content))
		byID[e.ID] = e
	}

	resp, err := d.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: d.model,
		Messages: []entity.Message{
			entity.SystemMessage(d.prompts.Dream()),
			entity.UserMessage("### RAW MEMORIES\n" + strings.Join(lines, "\n")),
		},
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return "", fmt.Errorf("dream analysis: %w", err)
	}

	payload, err := planner.ExtractJSON(resp.Message.Content)
	if err != nil {
		return "Dream cycle complete. No patterns or heuristics found.", nil
	}
	var verdict dreamVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return "Dream cycle complete. No patterns or heuristics found.", nil
	}

	var ops []string
	for _, c := range verdict.Consolidations {
		synthesis := strings.TrimSpace(c.Synthesis)
		ids := normalizeIDs(c.MergedIDs, byID)
		if synthesis == "" || len(ids) < 2 {
			continue
		}
		if _, err := d.memory.Remember(ctx, synthesis, memory.KindAuto); err != nil {
			d.logger.Warn("Consolidation store failed", zap.Error(err))
			continue
		}
		for _, id := range ids {
			if err := d.memory.Forget(ctx, id); err != nil {
				d.logger.Warn("Fragment delete failed", zap.String("id", id), zap.Error(err))
			}
		}
		ops = append(ops, fmt.Sprintf("Merged %d fragments -> %q", len(ids), capText(synthesis, 50)))
	}

	for _, h := range verdict.Heuristics {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		d.playbook.LearnLesson(
			"Dream Cycle Heuristic Extraction",
			"Inefficient or sub-optimal execution patterns.",
			h,
		)
		ops = append(ops, fmt.Sprintf("Learned heuristic: %q", capText(h, 50)))
	}

	if msg := d.compressPlaybook(ctx); msg != "" {
		ops = append(ops, "Playbook compression: "+msg)
	}

	if len(ops) == 0 {
		return "Dream cycle complete. No patterns or heuristics found.", nil
	}
	d.logger.Info("Dream cycle complete", zap.Int("operations", len(ops)))
	return "Dream complete. Operations:\n" + strings.Join(ops, "\n"), nil
}

// compressPlaybook merges the playbook down once it accumulates enough
// lessons to start repeating itself.
func (d *Dreamer) compressPlaybook(ctx context.Context) string {
	if d.playbook == nil {
		return ""
	}
	lessons := d.playbook.Snapshot()
	if len(lessons) < compressAtLessons {
		return ""
	}

	raw, err := json.Marshal(lessons)
	if err != nil {
		return ""
	}
	resp, err := d.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: d.model,
		Messages: []entity.Message{
			entity.SystemMessage(d.prompts.PlaybookCompression()),
			entity.UserMessage(string(raw)),
		},
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return "failed: " + err.Error()
	}

	payload, err := planner.ExtractJSON(resp.Message.Content)
	if err != nil {
		return "returned invalid format"
	}
	var out struct {
		CompressedPlaybook []PlaybookLesson `json:"compressed_playbook"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil || len(out.CompressedPlaybook) == 0 {
		return "returned invalid format"
	}

	d.playbook.Replace(out.CompressedPlaybook)
	return fmt.Sprintf("compressed %d rules down to %d", len(lessons), len(out.CompressedPlaybook))
}

type judgeVerdict struct {
	Passed   bool   `json:"passed"`
	Feedback string `json:"feedback"`
}

// SelfPlay runs one synthetic training cycle: generate a challenge
// targeting recent weaknesses, attempt it through the real loop with a
// judge in the loop, and extract a lesson from the transcript.
func (d *Dreamer) SelfPlay(ctx context.Context) (string, error) {
	if d.run == nil {
		return "", fmt.Errorf("self-play runner not wired")
	}

	challengeSystem := d.prompts.SelfPlayChallenge()
	if failures := d.playbook.RecentFailures(); failures != "" {
		challengeSystem += "\n\n### TARGETED WEAKNESSES\nThe agent recently struggled with these mistakes:\n" +
			failures + "\n\nDesign the challenge to explicitly test these weaknesses."
	}

	resp, err := d.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model:       d.model,
		Messages:    []entity.Message{entity.SystemMessage(challengeSystem)},
		Temperature: 0.9,
		JSONMode:    true,
	})
	if err != nil {
		return "", fmt.Errorf("challenge generation: %w", err)
	}
	challenge := extractChallenge(resp.Message.Content)
	if challenge == "" {
		return "", fmt.Errorf("challenge generation produced no prompt")
	}
	d.logger.Info("Self-play challenge generated", zap.String("challenge", capText(challenge, 80)))

	transcript := []entity.Message{
		entity.UserMessage("### SYNTHETIC TRAINING EXERCISE\nSolve this challenge perfectly.\n\n" + challenge),
	}

	passed := false
	var lastAnswer string
	for attempt := 1; attempt <= selfPlayMaxAttempts; attempt++ {
		d.logger.Info("Self-play attempt", zap.Int("attempt", attempt))
		result, err := d.run(ctx, &entity.RunRequest{
			RequestID:  "selfplay_" + uuid.NewString()[:8],
			Messages:   entity.CloneMessages(transcript),
			Background: true,
			NoMemory:   true,
		})
		if err != nil {
			d.logger.Warn("Self-play run failed", zap.Error(err))
			break
		}
		lastAnswer = result.FinalContent
		transcript = append(transcript, entity.AssistantMessage(lastAnswer))

		verdict, err := d.judge(ctx, challenge, lastAnswer)
		if err != nil {
			d.logger.Warn("Judge evaluation failed", zap.Error(err))
			break
		}
		if verdict.Passed {
			passed = true
			break
		}
		transcript = append(transcript, entity.UserMessage(
			"SYSTEM JUDGE REJECTION: You did not solve the task. Feedback: "+verdict.Feedback+
				"\nYou must fix your approach and try again."))
	}

	status := "SUCCESS"
	if !passed {
		status = fmt.Sprintf("FAILURE (exhausted %d attempts)", selfPlayMaxAttempts)
	}
	d.extractSelfPlayLesson(ctx, challenge, status, lastAnswer)

	return fmt.Sprintf("Synthetic self-play cycle completed. Final status: %s. A post-mortem has been saved to the playbook.", status), nil
}

func (d *Dreamer) judge(ctx context.Context, challenge, answer string) (*judgeVerdict, error) {
	resp, err := d.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: d.model,
		Messages: []entity.Message{
			entity.SystemMessage(d.prompts.Judge()),
			entity.UserMessage("CHALLENGE: " + challenge + "\n\nAGENT FINAL OUTPUT: " + capText(answer, 4000)),
		},
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}
	payload, err := planner.ExtractJSON(resp.Message.Content)
	if err != nil {
		return nil, err
	}
	var v judgeVerdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, err
	}
	if v.Feedback == "" {
		v.Feedback = "No feedback provided."
	}
	return &v, nil
}

func (d *Dreamer) extractSelfPlayLesson(ctx context.Context, challenge, status, answer string) {
	if d.playbook == nil {
		return
	}
	prompt := fmt.Sprintf(
		"### SELF-PLAY POST-MORTEM\nThe agent attempted a simulated challenge and ended with: %s.\n\nCHALLENGE:\n%s\n\nFINAL ANSWER:\n%s\n\nIdentify the core technical error or strategy flaw and extract a concrete rule to fix it. Return ONLY a JSON object with 'task', 'mistake', and 'solution'.",
		status, capText(challenge, 1500), capText(answer, 1500))

	resp, err := d.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: d.model,
		Messages: []entity.Message{
			entity.SystemMessage("You are a meta-cognitive analyst."),
			entity.UserMessage(prompt),
		},
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
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
	d.playbook.LearnLesson("[Self-Play] "+l.Task, l.Mistake, l.Solution)
}

func extractChallenge(raw string) string {
	payload, err := planner.ExtractJSON(raw)
	if err != nil {
		return ""
	}
	var out struct {
		ChallengePrompt string `json:"challenge_prompt"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out.ChallengePrompt)
}

func normalizeIDs(raw []string, known map[string]*memory.Entry) []string {
	var out []string
	for _, id := range raw {
		id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "ID:"))
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
