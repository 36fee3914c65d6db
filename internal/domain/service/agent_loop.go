package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	contextpkg "github.com/ghostagent/ghost/internal/domain/context"
	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/planner"
	"github.com/ghostagent/ghost/internal/domain/tool"
	"github.com/ghostagent/ghost/pkg/safego"
	"go.uber.org/zap"
)

// LoopConfig tunes one agent loop instance.
type LoopConfig struct {
	Model                string
	MaxTurns             int
	Temperature          float64
	MaxConcurrent        int     // simultaneous runs before intake blocks
	SmartMemoryThreshold float64 // 0 disables the memory writer
	PerfectIt            bool    // enable the final revision pass by default
	HistoryCap           int     // max messages kept from the incoming transcript
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Model:                "Qwen3-8B-Instruct-2507",
		MaxTurns:             20,
		Temperature:          0.7,
		MaxConcurrent:        10,
		SmartMemoryThreshold: 0.8,
		HistoryCap:           500,
	}
}

// Loop is the planner/responder reasoning engine. One Loop serves every
// request; per-run state (dispatcher, task tree, state machine) is
// created fresh inside Run.
type Loop struct {
	upstream  UpstreamClient
	registry  tool.Registry
	window    *contextpkg.Window
	condenser *contextpkg.Condenser
	prompts   PromptProvider
	profile   ProfileSource
	playbook  PlaybookSource
	scratch   ScratchSource
	memory    *MemoryWriter
	postMort  *PostMortem
	hooks     *HookChain
	events    EventSink
	logger    *zap.Logger
	cfg       LoopConfig

	sem chan struct{}
}

func NewLoop(
	upstream UpstreamClient,
	registry tool.Registry,
	window *contextpkg.Window,
	condenser *contextpkg.Condenser,
	prompts PromptProvider,
	profile ProfileSource,
	playbook PlaybookSource,
	scratch ScratchSource,
	memory *MemoryWriter,
	postMort *PostMortem,
	hooks *HookChain,
	events EventSink,
	cfg LoopConfig,
	logger *zap.Logger,
) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hooks == nil {
		hooks = NewHookChain()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 500
	}
	return &Loop{
		upstream:  upstream,
		registry:  registry,
		window:    window,
		condenser: condenser,
		prompts:   prompts,
		profile:   profile,
		playbook:  playbook,
		scratch:   scratch,
		memory:    memory,
		postMort:  postMort,
		hooks:     hooks,
		events:    events,
		logger:    logger.With(zap.String("component", "agent-loop")),
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}
}

const (
	// The scratchpad and tree renders ride along on every responder
	// call, so they stay small.
	transientStateCap = 1500

	// How much of the final tool output survives into the fallback answer.
	fallbackPreviewCap = 2000

	pruneAlert = "SYSTEM ALERT: The conversation history was truncated because it exceeded the context window. Older turns are gone. Re-derive anything you still need from the task tree and the retained messages."

	checklistNudge = "### CHECKLIST\nOpen tasks remain in the task tree above. Keep working through them; set required_tool to 'none' only when every task is DONE, FAILED or BLOCKED."
)

// Run executes one reasoning session. When req.Stream is set, final
// answer deltas go to deltaCh as they arrive; Run never closes deltaCh.
func (l *Loop) Run(ctx context.Context, req *entity.RunRequest, deltaCh chan<- StreamChunk) (*entity.RunResult, error) {
	select {
	case l.sem <- struct{}{}:
		defer func() { <-l.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	messages := l.intake(req.Messages)
	userTurn := lastUserContent(messages)
	intent := ClassifyIntent(userTurn)
	temperature := BaseTemperature(intent, l.cfg.Temperature)

	sm := NewStateMachine(l.cfg.MaxTurns, l.logger)
	sm.OnTransition(l.hooks.OnStateChange)
	tree := planner.NewTree()
	critic := NewCritic(l.upstream, l.prompts.Critic(), l.cfg.Model, l.logger)
	dispatcher := NewDispatcher(l.registry, l.condenser, critic, l.logger)

	if l.events != nil {
		l.events.RunStarted(req.RequestID, string(intent))
	}
	l.logger.Info("Run started",
		zap.String("request_id", req.RequestID),
		zap.String("intent", string(intent)),
		zap.Bool("stream", req.Stream),
	)

	result := &entity.RunResult{Intent: string(intent)}
	defer func() {
		result.Duration = time.Since(start)
		result.ToolsUsed = usedTools(dispatcher.Stats())
		snap := sm.Snapshot()
		result.Turns = snap.Turn
		result.TokensUsed = snap.TokensUsed
		l.hooks.OnComplete(ctx, result)
		if l.events != nil {
			l.events.RunFinished(req.RequestID, result.Failed, result.Turns)
		}
		l.finishBackground(req, userTurn, result)
	}()

	var (
		finalDraft   string
		pruneRetried bool
	)

	for turn := 1; turn <= l.cfg.MaxTurns; turn++ {
		sm.SetTurn(turn)
		if l.events != nil {
			l.events.RunTurn(req.RequestID, turn, string(sm.State()))
		}
		if ctx.Err() != nil {
			sm.Transition(StateAborted)
			return nil, ctx.Err()
		}

		// Planning phase: the strategic cortex updates the task tree and
		// binds the next tool. A dead planner degrades to freestyle.
		sm.Transition(StatePlanning)
		decision := l.plan(ctx, sm, tree, messages, userTurn, turn)
		if decision != nil {
			tree.Merge(decision.TreeUpdate)
		}

		requiredTool := ""
		if decision != nil {
			requiredTool = strings.TrimSpace(strings.ToLower(decision.RequiredTool))
		}
		wantsFinal := requiredTool == "none"
		if turn > 1 && tree.AllDone() {
			// Every plan node is finished; the only move left is answering.
			wantsFinal = true
		}

		chatReq := &ChatRequest{
			Model:       l.cfg.Model,
			Messages:    l.assemble(intent, messages, tree, decision, turn),
			Temperature: temperature,
		}
		if !wantsFinal {
			chatReq.Tools = l.toolCatalog(requiredTool)
		}

		sm.Transition(StateResponding)
		l.hooks.BeforeChat(ctx, PoolMain, chatReq, turn)

		var resp *ChatResponse
		var err error
		if req.Stream && wantsFinal && deltaCh != nil {
			resp, err = l.upstream.ChatStream(ctx, PoolMain, chatReq, deltaCh)
		} else {
			resp, err = l.upstream.Chat(ctx, PoolMain, chatReq)
		}

		if err != nil {
			sm.RecordError()
			l.hooks.OnError(ctx, err, turn)
			if IsContextOverflowError(err) && !pruneRetried {
				// One shot: prune to the essentials and retry the turn.
				pruneRetried = true
				sm.Transition(StatePruning)
				sm.RecordPrune()
				messages = l.window.EmergencyPrune(messages)
				// The alert rides as a user turn: several served models
				// ignore trailing system messages but always read the user.
				messages = append(messages, entity.UserMessage(pruneAlert))
				l.logger.Warn("Context overflow, emergency prune applied",
					zap.String("request_id", req.RequestID), zap.Int("turn", turn))
				continue
			}
			sm.Transition(StateError)
			result.Failed = true
			return result, err
		}

		sm.AddTokens(resp.TokensUsed)
		sm.SetModel(resp.ModelUsed)
		l.hooks.AfterChat(ctx, resp, turn)

		assistant := resp.Message
		contextpkg.HealToolCallSyntax(&assistant)

		if !assistant.HasToolCalls() {
			finalDraft = assistant.Content
			sm.Transition(StateComplete)
			break
		}

		// Tool phase.
		sm.Transition(StateToolExec)
		messages = append(messages, assistant)
		if !l.hooks.BeforeTool(ctx, assistant.ToolCalls) {
			messages = append(messages, entity.SystemMessage(
				"SYSTEM GUARD: tool execution vetoed by policy. Answer with what you have."))
			continue
		}

		toolMsgs := dispatcher.Dispatch(ctx, assistant.ToolCalls)
		for i, tm := range toolMsgs {
			sm.RecordToolExec(tm.Name)
			success := !strings.HasPrefix(tm.Content, "Error") && !strings.HasPrefix(tm.Content, "SYSTEM GUARD")
			l.hooks.AfterTool(ctx, tm.Name, tm.Content, success)
			if l.events != nil {
				l.events.ToolExecuted(req.RequestID, assistant.ToolCalls[i].Function.Name, success)
			}
		}
		messages = append(messages, toolMsgs...)
		messages = l.window.Apply(messages)

		stats := dispatcher.Stats()
		temperature = EscalateTemperature(
			BaseTemperature(intent, l.cfg.Temperature), stats.ExecFailures)

		if stats.ForceStop() {
			l.logger.Warn("Run force-stopped by guardrails",
				zap.String("request_id", req.RequestID),
				zap.Int("redundancy_strikes", stats.RedundancyStrikes),
				zap.Int("exec_failures", stats.ExecFailures),
			)
			result.ForceStopped = true
			result.Failed = stats.ExecFailures >= maxExecFailures
			sm.Transition(StateComplete)
			break
		}
	}

	if sm.State() != StateComplete {
		// Turn budget exhausted mid-reasoning.
		sm.Transition(StateComplete)
		result.ForceStopped = true
	}

	final := l.finalize(finalDraft, messages)
	if req.PerfectIt || l.cfg.PerfectIt {
		final = l.perfectIt(ctx, final, messages, dispatcher.Stats())
	}
	if req.Stream && deltaCh != nil && finalDraft == "" && final != "" {
		// The answer was synthesized rather than streamed; emit it whole.
		select {
		case deltaCh <- StreamChunk{DeltaText: final}:
		case <-ctx.Done():
		}
	}
	result.FinalContent = final
	return result, nil
}

// intake normalizes the incoming transcript: carriage returns stripped,
// history capped, hand-typed tool call tags promoted to structured
// calls, and orphaned tool pairs dropped.
func (l *Loop) intake(incoming []entity.Message) []entity.Message {
	messages := entity.CloneMessages(incoming)
	if len(messages) > l.cfg.HistoryCap {
		messages = messages[len(messages)-l.cfg.HistoryCap:]
	}
	for i := range messages {
		messages[i].Content = strings.ReplaceAll(messages[i].Content, "\r", "")
		if messages[i].Role == "assistant" {
			contextpkg.HealToolCallSyntax(&messages[i])
		}
	}
	return contextpkg.RepairToolPairs(messages)
}

// plan runs one strategic cortex call. Failures degrade to nil: the
// responder can still act without a plan.
func (l *Loop) plan(ctx context.Context, sm *StateMachine, tree *planner.Tree, messages []entity.Message, userTurn string, turn int) *planner.Decision {
	var b strings.Builder
	b.WriteString(temporalAnchor(turn, l.cfg.MaxTurns))
	b.WriteString("\n\n### CURRENT TASK TREE\n")
	b.WriteString(tree.Render())
	if tree.HasOpenNodes() {
		b.WriteString("\n\n" + checklistNudge)
	}
	if l.scratch != nil {
		if state := capText(l.scratch.StateString(), transientStateCap); state != "" {
			b.WriteString("\n\n### SCRAPBOOK STATE\n")
			b.WriteString(state)
		}
	}
	b.WriteString("\n\n### RECENT CONVERSATION\n")
	b.WriteString(contextpkg.FormatTranscript(messages))
	if outputs := contextpkg.RecentToolOutputs(messages, 2, 4000); len(outputs) > 0 {
		b.WriteString("\n\n### LAST TOOL OUTPUTS\n")
		b.WriteString(strings.Join(outputs, "\n"))
	}
	b.WriteString("\n\n### USER OBJECTIVE\n")
	b.WriteString(userTurn)

	req := &ChatRequest{
		Model: l.cfg.Model,
		Messages: []entity.Message{
			entity.SystemMessage(l.prompts.Planner()),
			entity.UserMessage(b.String()),
		},
		Temperature: 0.0,
		TopP:        0.1,
		MaxTokens:   1024,
		JSONMode:    true,
	}

	resp, err := l.upstream.Chat(ctx, PoolSwarm, req)
	if err != nil {
		sm.RecordError()
		l.logger.Warn("Planner call failed, continuing without a plan", zap.Error(err))
		return nil
	}
	sm.AddTokens(resp.TokensUsed)

	decision, err := planner.ParseDecision(resp.Message.Content)
	if err != nil {
		l.logger.Warn("Planner produced no parseable decision", zap.Error(err))
		return nil
	}
	return decision
}

// assemble builds the responder call: persona system prompt, the rolling
// window of history, and the transient directive block as the trailing
// system message. Keeping the volatile state at the tail preserves the
// upstream KV cache for everything before it.
func (l *Loop) assemble(intent Intent, messages []entity.Message, tree *planner.Tree, decision *planner.Decision, turn int) []entity.Message {
	profileCtx := ""
	if l.profile != nil {
		profileCtx = l.profile.ContextString()
	}
	playbookCtx := ""
	if l.playbook != nil {
		playbookCtx = l.playbook.Context(context.Background(), lastUserContent(messages))
	}

	out := make([]entity.Message, 0, len(messages)+2)
	out = append(out, entity.SystemMessage(l.prompts.System(intent, profileCtx, playbookCtx)))
	out = append(out, l.window.Apply(messages)...)

	var b strings.Builder
	b.WriteString("### ACTIVE DIRECTIVES\n")
	b.WriteString(temporalAnchor(turn, l.cfg.MaxTurns))
	if !tree.Empty() {
		b.WriteString("\n\nTASK TREE:\n")
		b.WriteString(tree.Render())
	}
	if decision != nil {
		if focus := tree.Find(decision.NextActionID); focus != nil {
			fmt.Fprintf(&b, "\n\nFOCUS TASK: %s: %s", focus.ID, focus.Description)
		}
		if decision.Thought != "" {
			b.WriteString("\nPLANNER THOUGHT: " + decision.Thought)
		}
	}
	if l.scratch != nil {
		if state := capText(l.scratch.StateString(), transientStateCap); state != "" {
			b.WriteString("\n\nSCRAPBOOK STATE:\n" + state)
		}
	}
	out = append(out, entity.SystemMessage(b.String()))
	return out
}

// toolCatalog returns the definitions for this turn. A concrete planner
// binding narrows the catalog to that single tool so the model cannot
// wander.
func (l *Loop) toolCatalog(requiredTool string) []tool.Definition {
	defs := l.registry.List()
	if requiredTool == "" {
		return defs
	}
	for _, d := range defs {
		if d.Name == requiredTool {
			return []tool.Definition{d}
		}
	}
	return defs
}

// finalize scrubs the draft and synthesizes a fallback when the model
// produced nothing user-facing.
func (l *Loop) finalize(draft string, messages []entity.Message) string {
	final := strings.TrimSpace(contextpkg.Scrub(draft))
	if final != "" {
		return final
	}
	if out := lastToolOutput(messages); out != "" {
		return fmt.Sprintf("Process finished successfully.\n\n### Final Output:\n```text\n%s\n```", capText(out, fallbackPreviewCap))
	}
	return "Task executed successfully."
}

// perfectIt runs the revision pass. It only fires when heavy tools ran
// cleanly but the draft is thin; a good draft is left alone.
func (l *Loop) perfectIt(ctx context.Context, draft string, messages []entity.Message, stats DispatchStats) string {
	heavy := stats.Usage["execute"] > 0 || stats.Usage["deep_research"] > 0 || stats.Usage["postgres_admin"] > 0
	if !heavy || stats.ExecFailures > 0 || len(draft) > 400 {
		return draft
	}

	var b strings.Builder
	b.WriteString("DRAFT ANSWER:\n" + draft)
	if outputs := contextpkg.RecentToolOutputs(messages, 2, 4000); len(outputs) > 0 {
		b.WriteString("\n\nEXECUTION EVIDENCE:\n" + strings.Join(outputs, "\n"))
	}

	resp, err := l.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: l.cfg.Model,
		Messages: []entity.Message{
			entity.SystemMessage(l.prompts.PerfectIt()),
			entity.UserMessage(b.String()),
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		l.logger.Warn("Perfect-It pass failed, keeping draft", zap.Error(err))
		return draft
	}
	revised := strings.TrimSpace(contextpkg.Scrub(resp.Message.Content))
	if revised == "" {
		return draft
	}
	return revised
}

// finishBackground dispatches the after-run jobs: the smart memory gate
// and, for complex or failed runs, the post-mortem.
func (l *Loop) finishBackground(req *entity.RunRequest, userTurn string, result *entity.RunResult) {
	if l.memory != nil && !req.NoMemory && l.cfg.SmartMemoryThreshold > 0 {
		final := result.FinalContent
		safego.Go(l.logger, "memory-writer", func() {
			l.memory.Observe(context.Background(), userTurn, final)
		})
	}
	if l.postMort != nil && (result.Failed || len(result.ToolsUsed) >= 3) {
		snapshot := *result
		safego.Go(l.logger, "post-mortem", func() {
			l.postMort.Analyze(context.Background(), userTurn, &snapshot)
		})
	}
}

func temporalAnchor(turn, maxTurns int) string {
	now := time.Now()
	return fmt.Sprintf("TEMPORAL ANCHOR: The current date/time is %s (%s). You are currently at TURN %d of %d.",
		now.Format("2006-01-02 15:04:05"), now.Format("Monday"), turn, maxTurns)
}

func lastUserContent(messages []entity.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func lastToolOutput(messages []entity.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "tool" {
			return messages[i].Content
		}
	}
	return ""
}

func capText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[TRUNCATED]"
}

func usedTools(stats DispatchStats) []string {
	names := make([]string, 0, len(stats.Usage))
	for name, count := range stats.Usage {
		if count > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
