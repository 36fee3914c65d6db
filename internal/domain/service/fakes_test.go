package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ghostagent/ghost/internal/domain/entity"
)

// fakeUpstream answers chat calls from a scriptable handler and records
// every request it sees.
type fakeUpstream struct {
	mu       sync.Mutex
	handler  func(pool Pool, req *ChatRequest) (*ChatResponse, error)
	requests []recordedCall
}

type recordedCall struct {
	pool Pool
	req  *ChatRequest
}

func (f *fakeUpstream) Chat(_ context.Context, pool Pool, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedCall{pool: pool, req: req})
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return textResponse("ok"), nil
	}
	return handler(pool, req)
}

func (f *fakeUpstream) ChatStream(ctx context.Context, pool Pool, req *ChatRequest, deltaCh chan<- StreamChunk) (*ChatResponse, error) {
	resp, err := f.Chat(ctx, pool, req)
	if err != nil {
		return nil, err
	}
	if deltaCh != nil && resp.Message.Content != "" {
		deltaCh <- StreamChunk{DeltaText: resp.Message.Content}
	}
	return resp, nil
}

func (f *fakeUpstream) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeUpstream) PoolSize(Pool) int { return 1 }

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeUpstream) callsTo(pool Pool) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.requests {
		if c.pool == pool {
			out = append(out, c)
		}
	}
	return out
}

func textResponse(content string) *ChatResponse {
	return &ChatResponse{
		Message:      entity.AssistantMessage(content),
		ModelUsed:    "test-model",
		TokensUsed:   10,
		FinishReason: "stop",
	}
}

func toolCallResponse(id, name, args string) *ChatResponse {
	return &ChatResponse{
		Message: entity.Message{
			Role: "assistant",
			ToolCalls: []entity.ToolCall{{
				ID:   id,
				Type: "function",
				Function: entity.ToolCallFunc{
					Name:      name,
					Arguments: args,
				},
			}},
		},
		ModelUsed:    "test-model",
		TokensUsed:   10,
		FinishReason: "tool_calls",
	}
}

// fakePrompts hands out labeled stub prompts so tests can see which one
// a component used.
type fakePrompts struct{}

func (fakePrompts) System(intent Intent, profile, playbook string) string {
	return fmt.Sprintf("SYSTEM[%s]\n%s\n%s", intent, profile, playbook)
}
func (fakePrompts) Planner() string             { return "PLANNER" }
func (fakePrompts) Critic() string              { return "CRITIC" }
func (fakePrompts) SmartMemory() string         { return "SMART_MEMORY" }
func (fakePrompts) PostMortem() string          { return "POST_MORTEM" }
func (fakePrompts) PerfectIt() string           { return "PERFECT_IT" }
func (fakePrompts) Dream() string               { return "DREAM" }
func (fakePrompts) SelfPlayChallenge() string   { return "SELF_PLAY" }
func (fakePrompts) Judge() string               { return "JUDGE" }
func (fakePrompts) PlaybookCompression() string { return "COMPRESS" }

// fakePlaybook records lessons and serves a canned context block.
type fakePlaybook struct {
	mu       sync.Mutex
	lessons  []PlaybookLesson
	failures string
}

func (p *fakePlaybook) Context(_ context.Context, _ string) string { return "" }

func (p *fakePlaybook) LearnLesson(task, mistake, solution string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lessons = append(p.lessons, PlaybookLesson{Task: task, Mistake: mistake, Solution: solution})
}

func (p *fakePlaybook) Snapshot() []PlaybookLesson {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlaybookLesson, len(p.lessons))
	copy(out, p.lessons)
	return out
}

func (p *fakePlaybook) Replace(lessons []PlaybookLesson) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lessons = lessons
}

func (p *fakePlaybook) RecentFailures() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *fakePlaybook) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lessons)
}

func (p *fakePlaybook) hasTask(substr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.lessons {
		if strings.Contains(l.Task, substr) {
			return true
		}
	}
	return false
}

// fakeProfile records updates.
type fakeProfile struct {
	mu      sync.Mutex
	context string
	updates []string
}

func (p *fakeProfile) ContextString() string { return p.context }

func (p *fakeProfile) Update(category, key, value string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, category+"."+key+"="+value)
	return "updated", nil
}

func (p *fakeProfile) updateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

type fakeScratch struct{ state string }

func (s *fakeScratch) StateString() string { return s.state }
