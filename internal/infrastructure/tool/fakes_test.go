package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/service"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func newTestMemory() *memory.Manager {
	return memory.NewManager(
		memory.NewInMemoryVectorStore(),
		memory.NewHashEmbedder(64),
		testLogger(),
	)
}

// fakeUpstream scripts chat responses by pool.
type fakeUpstream struct {
	mu      sync.Mutex
	handler func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error)
	calls   []service.Pool
	vision  int // PoolSize answer for the vision pool
}

func (f *fakeUpstream) Chat(ctx context.Context, pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pool)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(pool, req)
	}
	return &service.ChatResponse{
		Message: entity.AssistantMessage("fake reply"),
	}, nil
}

func (f *fakeUpstream) ChatStream(ctx context.Context, pool service.Pool, req *service.ChatRequest, deltaCh chan<- service.StreamChunk) (*service.ChatResponse, error) {
	return f.Chat(ctx, pool, req)
}

func (f *fakeUpstream) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *fakeUpstream) PoolSize(pool service.Pool) int {
	if pool == service.PoolVision {
		return f.vision
	}
	return 1
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakePad is an in-memory ScratchPad.
type fakePad struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakePad() *fakePad { return &fakePad{data: make(map[string]string)} }

func (p *fakePad) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
}

func (p *fakePad) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, exists := p.data[key]
	return v, exists
}

func (p *fakePad) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *fakePad) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = make(map[string]string)
}

// fakeRunner is a scriptable ScriptRunner.
type fakeRunner struct {
	result *ScriptResult
	err    error
	specs  []ScriptSpec
}

func (r *fakeRunner) RunScript(ctx context.Context, spec ScriptSpec) (*ScriptResult, error) {
	r.specs = append(r.specs, spec)
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &ScriptResult{ExitCode: 0, Output: "done"}, nil
}

func (r *fakeRunner) Backend() string { return "fake" }

// fakeSched records scheduler calls.
type fakeSched struct {
	tasks   []ScheduledTask
	stopped []string
	created int
}

func (s *fakeSched) CreateTask(name, schedule, prompt string) (string, error) {
	s.created++
	id := fmt.Sprintf("task_%04d", s.created)
	s.tasks = append(s.tasks, ScheduledTask{ID: id, Name: name, Schedule: schedule, Prompt: prompt, Enabled: true})
	return id, nil
}

func (s *fakeSched) ListTasks() []ScheduledTask { return s.tasks }

func (s *fakeSched) StopTask(id string) error {
	for i, task := range s.tasks {
		if task.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			s.stopped = append(s.stopped, id)
			return nil
		}
	}
	return fmt.Errorf("task not found")
}

func (s *fakeSched) StopAll() int {
	n := len(s.tasks)
	s.tasks = nil
	return n
}

// fakeProfile records profile mutations.
type fakeProfile struct {
	updates []string
	deletes []string
}

func (p *fakeProfile) Update(category, key, value string) (string, error) {
	line := fmt.Sprintf("Synchronized: %s.%s = %s", category, key, value)
	p.updates = append(p.updates, line)
	return line, nil
}

func (p *fakeProfile) Delete(category, key string) (string, error) {
	line := fmt.Sprintf("Removed from Profile: %s.%s", category, key)
	p.deletes = append(p.deletes, line)
	return line, nil
}

// fakePlaybook records lessons.
type fakePlaybook struct {
	lessons []string
}

func (p *fakePlaybook) Context(ctx context.Context, query string) string { return "" }

func (p *fakePlaybook) LearnLesson(task, mistake, solution string) {
	p.lessons = append(p.lessons, task)
}

// fakeDreamer answers dream cycle triggers.
type fakeDreamer struct {
	dreamOut string
	playOut  string
	err      error
}

func (d *fakeDreamer) Dream(ctx context.Context) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.dreamOut, nil
}

func (d *fakeDreamer) SelfPlay(ctx context.Context) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.playOut, nil
}

func directEgress() *Egress { return NewEgress("", 0, testLogger()) }
