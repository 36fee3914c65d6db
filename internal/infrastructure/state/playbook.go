package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/service"
	"go.uber.org/zap"
)

const (
	playbookFile = "skills_playbook.json"
	playbookCap  = 50

	lessonTopK        = 5
	lessonMaxDistance = 0.65
)

// PlaybookStore holds the lessons the agent learned from its own
// mistakes. The JSON file is the source of truth; lessons are also
// indexed into vector memory so Context can pull the ones relevant to
// the live request instead of always the newest.
type PlaybookStore struct {
	path   string
	mem    *memory.Manager // nil disables semantic retrieval
	logger *zap.Logger

	mu      sync.Mutex
	lessons []service.PlaybookLesson // newest first
}

func NewPlaybookStore(dir string, mem *memory.Manager, logger *zap.Logger) (*PlaybookStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create playbook dir: %w", err)
	}
	p := &PlaybookStore{
		path:   filepath.Join(dir, playbookFile),
		mem:    mem,
		logger: logger.With(zap.String("component", "playbook")),
	}
	p.load()
	p.reindex()
	return p, nil
}

func (p *PlaybookStore) load() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return
	}
	var lessons []service.PlaybookLesson
	if err := json.Unmarshal(data, &lessons); err != nil {
		p.logger.Warn("Corrupt playbook file, starting empty", zap.Error(err))
		return
	}
	if len(lessons) > playbookCap {
		lessons = lessons[:playbookCap]
	}
	p.lessons = lessons
}

// save persists atomically via a temp file rename. Caller holds the lock.
func (p *PlaybookStore) save() {
	data, err := json.MarshalIndent(p.lessons, "", "  ")
	if err != nil {
		p.logger.Error("Playbook not serializable", zap.Error(err))
		return
	}
	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		p.logger.Error("Failed to write playbook", zap.Error(err))
		return
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		p.logger.Error("Failed to replace playbook", zap.Error(err))
	}
}

// LearnLesson files a new lesson at the front and drops the oldest past
// the cap.
func (p *PlaybookStore) LearnLesson(task, mistake, solution string) {
	lesson := service.PlaybookLesson{
		Timestamp: time.Now().Format(time.RFC3339),
		Task:      strings.TrimSpace(task),
		Mistake:   strings.TrimSpace(mistake),
		Solution:  strings.TrimSpace(solution),
	}

	p.mu.Lock()
	p.lessons = append([]service.PlaybookLesson{lesson}, p.lessons...)
	if len(p.lessons) > playbookCap {
		p.lessons = p.lessons[:playbookCap]
	}
	p.save()
	p.mu.Unlock()

	p.indexLesson(lesson)
	p.logger.Info("Lesson learned", zap.String("task", lesson.Task))
}

// Context returns the lessons most relevant to the query, falling back
// to the most recent ones when the vector index has nothing close.
func (p *PlaybookStore) Context(ctx context.Context, query string) string {
	if p.mem != nil && strings.TrimSpace(query) != "" {
		hits, err := p.mem.Recall(ctx, query, lessonTopK, &memory.SearchFilter{
			Kind:        memory.KindSkill,
			MaxDistance: lessonMaxDistance,
		})
		if err != nil {
			p.logger.Warn("Playbook recall failed, using recent lessons", zap.Error(err))
		} else if len(hits) > 0 {
			lines := make([]string, len(hits))
			for i, hit := range hits {
				lines[i] = "- " + hit.Content
			}
			return strings.Join(lines, "\n")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.lessons)
	if n == 0 {
		return ""
	}
	if n > lessonTopK {
		n = lessonTopK
	}
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = "- " + lessonText(p.lessons[i])
	}
	return strings.Join(lines, "\n")
}

// Snapshot returns a copy of every lesson, newest first.
func (p *PlaybookStore) Snapshot() []service.PlaybookLesson {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]service.PlaybookLesson, len(p.lessons))
	copy(out, p.lessons)
	return out
}

// Replace swaps the whole playbook, as the dream compression does, and
// rebuilds the vector index from the new set.
func (p *PlaybookStore) Replace(lessons []service.PlaybookLesson) {
	if len(lessons) > playbookCap {
		lessons = lessons[:playbookCap]
	}
	p.mu.Lock()
	p.lessons = make([]service.PlaybookLesson, len(lessons))
	copy(p.lessons, lessons)
	p.save()
	p.mu.Unlock()

	p.reindex()
	p.logger.Info("Playbook replaced", zap.Int("lessons", len(lessons)))
}

// RecentFailures summarizes the latest mistakes for the self-play
// curriculum generator.
func (p *PlaybookStore) RecentFailures() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.lessons)
	if n == 0 {
		return ""
	}
	if n > lessonTopK {
		n = lessonTopK
	}
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = fmt.Sprintf("- Task: %s | Mistake: %s", p.lessons[i].Task, p.lessons[i].Mistake)
	}
	return strings.Join(lines, "\n")
}

func lessonText(l service.PlaybookLesson) string {
	return fmt.Sprintf("Task: %s | Mistake: %s | Solution: %s", l.Task, l.Mistake, l.Solution)
}

func (p *PlaybookStore) indexLesson(l service.PlaybookLesson) {
	if p.mem == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.mem.Remember(ctx, lessonText(l), memory.KindSkill); err != nil {
		p.logger.Warn("Failed to index lesson", zap.Error(err))
	}
}

// reindex rebuilds the skill entries from the current lesson set.
func (p *PlaybookStore) reindex() {
	if p.mem == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stale, err := p.mem.ListByKind(ctx, memory.KindSkill, 0)
	if err == nil {
		for _, entry := range stale {
			_ = p.mem.Forget(ctx, entry.ID)
		}
	}

	p.mu.Lock()
	lessons := make([]service.PlaybookLesson, len(p.lessons))
	copy(lessons, p.lessons)
	p.mu.Unlock()

	for _, l := range lessons {
		if _, err := p.mem.Remember(ctx, lessonText(l), memory.KindSkill); err != nil {
			p.logger.Warn("Failed to index lesson", zap.Error(err))
		}
	}
}
