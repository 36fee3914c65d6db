package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/service"
	"go.uber.org/zap"
)

func newPlaybook(t *testing.T) (*PlaybookStore, string) {
	t.Helper()
	dir := t.TempDir()
	mem := memory.NewManager(memory.NewInMemoryVectorStore(), memory.NewHashEmbedder(64), zap.NewNop())
	p, err := NewPlaybookStore(dir, mem, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPlaybookStore: %v", err)
	}
	return p, dir
}

func TestPlaybook_LearnAndPersist(t *testing.T) {
	p, dir := newPlaybook(t)
	p.LearnLesson("scrape a site", "ignored robots.txt", "check robots.txt first")

	data, err := os.ReadFile(filepath.Join(dir, playbookFile))
	if err != nil {
		t.Fatalf("playbook file missing: %v", err)
	}
	var lessons []service.PlaybookLesson
	if err := json.Unmarshal(data, &lessons); err != nil {
		t.Fatalf("playbook not valid JSON: %v", err)
	}
	if len(lessons) != 1 || lessons[0].Task != "scrape a site" {
		t.Errorf("persisted lessons = %+v", lessons)
	}
	if lessons[0].Timestamp == "" {
		t.Error("lesson missing timestamp")
	}

	reloaded, err := NewPlaybookStore(dir, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Snapshot()) != 1 {
		t.Error("lessons not reloaded from disk")
	}
}

func TestPlaybook_NewestFirstAndCap(t *testing.T) {
	p, _ := newPlaybook(t)
	for i := 0; i < playbookCap+10; i++ {
		p.LearnLesson(fmt.Sprintf("task %03d", i), "m", "s")
	}

	snap := p.Snapshot()
	if len(snap) != playbookCap {
		t.Fatalf("playbook size = %d, want %d", len(snap), playbookCap)
	}
	if snap[0].Task != fmt.Sprintf("task %03d", playbookCap+9) {
		t.Errorf("newest lesson not first: %q", snap[0].Task)
	}
}

func TestPlaybook_ContextPrefersRelevantLessons(t *testing.T) {
	p, _ := newPlaybook(t)
	p.LearnLesson("query postgres statistics", "ran a full table scan", "use pg_stat views")
	p.LearnLesson("bake sourdough bread", "oven too cold", "preheat to 240C")

	got := p.Context(context.Background(), "query postgres statistics")
	if !strings.Contains(got, "pg_stat views") {
		t.Errorf("relevant lesson missing:\n%s", got)
	}
}

func TestPlaybook_ContextFallsBackToRecent(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPlaybookStore(dir, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if p.Context(context.Background(), "anything") != "" {
		t.Error("empty playbook should render empty")
	}

	for i := 0; i < lessonTopK+3; i++ {
		p.LearnLesson(fmt.Sprintf("task %d", i), "m", "s")
	}
	got := p.Context(context.Background(), "unrelated query")
	if n := strings.Count(got, "- Task:"); n != lessonTopK {
		t.Errorf("fallback should show %d recent lessons, got %d:\n%s", lessonTopK, n, got)
	}
}

func TestPlaybook_Replace(t *testing.T) {
	p, dir := newPlaybook(t)
	for i := 0; i < 10; i++ {
		p.LearnLesson(fmt.Sprintf("old %d", i), "m", "s")
	}

	p.Replace([]service.PlaybookLesson{
		{Timestamp: "2026-01-01T00:00:00Z", Task: "merged rule", Mistake: "several", Solution: "one habit"},
	})

	snap := p.Snapshot()
	if len(snap) != 1 || snap[0].Task != "merged rule" {
		t.Errorf("replace did not take: %+v", snap)
	}

	reloaded, _ := NewPlaybookStore(dir, nil, zap.NewNop())
	if len(reloaded.Snapshot()) != 1 {
		t.Error("replacement not persisted")
	}
}

func TestPlaybook_RecentFailures(t *testing.T) {
	p, _ := newPlaybook(t)
	if p.RecentFailures() != "" {
		t.Error("no lessons should mean no failures")
	}

	p.LearnLesson("deploy service", "forgot migrations", "run migrations first")
	got := p.RecentFailures()
	if !strings.Contains(got, "deploy service") || !strings.Contains(got, "forgot migrations") {
		t.Errorf("failures summary incomplete: %q", got)
	}
	if strings.Contains(got, "run migrations first") {
		t.Error("failures summary should not leak solutions")
	}
}

func TestPlaybook_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, playbookFile), []byte("{not json"), 0644)

	p, err := NewPlaybookStore(dir, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("corrupt file should not fail construction: %v", err)
	}
	if len(p.Snapshot()) != 0 {
		t.Error("corrupt file should load as empty")
	}
}
