package swarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func echoWorker(ctx context.Context, task Task, deps map[string]string) (string, error) {
	return "out:" + task.Key, nil
}

func TestNewGraphValidation(t *testing.T) {
	cases := []struct {
		name    string
		tasks   []Task
		wantErr string
	}{
		{"empty set", nil, "no tasks"},
		{"empty key", []Task{{Key: ""}}, "empty key"},
		{"duplicate key", []Task{{Key: "a"}, {Key: "a"}}, "duplicate"},
		{"unknown dependency", []Task{{Key: "a", DependsOn: []string{"ghost"}}}, "unknown task"},
		{"self dependency", []Task{{Key: "a", DependsOn: []string{"a"}}}, "depends on itself"},
		{"two-cycle", []Task{
			{Key: "a", DependsOn: []string{"b"}},
			{Key: "b", DependsOn: []string{"a"}},
		}, "cycle"},
		{"valid diamond", []Task{
			{Key: "src"},
			{Key: "left", DependsOn: []string{"src"}},
			{Key: "right", DependsOn: []string{"src"}},
			{Key: "join", DependsOn: []string{"left", "right"}},
		}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGraph(tc.tasks, echoWorker, GraphConfig{}, zap.NewNop())
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestRunChainDeliversDependencyResults(t *testing.T) {
	var mu sync.Mutex
	var order []string
	worker := func(ctx context.Context, task Task, deps map[string]string) (string, error) {
		mu.Lock()
		order = append(order, task.Key)
		mu.Unlock()
		if task.Key == "second" {
			if deps["first"] != "first-result" {
				t.Errorf("dependency result not delivered, deps = %v", deps)
			}
		}
		return task.Key + "-result", nil
	}
	g, err := NewGraph([]Task{
		{Key: "second", DependsOn: []string{"first"}},
		{Key: "first"},
	}, worker, GraphConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	outcomes := g.Run(context.Background())
	if len(outcomes) != 2 {
		t.Fatalf("settled %d tasks, want 2", len(outcomes))
	}
	for key, out := range outcomes {
		if out.Status != StatusDone {
			t.Errorf("%s status = %s, want done", key, out.Status)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("execution order = %v", order)
	}
}

func TestRunIndependentTasksOverlap(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	worker := func(ctx context.Context, task Task, deps map[string]string) (string, error) {
		started <- task.Key
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "done", nil
	}
	g, err := NewGraph([]Task{{Key: "a"}, {Key: "b"}}, worker, GraphConfig{MaxParallel: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	go func() {
		// Both workers must be in flight before either finishes.
		<-started
		<-started
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcomes := g.Run(ctx)
	for key, out := range outcomes {
		if out.Status != StatusDone {
			t.Errorf("%s status = %s, want done", key, out.Status)
		}
	}
}

func TestRunFailureSkipsDependentsTransitively(t *testing.T) {
	worker := func(ctx context.Context, task Task, deps map[string]string) (string, error) {
		if task.Key == "fetch" {
			return "", fmt.Errorf("connection refused")
		}
		return "ok", nil
	}
	g, err := NewGraph([]Task{
		{Key: "fetch"},
		{Key: "parse", DependsOn: []string{"fetch"}},
		{Key: "report", DependsOn: []string{"parse"}},
		{Key: "unrelated"},
	}, worker, GraphConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	outcomes := g.Run(context.Background())
	if outcomes["fetch"].Status != StatusFailed {
		t.Errorf("fetch status = %s, want failed", outcomes["fetch"].Status)
	}
	for _, key := range []string{"parse", "report"} {
		out := outcomes[key]
		if out.Status != StatusSkipped {
			t.Errorf("%s status = %s, want skipped", key, out.Status)
		}
		if out.Err == nil || !strings.Contains(out.Err.Error(), "dependency") {
			t.Errorf("%s err = %v, want dependency failure", key, out.Err)
		}
	}
	if outcomes["unrelated"].Status != StatusDone {
		t.Errorf("unrelated task dragged down by sibling failure: %s", outcomes["unrelated"].Status)
	}
}

func TestRunPartialFailureAtJoin(t *testing.T) {
	worker := func(ctx context.Context, task Task, deps map[string]string) (string, error) {
		if task.Key == "right" {
			return "", fmt.Errorf("boom")
		}
		return "ok", nil
	}
	g, err := NewGraph([]Task{
		{Key: "left"},
		{Key: "right"},
		{Key: "join", DependsOn: []string{"left", "right"}},
	}, worker, GraphConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	outcomes := g.Run(context.Background())
	if outcomes["left"].Status != StatusDone {
		t.Errorf("left status = %s", outcomes["left"].Status)
	}
	if outcomes["join"].Status != StatusSkipped {
		t.Errorf("join status = %s, want skipped", outcomes["join"].Status)
	}
}

func TestRunReportsEveryOutcomeOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	g, err := NewGraph([]Task{
		{Key: "a"},
		{Key: "b", DependsOn: []string{"a"}},
		{Key: "c", DependsOn: []string{"a"}},
	}, echoWorker, GraphConfig{
		OnTaskDone: func(out Outcome) {
			mu.Lock()
			seen[out.Key]++
			mu.Unlock()
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	g.Run(context.Background())
	mu.Lock()
	defer mu.Unlock()
	for _, key := range []string{"a", "b", "c"} {
		if seen[key] != 1 {
			t.Errorf("OnTaskDone fired %d times for %s", seen[key], key)
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	worker := func(ctx context.Context, task Task, deps map[string]string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	g, err := NewGraph([]Task{
		{Key: "slow"},
		{Key: "after", DependsOn: []string{"slow"}},
	}, worker, GraphConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	outcomes := g.Run(ctx)

	if outcomes["slow"].Status != StatusFailed {
		t.Errorf("slow status = %s, want failed", outcomes["slow"].Status)
	}
	if outcomes["after"].Status != StatusSkipped {
		t.Errorf("after status = %s, want skipped", outcomes["after"].Status)
	}
}
