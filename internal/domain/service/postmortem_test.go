package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/entity"
)

func TestPostMortem_FilesLesson(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return textResponse(`{"task": "Parse nested JSON from an API",
			"mistake": "Assumed the payload was flat",
			"solution": "Inspect one sample response before writing the parser"}`), nil
	}}
	playbook := &fakePlaybook{}
	pm := NewPostMortem(up, playbook, "POST_MORTEM", "test-model", testLogger())

	pm.Analyze(context.Background(), "parse the weather API response", &entity.RunResult{
		Failed:       true,
		Turns:        6,
		ToolsUsed:    []string{"execute", "web_search"},
		FinalContent: "I could not parse the response.",
	})

	if playbook.count() != 1 {
		t.Fatalf("expected 1 lesson, got %d", playbook.count())
	}
	if !playbook.hasTask("Parse nested JSON") {
		t.Error("lesson task was not preserved")
	}
}

func TestPostMortem_OutcomeLabel(t *testing.T) {
	tests := []struct {
		name   string
		result entity.RunResult
		want   string
	}{
		{"failure", entity.RunResult{Failed: true}, "OUTCOME: FAILURE"},
		{"force stopped", entity.RunResult{ForceStopped: true}, "OUTCOME: FORCE-STOPPED"},
		{"success", entity.RunResult{}, "OUTCOME: SUCCESS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
				seen = req.Messages[len(req.Messages)-1].Content
				return textResponse(`{}`), nil
			}}
			pm := NewPostMortem(up, &fakePlaybook{}, "POST_MORTEM", "test-model", testLogger())
			result := tt.result
			pm.Analyze(context.Background(), "do something", &result)
			if !strings.Contains(seen, tt.want) {
				t.Errorf("summary missing %q in %q", tt.want, seen)
			}
		})
	}
}

func TestPostMortem_IncompleteVerdictDropped(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return textResponse(`{"task": "something", "mistake": "", "solution": "do better"}`), nil
	}}
	playbook := &fakePlaybook{}
	pm := NewPostMortem(up, playbook, "POST_MORTEM", "test-model", testLogger())

	pm.Analyze(context.Background(), "task", &entity.RunResult{Failed: true})
	if playbook.count() != 0 {
		t.Error("verdicts with empty fields must be dropped")
	}
}

func TestPostMortem_UpstreamFailureSwallowed(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return nil, errors.New("pool exhausted")
	}}
	playbook := &fakePlaybook{}
	pm := NewPostMortem(up, playbook, "POST_MORTEM", "test-model", testLogger())

	pm.Analyze(context.Background(), "task", &entity.RunResult{Failed: true})
	if playbook.count() != 0 {
		t.Error("no lesson should be filed when the worker is down")
	}
}
