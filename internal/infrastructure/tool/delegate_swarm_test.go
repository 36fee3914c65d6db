package tool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
)

func waitForPad(t *testing.T, pad *fakePad, key string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, exists := pad.Get(key); exists && !strings.HasPrefix(v, "[PENDING") {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	v, _ := pad.Get(key)
	t.Fatalf("scratchpad key %q never resolved, last value %q", key, v)
	return ""
}

func TestDelegateToSwarm_DispatchesAndResolves(t *testing.T) {
	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		if pool != service.PoolSwarm {
			t.Errorf("delegated work should hit the swarm pool, got %s", pool)
		}
		if !strings.Contains(req.Messages[1].Content, "INSTRUCTION: summarize") {
			t.Errorf("instruction missing from worker prompt: %q", req.Messages[1].Content)
		}
		return &service.ChatResponse{Message: entity.AssistantMessage("  a short summary  ")}, nil
	}}
	pad := newFakePad()
	dt := NewDelegateToSwarmTool(up, pad, "m", testLogger())

	res, err := dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{
				"instruction": "summarize", "input_data": "long text", "output_key": "summary",
			},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Output, "Dispatched 1 task(s)") || !strings.Contains(res.Output, "summary") {
		t.Fatalf("dispatch report wrong: %q", res.Output)
	}

	if v, exists := pad.Get("summary"); !exists || !strings.HasPrefix(v, "[PENDING") {
		t.Errorf("key should be marked pending right after dispatch, got %q", v)
	}
	if got := waitForPad(t, pad, "summary"); got != "a short summary" {
		t.Errorf("worker result = %q", got)
	}
}

func TestDelegateToSwarm_WorkerFailureLandsOnPad(t *testing.T) {
	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		return nil, context.DeadlineExceeded
	}}
	pad := newFakePad()
	dt := NewDelegateToSwarmTool(up, pad, "m", testLogger())

	res, _ := dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{"instruction": "x", "input_data": "y", "output_key": "out"},
		},
	})
	if !res.Success {
		t.Fatalf("dispatch itself should succeed: %q", res.Output)
	}
	if got := waitForPad(t, pad, "out"); !strings.HasPrefix(got, "[FAILED:") {
		t.Errorf("failure marker missing: %q", got)
	}
}

func TestDelegateToSwarm_InputCapAndValidation(t *testing.T) {
	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		if len(req.Messages[1].Content) > swarmInputCap+200 {
			t.Errorf("input data not capped: %d bytes", len(req.Messages[1].Content))
		}
		return &service.ChatResponse{Message: entity.AssistantMessage("ok")}, nil
	}}
	pad := newFakePad()
	dt := NewDelegateToSwarmTool(up, pad, "m", testLogger())

	dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{
				"instruction": "x",
				"input_data":  strings.Repeat("z", swarmInputCap*2),
				"output_key":  "capped",
			},
		},
	})
	waitForPad(t, pad, "capped")

	res, _ := dt.Execute(context.Background(), map[string]interface{}{"tasks": []interface{}{}})
	if res.Success {
		t.Error("empty task list must fail")
	}
	res, _ = dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{map[string]interface{}{"instruction": "x"}},
	})
	if res.Success {
		t.Error("task without output_key must fail")
	}
}

func TestDelegateToSwarm_DependentTaskSeesUpstreamResult(t *testing.T) {
	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		prompt := req.Messages[1].Content
		if strings.Contains(prompt, "INSTRUCTION: gather") {
			return &service.ChatResponse{Message: entity.AssistantMessage("42 items found")}, nil
		}
		if !strings.Contains(prompt, "RESULT OF 'gathered':") || !strings.Contains(prompt, "42 items found") {
			t.Errorf("dependency result missing from dependent prompt: %q", prompt)
		}
		return &service.ChatResponse{Message: entity.AssistantMessage("report written")}, nil
	}}
	pad := newFakePad()
	dt := NewDelegateToSwarmTool(up, pad, "m", testLogger())

	res, err := dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{
				"instruction": "summarize into a report", "input_data": "n/a", "output_key": "report",
				"depends_on": []interface{}{"gathered"},
			},
			map[string]interface{}{
				"instruction": "gather", "input_data": "the corpus", "output_key": "gathered",
			},
		},
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch failed: %v %v", err, res)
	}
	if got := waitForPad(t, pad, "gathered"); got != "42 items found" {
		t.Errorf("gather result = %q", got)
	}
	if got := waitForPad(t, pad, "report"); got != "report written" {
		t.Errorf("report result = %q", got)
	}
}

func TestDelegateToSwarm_FailedDependencySkipsDownstream(t *testing.T) {
	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		return nil, context.DeadlineExceeded
	}}
	pad := newFakePad()
	dt := NewDelegateToSwarmTool(up, pad, "m", testLogger())

	dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{"instruction": "a", "input_data": "x", "output_key": "base"},
			map[string]interface{}{
				"instruction": "b", "input_data": "x", "output_key": "derived",
				"depends_on": []interface{}{"base"},
			},
		},
	})
	if got := waitForPad(t, pad, "base"); !strings.HasPrefix(got, "[FAILED:") {
		t.Errorf("base marker = %q", got)
	}
	if got := waitForPad(t, pad, "derived"); !strings.HasPrefix(got, "[SKIPPED:") {
		t.Errorf("derived marker = %q", got)
	}
}

func TestDelegateToSwarm_RejectsBrokenGraph(t *testing.T) {
	pad := newFakePad()
	dt := NewDelegateToSwarmTool(&fakeUpstream{}, pad, "m", testLogger())

	res, _ := dt.Execute(context.Background(), map[string]interface{}{
		"tasks": []interface{}{
			map[string]interface{}{
				"instruction": "x", "input_data": "y", "output_key": "a",
				"depends_on": []interface{}{"nonexistent"},
			},
		},
	})
	if res.Success {
		t.Fatal("graph with unknown dependency must be rejected")
	}
	if !strings.Contains(res.Output, "invalid task graph") {
		t.Errorf("rejection message = %q", res.Output)
	}
	if _, exists := pad.Get("a"); exists {
		t.Error("rejected dispatch must not touch the scratchpad")
	}
}
