package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/memory"
	"go.uber.org/zap"
)

func newTestMemory() *memory.Manager {
	return memory.NewManager(memory.NewInMemoryVectorStore(), memory.NewHashEmbedder(64), zap.NewNop())
}

func TestMemoryWriter_StoresHighSignalFact(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return textResponse(`{"score": 0.85, "fact": "User prefers metric units for all measurements"}`), nil
	}}
	mem := newTestMemory()
	w := NewMemoryWriter(up, mem, nil, "SMART_MEMORY", "test-model", 0.8, testLogger())

	w.Observe(context.Background(), "always use celsius with me", "Understood.")

	count, _ := mem.Count(context.Background(), memory.KindAuto)
	if count != 1 {
		t.Errorf("expected 1 stored memory, got %d", count)
	}
}

func TestMemoryWriter_BelowThresholdDropped(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return textResponse(`{"score": 0.3, "fact": "User said hello this morning"}`), nil
	}}
	mem := newTestMemory()
	w := NewMemoryWriter(up, mem, nil, "SMART_MEMORY", "test-model", 0.8, testLogger())

	w.Observe(context.Background(), "hello", "Hi there.")

	count, _ := mem.Count(context.Background(), memory.KindAuto)
	if count != 0 {
		t.Errorf("low-signal chatter must not be stored, got %d entries", count)
	}
}

func TestMemoryWriter_FactLengthGate(t *testing.T) {
	tests := []struct {
		name string
		fact string
	}{
		{"too short", "ok"},
		{"too long", strings.Repeat("the user definitely prefers tabs over spaces ", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fact := tt.fact
			up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
				return textResponse(`{"score": 0.95, "fact": ` + jsonString(fact) + `}`), nil
			}}
			mem := newTestMemory()
			w := NewMemoryWriter(up, mem, nil, "SMART_MEMORY", "test-model", 0.8, testLogger())

			w.Observe(context.Background(), "some exchange", "some answer")

			count, _ := mem.Count(context.Background(), memory.KindAuto)
			if count != 0 {
				t.Errorf("fact outside the size band must be dropped, got %d entries", count)
			}
		})
	}
}

func TestMemoryWriter_ProfileSyncAtHighScore(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return textResponse(`{"score": 0.95, "fact": "User's name is Dana and they live in Oslo",
			"profile_update": {"category": "identity", "key": "name", "value": "Dana"}}`), nil
	}}
	mem := newTestMemory()
	profile := &fakeProfile{}
	w := NewMemoryWriter(up, mem, profile, "SMART_MEMORY", "test-model", 0.8, testLogger())

	w.Observe(context.Background(), "call me Dana, I'm in Oslo", "Nice to meet you, Dana.")

	if profile.updateCount() != 1 {
		t.Errorf("identity-grade facts must sync the profile, got %d updates", profile.updateCount())
	}
}

func TestMemoryWriter_NoProfileSyncBelowCutoff(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return textResponse(`{"score": 0.85, "fact": "User is currently working on a Go migration",
			"profile_update": {"category": "work", "key": "project", "value": "go migration"}}`), nil
	}}
	mem := newTestMemory()
	profile := &fakeProfile{}
	w := NewMemoryWriter(up, mem, profile, "SMART_MEMORY", "test-model", 0.8, testLogger())

	w.Observe(context.Background(), "migrating our services to Go", "Good choice.")

	if profile.updateCount() != 0 {
		t.Error("profile sync requires the identity-grade score")
	}
	count, _ := mem.Count(context.Background(), memory.KindAuto)
	if count != 1 {
		t.Error("the fact itself should still be stored")
	}
}

func TestMemoryWriter_UpstreamFailureSwallowed(t *testing.T) {
	up := &fakeUpstream{handler: func(pool Pool, req *ChatRequest) (*ChatResponse, error) {
		return nil, errors.New("worker down")
	}}
	w := NewMemoryWriter(up, newTestMemory(), nil, "SMART_MEMORY", "test-model", 0.8, testLogger())

	// Must not panic or propagate.
	w.Observe(context.Background(), "remember this", "done")
}

func TestMemoryWriter_EmptyUserTurnSkipped(t *testing.T) {
	up := &fakeUpstream{}
	w := NewMemoryWriter(up, newTestMemory(), nil, "SMART_MEMORY", "test-model", 0.8, testLogger())

	w.Observe(context.Background(), "   ", "answer")
	if up.callCount() != 0 {
		t.Error("empty exchanges must not hit the worker pool")
	}
}

func jsonString(s string) string {
	out := []byte{'"'}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return string(append(out, '"'))
}
