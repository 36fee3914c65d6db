package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	apperrors "github.com/ghostagent/ghost/pkg/errors"
	"go.uber.org/zap"
)

type fakeRunner struct {
	result  *entity.RunResult
	err     error
	deltas  []string
	lastReq *entity.RunRequest
}

func (f *fakeRunner) Run(ctx context.Context, req *entity.RunRequest, deltaCh chan<- service.StreamChunk) (*entity.RunResult, error) {
	f.lastReq = req
	for _, d := range f.deltas {
		deltaCh <- service.StreamChunk{DeltaText: d}
	}
	return f.result, f.err
}

func newChatRouter(runner *fakeRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("request_id", "test1234")
		c.Next()
	})
	h := NewChatHandler(runner, "Qwen3-8B-Instruct-2507", zap.NewNop())
	r.POST("/api/chat", h.Chat)
	return r
}

func postChat(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChat_Unary(t *testing.T) {
	runner := &fakeRunner{result: &entity.RunResult{
		FinalContent: "The answer is 42.",
		Turns:        3,
		TokensUsed:   120,
	}}
	r := newChatRouter(runner)

	w := postChat(t, r, `{"messages":[{"role":"user","content":"what is the answer?"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "chatcmpl-test1234" {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object = %q", resp.Object)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "The answer is 42." {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 120 || resp.Usage.Turns != 3 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if runner.lastReq.RequestID != "test1234" {
		t.Errorf("request id not threaded: %q", runner.lastReq.RequestID)
	}
}

func TestChat_ForceStoppedReportsLength(t *testing.T) {
	runner := &fakeRunner{result: &entity.RunResult{
		FinalContent: "partial",
		ForceStopped: true,
	}}
	r := newChatRouter(runner)

	w := postChat(t, r, `{"messages":[{"role":"user","content":"hi"}]}`)
	var resp ChatResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Choices[0].FinishReason != "length" {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
}

func TestChat_IntakeGuards(t *testing.T) {
	r := newChatRouter(&fakeRunner{result: &entity.RunResult{}})

	if w := postChat(t, r, `{"messages":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty messages: status = %d", w.Code)
	}
	if w := postChat(t, r, `{"messages":`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed json: status = %d", w.Code)
	}

	var sb strings.Builder
	sb.WriteString(`{"messages":[`)
	for i := 0; i < 501; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"role":"user","content":"x"}`)
	}
	sb.WriteString(`]}`)
	if w := postChat(t, r, sb.String()); w.Code != http.StatusBadRequest {
		t.Errorf("oversized transcript: status = %d", w.Code)
	}
}

func TestChat_MultimodalContentParses(t *testing.T) {
	runner := &fakeRunner{result: &entity.RunResult{FinalContent: "a cat"}}
	r := newChatRouter(runner)

	body := `{"messages":[{"role":"user","content":[
		{"type":"text","text":"what is in this image?"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}
	]}]}`
	if w := postChat(t, r, body); w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	msg := runner.lastReq.Messages[0]
	if msg.Content != "what is in this image?" {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.Images) != 1 || !strings.HasPrefix(msg.Images[0], "data:image/png") {
		t.Errorf("images = %v", msg.Images)
	}
}

func TestChat_RunErrorIs500(t *testing.T) {
	runner := &fakeRunner{err: context.DeadlineExceeded}
	r := newChatRouter(runner)

	w := postChat(t, r, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "server_error") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestChat_LoopErrorBecomesCompletion(t *testing.T) {
	runner := &fakeRunner{
		result: &entity.RunResult{Turns: 4, TokensUsed: 50, Failed: true},
		err:    apperrors.NewUpstreamUnavailable("pool 'main' unreachable after 10 attempts", nil),
	}
	r := newChatRouter(runner)

	w := postChat(t, r, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("loop errors must come back as completions, status = %d", w.Code)
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %+v", resp.Choices)
	}
	msg := resp.Choices[0].Message
	if msg.Role != "assistant" || !strings.Contains(msg.Content, "[ERROR:") {
		t.Errorf("message = %+v", msg)
	}
	if !strings.Contains(msg.Content, "unreachable") {
		t.Errorf("error detail missing from content: %q", msg.Content)
	}
	if resp.Usage == nil || resp.Usage.Turns != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChat_Stream(t *testing.T) {
	runner := &fakeRunner{
		result: &entity.RunResult{FinalContent: "hello world"},
		deltas: []string{"hello ", "world"},
	}
	r := newChatRouter(runner)

	w := postChat(t, r, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream not terminated with [DONE]:\n%s", body)
	}

	var roleSeen bool
	var content strings.Builder
	var finish string
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("bad chunk %q: %v", line, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("object = %q", chunk.Object)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Role == "assistant" {
				roleSeen = true
			}
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != nil {
				finish = *choice.FinishReason
			}
		}
	}
	if !roleSeen {
		t.Error("no assistant role delta")
	}
	if content.String() != "hello world" {
		t.Errorf("streamed content = %q", content.String())
	}
	if finish != "stop" {
		t.Errorf("finish reason = %q", finish)
	}
}

func TestChat_StreamErrorSurfaced(t *testing.T) {
	runner := &fakeRunner{err: context.DeadlineExceeded}
	r := newChatRouter(runner)

	w := postChat(t, r, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	body := w.Body.String()
	if !strings.Contains(body, "[ERROR:") {
		t.Errorf("error not surfaced in stream:\n%s", body)
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Error("stream must still terminate after an error")
	}
}
