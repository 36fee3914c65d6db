package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	"github.com/ghostagent/ghost/internal/domain/tool"
	llm "github.com/ghostagent/ghost/internal/infrastructure/llm"
	"go.uber.org/zap"
)

func TestChatParsesResponse(t *testing.T) {
	var gotReq Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			Model: "qwen3",
			Choices: []Choice{{
				Message:      entity.Message{Role: "assistant", Content: "hi"},
				FinishReason: "stop",
			}},
			Usage: Usage{TotalTokens: 11},
		})
	}))
	defer server.Close()

	client := New(llm.Node{URL: server.URL, Model: "qwen3"}, zap.NewNop())
	resp, err := client.Chat(context.Background(), &service.ChatRequest{
		Messages:    []entity.Message{entity.UserMessage("hello")},
		Temperature: 0.2,
		JSONMode:    true,
		Tools: []tool.Definition{{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if resp.Message.Content != "hi" {
		t.Errorf("Expected content 'hi', got %q", resp.Message.Content)
	}
	if resp.TokensUsed != 11 {
		t.Errorf("Expected 11 tokens, got %d", resp.TokensUsed)
	}

	// request-side wiring
	if gotReq.Model != "qwen3" {
		t.Errorf("Expected node model fallback 'qwen3', got %q", gotReq.Model)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("Expected json_object response_format, got %+v", gotReq.ResponseFormat)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Function.Name != "read_file" {
		t.Errorf("Expected tools on the wire, got %+v", gotReq.Tools)
	}
}

func TestChatStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(llm.Node{URL: server.URL}, zap.NewNop())
	_, err := client.Chat(context.Background(), &service.ChatRequest{})
	if err == nil {
		t.Fatal("Expected error")
	}

	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", statusErr.Code)
	}
}

func TestChatStreamEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sr StreamRequest
		if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
			t.Fatalf("Decode stream request: %v", err)
		}
		if !sr.Stream {
			t.Error("Expected stream=true on the wire")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"str"},"finish_reason":null}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"eam"},"finish_reason":null}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := New(llm.Node{URL: server.URL, Model: "m"}, zap.NewNop())
	deltaCh := make(chan service.StreamChunk, 16)
	resp, err := client.ChatStream(context.Background(), &service.ChatRequest{}, deltaCh)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Message.Content != "stream" {
		t.Errorf("Expected 'stream', got %q", resp.Message.Content)
	}
}

func TestEmbedSortsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("Expected /v1/embeddings, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(EmbeddingsResponse{
			Data: []EmbeddingItem{
				{Index: 1, Embedding: []float32{1.0}},
				{Index: 0, Embedding: []float32{0.5}},
			},
		})
	}))
	defer server.Close()

	client := New(llm.Node{URL: server.URL}, zap.NewNop())
	vecs, err := client.Embed(context.Background(), "embed", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("Expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.5 || vecs[1][0] != 1.0 {
		t.Errorf("Expected vectors sorted by index, got %v", vecs)
	}
}

func TestConvertSchemaFraming(t *testing.T) {
	got := ConvertSchema(nil)
	if got["type"] != "object" {
		t.Errorf("Expected object framing for nil schema, got %v", got)
	}

	in := map[string]interface{}{"properties": map[string]interface{}{}}
	got = ConvertSchema(in)
	if got["type"] != "object" {
		t.Errorf("Expected injected type, got %v", got)
	}
	if _, ok := in["type"]; ok {
		t.Error("Expected input schema to stay unmodified")
	}
}

func TestNewProxiedRejectsBadProxyAddress(t *testing.T) {
	if _, err := NewProxied(llm.Node{URL: "http://10.0.0.2:8080"}, "://broken", zap.NewNop()); err == nil {
		t.Error("Expected error for malformed proxy address")
	}
}

func TestNewProxiedDialsThroughProxy(t *testing.T) {
	// Upstream is alive, but the client must reach it through the proxy.
	// A dead proxy port therefore has to fail the request.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Request reached upstream directly, bypassing the proxy")
	}))
	defer server.Close()

	client, err := NewProxied(llm.Node{URL: server.URL, Model: "m"}, "socks5://127.0.0.1:1", zap.NewNop())
	if err != nil {
		t.Fatalf("NewProxied: %v", err)
	}

	_, err = client.Chat(context.Background(), &service.ChatRequest{
		Messages: []entity.Message{entity.UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("Expected proxy dial failure, request succeeded")
	}
}
