package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
)

func TestSelectTargets(t *testing.T) {
	hits := []searchHit{
		{Title: "junk", URL: "https://www.reddit.com/r/golang/post"},
		{Title: "good1", URL: "https://go.dev/doc"},
		{Title: "dupe host", URL: "https://go.dev/blog"},
		{Title: "junk2", URL: "https://twitter.com/golang"},
		{Title: "good2", URL: "https://pkg.go.dev/context"},
		{Title: "good3", URL: "https://blog.example.com/post"},
		{Title: "good4", URL: "https://news.example.org/item"},
		{Title: "overflow", URL: "https://extra.example.net/x"},
	}

	targets := selectTargets(hits, 4)
	if len(targets) != 4 {
		t.Fatalf("expected 4 targets, got %d", len(targets))
	}
	for _, hit := range targets {
		host := hostOf(hit.URL)
		if isJunkDomain(host) {
			t.Errorf("junk domain %s survived the filter", host)
		}
	}
	if targets[0].Title != "good1" {
		t.Errorf("order not preserved: first = %q", targets[0].Title)
	}
}

func TestIsJunkDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"reddit.com", true},
		{"old.reddit.com", true},
		{"quora.com", true},
		{"go.dev", false},
		{"notreddit.community", false},
	}
	for _, tt := range tests {
		if got := isJunkDomain(tt.host); got != tt.want {
			t.Errorf("isJunkDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestDeepResearch_ExtractsAndDistills(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Go memory model</title></head><body><article><h1>Go memory model</h1><p>`+
			strings.Repeat("The Go memory model specifies the conditions for reads to observe writes. ", 20)+
			`</p></article></body></html>`)
	}))
	defer page.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<a class="result__a" href="%s/article">Memory Model</a>
<div class="result__snippet">The spec.</div>
</body></html>`, page.URL)
	}))
	defer search.Close()

	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		if pool != service.PoolWorker {
			t.Errorf("distillation should hit the worker pool, got %s", pool)
		}
		if !strings.Contains(req.Messages[1].Content, "RESEARCH QUERY: go memory model") {
			t.Error("query missing from distillation prompt")
		}
		return &service.ChatResponse{Message: entity.AssistantMessage("- reads observe writes under happens-before")}, nil
	}}

	ws := NewWebSearchTool(directEgress(), testLogger())
	ws.endpoint = search.URL
	dr := NewDeepResearchTool(ws, directEgress(), up, "test-model", testLogger())

	res, err := dr.Execute(context.Background(), map[string]interface{}{"query": "go memory model"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("research failed: %q", res.Output)
	}
	for _, want := range []string{
		"--- DEEP RESEARCH RESULT ---",
		"[EDGE EXTRACTED FACTS]:",
		"happens-before",
		"Source 1: Memory Model",
	} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output missing %q:\n%s", want, res.Output)
		}
	}
}

func TestDeepResearch_DistillationFailureFallsBackToRawText(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>T</title></head><body><article><p>`+
			strings.Repeat("unique fallback sentence content here. ", 15)+
			`</p></article></body></html>`)
	}))
	defer page.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a class="result__a" href="%s/x">Hit</a><div class="result__snippet">s</div></body></html>`, page.URL)
	}))
	defer search.Close()

	up := &fakeUpstream{handler: func(pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
		return nil, fmt.Errorf("worker pool down")
	}}

	ws := NewWebSearchTool(directEgress(), testLogger())
	ws.endpoint = search.URL
	dr := NewDeepResearchTool(ws, directEgress(), up, "m", testLogger())

	res, _ := dr.Execute(context.Background(), map[string]interface{}{"query": "q"})
	if !res.Success {
		t.Fatalf("research should survive a distillation outage: %q", res.Output)
	}
	if !strings.Contains(res.Output, "unique fallback sentence") {
		t.Error("raw page text should stand in for failed distillation")
	}
}
