package llm

import (
	"testing"
)

func TestParseNodes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Node
	}{
		{
			name: "single URL without model",
			raw:  "http://127.0.0.1:8080",
			want: []Node{{URL: "http://127.0.0.1:8080"}},
		},
		{
			name: "URL with pinned model",
			raw:  "http://10.0.0.2:8080|Qwen3-8B-Instruct-2507",
			want: []Node{{URL: "http://10.0.0.2:8080", Model: "Qwen3-8B-Instruct-2507"}},
		},
		{
			name: "comma-separated list",
			raw:  "http://a:8080|m1,http://b:8080|m2",
			want: []Node{
				{URL: "http://a:8080", Model: "m1"},
				{URL: "http://b:8080", Model: "m2"},
			},
		},
		{
			name: "repairs double-colon typo",
			raw:  "http:://127.0.0.1:8081|coder",
			want: []Node{{URL: "http://127.0.0.1:8081", Model: "coder"}},
		},
		{
			name: "repairs https double-colon typo",
			raw:  "https:://example.com|m",
			want: []Node{{URL: "https://example.com", Model: "m"}},
		},
		{
			name: "trims trailing slash and whitespace",
			raw:  "  http://a:8080/ | m1 ",
			want: []Node{{URL: "http://a:8080", Model: "m1"}},
		},
		{
			name: "skips empty segments",
			raw:  "http://a:8080,,  ,http://b:8080",
			want: []Node{{URL: "http://a:8080"}, {URL: "http://b:8080"}},
		},
		{
			name: "empty input",
			raw:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNodes(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d nodes, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Node %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestLoopback(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://127.0.0.1:8080", true},
		{"http://localhost:8080", true},
		{"http://[::1]:8080", true},
		{"http://10.0.0.2:8080", false},
		{"https://llm.example.com", false},
		{"http://192.168.1.40:8081", false},
	}
	for _, tt := range tests {
		if got := Loopback(tt.url); got != tt.want {
			t.Errorf("Loopback(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestNodeString(t *testing.T) {
	n := Node{URL: "http://a:8080", Model: "m"}
	if n.String() != "http://a:8080|m" {
		t.Errorf("Expected 'http://a:8080|m', got %q", n.String())
	}

	bare := Node{URL: "http://a:8080"}
	if bare.String() != "http://a:8080" {
		t.Errorf("Expected 'http://a:8080', got %q", bare.String())
	}
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &StatusError{Code: 500, Body: string(long)}
	msg := err.Error()
	if len(msg) > 350 {
		t.Errorf("Expected truncated message, got %d chars", len(msg))
	}
}
