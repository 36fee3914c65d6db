package llm

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/service"
)

// Node is one upstream llama.cpp endpoint, optionally pinned to a model.
type Node struct {
	URL   string
	Model string
}

func (n Node) String() string {
	if n.Model == "" {
		return n.URL
	}
	return n.URL + "|" + n.Model
}

// ParseNodes parses the CLI node syntax: comma-separated "url|model"
// entries, the model part optional. The common "http:://" paste typo is
// repaired instead of rejected.
func ParseNodes(raw string) []Node {
	var nodes []Node
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.Replace(part, "http:://", "http://", 1)
		part = strings.Replace(part, "https:://", "https://", 1)

		url := part
		model := ""
		if idx := strings.Index(part, "|"); idx >= 0 {
			url = strings.TrimSpace(part[:idx])
			model = strings.TrimSpace(part[idx+1:])
		}
		if url == "" {
			continue
		}
		nodes = append(nodes, Node{URL: strings.TrimRight(url, "/"), Model: model})
	}
	return nodes
}

// Loopback reports whether the node URL points at the local machine.
// Remote upstreams get proxied in anonymous mode; local ones never are.
func Loopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// NodeClient is the per-endpoint client the router drives. The openai
// sub-package provides the implementation.
type NodeClient interface {
	Chat(ctx context.Context, req *service.ChatRequest) (*service.ChatResponse, error)
	ChatStream(ctx context.Context, req *service.ChatRequest, deltaCh chan<- service.StreamChunk) (*service.ChatResponse, error)
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
	Node() Node
}

// StatusError is a non-2xx upstream reply. The router fails these
// immediately: a node that answers with a status has made a decision,
// retrying the same payload will not change it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, truncate(e.Body, 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
