package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is the wire form of one transcript entry sent to the daemon.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HealthInfo mirrors the daemon's GET /health body.
type HealthInfo struct {
	Status         string         `json:"status"`
	Model          string         `json:"model"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	SandboxBackend string         `json:"sandbox_backend"`
	Pools          map[string]int `json:"pools"`
	FeedClients    int            `json:"feed_clients"`
}

// Client talks to a running Ghost daemon over its HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Agent runs take minutes. Streaming keeps the connection
		// alive, so no client-side timeout.
		httpc: &http.Client{},
	}
}

// Health probes GET /health. Used at startup to fail fast when no
// daemon is listening.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	var info HealthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

type chatBody struct {
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	NoMemory bool      `json:"no_memory,omitempty"`
}

// streamChunk is the subset of the chat.completion.chunk wire object
// the client cares about.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStream posts the transcript with stream=true and invokes onDelta
// for every content delta as it arrives. Returns the assembled reply
// and the finish reason.
func (c *Client) ChatStream(ctx context.Context, messages []Message, noMemory bool, onDelta func(string)) (string, string, error) {
	payload, err := json.Marshal(chatBody{Messages: messages, Stream: true, NoMemory: noMemory})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ghost-Key", c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErrorMessage(body))
	}

	var reply strings.Builder
	finish := ""

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				reply.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(choice.Delta.Content)
				}
			}
			if choice.FinishReason != nil {
				finish = *choice.FinishReason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return reply.String(), finish, err
	}
	return reply.String(), finish, nil
}

// apiErrorMessage pulls the message out of an OpenAI-style error body,
// falling back to the raw bytes.
func apiErrorMessage(body []byte) string {
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
