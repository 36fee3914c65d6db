package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/ghostagent/ghost/internal/domain/service"
	llm "github.com/ghostagent/ghost/internal/infrastructure/llm"
)

// Client is the HTTP client for one upstream node. llama.cpp server,
// vLLM and every other OpenAI-compatible runtime speak this dialect.
type Client struct {
	node   llm.Node
	client *http.Client
	logger *zap.Logger
}

// New creates a node client. One Client per node; the router owns the set.
func New(node llm.Node, logger *zap.Logger) *Client {
	transport := baseTransport()
	transport.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Client{
		node:   node,
		client: &http.Client{Transport: transport},
		logger: logger.With(zap.String("node", node.URL)),
	}
}

// NewProxied creates a node client that dials through a socks5 proxy.
// Anonymous mode routes non-loopback upstreams this way so model traffic
// leaves through the same Tor exit the network tools use.
func NewProxied(node llm.Node, proxyAddr string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address: %w", err)
	}
	host := u.Host
	if host == "" {
		host = u.Path // bare host:port without scheme
	}

	dialer, err := proxy.SOCKS5("tcp", host, nil, &net.Dialer{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}

	transport := baseTransport()
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	logger.Info("Upstream node proxied",
		zap.String("node", node.URL), zap.String("proxy", host))
	return &Client{
		node:   node,
		client: &http.Client{Transport: transport},
		logger: logger.With(zap.String("node", node.URL)),
	}, nil
}

func baseTransport() *http.Transport {
	return &http.Transport{
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
	}
}

// Compile-time interface check
var _ llm.NodeClient = (*Client)(nil)

func (c *Client) Node() llm.Node { return c.node }

// Chat sends a non-streaming completion request.
func (c *Client) Chat(ctx context.Context, req *service.ChatRequest) (*service.ChatResponse, error) {
	apiReq := c.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.post(ctx, "/v1/chat/completions", body, "")
	if err != nil {
		return nil, err
	}

	return parseResponse(respBody)
}

// ChatStream sends a streaming completion request, relaying text deltas
// on deltaCh and returning the accumulated response.
func (c *Client) ChatStream(ctx context.Context, req *service.ChatRequest, deltaCh chan<- service.StreamChunk) (*service.ChatResponse, error) {
	apiReq := c.buildRequest(req)
	streamBody := StreamRequest{
		Request:       apiReq,
		Stream:        true,
		StreamOptions: map[string]interface{}{"include_usage": true},
	}

	body, err := json.Marshal(streamBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.node.URL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &llm.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	// Context cancellation body-close watchdog
	streamDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	result, err := ParseSSEStream(ctx, resp.Body, deltaCh, c.logger)
	close(streamDone)
	return result, err
}

// Embed calls the embeddings endpoint with a batch of texts.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	body, err := json.Marshal(EmbeddingsRequest{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.post(ctx, "/v1/embeddings", body, "")
	if err != nil {
		return nil, err
	}

	var embResp EmbeddingsResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("parse embeddings response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("empty embeddings response")
	}

	// the API may return items out of order
	sort.Slice(embResp.Data, func(i, j int) bool {
		return embResp.Data[i].Index < embResp.Data[j].Index
	})
	vectors := make([][]float32, len(embResp.Data))
	for i, item := range embResp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, accept string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.node.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func (c *Client) buildRequest(req *service.ChatRequest) *Request {
	model := req.Model
	if model == "" {
		model = c.node.Model
	}

	apiReq := &Request{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  ConvertSchema(td.Parameters),
			},
		})
	}
	return apiReq
}

func parseResponse(body []byte) (*service.ChatResponse, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices")
	}

	choice := apiResp.Choices[0]
	return &service.ChatResponse{
		Message:      choice.Message,
		ModelUsed:    apiResp.Model,
		TokensUsed:   apiResp.Usage.Total(),
		FinishReason: choice.FinishReason,
	}, nil
}
