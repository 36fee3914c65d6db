package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghostagent/ghost/internal/domain/service"
	apperrors "github.com/ghostagent/ghost/pkg/errors"
	"go.uber.org/zap"
)

const (
	maxAttempts        = 10
	chatBackoffCapSec  = 30
	embedBackoffCapSec = 20
)

// Router implements service.UpstreamClient across pools of nodes.
// Node selection: model affinity first (requested model is a substring of
// the node's pinned model), round-robin otherwise. Empty pools fall back
// to the main pool, and a configured pool that exhausts its retry budget
// fails over to main before the call errors out. Transport failures retry
// with exponential backoff; HTTP status errors fail immediately.
type Router struct {
	pools  map[service.Pool][]NodeClient
	cursor map[service.Pool]int
	stats  map[string]*nodeStats // node URL → stats
	mu     sync.Mutex
	logger *zap.Logger

	// wait is swapped out in tests to avoid real backoff sleeps
	wait func(ctx context.Context, d time.Duration) error
}

// nodeStats tracks per-node performance metrics.
type nodeStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

// NewRouter creates an empty router. Register nodes with AddNodes.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		pools:  make(map[service.Pool][]NodeClient),
		cursor: make(map[service.Pool]int),
		stats:  make(map[string]*nodeStats),
		logger: logger.With(zap.String("component", "upstream-router")),
		wait: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// Compile-time interface check: Router implements service.UpstreamClient
var _ service.UpstreamClient = (*Router)(nil)

// AddNodes registers clients under a pool. Order matters for affinity:
// the first matching node wins.
func (r *Router) AddNodes(pool service.Pool, clients ...NodeClient) {
	if len(clients) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range clients {
		r.pools[pool] = append(r.pools[pool], c)
		if _, ok := r.stats[c.Node().URL]; !ok {
			r.stats[c.Node().URL] = &nodeStats{}
		}
		r.logger.Info("Upstream node registered",
			zap.String("pool", string(pool)),
			zap.String("url", c.Node().URL),
			zap.String("model", c.Node().Model),
		)
	}
}

// PoolSize implements service.UpstreamClient.
func (r *Router) PoolSize(pool service.Pool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools[pool])
}

// pick selects a node from the pool. Affinity match beats round-robin;
// an empty pool falls back to main.
func (r *Router) pick(pool service.Pool, modelHint string) (NodeClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := r.pools[pool]
	effective := pool
	if len(nodes) == 0 && pool != service.PoolMain {
		nodes = r.pools[service.PoolMain]
		effective = service.PoolMain
	}
	if len(nodes) == 0 {
		return nil, apperrors.NewUpstreamUnavailable(
			fmt.Sprintf("no nodes configured for pool '%s'", pool), nil)
	}

	if hint := strings.ToLower(strings.TrimSpace(modelHint)); hint != "" {
		for _, c := range nodes {
			if m := strings.ToLower(c.Node().Model); m != "" && strings.Contains(m, hint) {
				return c, nil
			}
		}
	}

	idx := r.cursor[effective] % len(nodes)
	r.cursor[effective]++
	return nodes[idx], nil
}

func (r *Router) record(c NodeClient, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[c.Node().URL]
	if !ok {
		s = &nodeStats{}
		r.stats[c.Node().URL] = s
	}
	s.TotalCalls++
	s.LastLatency = latency
	if err != nil {
		s.FailureCount++
	}
}

// canFailOver reports whether an exhausted pool has a distinct main pool
// to retry against. An empty pool never fails over here: pick already
// routed it to main on every attempt.
func (r *Router) canFailOver(pool service.Pool) bool {
	if pool == service.PoolMain {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools[pool]) > 0 && len(r.pools[service.PoolMain]) > 0
}

// Chat implements service.UpstreamClient. A configured pool that burns
// through its attempt budget fails over to the main pool before the
// call gives up.
func (r *Router) Chat(ctx context.Context, pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, error) {
	resp, exhausted, err := r.chatAttempts(ctx, pool, req)
	if exhausted && r.canFailOver(pool) {
		r.logger.Warn("Pool exhausted, failing over to main",
			zap.String("pool", string(pool)),
			zap.Error(err),
		)
		resp, _, err = r.chatAttempts(ctx, service.PoolMain, req)
	}
	return resp, err
}

func (r *Router) chatAttempts(ctx context.Context, pool service.Pool, req *service.ChatRequest) (*service.ChatResponse, bool, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		client, err := r.pick(pool, req.Model)
		if err != nil {
			return nil, false, err
		}

		start := time.Now()
		resp, err := client.Chat(ctx, req)
		r.record(client, time.Since(start), err)
		if err == nil {
			return resp, false, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, false, classifyStatus(statusErr)
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		wait := backoffWait(attempt, chatBackoffCapSec)
		r.logger.Warn("Upstream call failed, backing off",
			zap.String("pool", string(pool)),
			zap.String("node", client.Node().URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if werr := r.wait(ctx, wait); werr != nil {
			return nil, false, werr
		}
	}

	return nil, true, apperrors.NewUpstreamUnavailable(
		fmt.Sprintf("pool '%s' unreachable after %d attempts", pool, maxAttempts), lastErr)
}

// ChatStream implements service.UpstreamClient. Retries are only safe
// before the first delta reaches the caller; once output has been
// forwarded the stream is committed and errors surface as-is. Pool
// exhaustion before the first delta fails over to main like Chat.
func (r *Router) ChatStream(ctx context.Context, pool service.Pool, req *service.ChatRequest, deltaCh chan<- service.StreamChunk) (*service.ChatResponse, error) {
	resp, exhausted, err := r.streamAttempts(ctx, pool, req, deltaCh)
	if exhausted && r.canFailOver(pool) {
		r.logger.Warn("Pool exhausted, failing over to main",
			zap.String("pool", string(pool)),
			zap.Error(err),
		)
		resp, _, err = r.streamAttempts(ctx, service.PoolMain, req, deltaCh)
	}
	return resp, err
}

func (r *Router) streamAttempts(ctx context.Context, pool service.Pool, req *service.ChatRequest, deltaCh chan<- service.StreamChunk) (*service.ChatResponse, bool, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		client, err := r.pick(pool, req.Model)
		if err != nil {
			return nil, false, err
		}

		inner := make(chan service.StreamChunk, 64)
		var forwarded int64
		done := make(chan struct{})
		go func() {
			defer close(done)
			for chunk := range inner {
				atomic.AddInt64(&forwarded, 1)
				deltaCh <- chunk
			}
		}()

		start := time.Now()
		resp, err := client.ChatStream(ctx, req, inner)
		close(inner)
		<-done
		r.record(client, time.Since(start), err)

		if err == nil {
			return resp, false, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, false, classifyStatus(statusErr)
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if atomic.LoadInt64(&forwarded) > 0 {
			r.logger.Warn("Stream failed mid-flight, cannot retry",
				zap.String("pool", string(pool)),
				zap.String("node", client.Node().URL),
				zap.Int64("chunks_forwarded", forwarded),
				zap.Error(err),
			)
			return nil, false, apperrors.NewUpstreamUnavailable("stream interrupted mid-response", err)
		}

		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		wait := backoffWait(attempt, chatBackoffCapSec)
		r.logger.Warn("Upstream stream failed, backing off",
			zap.String("pool", string(pool)),
			zap.String("node", client.Node().URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if werr := r.wait(ctx, wait); werr != nil {
			return nil, false, werr
		}
	}

	return nil, true, apperrors.NewUpstreamUnavailable(
		fmt.Sprintf("pool '%s' unreachable after %d attempts", pool, maxAttempts), lastErr)
}

// Embed implements service.UpstreamClient. Embedding calls route to the
// embeddings pool with a shorter backoff cap than chat, and fail over
// to main like Chat when the pool exhausts its attempts.
func (r *Router) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	vectors, exhausted, err := r.embedAttempts(ctx, service.PoolEmbeddings, model, texts)
	if exhausted && r.canFailOver(service.PoolEmbeddings) {
		r.logger.Warn("Embeddings pool exhausted, failing over to main", zap.Error(err))
		vectors, _, err = r.embedAttempts(ctx, service.PoolMain, model, texts)
	}
	return vectors, err
}

func (r *Router) embedAttempts(ctx context.Context, pool service.Pool, model string, texts []string) ([][]float32, bool, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		client, err := r.pick(pool, model)
		if err != nil {
			return nil, false, err
		}

		start := time.Now()
		vectors, err := client.Embed(ctx, model, texts)
		r.record(client, time.Since(start), err)
		if err == nil {
			return vectors, false, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, false, classifyStatus(statusErr)
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		wait := backoffWait(attempt, embedBackoffCapSec)
		r.logger.Warn("Embeddings call failed, backing off",
			zap.String("node", client.Node().URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if werr := r.wait(ctx, wait); werr != nil {
			return nil, false, werr
		}
	}

	return nil, true, apperrors.NewUpstreamUnavailable(
		fmt.Sprintf("embeddings unreachable after %d attempts", maxAttempts), lastErr)
}

// backoffWait returns min(2^(attempt+1), cap) seconds for a 0-based attempt.
func backoffWait(attempt, capSec int) time.Duration {
	sec := 1 << uint(attempt+1)
	if sec > capSec || sec <= 0 {
		sec = capSec
	}
	return time.Duration(sec) * time.Second
}

// classifyStatus maps an upstream HTTP status to the error taxonomy.
// Auth rejections and other status replies are both terminal for the
// current call, but the loop reports them differently.
func classifyStatus(se *StatusError) error {
	switch se.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.NewAuth(fmt.Sprintf("upstream rejected credentials (status %d)", se.Code))
	default:
		return apperrors.NewUpstreamUnavailable(fmt.Sprintf("upstream returned status %d", se.Code), se)
	}
}

// NodeStatus describes a node's registration and call statistics.
type NodeStatus struct {
	Pool          string  `json:"pool"`
	URL           string  `json:"url"`
	Model         string  `json:"model,omitempty"`
	TotalCalls    int64   `json:"total_calls"`
	FailureCount  int64   `json:"failure_count"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Status returns registration and performance stats for every node,
// grouped by pool in a stable order.
func (r *Router) Status() []NodeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := []service.Pool{
		service.PoolMain, service.PoolSwarm, service.PoolWorker,
		service.PoolVision, service.PoolCoding, service.PoolEmbeddings,
	}

	var result []NodeStatus
	for _, pool := range order {
		for _, c := range r.pools[pool] {
			ns := NodeStatus{
				Pool:  string(pool),
				URL:   c.Node().URL,
				Model: c.Node().Model,
			}
			if s, ok := r.stats[c.Node().URL]; ok {
				ns.TotalCalls = s.TotalCalls
				ns.FailureCount = s.FailureCount
				ns.LastLatencyMs = float64(s.LastLatency) / float64(time.Millisecond)
			}
			result = append(result, ns)
		}
	}
	return result
}
