package service

import (
	"context"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/tool"
)

// Pool names a class of upstream nodes. The loop asks for a pool, the
// router decides which node answers.
type Pool string

const (
	PoolMain       Pool = "main"
	PoolSwarm      Pool = "swarm"
	PoolWorker     Pool = "worker"
	PoolVision     Pool = "vision"
	PoolCoding     Pool = "coding"
	PoolEmbeddings Pool = "embeddings"
)

// ChatRequest is one upstream chat completion call.
type ChatRequest struct {
	Messages    []entity.Message
	Tools       []tool.Definition
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	JSONMode    bool
}

// ChatResponse is the assistant turn an upstream produced.
type ChatResponse struct {
	Message      entity.Message
	ModelUsed    string
	TokensUsed   int
	FinishReason string
}

// StreamChunk is a single delta from a streaming upstream response.
type StreamChunk struct {
	DeltaText    string
	FinishReason string
}

// UpstreamClient is the loop's view of the upstream fleet. The
// infrastructure router implements it with retry, affinity routing and
// pool fallback.
type UpstreamClient interface {
	// Chat performs a blocking completion against the given pool.
	Chat(ctx context.Context, pool Pool, req *ChatRequest) (*ChatResponse, error)

	// ChatStream performs a streaming completion, sending text deltas to
	// deltaCh as they arrive. The returned response carries the full
	// accumulated message. ChatStream does not close deltaCh.
	ChatStream(ctx context.Context, pool Pool, req *ChatRequest, deltaCh chan<- StreamChunk) (*ChatResponse, error)

	// Embed computes embedding vectors for the given texts.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	// PoolSize reports how many nodes are registered for a pool, before
	// any fallback to the main pool.
	PoolSize(pool Pool) int
}
