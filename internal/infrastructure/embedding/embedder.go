package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/service"
	"go.uber.org/zap"
)

// UpstreamEmbedder generates embeddings through the upstream router's
// embeddings pool. Implements memory.EmbeddingProvider.
type UpstreamEmbedder struct {
	client    service.UpstreamClient
	model     string
	dimension int
	logger    *zap.Logger
}

// Compile-time interface check
var _ memory.EmbeddingProvider = (*UpstreamEmbedder)(nil)

// NewUpstreamEmbedder creates an embedding provider backed by the
// embeddings pool. It probes the model once to detect the vector
// dimension, which the LanceDB schema needs up front.
func NewUpstreamEmbedder(client service.UpstreamClient, model string, logger *zap.Logger) (*UpstreamEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &UpstreamEmbedder{
		client: client,
		model:  model,
		logger: logger.With(zap.String("component", "embedder")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	probe, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("failed to probe embedding dimension for model %s: %w", model, err)
	}
	e.dimension = len(probe)

	e.logger.Info("Upstream embedder initialized",
		zap.String("model", model),
		zap.Int("dimension", e.dimension),
	)
	return e, nil
}

// Embed generates an embedding vector for a single text.
func (e *UpstreamEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.Embed(ctx, e.model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one call.
func (e *UpstreamEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(vectors))
	}
	return vectors, nil
}

// Dimension returns the vector dimension (probed on init).
func (e *UpstreamEmbedder) Dimension() int {
	return e.dimension
}
