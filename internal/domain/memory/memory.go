package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory kinds. Auto entries come from the smart memory gate, skill
// entries from the post-mortem playbook indexer, doc entries from
// explicit knowledge base inserts.
const (
	KindAuto  = "auto"
	KindSkill = "skill"
	KindDoc   = "doc"
)

// Entry is one long-term memory record.
type Entry struct {
	ID        string
	Content   string
	Embedding []float32
	Kind      string
	Distance  float32 // filled on retrieval, lower is closer
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SearchFilter narrows a vector search.
type SearchFilter struct {
	Kind        string
	MaxDistance float32 // 0 means no limit
}

// VectorStore is the persistence contract for long-term memory.
type VectorStore interface {
	Insert(ctx context.Context, entry *Entry) error
	Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]*Entry, error)
	Delete(ctx context.Context, id string) error
	ListByKind(ctx context.Context, kind string, limit int) ([]*Entry, error)
	Count(ctx context.Context, kind string) (int, error)
}

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Belief revision: a freshly learned fact supersedes stored near
// duplicates of the same kind within this distance.
const (
	revisionTopK        = 3
	revisionMaxDistance = 0.6
)

// Manager coordinates embedding and storage for long-term memory.
type Manager struct {
	store    VectorStore
	embedder EmbeddingProvider
	logger   *zap.Logger
}

func NewManager(store VectorStore, embedder EmbeddingProvider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "memory")),
	}
}

// Remember stores a fact. Stored near-duplicates of the same kind are
// deleted first so the newest phrasing wins.
func (m *Manager) Remember(ctx context.Context, content, kind string) (*Entry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty memory content")
	}

	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed memory: %w", err)
	}

	stale, err := m.store.Search(ctx, embedding, revisionTopK, &SearchFilter{
		Kind:        kind,
		MaxDistance: revisionMaxDistance,
	})
	if err != nil {
		m.logger.Warn("Belief revision search failed, storing anyway", zap.Error(err))
	}
	for _, old := range stale {
		if err := m.store.Delete(ctx, old.ID); err != nil {
			m.logger.Warn("Failed to delete superseded memory",
				zap.String("id", old.ID), zap.Error(err))
			continue
		}
		m.logger.Info("Belief revised",
			zap.String("old", firstN(old.Content, 60)),
			zap.String("new", firstN(content, 60)),
			zap.Float32("distance", old.Distance),
		)
	}

	now := time.Now()
	entry := &Entry{
		ID:        generateID(content),
		Content:   content,
		Embedding: embedding,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return entry, nil
}

// Recall retrieves the memories closest to the query text.
func (m *Manager) Recall(ctx context.Context, query string, topK int, filter *SearchFilter) ([]*Entry, error) {
	queryEmbed, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := m.store.Search(ctx, queryEmbed, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	return results, nil
}

// Forget deletes a memory by ID.
func (m *Manager) Forget(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// ListByKind returns up to limit entries of a kind, newest first.
func (m *Manager) ListByKind(ctx context.Context, kind string, limit int) ([]*Entry, error) {
	return m.store.ListByKind(ctx, kind, limit)
}

// Count reports how many entries of a kind are stored.
func (m *Manager) Count(ctx context.Context, kind string) (int, error) {
	return m.store.Count(ctx, kind)
}

func generateID(content string) string {
	hash := sha256.Sum256([]byte(content + time.Now().String()))
	return hex.EncodeToString(hash[:16])
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// InMemoryVectorStore is a cosine-distance store for tests and for runs
// without a persistent memory directory.
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{entries: make(map[string]*Entry)}
}

// Compile-time interface check
var _ VectorStore = (*InMemoryVectorStore)(nil)

func (s *InMemoryVectorStore) Insert(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *InMemoryVectorStore) Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry    *Entry
		distance float32
	}

	var candidates []scored
	for _, entry := range s.entries {
		if filter != nil && filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		distance := cosineDistance(query, entry.Embedding)
		if filter != nil && filter.MaxDistance > 0 && distance > filter.MaxDistance {
			continue
		}
		candidates = append(candidates, scored{entry: entry, distance: distance})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]*Entry, len(candidates))
	for i, c := range candidates {
		entryCopy := *c.entry
		entryCopy.Distance = c.distance
		results[i] = &entryCopy
	}
	return results, nil
}

func (s *InMemoryVectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *InMemoryVectorStore) ListByKind(ctx context.Context, kind string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Entry
	for _, entry := range s.entries {
		if kind != "" && entry.Kind != kind {
			continue
		}
		entryCopy := *entry
		results = append(results, &entryCopy)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *InMemoryVectorStore) Count(ctx context.Context, kind string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if kind == "" {
		return len(s.entries), nil
	}
	n := 0
	for _, entry := range s.entries {
		if entry.Kind == kind {
			n++
		}
	}
	return n, nil
}

// cosineDistance returns 1 - cosine similarity, matching the lower-is-
// closer convention of the LanceDB store.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (sqrt32(normA) * sqrt32(normB))
	return 1 - sim
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// HashEmbedder is a deterministic local embedder for tests and for runs
// with no embeddings node reachable.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 128
	}
	return &HashEmbedder{dimension: dimension}
}

// Compile-time interface check
var _ EmbeddingProvider = (*HashEmbedder)(nil)

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, char := range word {
			idx := (int(char)*31 + i) % e.dimension
			embedding[idx] += 1.0
		}
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	if norm > 0 {
		norm = sqrt32(norm)
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}
