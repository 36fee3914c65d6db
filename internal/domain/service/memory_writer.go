package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/planner"
	"go.uber.org/zap"
)

// Facts outside this size band are either too thin to matter or prompt
// bleed that slipped past the extractor.
const (
	memoryFactMinLen = 5
	memoryFactMaxLen = 200

	profileUpdateScore = 0.9
)

// MemoryWriter is the smart memory gate. After each run it asks a worker
// node to score the exchange; high-signal facts land in the vector store
// and identity-grade facts additionally sync the profile. A semaphore of
// one serializes writers so belief revision never races itself.
type MemoryWriter struct {
	upstream  UpstreamClient
	memory    *memory.Manager
	profile   ProfileSource
	prompt    string
	model     string
	threshold float64
	logger    *zap.Logger

	sem chan struct{}
}

type memoryVerdict struct {
	Score         float64 `json:"score"`
	Fact          string  `json:"fact"`
	ProfileUpdate *struct {
		Category string `json:"category"`
		Key      string `json:"key"`
		Value    string `json:"value"`
	} `json:"profile_update"`
}

func NewMemoryWriter(upstream UpstreamClient, mem *memory.Manager, profile ProfileSource, prompt, model string, threshold float64, logger *zap.Logger) *MemoryWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryWriter{
		upstream:  upstream,
		memory:    mem,
		profile:   profile,
		prompt:    prompt,
		model:     model,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "memory-writer")),
		sem:       make(chan struct{}, 1),
	}
}

// Observe scores one exchange and stores what clears the gate. All
// failures are logged and swallowed: memory is best-effort, the user
// already has their answer.
func (w *MemoryWriter) Observe(ctx context.Context, userTurn, finalAnswer string) {
	if w.memory == nil || strings.TrimSpace(userTurn) == "" {
		return
	}
	select {
	case w.sem <- struct{}{}:
		defer func() { <-w.sem }()
	case <-ctx.Done():
		return
	}

	resp, err := w.upstream.Chat(ctx, PoolWorker, &ChatRequest{
		Model: w.model,
		Messages: []entity.Message{
			entity.SystemMessage(w.prompt),
			entity.UserMessage("USER SAID:\n" + capText(userTurn, 2000) +
				"\n\nAGENT ANSWERED:\n" + capText(finalAnswer, 2000)),
		},
		Temperature: 0.0,
		MaxTokens:   512,
		JSONMode:    true,
	})
	if err != nil {
		w.logger.Warn("Memory gate call failed", zap.Error(err))
		return
	}

	payload, err := planner.ExtractJSON(resp.Message.Content)
	if err != nil {
		return
	}
	var verdict memoryVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return
	}

	fact := strings.TrimSpace(verdict.Fact)
	if verdict.Score < w.threshold || len(fact) < memoryFactMinLen || len(fact) > memoryFactMaxLen {
		return
	}

	if _, err := w.memory.Remember(ctx, fact, memory.KindAuto); err != nil {
		w.logger.Warn("Failed to store memory", zap.Error(err))
		return
	}
	w.logger.Info("Memory stored",
		zap.Float64("score", verdict.Score),
		zap.String("fact", capText(fact, 80)))

	if verdict.Score >= profileUpdateScore && verdict.ProfileUpdate != nil && w.profile != nil {
		pu := verdict.ProfileUpdate
		if pu.Key != "" && pu.Value != "" {
			if _, err := w.profile.Update(pu.Category, pu.Key, pu.Value); err != nil {
				w.logger.Warn("Profile sync failed", zap.Error(err))
			}
		}
	}
}
