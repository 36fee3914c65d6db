package eventbus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JournalBus wraps InMemoryBus with an append-only JSONL journal of run
// lifecycle events. Every published event lands on disk before dispatch,
// so the websocket feed can replay what happened before a restart.
// One rolled segment is kept; older history is discarded.
type JournalBus struct {
	inner  *InMemoryBus
	logger *zap.Logger

	mu       sync.Mutex
	file     *os.File
	path     string
	seq      uint64
	size     int64
	maxBytes int64
}

// journalRecord is one event on disk. Run is the request id of the
// session the event belongs to, lifted out of the payload so the
// journal can be grepped per run.
type journalRecord struct {
	Seq  uint64          `json:"seq"`
	Type string          `json:"type"`
	Time time.Time       `json:"ts"`
	Run  string          `json:"run,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JournalConfig configures the journaled event bus.
type JournalConfig struct {
	Dir      string // directory for the journal file (required)
	Buffer   int    // dispatch channel size (default 256)
	MaxBytes int64  // segment size before rollover (default 10MB)
}

const journalFile = "run_events.jsonl"

// NewJournalBus opens (or creates) the journal under cfg.Dir.
func NewJournalBus(cfg JournalConfig, logger *zap.Logger) (*JournalBus, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal dir is required")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	path := filepath.Join(cfg.Dir, journalFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	var size int64
	if stat, err := f.Stat(); err == nil {
		size = stat.Size()
	}

	return &JournalBus{
		inner:    NewInMemoryBus(logger, cfg.Buffer),
		logger:   logger.With(zap.String("component", "event-journal")),
		file:     f,
		path:     path,
		size:     size,
		maxBytes: cfg.MaxBytes,
	}, nil
}

var _ Bus = (*JournalBus)(nil)

// Publish journals the event, then hands it to the in-memory dispatch.
// A journal write failure degrades to volatile delivery: the feed must
// keep moving even when the disk does not.
func (b *JournalBus) Publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		b.logger.Error("Event payload not journalable",
			zap.String("type", event.Type()), zap.Error(err))
		b.inner.Publish(ctx, event)
		return
	}

	b.mu.Lock()
	b.seq++
	rec := journalRecord{
		Seq:  b.seq,
		Type: event.Type(),
		Time: event.Timestamp(),
		Run:  runID(data),
		Data: data,
	}
	line, err := json.Marshal(rec)
	if err == nil {
		n, werr := b.file.Write(append(line, '\n'))
		if werr != nil {
			b.logger.Error("Journal write failed",
				zap.String("type", event.Type()), zap.Error(werr))
		}
		b.size += int64(n)
		if b.size >= b.maxBytes {
			b.roll()
		}
	}
	b.mu.Unlock()

	b.inner.Publish(ctx, event)
}

// runID pulls the request id out of a marshaled payload. Every run
// lifecycle payload carries one; anything else journals without it.
func runID(data []byte) string {
	var probe struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.RequestID
}

func (b *JournalBus) Subscribe(eventType string, handler Handler) {
	b.inner.Subscribe(eventType, handler)
}

func (b *JournalBus) Unsubscribe(eventType string, handler Handler) {
	b.inner.Unsubscribe(eventType, handler)
}

// Close syncs the journal and shuts down dispatch.
func (b *JournalBus) Close() {
	b.mu.Lock()
	b.file.Sync()
	b.file.Close()
	b.mu.Unlock()

	b.inner.Close()
	b.logger.Info("Event journal closed")
}

// Replay re-emits journaled events to the registered handlers, oldest
// first. Call it after Subscribe, before live traffic. Corrupt lines
// (a crash mid-write leaves at most one) are skipped, not fatal.
func (b *JournalBus) Replay(ctx context.Context) (int, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open journal for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			b.logger.Warn("Skipping corrupt journal line", zap.Error(err))
			continue
		}
		payload, err := decodePayload(rec.Type, rec.Data)
		if err != nil {
			b.logger.Warn("Skipping undecodable journal payload",
				zap.String("type", rec.Type), zap.Error(err))
			continue
		}

		b.inner.Publish(ctx, &BaseEvent{
			EventType:      rec.Type,
			EventTimestamp: rec.Time,
			EventPayload:   payload,
		})
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan journal: %w", err)
	}

	b.logger.Info("Journal replayed", zap.Int("events", count))
	return count, nil
}

// decodePayload rebuilds the typed payload for the known run lifecycle
// events so replayed events look exactly like live ones to handlers.
func decodePayload(eventType string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload any
	switch eventType {
	case EventTypeRunStarted:
		payload = &RunStartedPayload{}
	case EventTypeRunTurn:
		payload = &RunTurnPayload{}
	case EventTypeToolExecuted:
		payload = &ToolExecutedPayload{}
	case EventTypeRunFinished:
		payload = &RunFinishedPayload{}
	case EventTypeStateChange:
		payload = &StateChangePayload{}
	default:
		payload = &map[string]any{}
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// roll moves the live segment aside and starts a fresh one. Caller
// holds b.mu.
func (b *JournalBus) roll() {
	b.file.Sync()
	b.file.Close()

	prev := b.path + ".1"
	os.Remove(prev)
	os.Rename(b.path, prev)

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		b.logger.Error("Journal rollover failed", zap.Error(err))
		return
	}
	b.file = f
	b.size = 0
	b.logger.Info("Journal rolled", zap.String("previous", prev))
}
