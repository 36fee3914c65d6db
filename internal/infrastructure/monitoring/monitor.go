package monitoring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Metrics is the raw counter set. All fields are touched atomically.
type Metrics struct {
	RunsTotal        uint64
	RunsFailed       uint64
	RunsForceStopped uint64

	ToolCallsTotal   uint64
	ToolCallsSuccess uint64
	ToolCallsFailed  uint64

	ModelCallsTotal uint64
	ModelTokensUsed uint64

	ErrorsTotal uint64

	ActiveRuns int64

	// latency sums are nanoseconds
	ModelLatencySum   uint64
	ModelLatencyCount uint64
	ToolLatencySum    uint64
	ToolLatencyCount  uint64

	StartTime time.Time
}

// Monitor collects runtime counters and keeps a short history of
// snapshots for the status endpoint.
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger
	mu      sync.RWMutex

	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot is one sampled point of derived rates.
type MetricsSnapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	RunsPerMinute   float64   `json:"runs_per_minute"`
	ToolCallsPerMin float64   `json:"tool_calls_per_minute"`
	AvgModelMs      float64   `json:"avg_model_ms"`
	ActiveRuns      int64     `json:"active_runs"`
	MemoryMB        float64   `json:"memory_mb"`
	Goroutines      int       `json:"goroutines"`
}

func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		metrics:      &Metrics{StartTime: time.Now()},
		logger:       logger.With(zap.String("component", "monitor")),
		history:      make([]MetricsSnapshot, 0, 100),
		historyLimit: 100,
	}
}

func (m *Monitor) IncRun()             { atomic.AddUint64(&m.metrics.RunsTotal, 1) }
func (m *Monitor) IncRunFailed()       { atomic.AddUint64(&m.metrics.RunsFailed, 1) }
func (m *Monitor) IncRunForceStopped() { atomic.AddUint64(&m.metrics.RunsForceStopped, 1) }
func (m *Monitor) IncToolCall()        { atomic.AddUint64(&m.metrics.ToolCallsTotal, 1) }
func (m *Monitor) IncToolCallSuccess() { atomic.AddUint64(&m.metrics.ToolCallsSuccess, 1) }
func (m *Monitor) IncToolCallFailed()  { atomic.AddUint64(&m.metrics.ToolCallsFailed, 1) }
func (m *Monitor) IncModelCall()       { atomic.AddUint64(&m.metrics.ModelCallsTotal, 1) }
func (m *Monitor) IncError()           { atomic.AddUint64(&m.metrics.ErrorsTotal, 1) }

func (m *Monitor) AddTokensUsed(n int) {
	if n > 0 {
		atomic.AddUint64(&m.metrics.ModelTokensUsed, uint64(n))
	}
}

func (m *Monitor) RunStarted()  { atomic.AddInt64(&m.metrics.ActiveRuns, 1) }
func (m *Monitor) RunFinished() { atomic.AddInt64(&m.metrics.ActiveRuns, -1) }

func (m *Monitor) RecordModelLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.ModelLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.ModelLatencyCount, 1)
}

func (m *Monitor) RecordToolLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.ToolLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.ToolLatencyCount, 1)
}

// Stats returns the current counters as a flat map for /health and
// /api/status.
func (m *Monitor) Stats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime)

	avgModelMs := float64(0)
	if count := atomic.LoadUint64(&m.metrics.ModelLatencyCount); count > 0 {
		avgModelMs = float64(atomic.LoadUint64(&m.metrics.ModelLatencySum)) / float64(count) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds":     uptime.Seconds(),
		"runs_total":         atomic.LoadUint64(&m.metrics.RunsTotal),
		"runs_failed":        atomic.LoadUint64(&m.metrics.RunsFailed),
		"runs_force_stopped": atomic.LoadUint64(&m.metrics.RunsForceStopped),
		"tool_calls_total":   atomic.LoadUint64(&m.metrics.ToolCallsTotal),
		"tool_calls_success": atomic.LoadUint64(&m.metrics.ToolCallsSuccess),
		"tool_calls_failed":  atomic.LoadUint64(&m.metrics.ToolCallsFailed),
		"model_calls_total":  atomic.LoadUint64(&m.metrics.ModelCallsTotal),
		"model_tokens_used":  atomic.LoadUint64(&m.metrics.ModelTokensUsed),
		"errors_total":       atomic.LoadUint64(&m.metrics.ErrorsTotal),
		"active_runs":        atomic.LoadInt64(&m.metrics.ActiveRuns),
		"avg_model_ms":       avgModelMs,
		"memory_mb":          float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":         runtime.NumGoroutine(),
	}
}

// Snapshot samples derived rates and appends to the bounded history.
func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptimeMin := time.Since(m.metrics.StartTime).Minutes()
	if uptimeMin <= 0 {
		uptimeMin = 1.0 / 60
	}

	avgModelMs := float64(0)
	if count := atomic.LoadUint64(&m.metrics.ModelLatencyCount); count > 0 {
		avgModelMs = float64(atomic.LoadUint64(&m.metrics.ModelLatencySum)) / float64(count) / 1e6
	}

	snapshot := MetricsSnapshot{
		Timestamp:       time.Now(),
		RunsPerMinute:   float64(atomic.LoadUint64(&m.metrics.RunsTotal)) / uptimeMin,
		ToolCallsPerMin: float64(atomic.LoadUint64(&m.metrics.ToolCallsTotal)) / uptimeMin,
		AvgModelMs:      avgModelMs,
		ActiveRuns:      atomic.LoadInt64(&m.metrics.ActiveRuns),
		MemoryMB:        float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:      runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

// History returns a copy of the sampled snapshots.
func (m *Monitor) History() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector samples snapshots at the interval until ctx is done.
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}
