package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// PrometheusHandler serves the counters in Prometheus text exposition
// format. Hand-rolled so the binary does not carry the full
// client_golang registry for a dozen counters. Mount at /metrics.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(m.metrics.StartTime).Seconds()

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"ghost_runs_total", "Total reasoning runs started", "counter", atomic.LoadUint64(&m.metrics.RunsTotal)},
			{"ghost_runs_failed_total", "Runs that ended in failure", "counter", atomic.LoadUint64(&m.metrics.RunsFailed)},
			{"ghost_runs_force_stopped_total", "Runs stopped by the redundancy guard", "counter", atomic.LoadUint64(&m.metrics.RunsForceStopped)},

			{"ghost_tool_calls_total", "Total tool calls executed", "counter", atomic.LoadUint64(&m.metrics.ToolCallsTotal)},
			{"ghost_tool_calls_success_total", "Successful tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsSuccess)},
			{"ghost_tool_calls_failed_total", "Failed tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsFailed)},

			{"ghost_model_calls_total", "Upstream chat completions issued", "counter", atomic.LoadUint64(&m.metrics.ModelCallsTotal)},
			{"ghost_model_tokens_used_total", "Tokens consumed across all pools", "counter", atomic.LoadUint64(&m.metrics.ModelTokensUsed)},

			{"ghost_errors_total", "Errors surfaced by the loop", "counter", atomic.LoadUint64(&m.metrics.ErrorsTotal)},

			{"ghost_active_runs", "Reasoning runs currently in flight", "gauge", atomic.LoadInt64(&m.metrics.ActiveRuns)},
			{"ghost_uptime_seconds", "Process uptime in seconds", "gauge", uptime},

			{"ghost_memory_alloc_bytes", "Current heap allocation", "gauge", memStats.Alloc},
			{"ghost_memory_sys_bytes", "Memory obtained from the OS", "gauge", memStats.Sys},
			{"ghost_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"ghost_gc_pause_total_ns", "Cumulative GC pause time", "counter", memStats.PauseTotalNs},
			{"ghost_gc_cycles_total", "Completed GC cycles", "counter", memStats.NumGC},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			}
			fmt.Fprintln(w)
		}

		if count := atomic.LoadUint64(&m.metrics.ModelLatencyCount); count > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.ModelLatencySum)) / float64(count) / 1e6
			fmt.Fprintf(w, "# HELP ghost_model_latency_avg_ms Average upstream call latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE ghost_model_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "ghost_model_latency_avg_ms %f\n\n", avgMs)
		}

		if count := atomic.LoadUint64(&m.metrics.ToolLatencyCount); count > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.ToolLatencySum)) / float64(count) / 1e6
			fmt.Fprintf(w, "# HELP ghost_tool_latency_avg_ms Average tool execution latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE ghost_tool_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "ghost_tool_latency_avg_ms %f\n\n", avgMs)
		}
	})
}
