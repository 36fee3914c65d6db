package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ghostagent/ghost/internal/domain/service"
	"github.com/ghostagent/ghost/internal/infrastructure/llm"
	"github.com/ghostagent/ghost/internal/infrastructure/monitoring"
	"github.com/ghostagent/ghost/internal/interfaces/websocket"
)

// SystemHandler serves /health and /api/status.
type SystemHandler struct {
	router         *llm.Router
	monitor        *monitoring.Monitor
	hub            *websocket.Hub
	model          string
	sandboxBackend string
	startedAt      time.Time
}

func NewSystemHandler(router *llm.Router, monitor *monitoring.Monitor, hub *websocket.Hub, model, sandboxBackend string) *SystemHandler {
	return &SystemHandler{
		router:         router,
		monitor:        monitor,
		hub:            hub,
		model:          model,
		sandboxBackend: sandboxBackend,
		startedAt:      time.Now(),
	}
}

// Health handles GET /health. Unauthenticated so load balancers and
// the terminal client can probe it.
func (h *SystemHandler) Health(c *gin.Context) {
	pools := gin.H{}
	if h.router != nil {
		for _, pool := range []service.Pool{
			service.PoolMain, service.PoolSwarm, service.PoolWorker,
			service.PoolVision, service.PoolCoding, service.PoolEmbeddings,
		} {
			pools[string(pool)] = h.router.PoolSize(pool)
		}
	}

	body := gin.H{
		"status":          "ok",
		"model":           h.model,
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		"sandbox_backend": h.sandboxBackend,
		"pools":           pools,
	}
	if h.hub != nil {
		body["feed_clients"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}

// Status handles GET /api/status with per-node router stats and the
// monitor counters.
func (h *SystemHandler) Status(c *gin.Context) {
	body := gin.H{}
	if h.router != nil {
		body["nodes"] = h.router.Status()
	}
	if h.monitor != nil {
		body["metrics"] = h.monitor.Stats()
		body["history"] = h.monitor.History()
	}
	c.JSON(http.StatusOK, body)
}
