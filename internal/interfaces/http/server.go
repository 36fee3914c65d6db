// Package http exposes the agent over an OpenAI-compatible REST surface
// plus health, metrics, status and the websocket event feed.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ghostagent/ghost/internal/domain/service"
	"github.com/ghostagent/ghost/internal/infrastructure/llm"
	"github.com/ghostagent/ghost/internal/infrastructure/monitoring"
	"github.com/ghostagent/ghost/internal/interfaces/http/handlers"
	"github.com/ghostagent/ghost/internal/interfaces/websocket"
	"go.uber.org/zap"
)

// Config is the HTTP server setup.
type Config struct {
	Host   string
	Port   int
	APIKey string
	Debug  bool
}

// Deps are the components the handlers need.
type Deps struct {
	Loop           *service.Loop
	Router         *llm.Router
	Monitor        *monitoring.Monitor
	Hub            *websocket.Hub
	Model          string
	SandboxBackend string
}

// Server wraps the gin engine in a managed http.Server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(ginLogger(logger))

	chatHandler := handlers.NewChatHandler(deps.Loop, deps.Model, logger)
	systemHandler := handlers.NewSystemHandler(deps.Router, deps.Monitor, deps.Hub, deps.Model, deps.SandboxBackend)

	setupRoutes(router, cfg.APIKey, chatHandler, systemHandler, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: logger.With(zap.String("component", "http")),
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(router *gin.Engine, apiKey string, chat *handlers.ChatHandler, system *handlers.SystemHandler, deps Deps) {
	router.GET("/health", system.Health)
	if deps.Monitor != nil {
		router.GET("/metrics", gin.WrapH(deps.Monitor.PrometheusHandler()))
	}

	authed := router.Group("/", apiKeyAuth(apiKey))
	{
		authed.POST("/api/chat", chat.Chat)
		authed.GET("/api/status", system.Status)
		if deps.Hub != nil {
			authed.GET("/ws", func(c *gin.Context) {
				deps.Hub.ServeWS(c.Writer, c.Request)
			})
		}
	}
}

// apiKeyAuth gates the agent endpoints on X-Ghost-Key. Websocket
// clients may pass ?key= instead since browsers cannot set headers on
// the upgrade request.
func apiKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Ghost-Key")
		if key == "" {
			key = c.Query("key")
		}
		if key != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "invalid or missing API key",
					"type":    "auth_error",
				},
			})
			return
		}
		c.Next()
	}
}

// requestID honors an inbound X-Request-ID and generates a short one
// otherwise. The id is echoed in the response and threaded through logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()[:8]
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
			zap.String("ip", c.ClientIP()),
		)
	}
}
