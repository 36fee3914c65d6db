package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	apperrors "github.com/ghostagent/ghost/pkg/errors"
	"github.com/ghostagent/ghost/pkg/safego"
	"go.uber.org/zap"
)

// maxInboundMessages caps the transcript a client may submit.
const maxInboundMessages = 500

// ChatRequest is the OpenAI-style body of POST /api/chat. Message
// content may be a plain string or a multimodal part array.
type ChatRequest struct {
	Model     string           `json:"model,omitempty"`
	Messages  []entity.Message `json:"messages"`
	Stream    bool             `json:"stream,omitempty"`
	NoMemory  bool             `json:"no_memory,omitempty"`
	PerfectIt bool             `json:"perfect_it,omitempty"`
}

// ChatResponse mirrors the OpenAI chat.completion object.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      ChoiceOutput `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

type ChoiceOutput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatUsage struct {
	TotalTokens int `json:"total_tokens"`
	Turns       int `json:"turns"`
}

// StreamChunk mirrors the OpenAI chat.completion.chunk object.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// AgentRunner is the slice of the loop the handler needs. Satisfied by
// *service.Loop.
type AgentRunner interface {
	Run(ctx context.Context, req *entity.RunRequest, deltaCh chan<- service.StreamChunk) (*entity.RunResult, error)
}

// ChatHandler drives the agent loop from POST /api/chat.
type ChatHandler struct {
	loop   AgentRunner
	model  string
	logger *zap.Logger
}

func NewChatHandler(loop AgentRunner, model string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		loop:   loop,
		model:  model,
		logger: logger.With(zap.String("component", "chat-handler")),
	}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error(), "invalid_request_error"))
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, errorBody(entity.ErrEmptyRequest.Error(), "invalid_request_error"))
		return
	}
	if len(req.Messages) > maxInboundMessages {
		c.JSON(http.StatusBadRequest, errorBody(
			fmt.Sprintf("%s: %d > %d", entity.ErrTooManyMessages, len(req.Messages), maxInboundMessages),
			"invalid_request_error"))
		return
	}

	runReq := &entity.RunRequest{
		RequestID: c.GetString("request_id"),
		Messages:  req.Messages,
		Stream:    req.Stream,
		NoMemory:  req.NoMemory,
		PerfectIt: req.PerfectIt,
	}

	if req.Stream {
		h.stream(c, runReq)
		return
	}
	h.unary(c, runReq)
}

func (h *ChatHandler) unary(c *gin.Context, runReq *entity.RunRequest) {
	result, err := h.loop.Run(c.Request.Context(), runReq, nil)
	if err != nil {
		h.logger.Error("Run failed",
			zap.String("request_id", runReq.RequestID),
			zap.Error(err),
		)
		// Loop-level failures still produce a completion: chat clients
		// render assistant content, not HTTP error bodies, and the
		// streaming path already reports errors in-band the same way.
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			c.JSON(http.StatusOK, ChatResponse{
				ID:      "chatcmpl-" + runReq.RequestID,
				Object:  "chat.completion",
				Created: time.Now().Unix(),
				Model:   h.model,
				Choices: []ChatChoice{{
					Index: 0,
					Message: ChoiceOutput{
						Role:    "assistant",
						Content: fmt.Sprintf("[ERROR: %v]", err),
					},
					FinishReason: "stop",
				}},
				Usage: runUsage(result),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err.Error(), "server_error"))
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		ID:      "chatcmpl-" + runReq.RequestID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   h.model,
		Choices: []ChatChoice{{
			Index: 0,
			Message: ChoiceOutput{
				Role:    "assistant",
				Content: result.FinalContent,
			},
			FinishReason: finishReason(result),
		}},
		Usage: runUsage(result),
	})
}

func runUsage(result *entity.RunResult) *ChatUsage {
	if result == nil {
		return nil
	}
	return &ChatUsage{
		TotalTokens: result.TokensUsed,
		Turns:       result.Turns,
	}
}

// stream runs the loop in the background and forwards answer deltas as
// SSE chunks. The loop never closes deltaCh, so completion is signaled
// through resultCh and any buffered deltas are drained afterwards.
func (h *ChatHandler) stream(c *gin.Context, runReq *entity.RunRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	completionID := "chatcmpl-" + runReq.RequestID
	created := time.Now().Unix()

	h.writeChunk(c.Writer, StreamChunk{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   h.model,
		Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{Role: "assistant"}}},
	})
	c.Writer.Flush()

	type runOutcome struct {
		result *entity.RunResult
		err    error
	}
	deltaCh := make(chan service.StreamChunk, 64)
	resultCh := make(chan runOutcome, 1)

	ctx := c.Request.Context()
	safego.Go(h.logger, "chat-stream-run", func() {
		result, err := h.loop.Run(ctx, runReq, deltaCh)
		resultCh <- runOutcome{result: result, err: err}
	})

	var outcome runOutcome
recv:
	for {
		select {
		case delta := <-deltaCh:
			if delta.DeltaText != "" {
				h.writeChunk(c.Writer, h.contentChunk(completionID, created, delta.DeltaText))
				c.Writer.Flush()
			}
		case outcome = <-resultCh:
			break recv
		}
	}

	// flush deltas that raced the completion signal
	for {
		select {
		case delta := <-deltaCh:
			if delta.DeltaText != "" {
				h.writeChunk(c.Writer, h.contentChunk(completionID, created, delta.DeltaText))
				c.Writer.Flush()
			}
		default:
			goto done
		}
	}
done:

	if outcome.err != nil {
		h.logger.Error("Streaming run failed",
			zap.String("request_id", runReq.RequestID),
			zap.Error(outcome.err),
		)
		h.writeChunk(c.Writer, h.contentChunk(completionID, created,
			fmt.Sprintf("\n[ERROR: %v]", outcome.err)))
		c.Writer.Flush()
	}

	reason := "stop"
	if outcome.result != nil {
		reason = finishReason(outcome.result)
	}
	h.writeChunk(c.Writer, StreamChunk{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   h.model,
		Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{}, FinishReason: &reason}},
	})
	c.Writer.Flush()

	io.WriteString(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func (h *ChatHandler) contentChunk(id string, created int64, text string) StreamChunk {
	return StreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   h.model,
		Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{Content: text}}},
	}
}

func (h *ChatHandler) writeChunk(w io.Writer, chunk StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		h.logger.Error("Failed to marshal SSE chunk", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func finishReason(result *entity.RunResult) string {
	if result.ForceStopped {
		return "length"
	}
	return "stop"
}

func errorBody(message, errType string) gin.H {
	return gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	}
}
