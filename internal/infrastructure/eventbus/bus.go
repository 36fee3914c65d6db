// Package eventbus carries run lifecycle events from the agent loop to
// in-process observers such as the websocket feed.
package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is anything published on the bus.
type Event interface {
	Type() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent is the standard event implementation.
type BaseEvent struct {
	EventType      string
	EventTimestamp time.Time
	EventPayload   any
}

func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() any         { return e.EventPayload }

func NewEvent(eventType string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// Handler consumes one event. Handlers run concurrently and must not
// block for long; slow consumers delay the whole dispatch round.
type Handler func(ctx context.Context, event Event)

// Bus is the publish/subscribe surface. Subscribe with "*" to receive
// every event type.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType string, handler Handler)
	Unsubscribe(eventType string, handler Handler)
	Close()
}

// InMemoryBus dispatches events asynchronously through a bounded
// channel. A full buffer drops events rather than blocking the loop.
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	eventChan chan eventWrapper
	closed    bool
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &InMemoryBus{
		handlers:  make(map[string][]Handler),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger,
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish enqueues the event without blocking.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
		b.logger.Debug("Event published",
			zap.String("type", event.Type()),
		)
	default:
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("type", event.Type()),
		)
	}
}

func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", eventType),
	)
}

// Unsubscribe removes the most recently registered handler for the
// type. Go cannot compare function values, so last-in-first-out removal
// is the only safe contract.
func (b *InMemoryBus) Unsubscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	if len(handlers) == 0 {
		return
	}
	handlers = handlers[:len(handlers)-1]
	if len(handlers) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = handlers
	}
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()

	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0)
	if h, ok := b.handlers[event.Type()]; ok {
		handlers = append(handlers, h...)
	}
	if h, ok := b.handlers["*"]; ok {
		handlers = append(handlers, h...)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Handler panicked",
						zap.String("event_type", event.Type()),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, event)
		}(handler)
	}
	wg.Wait()
}

// Run lifecycle event types.
const (
	EventTypeRunStarted   = "run_started"
	EventTypeRunTurn      = "run_turn"
	EventTypeToolExecuted = "tool_executed"
	EventTypeRunFinished  = "run_finished"
	EventTypeStateChange  = "state_change"
)

// RunStartedPayload marks a reasoning session entering the loop.
type RunStartedPayload struct {
	RequestID string `json:"request_id"`
	Intent    string `json:"intent"`
}

// RunTurnPayload marks one planner/responder turn.
type RunTurnPayload struct {
	RequestID string `json:"request_id"`
	Turn      int    `json:"turn"`
	State     string `json:"state"`
}

// ToolExecutedPayload marks one completed tool call.
type ToolExecutedPayload struct {
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	Success   bool   `json:"success"`
}

// RunFinishedPayload marks the end of a session.
type RunFinishedPayload struct {
	RequestID string `json:"request_id"`
	Failed    bool   `json:"failed"`
	Turns     int    `json:"turns"`
}

// StateChangePayload marks a state machine transition.
type StateChangePayload struct {
	RequestID string `json:"request_id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Turn      int    `json:"turn"`
}
