package eventbus

import (
	"context"

	"github.com/ghostagent/ghost/internal/domain/service"
)

// Sink adapts the bus to the loop's EventSink port.
type Sink struct {
	bus Bus
}

func NewSink(bus Bus) *Sink {
	return &Sink{bus: bus}
}

var _ service.EventSink = (*Sink)(nil)

func (s *Sink) RunStarted(requestID string, intent string) {
	s.bus.Publish(context.Background(), NewEvent(EventTypeRunStarted, RunStartedPayload{
		RequestID: requestID,
		Intent:    intent,
	}))
}

func (s *Sink) RunTurn(requestID string, turn int, state string) {
	s.bus.Publish(context.Background(), NewEvent(EventTypeRunTurn, RunTurnPayload{
		RequestID: requestID,
		Turn:      turn,
		State:     state,
	}))
}

func (s *Sink) ToolExecuted(requestID, toolName string, success bool) {
	s.bus.Publish(context.Background(), NewEvent(EventTypeToolExecuted, ToolExecutedPayload{
		RequestID: requestID,
		Tool:      toolName,
		Success:   success,
	}))
}

func (s *Sink) RunFinished(requestID string, failed bool, turns int) {
	s.bus.Publish(context.Background(), NewEvent(EventTypeRunFinished, RunFinishedPayload{
		RequestID: requestID,
		Failed:    failed,
		Turns:     turns,
	}))
}
