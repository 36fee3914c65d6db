package context

import "github.com/ghostagent/ghost/internal/domain/entity"

// WindowConfig bounds the transcript handed upstream.
type WindowConfig struct {
	MaxContext int // model context window in tokens
	Buffer     int // safety margin kept free below the window
	KeepRecent int // messages preserved by the emergency prune
}

// DefaultWindowConfig matches a 64k llama.cpp deployment.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxContext: 65536,
		Buffer:     500,
		KeepRecent: 4,
	}
}

// Window applies the rolling-window policy: system messages are pinned,
// the newest suffix of the dialog that fits the budget survives.
type Window struct {
	cfg WindowConfig
}

func NewWindow(cfg WindowConfig) *Window {
	if cfg.MaxContext <= 0 {
		cfg.MaxContext = 65536
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 500
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 4
	}
	return &Window{cfg: cfg}
}

// Apply prunes oldest dialog first until the transcript fits
// MaxContext - Buffer. The live (last) message always survives, even
// when it alone blows the budget. Tool-call pairs broken by the cut
// are repaired afterwards.
func (w *Window) Apply(messages []entity.Message) []entity.Message {
	if len(messages) == 0 {
		return messages
	}

	budget := w.cfg.MaxContext - w.cfg.Buffer

	var system []entity.Message
	var dialog []entity.Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			dialog = append(dialog, m)
		}
	}

	used := EstimateMessages(system)
	kept := make([]entity.Message, 0, len(dialog))
	for i := len(dialog) - 1; i >= 0; i-- {
		cost := EstimateMessage(dialog[i])
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, dialog[i])
		used += cost
	}

	// kept is reversed
	result := make([]entity.Message, 0, len(system)+len(kept))
	result = append(result, system...)
	for i := len(kept) - 1; i >= 0; i-- {
		result = append(result, kept[i])
	}
	return RepairToolPairs(result)
}

// EmergencyPrune is the last-resort cut after an upstream overflow:
// system messages plus the most recent KeepRecent dialog entries.
func (w *Window) EmergencyPrune(messages []entity.Message) []entity.Message {
	var system []entity.Message
	var dialog []entity.Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			dialog = append(dialog, m)
		}
	}

	start := len(dialog) - w.cfg.KeepRecent
	if start < 0 {
		start = 0
	}

	result := make([]entity.Message, 0, len(system)+w.cfg.KeepRecent)
	result = append(result, system...)
	result = append(result, dialog[start:]...)
	return RepairToolPairs(result)
}

// Fits reports whether the transcript is inside the budget.
func (w *Window) Fits(messages []entity.Message) bool {
	return EstimateMessages(messages) <= w.cfg.MaxContext-w.cfg.Buffer
}

// Budget returns the usable token budget.
func (w *Window) Budget() int {
	return w.cfg.MaxContext - w.cfg.Buffer
}
