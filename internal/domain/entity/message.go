package entity

import (
	"encoding/json"
	"strings"
)

// Message is a single turn of an OpenAI-style conversation. The runtime
// keeps the transcript in wire format end to end so upstream calls and
// API responses need no translation layer.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	Images     []string   `json:"-"` // data URIs or http URLs, sent as image_url parts
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// contentPart is the array-form content element of the multimodal chat
// format. Text and image parts are the only kinds the fleet understands.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// MarshalJSON emits plain string content unless images are attached, in
// which case content becomes a part array per the multimodal format.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	if len(m.Images) == 0 {
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
		return json.Marshal(w)
	}

	parts := make([]contentPart, 0, len(m.Images)+1)
	if m.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, img := range m.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: img}})
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	w.Content = raw
	return json.Marshal(w)
}

// UnmarshalJSON accepts both string content and the part-array form that
// OpenAI-compatible clients may send. Text parts concatenate; image parts
// land in Images.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.ToolCalls = w.ToolCalls
	m.ToolCallID = w.ToolCallID
	m.Name = w.Name
	m.Content = ""
	m.Images = nil

	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	if w.Content[0] == '"' {
		return json.Unmarshal(w.Content, &m.Content)
	}

	var parts []contentPart
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return err
	}
	var texts []string
	for _, p := range parts {
		switch p.Type {
		case "text":
			texts = append(texts, p.Text)
		case "image_url":
			if p.ImageURL != nil {
				m.Images = append(m.Images, p.ImageURL.URL)
			}
		}
	}
	m.Content = strings.Join(texts, "\n")
	return nil
}

// ToolCall is an assistant-requested tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc carries the function name and raw JSON arguments.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParseArguments decodes the raw argument payload. A missing or empty
// payload decodes to an empty map rather than an error.
func (tc *ToolCall) ParseArguments() (map[string]interface{}, error) {
	args := make(map[string]interface{})
	raw := tc.Function.Arguments
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// ToolMessage is the result turn answering a specific tool call.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: callID, Name: name}
}

// HasToolCalls reports whether this assistant turn requested tools.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// CloneMessages returns a shallow copy of the transcript slice so callers
// can append without aliasing the original backing array.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
