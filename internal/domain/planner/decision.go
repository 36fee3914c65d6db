package planner

import (
	"encoding/json"
	"errors"
	"strings"
)

// Decision is the planner's per-turn output.
type Decision struct {
	Thought      string `json:"thought"`
	TreeUpdate   *Node  `json:"tree_update,omitempty"`
	NextActionID string `json:"next_action_id,omitempty"`
	RequiredTool string `json:"required_tool,omitempty"`
}

var errNoJSON = errors.New("no JSON object found in planner output")

// ParseDecision decodes a planner reply. Planner calls run in JSON mode,
// but smaller models still wrap the object in fences or prose, so the
// first balanced object is extracted before decoding.
func ParseDecision(raw string) (*Decision, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var d Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ExtractJSON returns the first balanced top-level JSON object in s.
// Braces inside strings are ignored.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if fenced := stripFence(s); fenced != "" {
		s = fenced
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errNoJSON
}

func stripFence(s string) string {
	idx := strings.Index(s, "```")
	if idx < 0 {
		return ""
	}
	rest := s[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// skip the language tag line
		if lang := strings.TrimSpace(rest[:nl]); lang == "json" || lang == "" {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(rest)
}
