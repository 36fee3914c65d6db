package tool

import (
	"fmt"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
)

// fail builds the model-addressable error result. Tool-level problems
// (bad arguments, missing files, refused operations) come back this way;
// Go errors are reserved for runtime failures.
func fail(format string, a ...interface{}) (*domaintool.Result, error) {
	msg := fmt.Sprintf(format, a...)
	return &domaintool.Result{Output: msg, Success: false, Error: msg}, nil
}

func ok(output string) (*domaintool.Result, error) {
	return &domaintool.Result{Output: output, Success: true}, nil
}

func strArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func strSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// truncate cuts s to max runes-ish (byte cap is fine for prompt text) and
// marks the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[TRUNCATED]"
}
