package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// validatedTool decorates a tool with JSON-schema argument validation.
// Invalid arguments come back as a model-addressable failure before the
// tool body ever runs.
type validatedTool struct {
	domaintool.Tool
	schema *jsonschema.Schema
}

// WithValidation wraps a tool with its own schema compiled. A schema
// that fails to compile disables validation for that tool rather than
// dropping the tool.
func WithValidation(t domaintool.Tool, logger *zap.Logger) domaintool.Tool {
	raw, err := json.Marshal(t.Schema())
	if err != nil {
		logger.Warn("Tool schema not serializable, skipping validation",
			zap.String("tool", t.Name()), zap.Error(err))
		return t
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		logger.Warn("Tool schema not parseable, skipping validation",
			zap.String("tool", t.Name()), zap.Error(err))
		return t
	}

	compiler := jsonschema.NewCompiler()
	url := "tool://" + t.Name() + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		logger.Warn("Tool schema rejected, skipping validation",
			zap.String("tool", t.Name()), zap.Error(err))
		return t
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		logger.Warn("Tool schema does not compile, skipping validation",
			zap.String("tool", t.Name()), zap.Error(err))
		return t
	}
	return &validatedTool{Tool: t, schema: schema}
}

func (v *validatedTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	// normalize through JSON so numbers and nested values take their
	// canonical interface{} shapes before validation
	instance := interface{}(map[string]interface{}{})
	if args != nil {
		raw, err := json.Marshal(args)
		if err == nil {
			var norm interface{}
			if json.Unmarshal(raw, &norm) == nil {
				instance = norm
			}
		}
	}
	if err := v.schema.Validate(instance); err != nil {
		return fail("Error: invalid arguments for %s: %s", v.Tool.Name(), compactValidationError(err))
	}
	return v.Tool.Execute(ctx, args)
}

// compactValidationError flattens the validator's multi-line cause tree
// into one model-readable line.
func compactValidationError(err error) string {
	msg := err.Error()
	lines := strings.Split(msg, "\n")
	var parts []string
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return fmt.Sprintf("%s", strings.Join(parts, "; "))
}
