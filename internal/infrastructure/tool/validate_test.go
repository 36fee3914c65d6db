package tool

import (
	"context"
	"strings"
	"testing"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
)

type echoTool struct {
	schema map[string]interface{}
	ran    bool
}

func (e *echoTool) Name() string          { return "echo" }
func (e *echoTool) Description() string   { return "echoes" }
func (e *echoTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (e *echoTool) Schema() map[string]interface{} {
	return e.schema
}

func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	e.ran = true
	return ok("echoed")
}

func strictSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text":  map[string]interface{}{"type": "string"},
			"count": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"text"},
	}
}

func TestWithValidation_PassesValidArgs(t *testing.T) {
	inner := &echoTool{schema: strictSchema()}
	wrapped := WithValidation(inner, testLogger())

	res, err := wrapped.Execute(context.Background(), map[string]interface{}{
		"text": "hello", "count": float64(3),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || !inner.ran {
		t.Errorf("valid args should reach the tool body: %q", res.Output)
	}
}

func TestWithValidation_BlocksInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing required", map[string]interface{}{"count": float64(1)}},
		{"wrong type", map[string]interface{}{"text": 42}},
		{"nil args", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &echoTool{schema: strictSchema()}
			wrapped := WithValidation(inner, testLogger())

			res, err := wrapped.Execute(context.Background(), tt.args)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Success {
				t.Fatalf("invalid args slipped through: %q", res.Output)
			}
			if inner.ran {
				t.Error("tool body ran despite invalid args")
			}
			if !strings.Contains(res.Output, "invalid arguments for echo") {
				t.Errorf("failure not model-addressable: %q", res.Output)
			}
		})
	}
}

func TestWithValidation_BrokenSchemaDisablesValidation(t *testing.T) {
	inner := &echoTool{schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"x": map[string]interface{}{"type": "no-such-type"},
		},
	}}
	wrapped := WithValidation(inner, testLogger())

	res, _ := wrapped.Execute(context.Background(), map[string]interface{}{"x": 1})
	if !res.Success {
		t.Errorf("a broken schema should disable validation, not the tool: %q", res.Output)
	}
}

func TestWithValidation_RealToolSchemasCompile(t *testing.T) {
	deps := fullTestDeps(t)
	for _, tl := range []domaintool.Tool{
		NewFileSystemTool(deps.Workspace, deps.Egress, testLogger()),
		NewWebSearchTool(deps.Egress, testLogger()),
		NewManageTasksTool(&fakeSched{}, testLogger()),
		NewDelegateToSwarmTool(&fakeUpstream{}, newFakePad(), "m", testLogger()),
	} {
		wrapped := WithValidation(tl, testLogger())
		if _, isWrapped := wrapped.(*validatedTool); !isWrapped {
			t.Errorf("schema for %s did not compile", tl.Name())
		}
	}
}
