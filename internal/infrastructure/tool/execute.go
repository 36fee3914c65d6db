package tool

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// ScriptSpec is one sandbox execution request.
type ScriptSpec struct {
	Filename string
	Content  string
	Args     []string
	Stateful bool // keep the container/session alive between calls
}

// ScriptResult is the sandbox outcome.
type ScriptResult struct {
	ExitCode int
	Output   string // combined stdout/stderr
	TimedOut bool
}

// ScriptRunner executes scripts. The docker sandbox implements it, with
// a host-process fallback when no daemon is reachable.
type ScriptRunner interface {
	RunScript(ctx context.Context, spec ScriptSpec) (*ScriptResult, error)
	Backend() string
}

var allowedScriptExts = map[string]string{
	".py": "python3",
	".sh": "bash",
	".js": "node",
}

// Python modules that duplicate a native tool. Scripts reaching for them
// get pointed back at the tool instead of reimplementing it badly.
var forbiddenImports = map[string]string{
	"duckduckgo_search": "web_search",
	"googlesearch":      "web_search",
	"selenium":          "web_search",
	"playwright":        "web_search",
	"psycopg2":          "postgres_admin",
	"chromadb":          "knowledge_base",
}

const stubbornnessLimit = 3

// ExecuteTool runs model-authored scripts in the sandbox. Nonzero exit
// codes still return Success=true; the dispatcher scrapes the EXIT CODE
// banner and does its own failure accounting.
type ExecuteTool struct {
	runner ScriptRunner
	logger *zap.Logger

	mu        sync.Mutex
	lastHash  string
	sameCount int
}

func NewExecuteTool(runner ScriptRunner, logger *zap.Logger) *ExecuteTool {
	return &ExecuteTool{
		runner: runner,
		logger: logger.With(zap.String("tool", "execute")),
	}
}

func (t *ExecuteTool) Name() string          { return "execute" }
func (t *ExecuteTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *ExecuteTool) Description() string {
	return "Write a script to the sandbox and execute it. Supports .py, .sh and .js. Output includes the exit code."
}

func (t *ExecuteTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Script filename ending in .py, .sh or .js.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full source of the script.",
			},
			"args": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Command-line arguments.",
			},
			"stateful": map[string]interface{}{
				"type":        "boolean",
				"description": "Keep the execution session alive between calls.",
			},
		},
		"required": []string{"filename", "content"},
	}
}

func (t *ExecuteTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	filename := strings.TrimSpace(strArg(args, "filename"))
	content := strArg(args, "content")
	if filename == "" {
		return fail("Error: 'filename' parameter is required")
	}
	if strings.TrimSpace(content) == "" {
		return fail("Error: 'content' parameter is required")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, allowed := allowedScriptExts[ext]; !allowed {
		return fail("Error: unsupported script type '%s'. Allowed: .py, .sh, .js", ext)
	}

	if ext == ".py" {
		for module, nativeTool := range forbiddenImports {
			if strings.Contains(content, module) {
				return fail("Error: do not import '%s'. Use the native '%s' tool instead.", module, nativeTool)
			}
		}
	}

	if msg := t.checkStubbornness(content); msg != "" {
		return fail("%s", msg)
	}

	res, err := t.runner.RunScript(ctx, ScriptSpec{
		Filename: filename,
		Content:  content,
		Args:     strSliceArg(args, "args"),
		Stateful: boolArg(args, "stateful"),
	})
	if err != nil {
		return fail("Error: sandbox failure: %v", err)
	}

	output := res.Output
	if res.TimedOut {
		output += "\n[Process killed: execution timeout]"
	}
	t.logger.Info("Script executed",
		zap.String("filename", filename),
		zap.Int("exit_code", res.ExitCode),
		zap.String("backend", t.runner.Backend()),
	)

	banner := fmt.Sprintf("--- EXECUTION RESULT ---\nEXIT CODE: %d\nSTDOUT/STDERR:\n%s", res.ExitCode, output)
	return &domaintool.Result{
		Output:  banner,
		Success: true,
		Metadata: map[string]interface{}{
			"exit_code": res.ExitCode,
			"backend":   t.runner.Backend(),
		},
	}, nil
}

// checkStubbornness refuses the identical script on its Nth consecutive
// submission. Changed content resets the counter.
func (t *ExecuteTool) checkStubbornness(content string) string {
	sum := md5.Sum([]byte(content))
	hash := hex.EncodeToString(sum[:])

	t.mu.Lock()
	defer t.mu.Unlock()
	if hash == t.lastHash {
		t.sameCount++
	} else {
		t.lastHash = hash
		t.sameCount = 1
	}
	if t.sameCount >= stubbornnessLimit {
		return fmt.Sprintf("Error: this exact script was already executed %d times. Change the code before running again.", t.sameCount-1)
	}
	return ""
}
