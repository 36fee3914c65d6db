package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghostagent/ghost/internal/infrastructure/tool"
	"go.uber.org/zap"
)

func newProcessRunner(t *testing.T) *ProcessRunner {
	t.Helper()
	r, err := NewProcessRunner(t.TempDir(), 10*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProcessRunner: %v", err)
	}
	return r
}

func TestInterpreterFor(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		wantErr  bool
	}{
		{"script.py", "python3", false},
		{"Run.SH", "bash", false},
		{"tool.js", "node", false},
		{"binary.exe", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := interpreterFor(tt.filename)
		if (err != nil) != tt.wantErr {
			t.Errorf("interpreterFor(%q) err = %v", tt.filename, err)
			continue
		}
		if got != tt.want {
			t.Errorf("interpreterFor(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestProcessRunner_ShellScript(t *testing.T) {
	r := newProcessRunner(t)
	res, err := r.RunScript(context.Background(), tool.ScriptSpec{
		Filename: "hello.sh",
		Content:  "echo hello $1",
		Args:     []string{"world"},
	})
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, output %q", res.ExitCode, res.Output)
	}
	if !strings.Contains(res.Output, "hello world") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestProcessRunner_NonzeroExit(t *testing.T) {
	r := newProcessRunner(t)
	res, err := r.RunScript(context.Background(), tool.ScriptSpec{
		Filename: "fail.sh",
		Content:  "echo boom >&2\nexit 3",
	})
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "boom") {
		t.Errorf("stderr not captured: %q", res.Output)
	}
}

func TestProcessRunner_Timeout(t *testing.T) {
	r, err := NewProcessRunner(t.TempDir(), 500*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.RunScript(context.Background(), tool.ScriptSpec{
		Filename: "slow.sh",
		Content:  "sleep 30",
	})
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if !res.TimedOut || res.ExitCode != timeoutExitCode {
		t.Errorf("timeout not flagged: %+v", res)
	}
}

func TestProcessRunner_ScriptFileLifecycle(t *testing.T) {
	workspace := t.TempDir()
	r, _ := NewProcessRunner(workspace, 10*time.Second, zap.NewNop())

	r.RunScript(context.Background(), tool.ScriptSpec{Filename: "gone.sh", Content: "true"})
	if _, err := os.Stat(filepath.Join(workspace, "gone.sh")); !os.IsNotExist(err) {
		t.Error("one-shot script should be removed after the run")
	}

	r.RunScript(context.Background(), tool.ScriptSpec{Filename: "kept.sh", Content: "true", Stateful: true})
	if _, err := os.Stat(filepath.Join(workspace, "kept.sh")); err != nil {
		t.Error("stateful script should stay in the workspace")
	}
}

func TestProcessRunner_TraversalJail(t *testing.T) {
	workspace := t.TempDir()
	r, _ := NewProcessRunner(workspace, 10*time.Second, zap.NewNop())

	r.RunScript(context.Background(), tool.ScriptSpec{
		Filename: "../../escape.sh",
		Content:  "true",
		Stateful: true,
	})
	if _, err := os.Stat(filepath.Join(workspace, "escape.sh")); err != nil {
		t.Error("filename should be flattened into the workspace")
	}
	if _, err := os.Stat(filepath.Join(workspace, "..", "..", "escape.sh")); err == nil {
		t.Error("script escaped the workspace")
	}
}

func TestNew_BackendSelection(t *testing.T) {
	runner, err := New(&Config{Workspace: t.TempDir(), Backend: "process"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if runner.Backend() != "process" {
		t.Errorf("backend = %s", runner.Backend())
	}

	if _, err := New(&Config{Workspace: t.TempDir(), Backend: "qemu"}, zap.NewNop()); err == nil {
		t.Error("unknown backend must error")
	}
}
