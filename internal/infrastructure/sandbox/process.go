package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ghostagent/ghost/internal/infrastructure/tool"
	"go.uber.org/zap"
)

// ProcessRunner executes scripts as host processes in their own process
// group. It provides timeouts and group kill, NOT filesystem isolation;
// scripts see the real workspace and the real environment.
type ProcessRunner struct {
	workspace string
	timeout   time.Duration
	logger    *zap.Logger
}

func NewProcessRunner(workspace string, timeout time.Duration, logger *zap.Logger) (*ProcessRunner, error) {
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ProcessRunner{
		workspace: workspace,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "sandbox"), zap.String("backend", "process")),
	}, nil
}

func (r *ProcessRunner) Backend() string { return "process" }

func (r *ProcessRunner) RunScript(ctx context.Context, spec tool.ScriptSpec) (*tool.ScriptResult, error) {
	interp, err := interpreterFor(spec.Filename)
	if err != nil {
		return nil, err
	}
	binPath, err := exec.LookPath(interp)
	if err != nil {
		return nil, fmt.Errorf("interpreter not installed: %s", interp)
	}

	filename := filepath.Base(spec.Filename)
	scriptPath := filepath.Join(r.workspace, filename)
	if err := os.WriteFile(scriptPath, []byte(spec.Content), 0644); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	if !spec.Stateful {
		defer os.Remove(scriptPath)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	argv := append([]string{scriptPath}, spec.Args...)
	cmd := exec.CommandContext(execCtx, binPath, argv...)
	cmd.Dir = r.workspace
	cmd.Env = r.buildEnvironment()
	// own process group so a timeout kill takes the script's children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	start := time.Now()
	runErr := cmd.Run()

	result := &tool.ScriptResult{
		Output: capOutput(combined.String()),
	}
	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = timeoutExitCode
		r.logger.Warn("Script killed on timeout",
			zap.String("filename", filename),
			zap.Duration("timeout", r.timeout),
		)
		return result, nil
	}
	if runErr != nil {
		exitErr, isExit := runErr.(*exec.ExitError)
		if !isExit {
			return nil, fmt.Errorf("execution failed: %w", runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Info("Script executed on host",
		zap.String("filename", filename),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (r *ProcessRunner) buildEnvironment() []string {
	sysPath := os.Getenv("PATH")
	if sysPath == "" {
		sysPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = r.workspace
	}
	env := []string{
		"PATH=" + sysPath,
		"HOME=" + home,
		"LANG=en_US.UTF-8",
		"LC_ALL=en_US.UTF-8",
		"USER=" + os.Getenv("USER"),
	}
	for _, key := range []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}
