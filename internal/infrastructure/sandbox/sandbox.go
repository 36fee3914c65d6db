// Package sandbox executes model-authored scripts. The preferred backend
// is a long-lived docker container with the agent workspace bind-mounted;
// when no daemon is reachable it degrades to host processes in their own
// process group.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghostagent/ghost/internal/infrastructure/tool"
	"go.uber.org/zap"
)

const (
	// combined stdout/stderr cap per run
	outputCap = 256 * 1024

	defaultTimeout = 120 * time.Second
	defaultImage   = "python:3.11-slim-bookworm"
	defaultMemory  = 512 * 1024 * 1024
)

var interpreters = map[string]string{
	".py": "python3",
	".sh": "bash",
	".js": "node",
}

// Config carries the knobs both backends share.
type Config struct {
	Workspace string        // host directory scripts are written to
	Timeout   time.Duration // per-script wall clock budget
	Image     string        // docker image for the container backend
	Memory    int64         // container memory limit in bytes
	Network   string        // container network mode, default "none"
	Backend   string        // "auto", "docker" or "process"
}

func DefaultConfig(workspace string) *Config {
	return &Config{
		Workspace: workspace,
		Timeout:   defaultTimeout,
		Image:     defaultImage,
		Memory:    defaultMemory,
		Network:   "none",
		Backend:   "auto",
	}
}

// New builds the script runner for the configured backend. In auto mode
// docker is tried first and the process backend stands in when the
// daemon does not answer.
func New(cfg *Config, logger *zap.Logger) (tool.ScriptRunner, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Image == "" {
		cfg.Image = defaultImage
	}
	if cfg.Memory <= 0 {
		cfg.Memory = defaultMemory
	}

	switch cfg.Backend {
	case "process":
		return NewProcessRunner(cfg.Workspace, cfg.Timeout, logger)
	case "docker":
		return NewDockerRunner(cfg, logger)
	case "", "auto":
		docker, err := NewDockerRunner(cfg, logger)
		if err == nil {
			return docker, nil
		}
		logger.Warn("Docker sandbox unavailable, falling back to host processes", zap.Error(err))
		return NewProcessRunner(cfg.Workspace, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}

func interpreterFor(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	interp, exists := interpreters[ext]
	if !exists {
		return "", fmt.Errorf("no interpreter for %q", ext)
	}
	return interp, nil
}

func capOutput(s string) string {
	if len(s) <= outputCap {
		return s
	}
	return s[:outputCap] + "\n...[TRUNCATED]"
}
