package sandbox

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/ghostagent/ghost/internal/infrastructure/tool"
	"go.uber.org/zap"
)

const containerWorkdir = "/workspace"

// timeoutExitCode is what coreutils timeout(1) returns when it kills the
// child.
const timeoutExitCode = 124

// DockerRunner keeps one container alive per workspace and execs scripts
// inside it. The workspace is bind-mounted at /workspace so file_system
// writes and script outputs land in the same tree.
type DockerRunner struct {
	cli       *client.Client
	workspace string
	name      string
	image     string
	memory    int64
	network   string
	timeout   time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	ready bool
}

func NewDockerRunner(cfg *Config, logger *zap.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	sum := md5.Sum([]byte(cfg.Workspace))
	return &DockerRunner{
		cli:       cli,
		workspace: cfg.Workspace,
		name:      "ghost-agent-sandbox-" + hex.EncodeToString(sum[:])[:8],
		image:     cfg.Image,
		memory:    cfg.Memory,
		network:   cfg.Network,
		timeout:   cfg.Timeout,
		logger:    logger.With(zap.String("component", "sandbox"), zap.String("backend", "docker")),
	}, nil
}

func (r *DockerRunner) Backend() string { return "docker" }

func (r *DockerRunner) RunScript(ctx context.Context, spec tool.ScriptSpec) (*tool.ScriptResult, error) {
	interp, err := interpreterFor(spec.Filename)
	if err != nil {
		return nil, err
	}
	if err := r.ensureContainer(ctx); err != nil {
		return nil, err
	}

	filename := filepath.Base(spec.Filename)
	hostPath := filepath.Join(r.workspace, filename)
	if err := os.WriteFile(hostPath, []byte(spec.Content), 0644); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	if !spec.Stateful {
		defer os.Remove(hostPath)
	}

	// timeout(1) enforces the budget inside the container; the exec API
	// has no deadline of its own
	cmd := []string{
		"timeout", "-k", "5s", fmt.Sprintf("%ds", int(r.timeout.Seconds())),
		interp, containerWorkdir + "/" + filename,
	}
	cmd = append(cmd, spec.Args...)

	execResp, err := r.cli.ContainerExecCreate(ctx, r.name, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   containerWorkdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
		return nil, fmt.Errorf("exec read: %w", err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += stderr.String()
	}
	result := &tool.ScriptResult{
		ExitCode: inspect.ExitCode,
		Output:   capOutput(output),
		TimedOut: inspect.ExitCode == timeoutExitCode,
	}
	r.logger.Info("Script executed in container",
		zap.String("filename", filename),
		zap.Int("exit_code", result.ExitCode),
	)
	return result, nil
}

// ensureContainer creates and starts the sandbox container on first use
// and restarts it if it died in between runs.
func (r *DockerRunner) ensureContainer(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	insp, err := r.cli.ContainerInspect(ctx, r.name)
	if err == nil {
		if insp.State != nil && insp.State.Running {
			r.ready = true
			return nil
		}
		if err := r.cli.ContainerStart(ctx, r.name, container.StartOptions{}); err != nil {
			return fmt.Errorf("start container: %w", err)
		}
		r.ready = true
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect container: %w", err)
	}

	if err := r.pullImage(ctx); err != nil {
		return err
	}

	networkMode := r.network
	if networkMode == "" || (networkMode == "host" && runtime.GOOS != "linux") {
		networkMode = "none"
	}
	hostConfig := &container.HostConfig{
		Binds:       []string{r.workspace + ":" + containerWorkdir + ":rw"},
		NetworkMode: container.NetworkMode(networkMode),
		Resources: container.Resources{
			Memory: r.memory,
		},
	}

	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:      r.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: containerWorkdir,
	}, hostConfig, nil, nil, r.name)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	r.logger.Info("Sandbox container started",
		zap.String("container", r.name),
		zap.String("image", r.image),
	)
	r.ready = true
	return nil
}

func (r *DockerRunner) pullImage(ctx context.Context) error {
	if _, err := r.cli.ImageInspect(ctx, r.image); err == nil {
		return nil
	}
	r.logger.Info("Pulling sandbox image", zap.String("image", r.image))
	rc, err := r.cli.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc) // drain so the pull completes
	return err
}

// Close stops the container and releases the client.
func (r *DockerRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		timeoutSecs := 5
		_ = r.cli.ContainerStop(stopCtx, r.name, container.StopOptions{Timeout: &timeoutSecs})
	}
	return r.cli.Close()
}
