package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	containerWorkDir = "/workspace"

	// Resource limits per tool container.
	toolMemoryLimitBytes = 1024 * 1024 * 1024 // 1GB, tsc is memory hungry
	toolCPUQuota         = 100000             // 1 CPU
	toolPidsLimit        = 256

	removeTimeout = 10 * time.Second
)

// DockerExecutor runs every tool in a throwaway container with the workspace
// bind-mounted at /workspace.
type DockerExecutor struct {
	cli     *client.Client
	image   string
	timeout time.Duration
	user    string
}

// NewDockerExecutor creates a Docker-backed executor using the environment's daemon settings.
func NewDockerExecutor(image string, timeout time.Duration) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker tool executor initialized", "image", image, "timeout", timeout)
	return newDockerExecutor(cli, image, timeout), nil
}

func newDockerExecutor(cli *client.Client, image string, timeout time.Duration) *DockerExecutor {
	return &DockerExecutor{
		cli:     cli,
		image:   image,
		timeout: timeout,
		// Match host ownership so formatter rewrites stay removable.
		user: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
}

// Ping verifies the daemon is reachable.
func (e *DockerExecutor) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

// Close releases the Docker client.
func (e *DockerExecutor) Close() error {
	return e.cli.Close()
}

// Run creates, starts and waits for a container running cmd, then collects its logs.
func (e *DockerExecutor) Run(ctx context.Context, c Command) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	config := &container.Config{
		Image:      e.image,
		User:       e.user,
		WorkingDir: containerWorkDir,
		Cmd:        append([]string{c.Name}, c.Args...),
		Env:        c.Env,
		Tty:        false,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: c.Dir,
			Target: containerWorkDir,
		}},
		Resources: container.Resources{
			Memory:    toolMemoryLimitBytes,
			CPUQuota:  toolCPUQuota,
			PidsLimit: ptr(int64(toolPidsLimit)),
		},
	}

	resp, err := e.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Result{ExitCode: -1}, fmt.Errorf("tool image %s not found: %w", e.image, err)
		}
		return Result{ExitCode: -1}, fmt.Errorf("create tool container: %w", err)
	}
	defer e.remove(resp.ID)

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start tool container %s: %w", resp.ID, err)
	}

	exitCode, err := e.wait(ctx, resp.ID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{ExitCode: -1}, fmt.Errorf("%w: %s after %s", ErrTimeout, c.Name, e.timeout)
		}
		return Result{ExitCode: -1}, err
	}

	stdout, stderr, err := e.logs(ctx, resp.ID)
	if err != nil {
		return Result{ExitCode: exitCode}, err
	}

	slog.Debug("Tool container finished", "tool", c.Tool, "container_id", resp.ID, "exit_code", exitCode)
	return Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

func (e *DockerExecutor) wait(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("wait for tool container %s: %w", containerID, err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return -1, fmt.Errorf("tool container %s: %s", containerID, status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

func (e *DockerExecutor) logs(ctx context.Context, containerID string) (string, string, error) {
	rc, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("read tool container logs %s: %w", containerID, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			slog.Debug("Failed to close container log stream", "error", closeErr, "container_id", containerID)
		}
	}()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", "", fmt.Errorf("demultiplex tool container logs %s: %w", containerID, err)
	}
	return stdout.String(), stderr.String(), nil
}

// remove force-removes a tool container. It is idempotent.
func (e *DockerExecutor) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return
		}
		slog.Warn("Failed to remove tool container", "container_id", containerID, "error", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
