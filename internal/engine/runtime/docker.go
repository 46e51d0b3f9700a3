package runtime

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements the Runtime interface using the Docker SDK.
// The engine image's own entrypoint is used; Command is passed as Cmd when set.
type DockerRuntime struct {
	client *client.Client
}

// DockerHandle represents a running engine container.
type DockerHandle struct {
	client      *client.Client
	containerID string

	statusCh <-chan container.WaitResponse
	errCh    <-chan error

	cancelLogs context.CancelFunc
	logsDone   chan struct{}

	once   sync.Once
	done   chan struct{}
	result ExitResult
	err    error
}

// NewDockerRuntime creates a new Docker-based runtime.
func NewDockerRuntime() (*DockerRuntime, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

func (d *DockerRuntime) Name() string { return "docker" }

// Start implements Runtime.Start using Docker containers.
func (d *DockerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("image is required")
	}

	// Check if it exists locally first to save time.
	if _, _, err := d.client.ImageInspectWithRaw(ctx, opts.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	env := make(map[string]string, len(opts.Env)+1)
	for k, v := range opts.Env {
		env[k] = v
	}
	// Inside the container the engine must listen on all interfaces
	env["ENGINE_HOST"] = "0.0.0.0"

	exposed, bindings, err := portBindings(opts.Ports)
	if err != nil {
		return nil, err
	}

	containerConfig := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Command,
		Env:          mapToEnvList(env),
		WorkingDir:   opts.Dir,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		AutoRemove:   true,
	}

	created, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	// Subscribe before starting so a fast exit is not missed once AutoRemove kicks in
	waitCtx := context.WithoutCancel(ctx)
	statusCh, errCh := d.client.ContainerWait(waitCtx, created.ID, container.WaitConditionRemoved)

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		d.client.ContainerRemove(waitCtx, created.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	logsCtx, cancelLogs := context.WithCancel(waitCtx)
	h := &DockerHandle{
		client:      d.client,
		containerID: created.ID,
		statusCh:    statusCh,
		errCh:       errCh,
		cancelLogs:  cancelLogs,
		logsDone:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	go h.copyLogs(logsCtx, writerOrDiscard(opts.Stdout), writerOrDiscard(opts.Stderr))

	return h, nil
}

func portBindings(ports []int) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid engine port %d: %w", p, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(p)}}
	}
	return exposed, bindings, nil
}

// copyLogs demultiplexes the container's stdout/stderr stream.
func (h *DockerHandle) copyLogs(ctx context.Context, stdout, stderr io.Writer) {
	defer close(h.logsDone)

	rc, err := h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return
	}
	defer rc.Close()
	stdcopy.StdCopy(stdout, stderr, rc)
}

func (h *DockerHandle) ID() string {
	if len(h.containerID) > 12 {
		return h.containerID[:12]
	}
	return h.containerID
}

// PID is 0: the container process may live inside a VM.
func (h *DockerHandle) PID() int { return 0 }

func (h *DockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
	case err := <-h.errCh:
		h.finish(waitResult(nil, err), nil)
	case status := <-h.statusCh:
		h.finish(waitResult(&status, nil), nil)
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
	return h.result, h.err
}

// waitResult maps a ContainerWait outcome. A wait error means the daemon
// can no longer tell us about the container, so it is reported as lost.
func waitResult(status *container.WaitResponse, err error) ExitResult {
	if err != nil || status == nil {
		return ExitResult{ExitCode: ExitCodeLost, Error: fmt.Errorf("lost container: %w", err)}
	}
	res := ExitResult{ExitCode: int(status.StatusCode)}
	if status.Error != nil {
		res.Error = fmt.Errorf("%s", status.Error.Message)
	}
	return res
}

func (h *DockerHandle) finish(res ExitResult, err error) {
	h.once.Do(func() {
		h.result, h.err = res, err
		// let the log follower drain the tail before cutting it off
		select {
		case <-h.logsDone:
		case <-time.After(2 * time.Second):
		}
		h.cancelLogs()
		close(h.done)
	})
}

func (h *DockerHandle) Stop(ctx context.Context) error {
	timeout := 5
	if deadline, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(deadline).Seconds()); secs > 0 {
			timeout = secs
		}
	}
	if err := h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", h.ID(), err)
	}
	return nil
}
