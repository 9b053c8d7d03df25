package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.ContainerRuntime = (*Runtime)(nil)

const namePrefix = "codegrader-unit-"

// Runtime drives sandbox units as docker containers
type Runtime struct {
	cli    *client.Client
	logger primary.Logger
}

// NewClient connects to the daemon configured in the environment.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

func NewRuntime(cli *client.Client, logger primary.Logger) *Runtime {
	return &Runtime{cli: cli, logger: logger}
}

// CreateUnit starts a long-lived container constrained by spec.
func (r *Runtime) CreateUnit(ctx context.Context, spec domain.UnitSpec) (string, error) {
	name := namePrefix + uuid.New().String()
	resp, err := r.cli.ContainerCreate(ctx, containerConfig(spec), hostConfig(spec), nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := r.RemoveUnit(context.Background(), resp.ID); rmErr != nil {
			r.logger.Error("Failed to remove container after start failure", "containerId", resp.ID, "error", rmErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	for _, w := range resp.Warnings {
		r.logger.Warn("Container created with warning", "containerId", resp.ID, "warning", w)
	}
	return resp.ID, nil
}

// RemoveUnit force-removes a container and everything running in it.
func (r *Runtime) RemoveUnit(ctx context.Context, containerID string) error {
	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// CopyFiles extracts files into dir inside the container.
func (r *Runtime) CopyFiles(ctx context.Context, containerID, dir string, files []domain.FileEntry) error {
	archive, err := tarFiles(files)
	if err != nil {
		return err
	}
	if err := r.cli.CopyToContainer(ctx, containerID, dir, archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy files to container: %w", err)
	}
	return nil
}

// Exec runs cmd in workDir and waits for it. When ctx ends first the
// stream is closed and domain.ErrExecDeadline is returned; the process is
// left to die with its container.
func (r *Runtime) Exec(ctx context.Context, containerID string, cmd []string, workDir string) (*domain.ExecOutput, error) {
	created, err := r.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, execError(ctx, fmt.Errorf("failed to create exec: %w", err))
	}

	start := time.Now()
	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, execError(ctx, fmt.Errorf("failed to attach exec: %w", err))
	}
	defer attach.Close()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		copied <- err
	}()

	select {
	case err = <-copied:
	case <-ctx.Done():
		_ = attach.Conn.Close()
		<-copied
		return nil, fmt.Errorf("%w: %s", domain.ErrExecDeadline, strings.Join(cmd, " "))
	}
	if err != nil {
		return nil, execError(ctx, fmt.Errorf("failed to read exec output: %w", err))
	}
	duration := time.Since(start)

	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, execError(ctx, fmt.Errorf("failed to inspect exec: %w", err))
	}
	return &domain.ExecOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
		Duration: duration,
	}, nil
}

// execError reports a failure caused by an ended context as a deadline.
func execError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrExecDeadline, err)
	}
	return err
}

func containerConfig(spec domain.UnitSpec) *container.Config {
	return &container.Config{
		Image:           spec.Image,
		Cmd:             []string{"sleep", "infinity"},
		User:            spec.User,
		WorkingDir:      spec.TmpfsPath,
		Env:             []string{"HOME=" + spec.TmpfsPath, "TMPDIR=" + spec.TmpfsPath},
		Labels:          spec.Labels,
		NetworkDisabled: true,
	}
}

func hostConfig(spec domain.UnitSpec) *container.HostConfig {
	pids := spec.PidsLimit
	hc := &container.HostConfig{
		NetworkMode: "none",
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:     spec.MemoryBytes,
			MemorySwap: spec.MemoryBytes,
			NanoCPUs:   int64(spec.CPUShare * 1e9),
		},
	}
	if pids > 0 {
		hc.Resources.PidsLimit = &pids
	}
	if spec.TmpfsPath != "" {
		hc.Tmpfs = map[string]string{
			spec.TmpfsPath: fmt.Sprintf("rw,exec,nosuid,nodev,size=%d,mode=1777", spec.TmpfsBytes),
		}
	}
	return hc
}
