package localci

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// containerRuntime is the slice of the container engine the local executor
// needs. The docker client satisfies it through dockerRuntime, tests plug in
// a fake.
type containerRuntime interface {
	PullImage(ctx context.Context, imageName string) error
	RunContainer(ctx context.Context, opts runOptions) (exitCode int64, logs string, err error)
}

// runOptions describes one build container.
type runOptions struct {
	Image      string
	Script     string
	WorkingDir string
	// Binds maps host directories into the container, source to target.
	Binds map[string]string
}

type dockerRuntime struct {
	client *client.Client
}

// newDockerRuntime connects to the local container engine using the
// environment's configuration.
func newDockerRuntime() (*dockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create container engine client: %w", err)
	}
	return &dockerRuntime{client: cli}, nil
}

func (d *dockerRuntime) PullImage(ctx context.Context, imageName string) error {
	resp, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer resp.Close()
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, resp)
	return err
}

// RunContainer creates the container, runs the script to completion and
// returns the exit code together with the combined logs. The container is
// removed afterwards regardless of the outcome.
func (d *dockerRuntime) RunContainer(ctx context.Context, opts runOptions) (int64, string, error) {
	config := &container.Config{
		Image:      opts.Image,
		Cmd:        []string{"/bin/sh", "-c", opts.Script},
		WorkingDir: opts.WorkingDir,
		Tty:        true,
	}
	hostConfig := &container.HostConfig{}
	for source, target := range opts.Binds {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: source,
			Target: target,
		})
	}

	resp, err := d.client.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return 0, "", fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID
	defer func() {
		_ = d.client.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return 0, "", fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return 0, "", fmt.Errorf("failed to wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logReader, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return exitCode, "", fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logReader.Close()
	logs, err := io.ReadAll(logReader)
	if err != nil {
		return exitCode, "", fmt.Errorf("failed to read container logs: %w", err)
	}
	return exitCode, string(logs), nil
}
