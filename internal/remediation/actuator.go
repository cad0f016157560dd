package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// HTTPActuator restarts services through a deploy controller's restart
// endpoint. The controller is expected to return 2xx once the restart is
// accepted.
type HTTPActuator struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewHTTPActuator(baseURL, authToken string, timeout time.Duration) *HTTPActuator {
	return &HTTPActuator{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *HTTPActuator) Restart(ctx context.Context, service string) error {
	payload, err := json.Marshal(map[string]string{"service": service})
	if err != nil {
		return fmt.Errorf("failed to encode restart request: %w", err)
	}

	url := a.baseURL + "/restart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build restart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("restart request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("restart endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// DockerActuator restarts services running as local containers, for
// deployments where the service and this watcher share a Docker host. The
// containerName resolver maps a service to its container when the two names
// differ.
type DockerActuator struct {
	cli           *client.Client
	containerName func(service string) string
	stopTimeout   int
}

func NewDockerActuator(containerName func(service string) string) (*DockerActuator, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerActuator{cli: cli, containerName: containerName, stopTimeout: 10}, nil
}

func (a *DockerActuator) Restart(ctx context.Context, service string) error {
	name := a.containerFor(service)
	id, err := a.findContainer(ctx, name)
	if err != nil {
		return err
	}

	timeout := a.stopTimeout
	if err := a.cli.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	return nil
}

func (a *DockerActuator) containerFor(service string) string {
	if a.containerName != nil {
		if name := a.containerName(service); name != "" {
			return name
		}
	}
	return service
}

func (a *DockerActuator) findContainer(ctx context.Context, service string) (string, error) {
	containers, err := a.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		for _, name := range c.Names {
			// Docker prefixes names with "/"
			if name == "/"+service || name == service {
				return c.ID, nil
			}
		}
	}
	return "", fmt.Errorf("no container named %q found", service)
}

func (a *DockerActuator) Close() error {
	if a.cli != nil {
		return a.cli.Close()
	}
	return nil
}
