package compose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// ProjectLabel is the label compose puts on every container it creates.
const ProjectLabel = "com.docker.compose.project"

const serviceLabel = "com.docker.compose.service"

// DaemonInfo describes the Docker daemon.
type DaemonInfo struct {
	Version    string
	APIVersion string
	OS         string
	Arch       string
}

// Daemon talks to the Docker engine API.
type Daemon struct {
	cli *client.Client
}

// NewDaemon creates a Docker client from the environment (DOCKER_HOST etc).
func NewDaemon() (*Daemon, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Daemon{cli: cli}, nil
}

// Close releases the client.
func (d *Daemon) Close() error {
	return d.cli.Close()
}

// Ping checks the daemon is reachable and returns its version.
func (d *Daemon) Ping(ctx context.Context) (*DaemonInfo, error) {
	if _, err := d.cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	v, err := d.cli.ServerVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get docker version: %w", err)
	}
	return &DaemonInfo{
		Version:    v.Version,
		APIVersion: v.APIVersion,
		OS:         v.Os,
		Arch:       v.Arch,
	}, nil
}

// ProjectContainers lists the containers of a compose project straight from
// the daemon, without the compose binary.
func (d *Daemon) ProjectContainers(ctx context.Context, project string) ([]ContainerStatus, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ProjectLabel+"="+project)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	statuses := make([]ContainerStatus, 0, len(containers))
	for _, c := range containers {
		statuses = append(statuses, containerStatus(c))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

func containerStatus(c types.Container) ContainerStatus {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	id := c.ID
	if len(id) > 12 {
		id = id[:12]
	}

	s := ContainerStatus{
		ID:      id,
		Name:    name,
		Service: c.Labels[serviceLabel],
		Image:   c.Image,
		State:   c.State,
		Status:  c.Status,
	}
	for _, p := range c.Ports {
		s.Publishers = append(s.Publishers, Publisher{
			URL:           p.IP,
			TargetPort:    int(p.PrivatePort),
			PublishedPort: int(p.PublicPort),
			Protocol:      p.Type,
		})
	}
	return s
}
