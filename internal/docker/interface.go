package docker

import (
	"context"

	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// Container is the adapter's own view of a Docker container, already
// stripped of engine-specific types so the rest of the core never imports
// the moby client package directly.
type Container struct {
	ID            string
	Name          string
	Image         string
	State         string
	Status        string
	HealthStatus  string
	FailingStreak int
	Labels        map[string]string
}

// PortMapping is one published port of a container create call. The
// executor builds it by parsing the planner's host:container[/proto]
// strings.
type PortMapping struct {
	HostPort      string
	ContainerPort string
	Protocol      string // "tcp" (default) or "udp"
}

// CreateRequest is the full set of inputs needed to create and start one
// container. Callers (the executor) are responsible for resolving
// variables and applying naming conventions before building this.
type CreateRequest struct {
	Name           string
	Image          string
	EnvVars        map[string]string
	Ports          []PortMapping
	Volumes        map[string]string // src -> dst
	Networks       []string
	NetworkAliases []string
	Labels         map[string]string
	RestartPolicy  string // "on-failure" or "unless-stopped"
}

// API defines the subset of Docker operations consumed by the core.
// Implemented by Client for production, and by fakes for testing.
// Failures are surfaced unchanged to callers; implementations must not
// retry transparently.
type API interface {
	ListContainers(ctx context.Context, envID ids.EnvironmentID) ([]Container, error)
	GetContainerByName(ctx context.Context, envID ids.EnvironmentID, name string) (*Container, error)
	CreateAndStart(ctx context.Context, envID ids.EnvironmentID, req CreateRequest) (string, error)
	RemoveContainer(ctx context.Context, envID ids.EnvironmentID, id string, force bool) error
	PullImage(ctx context.Context, envID ids.EnvironmentID, name, tag string) error
	ImageExists(ctx context.Context, envID ids.EnvironmentID, name, tag string) (bool, error)
	EnsureNetwork(ctx context.Context, envID ids.EnvironmentID, name string) error
	GetExitCode(ctx context.Context, envID ids.EnvironmentID, id string) (int, error)
	GetLogs(ctx context.Context, envID ids.EnvironmentID, id string, tail int) (string, error)

	Close() error
}

// Verify Client implements API at compile time.
var _ API = (*Client)(nil)
