package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"

	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// ListContainers returns every container on the engine, enriched with
// health state. The envID is accepted for interface symmetry with
// multi-environment callers; a single Client is wired to exactly one
// Docker host.
func (c *Client) ListContainers(ctx context.Context, envID ids.EnvironmentID) ([]Container, error) {
	result, err := c.api.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return nil, err
	}

	out := make([]Container, 0, len(result.Items))
	for _, s := range result.Items {
		full, err := c.api.ContainerInspect(ctx, s.ID, client.ContainerInspectOptions{})
		if err != nil {
			// Container may have been removed between list and inspect;
			// fall back to the summary-only view rather than failing
			// the whole scan.
			out = append(out, fromSummary(s))
			continue
		}
		out = append(out, fromInspect(full.Container))
	}
	return out, nil
}

// GetContainerByName looks up a single container by its exact name,
// returning nil if no container with that name exists.
func (c *Client) GetContainerByName(ctx context.Context, envID ids.EnvironmentID, name string) (*Container, error) {
	opts := client.ContainerListOptions{
		All:     true,
		Filters: make(client.Filters).Add("name", "^/"+strings.TrimPrefix(name, "/")+"$"),
	}
	result, err := c.api.ContainerList(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, s := range result.Items {
		if containerName(s) == name {
			full, err := c.api.ContainerInspect(ctx, s.ID, client.ContainerInspectOptions{})
			if err != nil {
				cont := fromSummary(s)
				return &cont, nil
			}
			cont := fromInspect(full.Container)
			return &cont, nil
		}
	}
	return nil, nil
}

// CreateAndStart creates a container from req and starts it, returning
// the new container's ID.
func (c *Client) CreateAndStart(ctx context.Context, _ ids.EnvironmentID, req CreateRequest) (string, error) {
	cfg := &container.Config{
		Image:  req.Image,
		Env:    envSlice(req.EnvVars),
		Labels: req.Labels,
	}

	hostCfg := &container.HostConfig{
		Binds:         bindSpecs(req.Volumes),
		RestartPolicy: restartPolicy(req.RestartPolicy),
	}
	if len(req.Ports) > 0 {
		exposed, bindings := portConfig(req.Ports)
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	netCfg := &network.NetworkingConfig{
		EndpointsConfig: make(map[string]*network.EndpointSettings),
	}
	aliases := req.NetworkAliases
	for _, n := range req.Networks {
		netCfg.EndpointsConfig[n] = &network.EndpointSettings{Aliases: aliases}
	}

	resp, err := c.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:             req.Name,
		Config:           cfg,
		HostConfig:       hostCfg,
		NetworkingConfig: netCfg,
	})
	if err != nil {
		return "", err
	}

	if _, err := c.api.ContainerStart(ctx, resp.ID, client.ContainerStartOptions{}); err != nil {
		return resp.ID, err
	}
	return resp.ID, nil
}

// RemoveContainer removes a container, optionally forcing removal of a
// running one.
func (c *Client) RemoveContainer(ctx context.Context, _ ids.EnvironmentID, id string, force bool) error {
	_, err := c.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: force})
	return err
}

// PullImage pulls name:tag, blocking until the pull completes.
func (c *Client) PullImage(ctx context.Context, _ ids.EnvironmentID, name, tag string) error {
	ref := name
	if tag != "" {
		ref = name + ":" + tag
	}
	resp, err := c.api.ImagePull(ctx, ref, client.ImagePullOptions{})
	if err != nil {
		return err
	}
	return resp.Wait(ctx)
}

// ImageExists reports whether name:tag is present in the local image store.
func (c *Client) ImageExists(ctx context.Context, _ ids.EnvironmentID, name, tag string) (bool, error) {
	ref := name
	if tag != "" {
		ref = name + ":" + tag
	}
	_, err := c.api.ImageInspect(ctx, ref)
	if err != nil {
		if strings.Contains(err.Error(), "No such image") || strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureNetwork creates the named bridge network if it does not already
// exist. Idempotent.
func (c *Client) EnsureNetwork(ctx context.Context, _ ids.EnvironmentID, name string) error {
	opts := client.NetworkListOptions{
		Filters: make(client.Filters).Add("name", name),
	}
	existing, err := c.api.NetworkList(ctx, opts)
	if err != nil {
		return err
	}
	for _, n := range existing.Items {
		if n.Name == name {
			return nil
		}
	}
	_, err = c.api.NetworkCreate(ctx, client.NetworkCreateOptions{Name: name, Driver: "bridge"})
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

// GetExitCode returns the exit code of a stopped container.
func (c *Client) GetExitCode(ctx context.Context, _ ids.EnvironmentID, id string) (int, error) {
	resp, err := c.api.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		return 0, err
	}
	if resp.Container.State == nil {
		return 0, fmt.Errorf("container %s has no state", id)
	}
	return resp.Container.State.ExitCode, nil
}

// GetLogs returns the last `tail` lines of combined stdout/stderr output.
func (c *Client) GetLogs(ctx context.Context, _ ids.EnvironmentID, id string, tail int) (string, error) {
	opts := client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tail),
	}
	reader, err := c.api.ContainerLogs(ctx, id, opts)
	if err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	if stderr.Len() > 0 {
		stdout.WriteString(stderr.String())
	}
	return stdout.String(), nil
}

func fromSummary(s container.Summary) Container {
	return Container{
		ID:     s.ID,
		Name:   containerName(s),
		Image:  s.Image,
		State:  s.State,
		Status: s.Status,
		Labels: s.Labels,
	}
}

// fromInspect builds a Container from a full inspect response, which is
// the only Docker API call that reliably reports structured health state.
func fromInspect(full container.InspectResponse) Container {
	var health string
	var streak int
	if full.State != nil && full.State.Health != nil {
		health = strings.ToLower(string(full.State.Health.Status))
		streak = full.State.Health.FailingStreak
	}
	var state, status string
	if full.State != nil {
		state = string(full.State.Status)
		if full.State.Running {
			status = "running"
		} else {
			status = state
		}
	}
	var image string
	if full.Config != nil {
		image = full.Config.Image
	}
	return Container{
		ID:            full.ID,
		Name:          strings.TrimPrefix(full.Name, "/"),
		Image:         image,
		State:         state,
		Status:        status,
		HealthStatus:  health,
		FailingStreak: streak,
		Labels:        labelsOf(full),
	}
}

func labelsOf(full container.InspectResponse) map[string]string {
	if full.Config == nil {
		return nil
	}
	return full.Config.Labels
}

func containerName(s container.Summary) string {
	if len(s.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(s.Names[0], "/")
}

func envSlice(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}

func bindSpecs(volumes map[string]string) []string {
	out := make([]string, 0, len(volumes))
	for src, dst := range volumes {
		out = append(out, src+":"+dst)
	}
	return out
}

func restartPolicy(name string) container.RestartPolicy {
	switch name {
	case "on-failure", "unless-stopped":
		return container.RestartPolicy{Name: name}
	default:
		return container.RestartPolicy{}
	}
}

func portConfig(ports []PortMapping) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		key := nat.Port(p.ContainerPort + "/" + proto)
		exposed[key] = struct{}{}
		bindings[key] = append(bindings[key], nat.PortBinding{HostPort: p.HostPort})
	}
	return exposed, bindings
}
