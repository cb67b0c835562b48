// Package health implements the Health Aggregator: it maps per-container
// Docker state onto a small status lattice, rolls services up into a
// per-deployment snapshot, and rolls deployments up into a per-environment
// summary. It never propagates container-engine transport errors to
// callers — a failed scan still produces a snapshot, with an Empty self
// health section, so the stack's history is never silently gapped.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/docker"
	"github.com/wiesenwischer/readystackgo/internal/events"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/labels"
	"github.com/wiesenwischer/readystackgo/internal/metrics"
	"github.com/wiesenwischer/readystackgo/internal/notify"
)

// Status is a point on the three-level health lattice, plus the two
// sentinel values Unknown (indeterminate) and Empty (no services at all).
type Status string

const (
	StatusHealthy   Status = "Healthy"
	StatusDegraded  Status = "Degraded"
	StatusUnhealthy Status = "Unhealthy"
	StatusUnknown   Status = "Unknown"
	StatusEmpty     Status = "Empty"
)

// ServiceHealth is the per-container health read for one deployed service.
type ServiceHealth struct {
	Name          string
	Status        Status
	ContainerID   string
	ContainerName string
	Reason        string
	RestartCount  int
}

// SelfHealth is the deployment's own service-level rollup, independent of
// any downstream bus/infra component health.
type SelfHealth struct {
	Status   Status
	Services []ServiceHealth
}

// ComponentHealth is a placeholder rollup for an external component (a
// message bus, shared infra) that the core does not itself probe; bus and
// infra health arrive from collaborators outside this package and are
// carried through the snapshot unexamined.
type ComponentHealth struct {
	Status  Status
	Message string
}

// Snapshot is one captured point-in-time health read for a deployment.
// Snapshots are append-only; ordering by CapturedAtUTC defines history.
type Snapshot struct {
	ID             ids.HealthSnapshotID
	OrganizationID ids.OrganizationID
	EnvironmentID  ids.EnvironmentID
	DeploymentID   ids.DeploymentID
	StackName      string
	OperationMode  deployment.OperationMode
	CurrentVersion string
	TargetVersion  string
	CapturedAtUTC  time.Time
	Overall        Status
	Self           SelfHealth
	Bus            *ComponentHealth
	Infra          *ComponentHealth
}

// StackSummary is one deployment's line in an EnvironmentSummary.
type StackSummary struct {
	DeploymentID ids.DeploymentID
	StackName    string
	Overall      Status
}

// EnvironmentSummary rolls up every deployment's snapshot within one
// environment into aggregate counts, for the per-environment notification
// event.
type EnvironmentSummary struct {
	EnvironmentID ids.EnvironmentID
	Total         int
	Healthy       int
	Degraded      int
	Unhealthy     int
	Stacks        []StackSummary
}

// Logger is the minimal structured-logging surface the aggregator needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// IDGenerator abstracts HealthSnapshotID generation so tests can pin it;
// defaults to ids.NewHealthSnapshotID.
type IDGenerator func() ids.HealthSnapshotID

// Aggregator collects per-container state from the Container Engine
// Adapter and builds HealthSnapshots. It holds no persistence of its own —
// the caller (the background scheduler or an upstream adapter) is
// responsible for storing the returned Snapshot.
type Aggregator struct {
	docker   docker.API
	clock    clock.Clock
	bus      *events.Bus
	notifier *notify.Multi
	log      Logger
	newID    IDGenerator

	lastOverall map[ids.DeploymentID]Status
}

// New creates an Aggregator wired to the given Container Engine Adapter.
func New(api docker.API, clk clock.Clock, bus *events.Bus, notifier *notify.Multi, log Logger) *Aggregator {
	return &Aggregator{
		docker:      api,
		clock:       clk,
		bus:         bus,
		notifier:    notifier,
		log:         log,
		newID:       ids.NewHealthSnapshotID,
		lastOverall: make(map[ids.DeploymentID]Status),
	}
}

// Capture collects a snapshot for dep. Container-engine errors never
// propagate: they degrade to an Empty SelfHealth so the stack's history
// stays unbroken.
func (a *Aggregator) Capture(ctx context.Context, dep *deployment.Deployment) Snapshot {
	start := a.clock.Now()
	metrics.HealthScansTotal.Inc()
	defer func() { metrics.HealthScanDuration.Observe(a.clock.Since(start).Seconds()) }()

	self := a.collectSelf(ctx, dep)

	snap := Snapshot{
		ID:             a.newID(),
		OrganizationID: dep.OrganizationID(),
		EnvironmentID:  dep.EnvironmentID(),
		DeploymentID:   dep.ID(),
		StackName:      dep.StackName(),
		OperationMode:  dep.OperationMode(),
		CurrentVersion: dep.StackVersion(),
		CapturedAtUTC:  a.clock.Now(),
		Overall:        overallFromSelf(self.Status),
		Self:           self,
	}

	a.publish(dep, snap)
	return snap
}

func (a *Aggregator) collectSelf(ctx context.Context, dep *deployment.Deployment) SelfHealth {
	all, err := a.docker.ListContainers(ctx, dep.EnvironmentID())
	if err != nil {
		a.log.Warn("health scan: list containers failed", "deployment", dep.ID().String(), "error", err)
		return SelfHealth{Status: StatusEmpty}
	}

	stackName := dep.StackName()
	matched := make(map[string]docker.Container, len(all))
	for _, c := range all {
		if !belongsToStack(c, stackName) {
			continue
		}
		matched[serviceNameOf(c)] = c
	}

	var services []ServiceHealth
	for name, c := range matched {
		services = append(services, serviceHealthOf(name, c))
	}

	for _, expected := range dep.Services() {
		if _, found := matched[expected.ServiceName]; found {
			continue
		}
		services = append(services, ServiceHealth{
			Name:          expected.ServiceName,
			Status:        StatusUnhealthy,
			ContainerID:   expected.ContainerID,
			ContainerName: expected.ContainerName,
			Reason:        "Container vanished",
		})
	}

	return SelfHealth{Status: rollUp(services), Services: services}
}

// belongsToStack reports whether c is part of stackName, first by the
// docker-compose project label (case-insensitive) or our own rsgo.stack
// label, falling back to a normalised name-prefix match.
func belongsToStack(c docker.Container, stackName string) bool {
	if proj, ok := c.Labels[labels.ComposeProject]; ok && strings.EqualFold(proj, stackName) {
		return true
	}
	if s, ok := c.Labels[labels.Stack]; ok && s == stackName {
		return true
	}
	return strings.HasPrefix(normalizeName(c.Name), normalizeName(stackName))
}

func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "_", "-")
	return s
}

func serviceNameOf(c docker.Container) string {
	if v, ok := c.Labels[labels.Context]; ok && v != "" {
		return v
	}
	if v, ok := c.Labels[labels.ComposeService]; ok && v != "" {
		return v
	}
	return strings.TrimPrefix(c.Name, "/")
}

func serviceHealthOf(name string, c docker.Container) ServiceHealth {
	status, reason := classify(c)
	return ServiceHealth{
		Name:          name,
		Status:        status,
		ContainerID:   c.ID,
		ContainerName: c.Name,
		Reason:        reason,
		RestartCount:  c.FailingStreak,
	}
}

// classify maps one container's Docker-reported health/state onto the
// lattice and its human-readable reason, per spec.md §4.8 step 3.
func classify(c docker.Container) (Status, string) {
	if c.HealthStatus != "" && c.HealthStatus != "none" {
		switch c.HealthStatus {
		case "healthy":
			return StatusHealthy, ""
		case "unhealthy":
			return StatusUnhealthy, fmt.Sprintf("Health check failing (streak: %d)", c.FailingStreak)
		case "starting":
			return StatusDegraded, "Container starting, health check pending"
		default:
			return StatusUnknown, fmt.Sprintf("Unknown state: %s", c.HealthStatus)
		}
	}

	switch c.State {
	case "running":
		return StatusHealthy, ""
	case "restarting":
		return StatusDegraded, "Container is restarting"
	case "paused":
		return StatusDegraded, "Container is paused"
	case "exited":
		return StatusUnhealthy, fmt.Sprintf("Container exited (status: %s)", c.Status)
	case "dead":
		return StatusUnhealthy, "Container is dead"
	case "created":
		return StatusUnknown, "Container created but not started"
	default:
		return StatusUnknown, fmt.Sprintf("Unknown state: %s", c.State)
	}
}

// rollUp applies the worst-of ordering Unhealthy > Degraded > Unknown >
// Healthy; an empty service list rolls up to Empty.
func rollUp(services []ServiceHealth) Status {
	if len(services) == 0 {
		return StatusEmpty
	}
	present := make(map[Status]bool, 4)
	for _, s := range services {
		present[s.Status] = true
	}
	switch {
	case present[StatusUnhealthy]:
		return StatusUnhealthy
	case present[StatusDegraded]:
		return StatusDegraded
	case present[StatusUnknown]:
		return StatusUnknown
	default:
		return StatusHealthy
	}
}

// overallFromSelf narrows SelfHealth.Status (which may be Empty) down to
// the four-valued overall status spec.md §3 defines for HealthSnapshot.
func overallFromSelf(self Status) Status {
	if self == StatusEmpty {
		return StatusUnknown
	}
	return self
}

func (a *Aggregator) publish(dep *deployment.Deployment, snap Snapshot) {
	if a.bus != nil {
		a.bus.Publish(events.Event{
			Type:         events.EventHealthSnapshotRecorded,
			DeploymentID: snap.DeploymentID.String(),
			Message:      string(snap.Overall),
			Timestamp:    snap.CapturedAtUTC,
		})
		if prev, ok := a.lastOverall[snap.DeploymentID]; !ok || prev != snap.Overall {
			a.bus.Publish(events.Event{
				Type:         events.EventHealthStateChanged,
				DeploymentID: snap.DeploymentID.String(),
				Message:      fmt.Sprintf("%s -> %s", prev, snap.Overall),
				Timestamp:    snap.CapturedAtUTC,
			})
		}
	}
	a.lastOverall[snap.DeploymentID] = snap.Overall

	if a.notifier != nil {
		a.notifier.Notify(context.Background(), notify.Event{
			Type:          notify.EventDeploymentSummary,
			DeploymentID:  snap.DeploymentID.String(),
			EnvironmentID: snap.EnvironmentID.String(),
			StackName:     snap.StackName,
			OperationMode: string(snap.OperationMode),
			Overall:       string(snap.Overall),
			Timestamp:     snap.CapturedAtUTC,
		})
		a.notifier.Notify(context.Background(), detailEvent(snap))
	}
}

func detailEvent(snap Snapshot) notify.Event {
	msg := fmt.Sprintf("%d services", len(snap.Self.Services))
	for _, s := range snap.Self.Services {
		if s.Status != StatusHealthy {
			msg += fmt.Sprintf("; %s: %s (%s)", s.Name, s.Status, s.Reason)
		}
	}
	return notify.Event{
		Type:          notify.EventDeploymentDetail,
		DeploymentID:  snap.DeploymentID.String(),
		EnvironmentID: snap.EnvironmentID.String(),
		StackName:     snap.StackName,
		Overall:       string(snap.Overall),
		Message:       msg,
		Timestamp:     snap.CapturedAtUTC,
	}
}

// Summarize rolls up a batch of Snapshots captured in one environment pass
// into an EnvironmentSummary and emits the aggregate notification event.
func (a *Aggregator) Summarize(envID ids.EnvironmentID, snapshots []Snapshot) EnvironmentSummary {
	summary := EnvironmentSummary{EnvironmentID: envID, Total: len(snapshots)}
	for _, s := range snapshots {
		summary.Stacks = append(summary.Stacks, StackSummary{DeploymentID: s.DeploymentID, StackName: s.StackName, Overall: s.Overall})
		switch s.Overall {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
	}

	metrics.DeploymentsByHealthState.Reset()
	metrics.DeploymentsByHealthState.WithLabelValues(string(StatusHealthy)).Set(float64(summary.Healthy))
	metrics.DeploymentsByHealthState.WithLabelValues(string(StatusDegraded)).Set(float64(summary.Degraded))
	metrics.DeploymentsByHealthState.WithLabelValues(string(StatusUnhealthy)).Set(float64(summary.Unhealthy))
	metrics.DeploymentsByHealthState.WithLabelValues(string(StatusUnknown)).Set(float64(summary.Total - summary.Healthy - summary.Degraded - summary.Unhealthy))

	if a.notifier != nil {
		a.notifier.Notify(context.Background(), notify.Event{
			Type:            notify.EventEnvironmentSummary,
			EnvironmentID:   envID.String(),
			TotalStacks:     summary.Total,
			HealthyStacks:   summary.Healthy,
			DegradedStacks:  summary.Degraded,
			UnhealthyStacks: summary.Unhealthy,
			Timestamp:       a.clock.Now(),
		})
	}
	return summary
}
