// Package executor drives a resolved DeploymentPlan against the Container
// Engine Adapter, reporting phase-weighted progress and enforcing the
// point-of-no-return contract: once any existing container has been torn
// down, a later failure must leave the owning Deployment in Failed with no
// services still claimed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/docker"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/labels"
	"github.com/wiesenwischer/readystackgo/internal/metrics"
	"github.com/wiesenwischer/readystackgo/internal/planner"
)

// Logger is the minimal structured-logging surface the executor needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Phase names a stage of Execute or RemoveStack, used both for progress
// reporting and for internal book-keeping of point-of-no-return state.
type Phase string

const (
	PhaseInitializing            Phase = "Initializing"
	PhaseNetwork                 Phase = "Network"
	PhaseRemovingOldContainers   Phase = "RemovingOldContainers"
	PhasePullingImages           Phase = "PullingImages"
	PhaseInitializingContainers  Phase = "InitializingContainers"
	PhaseStartingServices        Phase = "StartingServices"
	PhaseComplete                Phase = "Complete"
	PhaseRemovingContainers      Phase = "RemovingContainers"
	PhaseCleanup                 Phase = "Cleanup"
)

// ProgressUpdate is the single contract surfaced by ProgressFunc, carrying
// both the phase-local and pre-weighted global percentage.
type ProgressUpdate struct {
	Phase             Phase
	Message           string
	GlobalPercent     int
	CurrentService    string
	TotalServices     int
	CompletedServices int
	TotalInit         int
	CompletedInit     int
}

// ProgressFunc receives a stream of ProgressUpdate values during Execute or
// RemoveStack. May be nil, in which case progress is simply not reported.
type ProgressFunc func(ProgressUpdate)

// CancelledError is returned when ctx is cancelled mid-execution. Phase
// names where in the pipeline the cancellation was observed.
type CancelledError struct {
	Phase Phase
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("deployment cancelled during %s", e.Phase)
}

// ReleaseConfig is written on a successful Execute and describes the
// installed state of the stack.
type ReleaseConfig struct {
	InstalledStackVersion string
	InstalledContexts     map[string]string
	InstallDate           time.Time
}

// DeploymentResult is the outcome of a successful Execute call.
type DeploymentResult struct {
	ReleaseConfig ReleaseConfig
	Warnings      []string
}

// Executor drives deployment plans against a Container Engine Adapter.
type Executor struct {
	docker docker.API
	clock  clock.Clock
	log    Logger

	initPollInterval time.Duration
	initPollTimeout  time.Duration
}

// New creates an Executor with the spec's default 500ms/300s init-container
// poll cadence. The cadence is an assembly-time constant, not per-call; use
// SetInitPollConfig immediately after New to override it from config.
func New(api docker.API, clk clock.Clock, log Logger) *Executor {
	return &Executor{
		docker:           api,
		clock:            clk,
		log:              log,
		initPollInterval: 500 * time.Millisecond,
		initPollTimeout:  300 * time.Second,
	}
}

// SetInitPollConfig overrides the init-container poll interval and timeout.
// Intended to be called once at assembly time from the caller's config.
func (e *Executor) SetInitPollConfig(interval, timeout time.Duration) {
	e.initPollInterval = interval
	e.initPollTimeout = timeout
}

var executePhaseSpans = map[Phase][2]int{
	PhaseInitializing:           {0, 2},
	PhaseNetwork:                {2, 5},
	PhaseRemovingOldContainers:  {5, 10},
	PhasePullingImages:          {10, 70},
	PhaseInitializingContainers: {70, 80},
	PhaseStartingServices:       {80, 100},
	PhaseComplete:               {100, 100},
}

var removeStackPhaseSpans = map[Phase][2]int{
	PhaseInitializing:       {0, 10},
	PhaseRemovingContainers: {10, 90},
	PhaseCleanup:            {95, 95},
	PhaseComplete:           {100, 100},
}

func percentInSpan(spans map[Phase][2]int, phase Phase, completed, total int) int {
	span := spans[phase]
	if total <= 0 {
		return span[1]
	}
	if completed > total {
		completed = total
	}
	return span[0] + (span[1]-span[0])*completed/total
}

func (e *Executor) report(progress ProgressFunc, u ProgressUpdate) {
	if progress == nil {
		return
	}
	progress(u)
}

// Execute drives plan to completion against envID, mutating dep through its
// own methods at every state-relevant step. On any failure at or past the
// point of no return, dep is left Failed with no claimed services.
func (e *Executor) Execute(ctx context.Context, envID ids.EnvironmentID, plan planner.DeploymentPlan, dep *deployment.Deployment, progress ProgressFunc) (DeploymentResult, error) {
	start := e.clock.Now()
	metrics.DeploymentsInFlight.Inc()
	defer metrics.DeploymentsInFlight.Dec()

	totalServices := 0
	totalInit := 0
	for _, s := range plan.Steps {
		if s.Lifecycle == labels.LifecycleInit {
			totalInit++
		} else {
			totalServices++
		}
	}

	pnrCrossed := false
	fail := func(phase Phase, reason string) error {
		if pnrCrossed {
			dep.MarkAllServicesAsRemoved()
			_ = dep.MarkAsFailed(reason)
			metrics.RollbacksTotal.Inc()
		} else {
			_ = dep.MarkAsFailed(reason)
		}
		metrics.DeploymentsTotal.WithLabelValues("failed").Inc()
		e.log.Error("deployment failed", "stack", plan.StackName, "phase", string(phase), "reason", reason)
		return fmt.Errorf("%s: %s", phase, reason)
	}

	cancelled := func(phase Phase) error {
		if pnrCrossed {
			dep.MarkAllServicesAsRemoved()
			_ = dep.MarkAsFailed("cancelled")
		}
		metrics.DeploymentsTotal.WithLabelValues("cancelled").Inc()
		return &CancelledError{Phase: phase}
	}

	// Phase 1: Initializing.
	e.report(progress, ProgressUpdate{Phase: PhaseInitializing, Message: "resolving environment", GlobalPercent: percentInSpan(executePhaseSpans, PhaseInitializing, 1, 1), TotalServices: totalServices, TotalInit: totalInit})
	if envID.IsZero() {
		return DeploymentResult{}, fail(PhaseInitializing, "no environment resolved")
	}
	if ctx.Err() != nil {
		return DeploymentResult{}, cancelled(PhaseInitializing)
	}

	// Phase 2: Network.
	nets := plan.Networks
	if len(nets) == 0 {
		nets = []planner.NetworkSpec{{Name: plan.StackName + "_default"}}
	}
	for i, n := range nets {
		if ctx.Err() != nil {
			return DeploymentResult{}, cancelled(PhaseNetwork)
		}
		e.report(progress, ProgressUpdate{Phase: PhaseNetwork, Message: "ensuring network " + n.Name, GlobalPercent: percentInSpan(executePhaseSpans, PhaseNetwork, i, len(nets))})
		if n.External {
			continue
		}
		if err := e.docker.EnsureNetwork(ctx, envID, n.Name); err != nil {
			return DeploymentResult{}, fail(PhaseNetwork, fmt.Sprintf("ensure network %q: %v", n.Name, err))
		}
	}

	// Phase 3: RemovingOldContainers — Point of No Return.
	var warnings []string
	for i, step := range plan.Steps {
		if ctx.Err() != nil {
			return DeploymentResult{}, cancelled(PhaseRemovingOldContainers)
		}
		e.report(progress, ProgressUpdate{Phase: PhaseRemovingOldContainers, Message: "checking " + step.ContainerName, GlobalPercent: percentInSpan(executePhaseSpans, PhaseRemovingOldContainers, i, len(plan.Steps)), CurrentService: step.ContextName})

		existing, err := e.docker.GetContainerByName(ctx, envID, step.ContainerName)
		if err != nil {
			return DeploymentResult{}, fail(PhaseRemovingOldContainers, fmt.Sprintf("look up %q: %v", step.ContainerName, err))
		}
		if existing == nil {
			continue
		}
		if err := e.docker.RemoveContainer(ctx, envID, existing.ID, true); err != nil {
			return DeploymentResult{}, fail(PhaseRemovingOldContainers, fmt.Sprintf("remove %q: %v", step.ContainerName, err))
		}
		pnrCrossed = true
	}

	// Phase 4: PullingImages.
	for i, step := range plan.Steps {
		if ctx.Err() != nil {
			return DeploymentResult{}, cancelled(PhasePullingImages)
		}
		fullName := step.Image
		if step.Version != "" {
			fullName = step.Image + ":" + step.Version
		}
		e.report(progress, ProgressUpdate{Phase: PhasePullingImages, Message: "pulling " + fullName, GlobalPercent: percentInSpan(executePhaseSpans, PhasePullingImages, i, len(plan.Steps)), CurrentService: step.ContextName})

		if err := e.docker.PullImage(ctx, envID, step.Image, step.Version); err != nil {
			exists, existsErr := e.docker.ImageExists(ctx, envID, step.Image, step.Version)
			if existsErr != nil || !exists {
				return DeploymentResult{}, fail(PhasePullingImages, fmt.Sprintf("service %q: image %q could not be pulled and is not present locally: %v", step.ContextName, fullName, err))
			}
			warning := fmt.Sprintf("image '%s' could not be pulled - using existing local image", fullName)
			warnings = append(warnings, warning)
			e.log.Warn("pull fallback to local image", "stack", plan.StackName, "service", step.ContextName, "image", fullName)
		}
	}

	// Phase 5: InitializingContainers.
	completedInit := 0
	for _, step := range plan.Steps {
		if step.Lifecycle != labels.LifecycleInit {
			continue
		}
		if ctx.Err() != nil {
			return DeploymentResult{}, cancelled(PhaseInitializingContainers)
		}
		e.report(progress, ProgressUpdate{Phase: PhaseInitializingContainers, Message: "starting " + step.ContainerName, GlobalPercent: percentInSpan(executePhaseSpans, PhaseInitializingContainers, completedInit, totalInit), CurrentService: step.ContextName, TotalInit: totalInit, CompletedInit: completedInit})

		id, err := e.docker.CreateAndStart(ctx, envID, createRequest(plan, step, nil))
		if err != nil {
			return DeploymentResult{}, fail(PhaseInitializingContainers, fmt.Sprintf("service %q: create init container: %v", step.ContextName, err))
		}

		if err := e.pollInitContainer(ctx, envID, id, step); err != nil {
			if ctx.Err() != nil {
				return DeploymentResult{}, cancelled(PhaseInitializingContainers)
			}
			return DeploymentResult{}, fail(PhaseInitializingContainers, err.Error())
		}
		completedInit++
		e.report(progress, ProgressUpdate{Phase: PhaseInitializingContainers, Message: step.ContainerName + " completed", GlobalPercent: percentInSpan(executePhaseSpans, PhaseInitializingContainers, completedInit, totalInit), CurrentService: step.ContextName, TotalInit: totalInit, CompletedInit: completedInit})
	}

	// For an upgrade or rollback, drop tracked services whose context no
	// longer appears in the new plan before claiming the new set.
	if status := dep.Status(); status == deployment.StatusUpgrading || status == deployment.StatusRollingBack {
		keep := make(map[string]bool, len(plan.Steps))
		for _, step := range plan.Steps {
			keep[step.ContextName] = true
		}
		for _, svc := range dep.Services() {
			if !keep[svc.ServiceName] {
				dep.RemoveService(svc.ServiceName)
			}
		}
	}

	// Phase 6: StartingServices.
	completedServices := 0
	for _, step := range plan.Steps {
		if step.Lifecycle == labels.LifecycleInit {
			continue
		}
		if ctx.Err() != nil {
			return DeploymentResult{}, cancelled(PhaseStartingServices)
		}
		e.report(progress, ProgressUpdate{Phase: PhaseStartingServices, Message: "starting " + step.ContainerName, GlobalPercent: percentInSpan(executePhaseSpans, PhaseStartingServices, completedServices, totalServices), CurrentService: step.ContextName, TotalServices: totalServices, CompletedServices: completedServices})

		aliases := []string{step.ContextName}
		id, err := e.docker.CreateAndStart(ctx, envID, createRequest(plan, step, aliases))
		if err != nil {
			return DeploymentResult{}, fail(PhaseStartingServices, fmt.Sprintf("service %q: create service container: %v", step.ContextName, err))
		}
		if err := dep.AddService(step.ContextName); err != nil {
			// Already tracked from a prior upgrade pass; fall through to
			// refreshing its container info.
			e.log.Warn("service already tracked", "service", step.ContextName, "error", err)
		}
		fullImage := step.Image
		if step.Version != "" {
			fullImage = step.Image + ":" + step.Version
		}
		if err := dep.SetServiceContainerInfo(step.ContextName, id, step.ContainerName, fullImage, "running"); err != nil {
			return DeploymentResult{}, fail(PhaseStartingServices, fmt.Sprintf("service %q: record container info: %v", step.ContextName, err))
		}

		completedServices++
		e.report(progress, ProgressUpdate{Phase: PhaseStartingServices, Message: step.ContainerName + " running", GlobalPercent: percentInSpan(executePhaseSpans, PhaseStartingServices, completedServices, totalServices), CurrentService: step.ContextName, TotalServices: totalServices, CompletedServices: completedServices})
	}

	// Phase 7: Complete.
	installedContexts := make(map[string]string, len(plan.Steps))
	for _, step := range plan.Steps {
		installedContexts[step.ContextName] = step.Version
	}
	release := ReleaseConfig{
		InstalledStackVersion: plan.StackVersion,
		InstalledContexts:     installedContexts,
		InstallDate:           e.clock.Now(),
	}
	if status := dep.Status(); status == deployment.StatusUpgrading || status == deployment.StatusRollingBack {
		if oldVersion := dep.StackVersion(); oldVersion != plan.StackVersion {
			dep.RecordUpgrade(oldVersion, plan.StackVersion)
		}
	}
	dep.SetStackVersion(plan.StackVersion)
	if err := dep.MarkAsRunning(); err != nil {
		return DeploymentResult{}, fail(PhaseComplete, fmt.Sprintf("finalise: %v", err))
	}

	e.report(progress, ProgressUpdate{Phase: PhaseComplete, Message: "deployment complete", GlobalPercent: 100, TotalServices: totalServices, CompletedServices: completedServices, TotalInit: totalInit, CompletedInit: completedInit})

	metrics.DeploymentsTotal.WithLabelValues("success").Inc()
	metrics.DeploymentDuration.Observe(e.clock.Since(start).Seconds())

	return DeploymentResult{ReleaseConfig: release, Warnings: warnings}, nil
}

// pollInitContainer waits for an init container to exit, verifying a zero
// exit code, and fails with diagnostic log output otherwise. Mirrors the
// select/clock.After poll-to-deadline shape used elsewhere for long-running
// container state transitions.
func (e *Executor) pollInitContainer(ctx context.Context, envID ids.EnvironmentID, containerID string, step planner.Step) error {
	deadline := e.clock.Now().Add(e.initPollTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clock.After(e.initPollInterval):
			cur, err := e.docker.GetContainerByName(ctx, envID, step.ContainerName)
			if err != nil {
				return fmt.Errorf("service %q: poll init container: %w", step.ContextName, err)
			}
			if cur == nil {
				return fmt.Errorf("service %q: init container disappeared during execution", step.ContextName)
			}
			if strings.HasPrefix(strings.ToLower(cur.Status), "exited") {
				code, err := e.docker.GetExitCode(ctx, envID, cur.ID)
				if err != nil {
					return fmt.Errorf("service %q: read init container exit code: %w", step.ContextName, err)
				}
				if code == 0 {
					return nil
				}
				logs, _ := e.docker.GetLogs(ctx, envID, cur.ID, 50)
				return fmt.Errorf("service %q: init container exited with code %d\n%s", step.ContextName, code, logs)
			}
			if e.clock.Now().After(deadline) {
				logs, _ := e.docker.GetLogs(ctx, envID, containerID, 50)
				metrics.InitContainerTimeouts.Inc()
				return fmt.Errorf("service %q: init container timed out after %s\n%s", step.ContextName, e.initPollTimeout, logs)
			}
		}
	}
}

func createRequest(plan planner.DeploymentPlan, step planner.Step, aliases []string) docker.CreateRequest {
	env := make(map[string]string, len(plan.GlobalEnvVars)+len(step.EnvVars))
	for k, v := range plan.GlobalEnvVars {
		env[k] = v
	}
	for k, v := range step.EnvVars {
		env[k] = v
	}

	lifecycle := labels.LifecycleService
	restart := "unless-stopped"
	if step.Lifecycle == labels.LifecycleInit {
		lifecycle = labels.LifecycleInit
		restart = "on-failure"
	}

	req := docker.CreateRequest{
		Name:           step.ContainerName,
		Image:          step.Image,
		EnvVars:        env,
		Volumes:        step.Volumes,
		Networks:       step.Networks,
		NetworkAliases: aliases,
		RestartPolicy:  restart,
		Labels: map[string]string{
			labels.Stack:       plan.StackName,
			labels.Context:     step.ContextName,
			labels.Environment: plan.EnvironmentID.String(),
			labels.Lifecycle:   lifecycle,
		},
	}
	if step.Version != "" {
		req.Image = step.Image + ":" + step.Version
	}
	for _, p := range step.Ports {
		if pm, ok := parsePortMapping(p); ok {
			req.Ports = append(req.Ports, pm)
		}
	}
	return req
}

func parsePortMapping(flat string) (docker.PortMapping, bool) {
	proto := "tcp"
	if i := strings.LastIndex(flat, "/"); i >= 0 {
		proto = flat[i+1:]
		flat = flat[:i]
	}
	parts := strings.SplitN(flat, ":", 2)
	if len(parts) != 2 {
		return docker.PortMapping{}, false
	}
	return docker.PortMapping{HostPort: parts[0], ContainerPort: parts[1], Protocol: proto}, true
}

// ErrVersionMismatch describes an installed-version mismatch. RemoveStack
// does not return it: it reports a mismatch by returning
// releaseConfigCleared=false with a nil error.
var ErrVersionMismatch = errors.New("installed version does not match requested version")

// RemoveStack force-removes every container labelled with stackName,
// collecting per-container errors without aborting. releaseConfigCleared
// reports whether installedVersion matched currentInstalledVersion, the
// only condition under which a caller should clear its ReleaseConfig.
func (e *Executor) RemoveStack(ctx context.Context, envID ids.EnvironmentID, stackName, installedVersion, currentInstalledVersion string, progress ProgressFunc) (releaseConfigCleared bool, err error) {
	e.report(progress, ProgressUpdate{Phase: PhaseInitializing, Message: "listing containers", GlobalPercent: percentInSpan(removeStackPhaseSpans, PhaseInitializing, 1, 1)})

	all, err := e.docker.ListContainers(ctx, envID)
	if err != nil {
		return false, fmt.Errorf("list containers: %w", err)
	}

	var targets []docker.Container
	for _, c := range all {
		if c.Labels[labels.Stack] == stackName {
			targets = append(targets, c)
		}
	}

	var errs []error
	for i, c := range targets {
		if ctx.Err() != nil {
			return false, &CancelledError{Phase: PhaseRemovingContainers}
		}
		e.report(progress, ProgressUpdate{Phase: PhaseRemovingContainers, Message: "removing " + c.Name, GlobalPercent: percentInSpan(removeStackPhaseSpans, PhaseRemovingContainers, i, len(targets))})
		if err := e.docker.RemoveContainer(ctx, envID, c.ID, true); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", c.Name, err))
		}
	}

	e.report(progress, ProgressUpdate{Phase: PhaseCleanup, Message: "cleanup", GlobalPercent: removeStackPhaseSpans[PhaseCleanup][1]})

	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	e.report(progress, ProgressUpdate{Phase: PhaseComplete, Message: "stack removed", GlobalPercent: 100})

	return installedVersion == currentInstalledVersion, nil
}
