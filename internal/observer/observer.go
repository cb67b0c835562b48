// Package observer implements the maintenance observer loop: it polls a
// stack-declared external signal (a SQL extended property, a SQL query
// result, an HTTP response, or a file) and drives a running deployment's
// operation mode between Normal and Maintenance as that signal changes.
package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/durationx"
	"github.com/wiesenwischer/readystackgo/internal/events"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/metrics"
	"github.com/wiesenwischer/readystackgo/internal/notify"
)

// Result is the outcome of a single observer check.
type Result struct {
	IsSuccess             bool
	ObservedValue         string
	IsMaintenanceRequired bool
	ErrorMessage          string
	CapturedAtUTC         time.Time
}

// ValueFetcher is the single primitive every checker kind implements:
// retrieve the current observed value from its backend.
type ValueFetcher interface {
	GetObservedValue(ctx context.Context) (string, error)
}

// Check runs fetch and classifies the result against maintenanceValue. It
// never returns an error: backend failures fold into Result.IsSuccess so a
// flaky probe never aborts the loop, it just leaves the operation mode
// where it was.
func Check(ctx context.Context, clk clock.Clock, maintenanceValue string, fetch ValueFetcher) Result {
	value, err := fetch.GetObservedValue(ctx)
	now := clk.Now()
	if err != nil {
		return Result{IsSuccess: false, ErrorMessage: err.Error(), CapturedAtUTC: now}
	}
	return Result{
		IsSuccess:             true,
		ObservedValue:         value,
		IsMaintenanceRequired: value == maintenanceValue,
		CapturedAtUTC:         now,
	}
}

// Logger is a minimal logging interface to avoid importing the logging
// package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type deploymentState struct {
	mu            sync.Mutex
	lastResult    *Result
	lastCheckedAt time.Time
}

// Loop drives maintenance observer checks across deployments, debouncing
// backend calls to each deployment's configured (or the fallback default)
// polling interval. A Loop is safe for concurrent use by multiple
// goroutines ticking different deployments.
type Loop struct {
	clock           clock.Clock
	bus             *events.Bus
	notifier        *notify.Multi
	log             Logger
	defaultInterval func() time.Duration

	mu     sync.Mutex
	states map[ids.DeploymentID]*deploymentState
}

// New creates a Loop. defaultInterval is consulted on every tick so a
// runtime reconfiguration of the fallback poll interval takes effect
// without restarting the loop.
func New(clk clock.Clock, bus *events.Bus, notifier *notify.Multi, log Logger, defaultInterval func() time.Duration) *Loop {
	return &Loop{
		clock:           clk,
		bus:             bus,
		notifier:        notifier,
		log:             log,
		defaultInterval: defaultInterval,
		states:          make(map[ids.DeploymentID]*deploymentState),
	}
}

// Tick runs one debounced observer pass for dep. It returns (nil, nil)
// when dep isn't Running or carries no maintenance observer
// configuration -- both are treated as "nothing to observe", not errors.
// Within the configured polling interval it returns the cached result
// from the last live check rather than hitting the backend again.
func (l *Loop) Tick(ctx context.Context, dep *deployment.Deployment) (*Result, error) {
	if dep.Status() != deployment.StatusRunning {
		return nil, nil
	}
	cfg := dep.MaintenanceObserverConfig()
	if cfg == nil {
		return nil, nil
	}

	state := l.stateFor(dep.ID())
	state.mu.Lock()
	defer state.mu.Unlock()

	interval := durationx.ParseOr(cfg.PollingInterval, l.defaultInterval())
	if !state.lastCheckedAt.IsZero() && l.clock.Since(state.lastCheckedAt) < interval {
		return state.lastResult, nil
	}

	fetch, err := newFetcher(cfg, dep.Variables())
	if err != nil {
		l.log.Warn("observer: cannot build checker", "deployment", dep.ID().String(), "error", err)
		return state.lastResult, nil
	}

	start := l.clock.Now()
	result := Check(ctx, l.clock, cfg.MaintenanceValue, fetch)
	metrics.ObserverCheckDuration.WithLabelValues(cfg.Type).Observe(l.clock.Since(start).Seconds())

	outcome := "success"
	if !result.IsSuccess {
		outcome = "failure"
	}
	metrics.ObserverChecksTotal.WithLabelValues(cfg.Type, outcome).Inc()

	state.lastResult = &result
	state.lastCheckedAt = l.clock.Now()

	l.publish(dep, result)
	if result.IsSuccess {
		l.applyMode(dep, result)
	}

	return &result, nil
}

func (l *Loop) stateFor(id ids.DeploymentID) *deploymentState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.states[id]
	if !ok {
		s = &deploymentState{}
		l.states[id] = s
	}
	return s
}

// Forget drops cached state for a deployment that has left the observer's
// scope (removed, or reassigned to a different scheduler instance).
func (l *Loop) Forget(id ids.DeploymentID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, id)
}

func (l *Loop) applyMode(dep *deployment.Deployment, result Result) {
	target := deployment.ModeNormal
	reason := fmt.Sprintf("Cleared by maintenance observer (observed: %s)", result.ObservedValue)
	if result.IsMaintenanceRequired {
		target = deployment.ModeMaintenance
		reason = fmt.Sprintf("Triggered by maintenance observer (observed: %s)", result.ObservedValue)
	}

	if dep.OperationMode() == target {
		return
	}
	if err := dep.ChangeOperationMode(target, reason); err != nil {
		l.log.Warn("observer: mode change rejected", "deployment", dep.ID().String(), "mode", string(target), "error", err)
		return
	}

	if l.bus != nil {
		l.bus.Publish(events.Event{
			Type:         events.EventMaintenanceStateChanged,
			DeploymentID: dep.ID().String(),
			Message:      reason,
			Timestamp:    l.clock.Now(),
		})
	}
}

func (l *Loop) publish(dep *deployment.Deployment, result Result) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(context.Background(), notify.Event{
		Type:            notify.EventObserverResult,
		DeploymentID:    dep.ID().String(),
		EnvironmentID:   dep.EnvironmentID().String(),
		StackName:       dep.StackName(),
		ObserverSuccess: result.IsSuccess,
		ObservedValue:   result.ObservedValue,
		Error:           result.ErrorMessage,
		Timestamp:       result.CapturedAtUTC,
	})
}
