// Package scheduler drives the two background passes the runtime control
// plane performs on its own clock: health scans and maintenance observer
// checks. Both are independent instances of the same Scheduler type,
// generalized from a single-purpose container-update ticker into a
// pluggable "visit every running deployment" loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// Logger is a minimal logging interface to avoid importing the logging
// package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Lister supplies the deployments a pass should visit. Implementations
// typically filter to Status == Running, since neither the health
// aggregator nor the observer loop has anything to do with a deployment
// that isn't.
type Lister interface {
	ListRunning(ctx context.Context) ([]*deployment.Deployment, error)
}

// PassFunc does whatever a single scheduler instance does for one
// deployment on one tick: a health scan, an observer check.
type PassFunc func(ctx context.Context, dep *deployment.Deployment)

// IntervalFunc returns the current poll interval; consulted on every
// loop iteration so a runtime reconfiguration takes effect without
// restarting the scheduler.
type IntervalFunc func() time.Duration

// ScheduleFunc returns the current cron expression, or "" to run on a
// plain interval instead.
type ScheduleFunc func() string

// Scheduler runs PassFunc against every deployment Lister returns, once
// per tick, serializing passes per deployment while letting distinct
// deployments run concurrently within the same tick.
type Scheduler struct {
	name     string
	lister   Lister
	pass     PassFunc
	interval IntervalFunc
	schedule ScheduleFunc
	clock    clock.Clock
	log      Logger
	resetCh  chan struct{}

	mu       sync.Mutex
	inFlight map[ids.DeploymentID]bool
}

// New creates a Scheduler. name identifies it in log lines ("health",
// "observer").
func New(name string, lister Lister, pass PassFunc, interval IntervalFunc, schedule ScheduleFunc, clk clock.Clock, log Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		lister:   lister,
		pass:     pass,
		interval: interval,
		schedule: schedule,
		clock:    clk,
		log:      log,
		resetCh:  make(chan struct{}, 1),
		inFlight: make(map[ids.DeploymentID]bool),
	}
}

// Run performs an initial pass immediately, then repeats it on the
// configured cron schedule if one is set, or the plain interval
// otherwise. It exits when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("starting initial pass", "scheduler", s.name)
	s.runPass(ctx)

	if expr := s.schedule(); expr != "" {
		return s.runCron(ctx, expr)
	}
	return s.runInterval(ctx)
}

func (s *Scheduler) runInterval(ctx context.Context) error {
	for {
		select {
		case <-s.clock.After(s.interval()):
			s.log.Info("starting scheduled pass", "scheduler", s.name)
			s.runPass(ctx)
		case <-s.resetCh:
			s.log.Info("poll interval changed, resetting timer", "scheduler", s.name, "interval", s.interval())
		case <-ctx.Done():
			s.log.Info("scheduler stopped", "scheduler", s.name)
			return nil
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context, expr string) error {
	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		s.log.Error("invalid cron schedule, falling back to plain interval", "scheduler", s.name, "schedule", expr, "error", err)
		return s.runInterval(ctx)
	}

	next := parsed.Next(s.clock.Now())
	for {
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-s.clock.After(wait):
			s.log.Info("starting scheduled pass", "scheduler", s.name)
			s.runPass(ctx)
			next = parsed.Next(s.clock.Now())
		case <-ctx.Done():
			s.log.Info("scheduler stopped", "scheduler", s.name)
			return nil
		}
	}
}

// TriggerNow runs an out-of-band pass immediately and resets the regular
// timer, the way an operator-triggered health re-check would.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.log.Info("starting manual pass", "scheduler", s.name)
	s.runPass(ctx)
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	deployments, err := s.lister.ListRunning(ctx)
	if err != nil {
		s.log.Error("pass: list deployments failed", "scheduler", s.name, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, dep := range deployments {
		if !s.claim(dep.ID()) {
			s.log.Warn("pass: skipping deployment still in flight", "scheduler", s.name, "deployment", dep.ID().String())
			continue
		}
		wg.Add(1)
		go func(dep *deployment.Deployment) {
			defer wg.Done()
			defer s.release(dep.ID())
			s.pass(ctx, dep)
		}(dep)
	}
	wg.Wait()
}

func (s *Scheduler) claim(id ids.DeploymentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Scheduler) release(id ids.DeploymentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
