package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/ids"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type fakeLister struct {
	mu          sync.Mutex
	deployments []*deployment.Deployment
	err         error
}

func (f *fakeLister) ListRunning(ctx context.Context) ([]*deployment.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.deployments, nil
}

func newTestDeployment() *deployment.Deployment {
	dep := deployment.StartInstallation(ids.NewDeploymentID(), ids.NewEnvironmentID(), ids.NewOrganizationID(), ids.NewStackID(), "my-app", "proj", ids.NewUserID(), clock.Real{})
	_ = dep.MarkAsRunning()
	return dep
}

func TestSchedulerRunsInitialPass(t *testing.T) {
	lister := &fakeLister{deployments: []*deployment.Deployment{newTestDeployment()}}

	var mu sync.Mutex
	var visited []ids.DeploymentID
	pass := func(ctx context.Context, dep *deployment.Deployment) {
		mu.Lock()
		visited = append(visited, dep.ID())
		mu.Unlock()
	}

	s := New("health", lister, pass, func() time.Duration { return time.Hour }, func() string { return "" }, clock.Real{}, noopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(visited) != 1 {
		t.Fatalf("expected exactly one initial pass visit, got %d", len(visited))
	}
}

func TestSchedulerTriggerNowRunsAndResets(t *testing.T) {
	lister := &fakeLister{deployments: []*deployment.Deployment{newTestDeployment()}}

	var calls int
	var mu sync.Mutex
	pass := func(ctx context.Context, dep *deployment.Deployment) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	s := New("observer", lister, pass, func() time.Duration { return time.Hour }, func() string { return "" }, clock.Real{}, noopLogger{})

	s.TriggerNow(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one pass from TriggerNow, got %d", calls)
	}
}

func TestSchedulerSkipsDeploymentStillInFlight(t *testing.T) {
	dep := newTestDeployment()
	lister := &fakeLister{deployments: []*deployment.Deployment{dep}}

	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	pass := func(ctx context.Context, d *deployment.Deployment) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
	}

	s := New("health", lister, pass, func() time.Duration { return time.Hour }, func() string { return "" }, clock.Real{}, noopLogger{})

	go s.runPass(context.Background())
	time.Sleep(20 * time.Millisecond) // let the first pass claim the deployment

	s.runPass(context.Background()) // should see it in flight and skip

	close(release)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected the in-flight deployment to be skipped, got %d calls", calls)
	}
}

func TestSchedulerListFailureDoesNotPanic(t *testing.T) {
	lister := &fakeLister{err: context.DeadlineExceeded}
	s := New("health", lister, func(context.Context, *deployment.Deployment) {}, func() time.Duration { return time.Hour }, func() string { return "" }, clock.Real{}, noopLogger{})
	s.runPass(context.Background())
}
