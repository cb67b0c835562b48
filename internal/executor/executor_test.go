package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/docker"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/labels"
	"github.com/wiesenwischer/readystackgo/internal/planner"
)

type fakeDocker struct {
	mu sync.Mutex

	containers map[string]docker.Container // name -> container
	nextID     int

	removeErr       error
	pullErr         map[string]error // image -> error
	imageExists     map[string]bool
	ensureNetworkErr error
	createErr       error
	exitCode        map[string]int // containerID -> exit code
	exitOnCreate    map[string]int // container name -> exit code applied when created

	networksEnsured []string
	removed         []string
	created         []docker.CreateRequest
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		containers:  make(map[string]docker.Container),
		pullErr:     make(map[string]error),
		imageExists: make(map[string]bool),
		exitCode:    make(map[string]int),
		exitOnCreate: make(map[string]int),
	}
}

func (f *fakeDocker) ListContainers(ctx context.Context, envID ids.EnvironmentID) ([]docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]docker.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeDocker) GetContainerByName(ctx context.Context, envID ids.EnvironmentID, name string) (*docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeDocker) CreateAndStart(ctx context.Context, envID ids.EnvironmentID, req docker.CreateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.created = append(f.created, req)
	f.containers[req.Name] = docker.Container{ID: id, Name: req.Name, Image: req.Image, State: "running", Status: "running", Labels: req.Labels}
	if code, ok := f.exitOnCreate[req.Name]; ok {
		c := f.containers[req.Name]
		c.Status = fmt.Sprintf("exited (%d)", code)
		f.containers[req.Name] = c
		f.exitCode[id] = code
	}
	return id, nil
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, envID ids.EnvironmentID, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	for name, c := range f.containers {
		if c.ID == id {
			delete(f.containers, name)
			f.removed = append(f.removed, name)
		}
	}
	return nil
}

func (f *fakeDocker) PullImage(ctx context.Context, envID ids.EnvironmentID, name, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.pullErr[name]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) ImageExists(ctx context.Context, envID ids.EnvironmentID, name, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageExists[name], nil
}

func (f *fakeDocker) EnsureNetwork(ctx context.Context, envID ids.EnvironmentID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureNetworkErr != nil {
		return f.ensureNetworkErr
	}
	f.networksEnsured = append(f.networksEnsured, name)
	return nil
}

func (f *fakeDocker) GetExitCode(ctx context.Context, envID ids.EnvironmentID, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode[id], nil
}

func (f *fakeDocker) GetLogs(ctx context.Context, envID ids.EnvironmentID, id string, tail int) (string, error) {
	return "log output", nil
}

func (f *fakeDocker) Close() error { return nil }

// setExited marks the container by name as exited with the given code,
// simulating what a real init container would report after pollInitContainer
// wakes up. If the container has not been created yet, the exit is applied
// as soon as CreateAndStart creates it.
func (f *fakeDocker) setExited(name string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		f.exitOnCreate[name] = code
		return
	}
	c.Status = fmt.Sprintf("exited (%d)", code)
	f.containers[name] = c
	f.exitCode[c.ID] = code
}

type testLogger struct{}

func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func samplePlan() planner.DeploymentPlan {
	return planner.DeploymentPlan{
		StackVersion:  "1.0.0",
		StackName:     "demo",
		EnvironmentID: ids.NewEnvironmentID(),
		GlobalEnvVars: map[string]string{"RSGO_STACK_VERSION": "1.0.0"},
		Networks:      []planner.NetworkSpec{{Name: "demo_backend"}},
		Steps: []planner.Step{
			{ContextName: "migrate", Image: "demo/migrate", Version: "1.0.0", ContainerName: "demo_migrate", Lifecycle: labels.LifecycleInit, Order: 0},
			{ContextName: "app", Image: "demo/app", Version: "1.0.0", ContainerName: "demo_app", Lifecycle: labels.LifecycleService, Order: 1},
		},
	}
}

func newTestDeployment() *deployment.Deployment {
	return deployment.StartInstallation(
		ids.NewDeploymentID(), ids.NewEnvironmentID(), ids.NewOrganizationID(),
		ids.NewStackID(), "demo", "demo-project", ids.NewUserID(), clock.Real{},
	)
}

func TestExecuteHappyPathMarksRunning(t *testing.T) {
	fd := newFakeDocker()
	e := New(fd, clock.Real{}, testLogger{})
	dep := newTestDeployment()
	plan := samplePlan()

	var lastPercent int
	var percents []int
	go func() {
		// Complete init container asynchronously isn't needed: pollInitContainer
		// polls synchronously via fakeDocker once created; mark it exited
		// right after creation by checking in the progress callback.
	}()

	progress := func(u ProgressUpdate) {
		if u.Phase == PhaseInitializingContainers && u.Message == "starting demo_migrate" {
			fd.setExited("demo_migrate", 0)
		}
		percents = append(percents, u.GlobalPercent)
		lastPercent = u.GlobalPercent
	}

	result, err := e.Execute(context.Background(), plan.EnvironmentID, plan, dep, progress)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if dep.Status() != deployment.StatusRunning {
		t.Fatalf("Status = %v, want Running", dep.Status())
	}
	if result.ReleaseConfig.InstalledStackVersion != "1.0.0" {
		t.Errorf("InstalledStackVersion = %q, want 1.0.0", result.ReleaseConfig.InstalledStackVersion)
	}
	if lastPercent != 100 {
		t.Errorf("last progress = %d, want 100", lastPercent)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress decreased: %v", percents)
		}
	}
	if len(dep.Services()) != 1 {
		t.Fatalf("expected 1 tracked service, got %d", len(dep.Services()))
	}
}

func TestExecutePullFailureWithNoLocalImageFails(t *testing.T) {
	fd := newFakeDocker()
	fd.pullErr["demo/migrate"] = errors.New("registry unreachable")
	e := New(fd, clock.Real{}, testLogger{})
	dep := newTestDeployment()
	plan := samplePlan()

	_, err := e.Execute(context.Background(), plan.EnvironmentID, plan, dep, nil)
	if err == nil {
		t.Fatal("expected failure when pull fails and no local image exists")
	}
	if dep.Status() != deployment.StatusFailed {
		t.Fatalf("Status = %v, want Failed", dep.Status())
	}
}

func TestExecutePullFailureFallsBackToLocalImage(t *testing.T) {
	fd := newFakeDocker()
	fd.pullErr["demo/migrate"] = errors.New("registry unreachable")
	fd.imageExists["demo/migrate"] = true
	e := New(fd, clock.Real{}, testLogger{})
	dep := newTestDeployment()
	plan := samplePlan()

	progress := func(u ProgressUpdate) {
		if u.Phase == PhaseInitializingContainers && u.Message == "starting demo_migrate" {
			fd.setExited("demo_migrate", 0)
		}
	}

	result, err := e.Execute(context.Background(), plan.EnvironmentID, plan, dep, progress)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
}

func TestExecutePastPNRFailureMarksAllServicesRemoved(t *testing.T) {
	fd := newFakeDocker()
	envID := ids.NewEnvironmentID()
	fd.containers["demo_migrate"] = docker.Container{ID: "old1", Name: "demo_migrate"}
	// Force a failure in PullingImages, which occurs after RemovingOldContainers
	// has already removed the pre-existing container.
	fd.pullErr["demo/migrate"] = errors.New("boom")

	e := New(fd, clock.Real{}, testLogger{})
	dep := newTestDeployment()
	_ = dep.AddService("migrate")
	plan := samplePlan()
	plan.EnvironmentID = envID

	_, err := e.Execute(context.Background(), envID, plan, dep, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if dep.Status() != deployment.StatusFailed {
		t.Fatalf("Status = %v, want Failed", dep.Status())
	}
	if len(dep.Services()) != 0 {
		t.Errorf("expected all services cleared past PNR, got %v", dep.Services())
	}
}

func TestExecuteInitContainerNonZeroExitFails(t *testing.T) {
	fd := newFakeDocker()
	e := New(fd, clock.Real{}, testLogger{})
	dep := newTestDeployment()
	plan := samplePlan()

	progress := func(u ProgressUpdate) {
		if u.Phase == PhaseInitializingContainers && u.Message == "starting demo_migrate" {
			fd.setExited("demo_migrate", 1)
		}
	}

	_, err := e.Execute(context.Background(), plan.EnvironmentID, plan, dep, progress)
	if err == nil {
		t.Fatal("expected failure on non-zero init exit code")
	}
	if dep.Status() != deployment.StatusFailed {
		t.Fatalf("Status = %v, want Failed", dep.Status())
	}
}

func TestExecuteInitContainerTimeout(t *testing.T) {
	fd := newFakeDocker()
	mc := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := New(fd, mc, testLogger{})
	e.initPollTimeout = 1 * time.Second
	e.initPollInterval = 500 * time.Millisecond
	dep := newTestDeployment()
	plan := samplePlan()

	// Never mark the init container as exited; the manual clock advances on
	// every After() call so the poll loop reaches its deadline quickly.
	_, err := e.Execute(context.Background(), plan.EnvironmentID, plan, dep, nil)
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if dep.Status() != deployment.StatusFailed {
		t.Fatalf("Status = %v, want Failed", dep.Status())
	}
}

func TestExecuteCancellationBeforePNRIsClean(t *testing.T) {
	fd := newFakeDocker()
	e := New(fd, clock.Real{}, testLogger{})
	dep := newTestDeployment()
	plan := samplePlan()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, plan.EnvironmentID, plan, dep, nil)
	var cancelledErr *CancelledError
	if !errors.As(err, &cancelledErr) {
		t.Fatalf("expected CancelledError, got %v", err)
	}
	if dep.Status() == deployment.StatusFailed {
		t.Error("cancellation before PNR should not mark deployment Failed")
	}
}

func TestRemoveStackRemovesLabelledContainers(t *testing.T) {
	fd := newFakeDocker()
	envID := ids.NewEnvironmentID()
	fd.containers["demo_app"] = docker.Container{ID: "c1", Name: "demo_app", Labels: map[string]string{labels.Stack: "demo"}}
	fd.containers["other_app"] = docker.Container{ID: "c2", Name: "other_app", Labels: map[string]string{labels.Stack: "other"}}

	e := New(fd, clock.Real{}, testLogger{})
	cleared, err := e.RemoveStack(context.Background(), envID, "demo", "1.0.0", "1.0.0", nil)
	if err != nil {
		t.Fatalf("RemoveStack: %v", err)
	}
	if !cleared {
		t.Error("expected ReleaseConfig cleared when versions match")
	}
	if _, ok := fd.containers["demo_app"]; ok {
		t.Error("expected demo_app to be removed")
	}
	if _, ok := fd.containers["other_app"]; !ok {
		t.Error("other stack's container should not be touched")
	}
}

func TestRemoveStackVersionMismatchDoesNotClear(t *testing.T) {
	fd := newFakeDocker()
	envID := ids.NewEnvironmentID()
	e := New(fd, clock.Real{}, testLogger{})

	cleared, err := e.RemoveStack(context.Background(), envID, "demo", "1.0.0", "2.0.0", nil)
	if err != nil {
		t.Fatalf("RemoveStack: %v", err)
	}
	if cleared {
		t.Error("expected ReleaseConfig not cleared on version mismatch")
	}
}

func TestRemoveStackCollectsErrorsWithoutAborting(t *testing.T) {
	fd := newFakeDocker()
	envID := ids.NewEnvironmentID()
	fd.containers["demo_app"] = docker.Container{ID: "c1", Name: "demo_app", Labels: map[string]string{labels.Stack: "demo"}}
	fd.containers["demo_worker"] = docker.Container{ID: "c2", Name: "demo_worker", Labels: map[string]string{labels.Stack: "demo"}}
	fd.removeErr = errors.New("remove failed")

	e := New(fd, clock.Real{}, testLogger{})
	_, err := e.RemoveStack(context.Background(), envID, "demo", "1.0.0", "1.0.0", nil)
	if err == nil {
		t.Fatal("expected aggregated removal errors")
	}
}
