package observer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/events"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/stacksource"
)

type fakeFetcher struct {
	value string
	err   error
	calls int
}

func (f *fakeFetcher) GetObservedValue(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.value, nil
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func TestCheckSuccessClassifiesMaintenance(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	result := Check(context.Background(), clk, "true", &fakeFetcher{value: "true"})
	if !result.IsSuccess || !result.IsMaintenanceRequired {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckSuccessClassifiesNormal(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	result := Check(context.Background(), clk, "true", &fakeFetcher{value: "false"})
	if !result.IsSuccess || result.IsMaintenanceRequired {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckFailureFoldsIntoResult(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	result := Check(context.Background(), clk, "true", &fakeFetcher{err: errors.New("boom")})
	if result.IsSuccess {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.ErrorMessage == "" {
		t.Fatal("expected an error message")
	}
}

func newRunningDeployment(cfg *stacksource.ObserverDefinition) *deployment.Deployment {
	dep := deployment.StartInstallation(ids.NewDeploymentID(), ids.NewEnvironmentID(), ids.NewOrganizationID(), ids.NewStackID(), "my-app", "proj", ids.NewUserID(), clock.Real{})
	dep.SetMaintenanceObserverConfig(cfg)
	_ = dep.MarkAsRunning()
	return dep
}

func TestTickSkipsWhenNotRunning(t *testing.T) {
	dep := deployment.StartInstallation(ids.NewDeploymentID(), ids.NewEnvironmentID(), ids.NewOrganizationID(), ids.NewStackID(), "my-app", "proj", ids.NewUserID(), clock.Real{})
	loop := New(clock.NewManual(time.Unix(0, 0)), events.New(), nil, noopLogger{}, func() time.Duration { return time.Minute })

	result, err := loop.Tick(context.Background(), dep)
	if err != nil || result != nil {
		t.Fatalf("expected no-op, got result=%v err=%v", result, err)
	}
}

func TestTickSkipsWhenNoObserverConfigured(t *testing.T) {
	dep := newRunningDeployment(nil)
	loop := New(clock.NewManual(time.Unix(0, 0)), events.New(), nil, noopLogger{}, func() time.Duration { return time.Minute })

	result, err := loop.Tick(context.Background(), dep)
	if err != nil || result != nil {
		t.Fatalf("expected no-op, got result=%v err=%v", result, err)
	}
}

func TestTickFileExistsDrivesMaintenanceMode(t *testing.T) {
	dir := t.TempDir()
	flagPath := dir + "/maintenance.flag"

	cfg := &stacksource.ObserverDefinition{
		Type:             "file",
		Mode:             "exists",
		Path:             flagPath,
		MaintenanceValue: "true",
		NormalValue:      "false",
		PollingInterval:  "1m",
	}
	dep := newRunningDeployment(cfg)
	bus := events.New()
	loop := New(clock.NewManual(time.Unix(0, 0)), bus, nil, noopLogger{}, func() time.Duration { return time.Minute })

	result, err := loop.Tick(context.Background(), dep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsSuccess || result.IsMaintenanceRequired {
		t.Fatalf("expected non-maintenance result before flag exists, got %+v", result)
	}
	if dep.OperationMode() != deployment.ModeNormal {
		t.Fatalf("mode = %v, want Normal", dep.OperationMode())
	}

	if err := os.WriteFile(flagPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write flag: %v", err)
	}

	// Force a fresh check past the debounce window.
	loop.Forget(dep.ID())
	result, err = loop.Tick(context.Background(), dep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsMaintenanceRequired {
		t.Fatalf("expected maintenance result once flag exists, got %+v", result)
	}
	if dep.OperationMode() != deployment.ModeMaintenance {
		t.Fatalf("mode = %v, want Maintenance", dep.OperationMode())
	}
}

func TestTickDebouncesWithinPollingInterval(t *testing.T) {
	dir := t.TempDir()
	cfg := &stacksource.ObserverDefinition{
		Type:             "file",
		Mode:             "exists",
		Path:             dir + "/missing",
		MaintenanceValue: "true",
		PollingInterval:  "1h",
	}
	dep := newRunningDeployment(cfg)
	loop := New(clock.NewManual(time.Unix(0, 0)), events.New(), nil, noopLogger{}, func() time.Duration { return time.Hour })

	first, err := loop.Tick(context.Background(), dep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := loop.Tick(context.Background(), dep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the debounced tick to return the identical cached result")
	}
}
