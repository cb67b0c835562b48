package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/executor"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/planner"
	"github.com/wiesenwischer/readystackgo/internal/stacksource"
)

// runDeploy loads a stack manifest from disk, plans it, and drives it
// through the executor, creating a fresh deployment aggregate on success.
// The manifest format (a YAML-encoded stacksource.StackDefinition) is
// operator plumbing for this command, not the production manifest source
// spec.md places out of scope.
func (a *app) runDeploy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "path to a YAML stack manifest")
	envIDStr := fs.String("env", "", "environment id")
	orgIDStr := fs.String("org", "", "organization id")
	orgName := fs.String("org-name", "", "organization display name")
	userIDStr := fs.String("user", "", "id of the user initiating the deployment")
	projectName := fs.String("project", "", "project display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *manifestPath == "" {
		return fmt.Errorf("deploy: -manifest is required")
	}

	data, err := os.ReadFile(*manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var stack stacksource.StackDefinition
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	envID, err := ids.ParseEnvironmentID(*envIDStr)
	if err != nil {
		return fmt.Errorf("invalid -env: %w", err)
	}
	orgID, err := ids.ParseOrganizationID(*orgIDStr)
	if err != nil {
		return fmt.Errorf("invalid -org: %w", err)
	}
	userID, err := ids.ParseUserID(*userIDStr)
	if err != nil {
		return fmt.Errorf("invalid -user: %w", err)
	}

	plan, warnings := planner.Plan(planner.Input{
		Stack:            stack,
		StackName:        stack.Name,
		EnvironmentID:    envID,
		OrganizationID:   orgID,
		OrganizationName: *orgName,
	})
	for _, w := range warnings {
		a.log.Warn("plan warning", "message", string(w))
	}

	dep := deploymentFromPlan(envID, orgID, stack, *projectName, userID, a.clk)

	result, err := a.exec.Execute(ctx, envID, plan, dep, func(u executor.ProgressUpdate) {
		a.log.Info("deploy progress", "phase", u.Phase, "service", u.CurrentService, "message", u.Message)
	})
	if err != nil {
		if markErr := dep.MarkAsFailed(err.Error()); markErr != nil {
			a.log.Error("failed to mark deployment as failed", "error", markErr)
		}
		_ = a.db.Deployments().Save(ctx, dep)
		return fmt.Errorf("execute plan: %w", err)
	}

	if dep.Status() != deployment.StatusRunning {
		if err := dep.MarkAsRunning(); err != nil {
			return fmt.Errorf("mark deployment running: %w", err)
		}
	}
	if err := a.db.Deployments().Save(ctx, dep); err != nil {
		return fmt.Errorf("persist deployment: %w", err)
	}

	a.log.Info("deployment installed", "deployment", dep.ID(), "stack", dep.StackName(), "version", plan.StackVersion, "warnings", len(result.Warnings))
	return nil
}

// runRemove tears down every container belonging to a previously deployed
// stack and marks the aggregate removed.
func (a *app) runRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	depIDStr := fs.String("deployment", "", "deployment id to remove")
	if err := fs.Parse(args); err != nil {
		return err
	}
	depID, err := ids.ParseDeploymentID(*depIDStr)
	if err != nil {
		return fmt.Errorf("invalid -deployment: %w", err)
	}

	dep, err := a.db.Deployments().Get(ctx, depID)
	if err != nil {
		return fmt.Errorf("load deployment: %w", err)
	}

	_, err = a.exec.RemoveStack(ctx, dep.EnvironmentID(), dep.StackName(), dep.StackVersion(), dep.StackVersion(), func(u executor.ProgressUpdate) {
		a.log.Info("remove progress", "phase", u.Phase, "service", u.CurrentService, "message", u.Message)
	})
	if err != nil {
		return fmt.Errorf("remove stack: %w", err)
	}

	dep.MarkAllServicesAsRemoved()
	if err := dep.MarkAsRemoved(); err != nil {
		return fmt.Errorf("mark deployment removed: %w", err)
	}
	if err := a.db.Deployments().Save(ctx, dep); err != nil {
		return fmt.Errorf("persist deployment: %w", err)
	}

	a.observer.Forget(dep.ID())
	a.log.Info("deployment removed", "deployment", dep.ID())
	return nil
}

func deploymentFromPlan(envID ids.EnvironmentID, orgID ids.OrganizationID, stack stacksource.StackDefinition, projectName string, createdBy ids.UserID, clk clock.Clock) *deployment.Deployment {
	dep := deployment.StartInstallation(ids.NewDeploymentID(), envID, orgID, ids.NewStackID(), stack.Name, projectName, createdBy, clk)
	dep.SetStackVersion(stack.Version)
	dep.SetMaintenanceObserverConfig(stack.MaintenanceObserver)
	dep.SetHealthCheckConfigs(stack.HealthChecks)
	return dep
}
