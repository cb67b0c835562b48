package main

import (
	"context"

	"github.com/wiesenwischer/readystackgo/internal/deployment"
)

// healthPass captures one health snapshot for dep, persists it, and prunes
// history beyond the configured retention. It matches scheduler.PassFunc.
func (a *app) healthPass(ctx context.Context, dep *deployment.Deployment) {
	snap := a.health.Capture(ctx, dep)

	if err := a.db.HealthSnapshots().Save(ctx, snap); err != nil {
		a.log.Error("failed to persist health snapshot", "deployment", dep.ID(), "error", err)
	}
	keep := a.cfg.HealthHistoryRetention()
	if keep > 0 {
		if err := a.db.HealthSnapshots().PruneOlderThan(ctx, dep.ID(), keep); err != nil {
			a.log.Error("failed to prune health snapshot history", "deployment", dep.ID(), "error", err)
		}
	}
}

// observerPass runs one maintenance-observer tick for dep. The loop itself
// applies any resulting OperationMode transition and fires notifications;
// this pass only needs to surface a tick-level failure.
func (a *app) observerPass(ctx context.Context, dep *deployment.Deployment) {
	if _, err := a.observer.Tick(ctx, dep); err != nil {
		a.log.Error("maintenance observer tick failed", "deployment", dep.ID(), "error", err)
	}
}
