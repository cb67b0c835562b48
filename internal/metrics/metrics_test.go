package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	// CounterVec metrics are not gathered until at least one label set is created.
	DeploymentsTotal.WithLabelValues("success")
	ObserverChecksTotal.WithLabelValues("http", "success")
	RegistryClassificationsTotal.WithLabelValues("Public")

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expected := map[string]bool{
		"rsgo_deployments_total":               false,
		"rsgo_deployment_duration_seconds":     false,
		"rsgo_deployments_in_flight":           false,
		"rsgo_rollbacks_total":                 false,
		"rsgo_init_container_timeouts_total":   false,
		"rsgo_health_scans_total":              false,
		"rsgo_health_scan_duration_seconds":    false,
		"rsgo_deployments_by_health_state":     false,
		"rsgo_observer_checks_total":           false,
		"rsgo_observer_check_duration_seconds": false,
		"rsgo_registry_classifications_total":  false,
	}

	for _, mf := range mfs {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	DeploymentsTotal.WithLabelValues("success").Inc()
	DeploymentsTotal.WithLabelValues("failed").Inc()
	RollbacksTotal.Inc()
	InitContainerTimeouts.Inc()
	HealthScansTotal.Inc()
	// No panic = success; actual values verified via Gather if needed.
}

func TestGaugeSets(t *testing.T) {
	DeploymentsInFlight.Set(1)
	DeploymentsByHealthState.WithLabelValues("Healthy").Set(3)
	// No panic = success.
}
