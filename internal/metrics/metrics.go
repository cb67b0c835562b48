// Package metrics exposes Prometheus collectors for the deployment
// executor, health aggregator, and maintenance observer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsgo_deployments_total",
		Help: "Total number of deployments by outcome.",
	}, []string{"outcome"})
	DeploymentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rsgo_deployment_duration_seconds",
		Help:    "Duration of full deployment executions.",
		Buckets: prometheus.DefBuckets,
	})
	DeploymentsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rsgo_deployments_in_flight",
		Help: "Number of deployments currently executing.",
	})
	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsgo_rollbacks_total",
		Help: "Total number of deployment rollbacks triggered after the point of no return.",
	})
	InitContainerTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsgo_init_container_timeouts_total",
		Help: "Total number of init containers that failed to exit within the configured timeout.",
	})

	HealthScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsgo_health_scans_total",
		Help: "Total number of health aggregation scans performed.",
	})
	HealthScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rsgo_health_scan_duration_seconds",
		Help:    "Duration of a single health aggregation scan.",
		Buckets: prometheus.DefBuckets,
	})
	DeploymentsByHealthState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rsgo_deployments_by_health_state",
		Help: "Number of deployments currently in each rollup health state.",
	}, []string{"state"})

	ObserverChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsgo_observer_checks_total",
		Help: "Total number of maintenance observer checks by kind and result.",
	}, []string{"kind", "result"})
	ObserverCheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rsgo_observer_check_duration_seconds",
		Help:    "Duration of a single maintenance observer check.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	RegistryClassificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsgo_registry_classifications_total",
		Help: "Total number of pull-access classifications by result.",
	}, []string{"result"})
)
