// Command rsgoctl is the ReadyStackGo composition root: it wires config,
// logging, the Docker Engine Adapter, persistence, and the deployment,
// health, and maintenance-observer components into either a long-running
// server (background health/observer scheduling) or a one-shot operation
// (deploy, remove, check-registry) against the same wiring.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/config"
	"github.com/wiesenwischer/readystackgo/internal/docker"
	"github.com/wiesenwischer/readystackgo/internal/events"
	"github.com/wiesenwischer/readystackgo/internal/executor"
	"github.com/wiesenwischer/readystackgo/internal/health"
	"github.com/wiesenwischer/readystackgo/internal/logging"
	"github.com/wiesenwischer/readystackgo/internal/notify"
	"github.com/wiesenwischer/readystackgo/internal/observer"
	"github.com/wiesenwischer/readystackgo/internal/scheduler"
	"github.com/wiesenwischer/readystackgo/internal/store"
)

// version and commit are set at build time via ldflags:
//
//	-X main.version=$(VERSION) -X main.commit=$(COMMIT)
var version = "dev"
var commit = "unknown"

func versionString() string {
	if commit != "" && commit != "unknown" {
		return version + " (" + commit + ")"
	}
	return version
}

// app bundles every wired dependency a subcommand needs, assembled once in
// main and passed down rather than re-read from globals.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	client   *docker.Client
	db       *store.Store
	bus      *events.Bus
	notifier *notify.Multi
	clk      clock.Clock
	exec     *executor.Executor
	health   *health.Aggregator
	observer *observer.Loop
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogJSON)

	fmt.Println("ReadyStackGo " + versionString())
	fmt.Println("=============================================")

	a, err := assemble(cfg, log)
	if err != nil {
		log.Error("failed to assemble application", "error", err)
		os.Exit(1)
	}
	defer a.db.Close()
	defer a.client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cmd := "server"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var cmdErr error
	switch cmd {
	case "server":
		cmdErr = a.runServer(ctx)
	case "deploy":
		cmdErr = a.runDeploy(ctx, args)
	case "remove":
		cmdErr = a.runRemove(ctx, args)
	case "check-registry":
		cmdErr = a.runCheckRegistry(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want: server, deploy, remove, check-registry)\n", cmd)
		os.Exit(2)
	}

	if cmdErr != nil {
		log.Error("rsgoctl exited with error", "command", cmd, "error", cmdErr)
		os.Exit(1)
	}
}

func assemble(cfg *config.Config, log *logging.Logger) (*app, error) {
	dbPath := envOr("RSGO_DB_PATH", "rsgo.db")
	clk := clock.Real{}

	db, err := store.Open(dbPath, clk)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client, err := docker.NewClient(cfg.DockerSock, cfg.DockerTLS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	bus := events.New()

	var sinks []notify.Sink
	if url := os.Getenv("RSGO_WEBHOOK_URL"); url != "" {
		sinks = append(sinks, notify.NewWebhook(url, parseHeaders(os.Getenv("RSGO_WEBHOOK_HEADERS"))))
		log.Info("webhook notifications enabled", "url", url)
	}
	if broker := os.Getenv("RSGO_MQTT_BROKER"); broker != "" {
		topic := envOr("RSGO_MQTT_TOPIC", "readystackgo/events")
		clientID := envOr("RSGO_MQTT_CLIENT_ID", "rsgoctl")
		sinks = append(sinks, notify.NewMQTT(broker, topic, clientID, os.Getenv("RSGO_MQTT_USERNAME"), os.Getenv("RSGO_MQTT_PASSWORD"), 1))
		log.Info("mqtt notifications enabled", "broker", broker, "topic", topic)
	}
	notifier := notify.NewMulti(log, sinks...)

	exec := executor.New(client, clk, log)
	exec.SetInitPollConfig(cfg.InitPollInterval, cfg.InitTimeout)

	agg := health.New(client, clk, bus, notifier, log)
	obsLoop := observer.New(clk, bus, notifier, log, cfg.ObserverDefaultInterval)

	return &app{
		cfg: cfg, log: log, client: client, db: db, bus: bus,
		notifier: notifier, clk: clk, exec: exec, health: agg, observer: obsLoop,
	}, nil
}

// runServer starts the two background schedulers (health, maintenance
// observer) and an HTTP endpoint serving Prometheus metrics, blocking until
// ctx is cancelled.
func (a *app) runServer(ctx context.Context) error {
	if a.cfg.MetricsEnabled {
		addr := envOr("RSGO_METRICS_ADDR", ":9090")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("metrics server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5_000_000_000)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		a.log.Info("metrics endpoint listening", "addr", addr)
	}

	healthDriver := scheduler.New("health", a.db.Deployments(), a.healthPass, a.cfg.HealthPollInterval, a.cfg.HealthSchedule, a.clk, a.log)
	observerDriver := scheduler.New("observer", a.db.Deployments(), a.observerPass, a.cfg.ObserverDefaultInterval, a.cfg.ObserverSchedule, a.clk, a.log)

	errCh := make(chan error, 2)
	go func() { errCh <- healthDriver.Run(ctx) }()
	go func() { errCh <- observerDriver.Run(ctx) }()

	a.log.Info("rsgoctl server started", "version", version, "commit", commit)

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.log.Info("rsgoctl server shutdown complete")
	return firstErr
}
