// Package config holds all ReadyStackGo configuration read from environment
// variables. Mutable fields are protected by an RWMutex and must be accessed
// via getter/setter methods at runtime, since the background schedulers read
// them while the (external) REST layer may write them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/docker"
)

// Config holds all ReadyStackGo configuration.
type Config struct {
	// Container engine connection.
	DockerSock string
	DockerTLS  *docker.TLSConfig // nil disables mTLS; only used for tcp:// sockets.

	// Logging.
	LogJSON bool

	MetricsEnabled bool

	// Assembly-time constants for the deployment executor (spec.md §5):
	// configurable at process start only, never mutated afterward.
	InitPollInterval time.Duration
	InitTimeout      time.Duration

	// mu protects the mutable runtime fields below.
	mu                      sync.RWMutex
	healthPollInterval      time.Duration
	observerDefaultInterval time.Duration
	healthHistoryRetention  int
	healthSchedule          string // optional cron expression, empty = plain ticker
	observerSchedule        string // optional cron expression, empty = plain ticker
}

// NewTestConfig creates a Config with sensible defaults for testing.
// Use the setter methods to override specific values.
func NewTestConfig() *Config {
	return &Config{
		InitPollInterval:        500 * time.Millisecond,
		InitTimeout:             300 * time.Second,
		healthPollInterval:      30 * time.Second,
		observerDefaultInterval: 30 * time.Second,
		healthHistoryRetention:  200,
	}
}

// Load reads all configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		DockerSock:              envStr("RSGO_DOCKER_SOCK", "/var/run/docker.sock"),
		LogJSON:                 envBool("RSGO_LOG_JSON", true),
		MetricsEnabled:          envBool("RSGO_METRICS", false),
		InitPollInterval:        envDuration("RSGO_INIT_POLL_INTERVAL", 500*time.Millisecond),
		InitTimeout:             envDuration("RSGO_INIT_TIMEOUT", 300*time.Second),
		healthPollInterval:      envDuration("RSGO_HEALTH_POLL_INTERVAL", 30*time.Second),
		observerDefaultInterval: envDuration("RSGO_OBSERVER_POLL_INTERVAL", 30*time.Second),
		healthHistoryRetention:  envInt("RSGO_HEALTH_HISTORY_RETENTION", 200),
		healthSchedule:          envStr("RSGO_HEALTH_SCHEDULE", ""),
		observerSchedule:        envStr("RSGO_OBSERVER_SCHEDULE", ""),
	}
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	c.mu.RLock()
	hp := c.healthPollInterval
	op := c.observerDefaultInterval
	retention := c.healthHistoryRetention
	c.mu.RUnlock()

	var errs []error
	if c.InitPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("RSGO_INIT_POLL_INTERVAL must be > 0, got %s", c.InitPollInterval))
	}
	if c.InitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RSGO_INIT_TIMEOUT must be > 0, got %s", c.InitTimeout))
	}
	if hp <= 0 {
		errs = append(errs, fmt.Errorf("RSGO_HEALTH_POLL_INTERVAL must be > 0, got %s", hp))
	}
	if op <= 0 {
		errs = append(errs, fmt.Errorf("RSGO_OBSERVER_POLL_INTERVAL must be > 0, got %s", op))
	}
	if retention <= 0 {
		errs = append(errs, fmt.Errorf("RSGO_HEALTH_HISTORY_RETENTION must be > 0, got %d", retention))
	}
	return errors.Join(errs...)
}

// Values returns all configuration as a string map for display.
func (c *Config) Values() map[string]string {
	c.mu.RLock()
	hp := c.healthPollInterval
	op := c.observerDefaultInterval
	retention := c.healthHistoryRetention
	hs := c.healthSchedule
	os_ := c.observerSchedule
	c.mu.RUnlock()

	return map[string]string{
		"RSGO_DOCKER_SOCK":              c.DockerSock,
		"RSGO_LOG_JSON":                 fmt.Sprintf("%t", c.LogJSON),
		"RSGO_METRICS":                  fmt.Sprintf("%t", c.MetricsEnabled),
		"RSGO_INIT_POLL_INTERVAL":       c.InitPollInterval.String(),
		"RSGO_INIT_TIMEOUT":             c.InitTimeout.String(),
		"RSGO_HEALTH_POLL_INTERVAL":     hp.String(),
		"RSGO_OBSERVER_POLL_INTERVAL":   op.String(),
		"RSGO_HEALTH_HISTORY_RETENTION": fmt.Sprintf("%d", retention),
		"RSGO_HEALTH_SCHEDULE":          hs,
		"RSGO_OBSERVER_SCHEDULE":        os_,
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// HealthPollInterval returns the current health-scan interval (thread-safe).
func (c *Config) HealthPollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthPollInterval
}

// SetHealthPollInterval updates the health-scan interval at runtime (thread-safe).
func (c *Config) SetHealthPollInterval(d time.Duration) {
	c.mu.Lock()
	c.healthPollInterval = d
	c.mu.Unlock()
}

// ObserverDefaultInterval returns the fallback observer poll interval used
// when a deployment's own MaintenanceObserverConfig.PollingInterval fails
// to parse (thread-safe).
func (c *Config) ObserverDefaultInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observerDefaultInterval
}

// SetObserverDefaultInterval updates the fallback observer interval at
// runtime (thread-safe).
func (c *Config) SetObserverDefaultInterval(d time.Duration) {
	c.mu.Lock()
	c.observerDefaultInterval = d
	c.mu.Unlock()
}

// HealthHistoryRetention returns how many HealthSnapshots are retained per
// deployment (thread-safe).
func (c *Config) HealthHistoryRetention() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthHistoryRetention
}

// SetHealthHistoryRetention updates the retention policy knob at runtime
// (thread-safe).
func (c *Config) SetHealthHistoryRetention(n int) {
	c.mu.Lock()
	c.healthHistoryRetention = n
	c.mu.Unlock()
}

// HealthSchedule returns the optional cron expression driving the health
// scheduler; empty means "use the plain interval ticker" (thread-safe).
func (c *Config) HealthSchedule() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthSchedule
}

// SetHealthSchedule updates the health scheduler's cron expression at
// runtime (thread-safe).
func (c *Config) SetHealthSchedule(s string) {
	c.mu.Lock()
	c.healthSchedule = s
	c.mu.Unlock()
}

// ObserverSchedule returns the optional cron expression driving the
// maintenance observer scheduler (thread-safe).
func (c *Config) ObserverSchedule() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observerSchedule
}

// SetObserverSchedule updates the observer scheduler's cron expression at
// runtime (thread-safe).
func (c *Config) SetObserverSchedule(s string) {
	c.mu.Lock()
	c.observerSchedule = s
	c.mu.Unlock()
}
