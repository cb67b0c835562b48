package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"RSGO_DOCKER_SOCK", "RSGO_LOG_JSON", "RSGO_METRICS",
		"RSGO_INIT_POLL_INTERVAL", "RSGO_INIT_TIMEOUT",
		"RSGO_HEALTH_POLL_INTERVAL", "RSGO_OBSERVER_POLL_INTERVAL",
		"RSGO_HEALTH_HISTORY_RETENTION", "RSGO_HEALTH_SCHEDULE", "RSGO_OBSERVER_SCHEDULE",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()
	if cfg.DockerSock != "/var/run/docker.sock" {
		t.Errorf("DockerSock = %q, want /var/run/docker.sock", cfg.DockerSock)
	}
	if cfg.InitPollInterval != 500*time.Millisecond {
		t.Errorf("InitPollInterval = %s, want 500ms", cfg.InitPollInterval)
	}
	if cfg.InitTimeout != 300*time.Second {
		t.Errorf("InitTimeout = %s, want 300s", cfg.InitTimeout)
	}
	if cfg.HealthPollInterval() != 30*time.Second {
		t.Errorf("HealthPollInterval = %s, want 30s", cfg.HealthPollInterval())
	}
	if cfg.ObserverDefaultInterval() != 30*time.Second {
		t.Errorf("ObserverDefaultInterval = %s, want 30s", cfg.ObserverDefaultInterval())
	}
	if cfg.HealthHistoryRetention() != 200 {
		t.Errorf("HealthHistoryRetention = %d, want 200", cfg.HealthHistoryRetention())
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RSGO_INIT_POLL_INTERVAL", "1s")
	t.Setenv("RSGO_INIT_TIMEOUT", "10s")
	t.Setenv("RSGO_HEALTH_POLL_INTERVAL", "1m")
	t.Setenv("RSGO_HEALTH_HISTORY_RETENTION", "50")
	t.Setenv("RSGO_LOG_JSON", "false")

	cfg := Load()
	if cfg.InitPollInterval != time.Second {
		t.Errorf("InitPollInterval = %s, want 1s", cfg.InitPollInterval)
	}
	if cfg.InitTimeout != 10*time.Second {
		t.Errorf("InitTimeout = %s, want 10s", cfg.InitTimeout)
	}
	if cfg.HealthPollInterval() != time.Minute {
		t.Errorf("HealthPollInterval = %s, want 1m", cfg.HealthPollInterval())
	}
	if cfg.HealthHistoryRetention() != 50 {
		t.Errorf("HealthHistoryRetention = %d, want 50", cfg.HealthHistoryRetention())
	}
	if cfg.LogJSON {
		t.Error("LogJSON = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(_ *Config) {}, false},
		{"zero init poll interval", func(c *Config) { c.InitPollInterval = 0 }, true},
		{"zero init timeout", func(c *Config) { c.InitTimeout = 0 }, true},
		{"zero health poll interval", func(c *Config) { c.SetHealthPollInterval(0) }, true},
		{"zero observer interval", func(c *Config) { c.SetObserverDefaultInterval(0) }, true},
		{"zero retention", func(c *Config) { c.SetHealthHistoryRetention(0) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestMutableFieldsAreThreadSafe(t *testing.T) {
	cfg := NewTestConfig()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			cfg.SetHealthPollInterval(time.Duration(i+1) * time.Second)
			cfg.SetObserverDefaultInterval(time.Duration(i+1) * time.Second)
			cfg.SetHealthHistoryRetention(i + 1)
			cfg.SetHealthSchedule("*/5 * * * *")
			cfg.SetObserverSchedule("*/5 * * * *")
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = cfg.HealthPollInterval()
		_ = cfg.ObserverDefaultInterval()
		_ = cfg.HealthHistoryRetention()
		_ = cfg.HealthSchedule()
		_ = cfg.ObserverSchedule()
	}
	<-done
}

func TestValuesIncludesAllKeys(t *testing.T) {
	cfg := Load()
	vals := cfg.Values()
	for _, key := range []string{
		"RSGO_DOCKER_SOCK", "RSGO_LOG_JSON", "RSGO_METRICS",
		"RSGO_INIT_POLL_INTERVAL", "RSGO_INIT_TIMEOUT",
		"RSGO_HEALTH_POLL_INTERVAL", "RSGO_OBSERVER_POLL_INTERVAL",
		"RSGO_HEALTH_HISTORY_RETENTION", "RSGO_HEALTH_SCHEDULE", "RSGO_OBSERVER_SCHEDULE",
	} {
		if _, ok := vals[key]; !ok {
			t.Errorf("Values() missing key %q", key)
		}
	}
}

func TestEnvStr(t *testing.T) {
	const key = "RSGO_TEST_ENV_STR"
	t.Setenv(key, "custom")

	if got := envStr(key, "default"); got != "custom" {
		t.Errorf("got %q, want %q", got, "custom")
	}
	if got := envStr("RSGO_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("got %q, want %q", got, "fallback")
	}
}

func TestEnvInt(t *testing.T) {
	const key = "RSGO_TEST_ENV_INT"

	t.Setenv(key, "42")
	if got := envInt(key, 0); got != 42 {
		t.Errorf("got %d, want 42", got)
	}

	t.Setenv(key, "notanumber")
	if got := envInt(key, 99); got != 99 {
		t.Errorf("got %d, want 99 (default on parse failure)", got)
	}
}

func TestEnvBool(t *testing.T) {
	const key = "RSGO_TEST_ENV_BOOL"

	t.Setenv(key, "true")
	if got := envBool(key, false); !got {
		t.Errorf("got false, want true")
	}

	t.Setenv(key, "invalid")
	if got := envBool(key, true); !got {
		t.Errorf("got false, want true (default on parse failure)")
	}
}

func TestEnvDuration(t *testing.T) {
	const key = "RSGO_TEST_ENV_DUR"

	t.Setenv(key, "5m")
	if got := envDuration(key, time.Hour); got != 5*time.Minute {
		t.Errorf("got %s, want 5m", got)
	}

	t.Setenv(key, "notaduration")
	if got := envDuration(key, time.Hour); got != time.Hour {
		t.Errorf("got %s, want 1h (default on parse failure)", got)
	}
}
