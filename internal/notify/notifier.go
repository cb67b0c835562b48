// Package notify provides the Notification Sink contract consumed by the
// health aggregator and observer loop, plus three bundled concrete sinks
// (webhook, MQTT, log).
package notify

import (
	"context"
	"sync"
	"time"
)

// EventType identifies which of the four notification kinds an Event
// carries.
type EventType string

const (
	EventDeploymentSummary  EventType = "deployment_summary"
	EventDeploymentDetail   EventType = "deployment_detail"
	EventEnvironmentSummary EventType = "environment_summary"
	EventObserverResult     EventType = "observer_result"
)

// AllEventTypes returns every event kind a Sink may be filtered on.
func AllEventTypes() []EventType {
	return []EventType{
		EventDeploymentSummary,
		EventDeploymentDetail,
		EventEnvironmentSummary,
		EventObserverResult,
	}
}

// Event is the payload delivered to a Sink. Exactly the fields relevant
// to Type are populated; the rest are zero.
type Event struct {
	Type            EventType `json:"type"`
	DeploymentID    string    `json:"deployment_id,omitempty"`
	EnvironmentID   string    `json:"environment_id,omitempty"`
	StackName       string    `json:"stack_name,omitempty"`
	Status          string    `json:"status,omitempty"`
	OperationMode   string    `json:"operation_mode,omitempty"`
	Message         string    `json:"message,omitempty"`
	Overall         string    `json:"overall,omitempty"`
	TotalStacks     int       `json:"total_stacks,omitempty"`
	HealthyStacks   int       `json:"healthy_stacks,omitempty"`
	DegradedStacks  int       `json:"degraded_stacks,omitempty"`
	UnhealthyStacks int       `json:"unhealthy_stacks,omitempty"`
	ObserverSuccess bool      `json:"observer_success,omitempty"`
	ObservedValue   string    `json:"observed_value,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Sink sends notification events to an external system.
type Sink interface {
	Send(ctx context.Context, event Event) error
	Name() string
}

// Logger is a minimal logging interface to avoid importing the logging
// package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Multi fans out events to multiple sinks. It never returns errors:
// per-sink failures are logged but never block the caller.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
	log   Logger
}

// NewMulti creates a dispatcher from the given sinks.
func NewMulti(log Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: log}
}

// Notify sends an event to every registered sink. Returns true if at
// least one sink succeeded, or if none are configured.
func (m *Multi) Notify(ctx context.Context, event Event) bool {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()

	if len(sinks) == 0 {
		return true
	}

	anyOK := false
	for _, s := range sinks {
		if err := s.Send(ctx, event); err != nil {
			m.log.Error("notification failed",
				"sink", s.Name(),
				"event", string(event.Type),
				"deployment", event.DeploymentID,
				"error", err.Error(),
			)
			continue
		}
		anyOK = true
	}
	return anyOK
}

// Reconfigure replaces the sink chain at runtime.
func (m *Multi) Reconfigure(sinks ...Sink) {
	m.mu.Lock()
	m.sinks = sinks
	m.mu.Unlock()
}
