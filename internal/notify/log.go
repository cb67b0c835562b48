package notify

import "context"

// LogNotifier writes every event as a structured log line. It is active
// only where a caller adds it to a Multi; cmd/rsgoctl does not add it.
type LogNotifier struct {
	log Logger
}

// NewLogNotifier creates a sink that logs events using structured logging.
func NewLogNotifier(log Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Name returns the provider name for logging.
func (l *LogNotifier) Name() string { return "log" }

// Send writes the event fields as structured key-value pairs at Info level.
func (l *LogNotifier) Send(_ context.Context, event Event) error {
	l.log.Info("notification event",
		"type", string(event.Type),
		"deployment", event.DeploymentID,
		"stack", event.StackName,
		"status", event.Status,
		"operation_mode", event.OperationMode,
		"message", event.Message,
		"error", event.Error,
		"timestamp", event.Timestamp.String(),
	)
	return nil
}
