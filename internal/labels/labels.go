// Package labels holds the container label key conventions shared by the
// deployment executor (writer) and the health aggregator (reader). Keeping
// them in one place means the two components can never drift out of sync
// on a key name.
package labels

const (
	// Stack is the name of the stack this container belongs to.
	Stack = "rsgo.stack"
	// Context is the service/context name within the stack.
	Context = "rsgo.context"
	// Environment is the environment ID the container was deployed into.
	Environment = "rsgo.environment"
	// Lifecycle is either "init" or "service".
	Lifecycle = "rsgo.lifecycle"

	// ComposeProject mirrors docker compose's project label, read as a
	// fallback stack-membership signal for containers not deployed by us.
	ComposeProject = "com.docker.compose.project"
	// ComposeService mirrors docker compose's service label.
	ComposeService = "com.docker.compose.service"
)

const (
	// LifecycleInit marks a run-once container that must exit 0 before
	// service-lifecycle containers may start.
	LifecycleInit = "init"
	// LifecycleService marks a long-running service container.
	LifecycleService = "service"
)
