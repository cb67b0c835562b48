// Package stacksource defines the contract for loading a declarative
// stack manifest from an external source (the out-of-scope YAML parser,
// a Git-backed store, or a test fixture).
package stacksource

import (
	"context"

	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// Variable is a manifest-declared variable with its default value,
// preserved in declaration order so plans stay reproducible.
type Variable struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default"`
}

// PortSpec is a single port mapping as declared in the manifest, before
// variable resolution.
type PortSpec struct {
	Host      string `yaml:"host"`
	Container string `yaml:"container"`
	Protocol  string `yaml:"protocol,omitempty"`
}

// NetworkDefinition is a network declared at stack scope.
type NetworkDefinition struct {
	Name     string `yaml:"name"`
	External bool   `yaml:"external,omitempty"`
}

// VolumeDefinition is a named volume declared at stack scope.
type VolumeDefinition struct {
	Name     string `yaml:"name"`
	External bool   `yaml:"external,omitempty"`
}

// FeatureFlag is a manifest-declared toggle exposed to services as
// RSGO_FEATURE_<name>.
type FeatureFlag struct {
	Name    string `yaml:"name"`
	Default bool   `yaml:"default"`
}

// ServiceDefinition is one context/service entry in a manifest.
type ServiceDefinition struct {
	ContextName    string            `yaml:"contextName"`
	Image          string            `yaml:"image"`
	Version        string            `yaml:"version,omitempty"`
	ContainerName  string            `yaml:"containerName,omitempty"` // optional override; defaults to {stackName}_{contextName}
	EnvVars        map[string]string `yaml:"envVars,omitempty"`
	Ports          []PortSpec        `yaml:"ports,omitempty"`
	Volumes        map[string]string `yaml:"volumes,omitempty"` // name/path -> container path
	Networks       []string          `yaml:"networks,omitempty"`
	NetworkAliases []string          `yaml:"networkAliases,omitempty"`
	DependsOn      []string          `yaml:"dependsOn,omitempty"`
	Lifecycle      string            `yaml:"lifecycle,omitempty"` // "init" or "service"; empty defaults to "service"
}

// HealthCheckDefinition configures how one service's health is probed.
type HealthCheckDefinition struct {
	ServiceName         string `yaml:"serviceName"`
	Type                string `yaml:"type"` // docker, http, tcp, none
	Path                string `yaml:"path,omitempty"`
	Port                string `yaml:"port,omitempty"`
	ExpectedStatusCodes []int  `yaml:"expectedStatusCodes,omitempty"`
	HTTPS               bool   `yaml:"https,omitempty"`
	Interval            string `yaml:"interval,omitempty"`
	Timeout             string `yaml:"timeout,omitempty"`
	Retries             int    `yaml:"retries,omitempty"`
}

// ObserverDefinition configures the maintenance observer for a stack.
// Exactly one of the type-specific sections is populated, selected by Type.
type ObserverDefinition struct {
	Type             string `yaml:"type"` // sqlExtendedProperty, sqlQuery, http, file
	PollingInterval  string `yaml:"pollingInterval,omitempty"`
	MaintenanceValue string `yaml:"maintenanceValue"`
	NormalValue      string `yaml:"normalValue,omitempty"`

	ConnectionString string `yaml:"connectionString,omitempty"`
	ConnectionName   string `yaml:"connectionName,omitempty"`
	PropertyName     string `yaml:"propertyName,omitempty"`
	Query            string `yaml:"query,omitempty"`

	URL      string            `yaml:"url,omitempty"`
	Method   string            `yaml:"method,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty"`
	JSONPath string            `yaml:"jsonPath,omitempty"`

	Path           string `yaml:"path,omitempty"`
	Mode           string `yaml:"mode,omitempty"` // exists, content
	ContentPattern string `yaml:"contentPattern,omitempty"`
}

// StackDefinition is the parsed manifest a Source yields.
type StackDefinition struct {
	Name                string                  `yaml:"name"`
	Version             string                  `yaml:"version"`
	GatewayContext      string                  `yaml:"gatewayContext,omitempty"`
	Services            []ServiceDefinition     `yaml:"services"`
	Networks            []NetworkDefinition     `yaml:"networks,omitempty"`
	Volumes             []VolumeDefinition      `yaml:"volumes,omitempty"`
	Variables           []Variable              `yaml:"variables,omitempty"`
	FeatureFlags        []FeatureFlag           `yaml:"featureFlags,omitempty"`
	MaintenanceObserver *ObserverDefinition     `yaml:"maintenanceObserver,omitempty"`
	HealthChecks        []HealthCheckDefinition `yaml:"healthChecks,omitempty"`
}

// Source loads a stack manifest by id from wherever it is stored.
type Source interface {
	Load(ctx context.Context, stackID ids.StackID) (StackDefinition, error)
}
