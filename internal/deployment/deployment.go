// Package deployment implements the Deployment aggregate: a per-stack
// state machine mutated only through its own methods, matching the
// mutex-guarded-getter/setter discipline used by internal/config.
package deployment

import (
	"fmt"
	"sync"
	"time"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/stacksource"
)

// Status is the deployment's lifecycle state.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusRunning     Status = "Running"
	StatusStopped     Status = "Stopped"
	StatusFailed      Status = "Failed"
	StatusUpgrading   Status = "Upgrading"
	StatusRollingBack Status = "RollingBack"
	StatusRemoved     Status = "Removed"
)

// OperationMode describes how external consumers should treat the
// deployment; derived from Status but independently writable within the
// combinations the invariants allow.
type OperationMode string

const (
	ModeNormal      OperationMode = "Normal"
	ModeMaintenance OperationMode = "Maintenance"
	ModeMigrating   OperationMode = "Migrating"
	ModeStopped     OperationMode = "Stopped"
	ModeFailed      OperationMode = "Failed"
)

// allowedTransitions is the status transition matrix from spec.md §3.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:     {StatusRunning: true, StatusFailed: true},
	StatusRunning:     {StatusUpgrading: true, StatusStopped: true, StatusFailed: true},
	StatusUpgrading:   {StatusRunning: true, StatusFailed: true},
	StatusFailed:      {StatusRollingBack: true, StatusRemoved: true},
	StatusStopped:     {StatusRunning: true, StatusRemoved: true},
	StatusRollingBack: {StatusRunning: true, StatusFailed: true},
}

// allowedModesByStatus lists the operation modes each status permits:
// Pending, Upgrading and RollingBack allow Migrating; Stopped allows
// Stopped; Failed allows Failed; Running allows Normal or Maintenance;
// Removed allows none. Any combination not listed is illegal.
var allowedModesByStatus = map[Status]map[OperationMode]bool{
	StatusPending:     {ModeMigrating: true},
	StatusStopped:     {ModeStopped: true},
	StatusFailed:      {ModeFailed: true},
	StatusRunning:     {ModeNormal: true, ModeMaintenance: true},
	StatusUpgrading:   {ModeMigrating: true},
	StatusRollingBack: {ModeMigrating: true},
	StatusRemoved:     {},
}

// ErrIllegalTransition is returned when a status or mode change is not in
// the allowed matrix for the current state.
type ErrIllegalTransition struct {
	From, To any
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition from %v to %v", e.From, e.To)
}

// DeployedService is one running (or last-known) container belonging to
// a deployment.
type DeployedService struct {
	ServiceName   string
	ContainerID   string
	ContainerName string
	Image         string
	Status        string
}

// UpgradeRecord is one entry in the deployment's upgrade history.
type UpgradeRecord struct {
	FromVersion string
	ToVersion   string
	AtUTC       time.Time
}

// Deployment is the aggregate root tracking one stack's lifecycle in one
// environment. All mutation happens through its methods; callers must
// never write a field directly.
type Deployment struct {
	mu sync.RWMutex

	clock clock.Clock

	id             ids.DeploymentID
	environmentID  ids.EnvironmentID
	organizationID ids.OrganizationID
	stackID        ids.StackID
	stackName      string
	projectName    string
	createdBy      ids.UserID
	createdAt      time.Time
	updatedAt      time.Time

	stackVersion string
	status       Status
	operation    OperationMode

	variableOrder []string
	variables     map[string]string

	services map[string]DeployedService

	maintenanceObserverConfig *stacksource.ObserverDefinition
	healthCheckConfigs        []stacksource.HealthCheckDefinition

	upgradeHistory []UpgradeRecord

	failureReason string
}

// StartInstallation creates a new Deployment in Pending status.
func StartInstallation(id ids.DeploymentID, env ids.EnvironmentID, org ids.OrganizationID, stackID ids.StackID, stackName, projectName string, createdBy ids.UserID, clk clock.Clock) *Deployment {
	now := clk.Now()
	return &Deployment{
		clock:          clk,
		id:             id,
		environmentID:  env,
		organizationID: org,
		stackID:        stackID,
		stackName:      stackName,
		projectName:    projectName,
		createdBy:      createdBy,
		createdAt:      now,
		updatedAt:      now,
		stackVersion:   "unspecified",
		status:         StatusPending,
		operation:      ModeMigrating,
		variables:      make(map[string]string),
		services:       make(map[string]DeployedService),
	}
}

func (d *Deployment) touch() {
	d.updatedAt = d.clock.Now()
}

// ID returns the deployment's identifier.
func (d *Deployment) ID() ids.DeploymentID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// EnvironmentID returns the environment this deployment runs in.
func (d *Deployment) EnvironmentID() ids.EnvironmentID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.environmentID
}

// OrganizationID returns the owning organization.
func (d *Deployment) OrganizationID() ids.OrganizationID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.organizationID
}

// StackID returns the declarative stack this deployment was created from.
func (d *Deployment) StackID() ids.StackID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stackID
}

// StackName returns the deployment's (sanitised) stack name.
func (d *Deployment) StackName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stackName
}

// ProjectName returns the project this deployment belongs to.
func (d *Deployment) ProjectName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.projectName
}

// CreatedBy returns the user that started this deployment.
func (d *Deployment) CreatedBy() ids.UserID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.createdBy
}

// CreatedAt returns when this deployment was first installed.
func (d *Deployment) CreatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.createdAt
}

// Status returns the current lifecycle status.
func (d *Deployment) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// OperationMode returns the current operation mode.
func (d *Deployment) OperationMode() OperationMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.operation
}

// StackVersion returns the currently installed stack version.
func (d *Deployment) StackVersion() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stackVersion
}

// UpdatedAt returns the UTC timestamp of the last mutation.
func (d *Deployment) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// FailureReason returns the reason recorded by the last MarkAsFailed call.
func (d *Deployment) FailureReason() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.failureReason
}

// Variables returns a copy of the variable map. The map carries no order;
// the declaration order given to SetVariables is not part of the result.
func (d *Deployment) Variables() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.variables))
	for k, v := range d.variables {
		out[k] = v
	}
	return out
}

// Services returns a copy of the current deployed-service set.
func (d *Deployment) Services() []DeployedService {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DeployedService, 0, len(d.services))
	for _, s := range d.services {
		out = append(out, s)
	}
	return out
}

// MaintenanceObserverConfig returns the configured observer, or nil.
func (d *Deployment) MaintenanceObserverConfig() *stacksource.ObserverDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maintenanceObserverConfig
}

// HealthCheckConfigs returns a copy of the configured health checks.
func (d *Deployment) HealthCheckConfigs() []stacksource.HealthCheckDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]stacksource.HealthCheckDefinition(nil), d.healthCheckConfigs...)
}

// UpgradeHistory returns a copy of the recorded upgrade history.
func (d *Deployment) UpgradeHistory() []UpgradeRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]UpgradeRecord(nil), d.upgradeHistory...)
}

// SetStackVersion sets the currently installed stack version directly.
// The executor calls it at the end of every successful Execute, installs
// and upgrades alike; for an upgrade it calls RecordUpgrade first.
func (d *Deployment) SetStackVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stackVersion = version
	d.touch()
}

// SetVariables replaces the variable map, preserving the given order.
func (d *Deployment) SetVariables(orderedNames []string, values map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.variableOrder = append([]string(nil), orderedNames...)
	d.variables = make(map[string]string, len(values))
	for k, v := range values {
		d.variables[k] = v
	}
	d.touch()
}

// SetMaintenanceObserverConfig installs (or clears, with nil) the
// maintenance observer configuration.
func (d *Deployment) SetMaintenanceObserverConfig(cfg *stacksource.ObserverDefinition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maintenanceObserverConfig = cfg
	d.touch()
}

// SetHealthCheckConfigs replaces the per-service health check configuration.
func (d *Deployment) SetHealthCheckConfigs(cfgs []stacksource.HealthCheckDefinition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.healthCheckConfigs = append([]stacksource.HealthCheckDefinition(nil), cfgs...)
	d.touch()
}

// AddService registers a service under construction; serviceName must be
// unique within the deployment.
func (d *Deployment) AddService(serviceName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.services[serviceName]; exists {
		return fmt.Errorf("service %q already exists in deployment", serviceName)
	}
	d.services[serviceName] = DeployedService{ServiceName: serviceName}
	d.touch()
	return nil
}

// SetServiceContainerInfo records the container identity/status for a
// previously-added service.
func (d *Deployment) SetServiceContainerInfo(serviceName, containerID, containerName, image, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	svc, exists := d.services[serviceName]
	if !exists {
		return fmt.Errorf("service %q not found in deployment", serviceName)
	}
	svc.ContainerID = containerID
	svc.ContainerName = containerName
	svc.Image = image
	svc.Status = status
	d.services[serviceName] = svc
	d.touch()
	return nil
}

// RemoveService drops a service from the deployment's tracked set.
func (d *Deployment) RemoveService(serviceName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.services, serviceName)
	d.touch()
}

// MarkAllServicesAsRemoved clears the tracked service set without
// touching deployment status (used past PNR before MarkAsFailed).
func (d *Deployment) MarkAllServicesAsRemoved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = make(map[string]DeployedService)
	d.touch()
}

// transitionStatus applies a status change if legal, returning
// ErrIllegalTransition otherwise.
func (d *Deployment) transitionStatus(to Status) error {
	if !allowedTransitions[d.status][to] {
		return ErrIllegalTransition{From: d.status, To: to}
	}
	d.status = to
	return nil
}

// transitionMode applies a mode change if legal for the current status.
func (d *Deployment) transitionMode(mode OperationMode) error {
	if !allowedModesByStatus[d.status][mode] {
		return ErrIllegalTransition{From: d.status, To: mode}
	}
	d.operation = mode
	return nil
}

// MarkAsRunning transitions Pending/Upgrading/Stopped/RollingBack → Running
// and derives operation mode Normal.
func (d *Deployment) MarkAsRunning() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transitionStatus(StatusRunning); err != nil {
		return err
	}
	_ = d.transitionMode(ModeNormal)
	d.touch()
	return nil
}

// MarkAsFailed transitions to Failed, derives operation mode Failed, and
// records the reason.
func (d *Deployment) MarkAsFailed(reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transitionStatus(StatusFailed); err != nil {
		return err
	}
	_ = d.transitionMode(ModeFailed)
	d.failureReason = reason
	d.touch()
	return nil
}

// MarkAsRemoved transitions to the terminal Removed status from any state.
func (d *Deployment) MarkAsRemoved() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusRemoved {
		return nil
	}
	d.status = StatusRemoved
	d.touch()
	return nil
}

// StartUpgradeProcess transitions Running→Upgrading ahead of an in-place
// upgrade.
func (d *Deployment) StartUpgradeProcess(newVersion string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transitionStatus(StatusUpgrading); err != nil {
		return err
	}
	_ = d.transitionMode(ModeMigrating)
	d.touch()
	return nil
}

// StartRollbackProcess transitions Failed→RollingBack ahead of a
// caller-initiated rollback.
func (d *Deployment) StartRollbackProcess(newVersion string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transitionStatus(StatusRollingBack); err != nil {
		return err
	}
	_ = d.transitionMode(ModeMigrating)
	d.touch()
	return nil
}

// RecordUpgrade appends an upgrade history entry; callers invoke this
// before the version switch takes effect.
func (d *Deployment) RecordUpgrade(from, to string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upgradeHistory = append(d.upgradeHistory, UpgradeRecord{FromVersion: from, ToVersion: to, AtUTC: d.clock.Now()})
	d.touch()
}

// Record is the flat, serializable snapshot of a Deployment's full state,
// produced by Snapshot and consumed by Restore. Persistence
// implementations round-trip a Deployment exclusively through this type
// rather than reaching into its private fields.
type Record struct {
	ID                        ids.DeploymentID
	EnvironmentID             ids.EnvironmentID
	OrganizationID            ids.OrganizationID
	StackID                   ids.StackID
	StackName                 string
	ProjectName               string
	CreatedBy                 ids.UserID
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	StackVersion              string
	Status                    Status
	OperationMode             OperationMode
	VariableOrder             []string
	Variables                 map[string]string
	Services                  []DeployedService
	MaintenanceObserverConfig *stacksource.ObserverDefinition
	HealthCheckConfigs        []stacksource.HealthCheckDefinition
	UpgradeHistory            []UpgradeRecord
	FailureReason             string
}

// Snapshot captures d's entire persistable state.
func (d *Deployment) Snapshot() Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	services := make([]DeployedService, 0, len(d.services))
	for _, s := range d.services {
		services = append(services, s)
	}
	vars := make(map[string]string, len(d.variables))
	for k, v := range d.variables {
		vars[k] = v
	}

	return Record{
		ID:                        d.id,
		EnvironmentID:             d.environmentID,
		OrganizationID:            d.organizationID,
		StackID:                   d.stackID,
		StackName:                 d.stackName,
		ProjectName:               d.projectName,
		CreatedBy:                 d.createdBy,
		CreatedAt:                 d.createdAt,
		UpdatedAt:                 d.updatedAt,
		StackVersion:              d.stackVersion,
		Status:                    d.status,
		OperationMode:             d.operation,
		VariableOrder:             append([]string(nil), d.variableOrder...),
		Variables:                 vars,
		Services:                  services,
		MaintenanceObserverConfig: d.maintenanceObserverConfig,
		HealthCheckConfigs:        append([]stacksource.HealthCheckDefinition(nil), d.healthCheckConfigs...),
		UpgradeHistory:            append([]UpgradeRecord(nil), d.upgradeHistory...),
		FailureReason:             d.failureReason,
	}
}

// Restore rebuilds a Deployment from a Record previously produced by
// Snapshot, for a repository loading an aggregate back from storage.
func Restore(r Record, clk clock.Clock) *Deployment {
	services := make(map[string]DeployedService, len(r.Services))
	for _, s := range r.Services {
		services[s.ServiceName] = s
	}
	vars := make(map[string]string, len(r.Variables))
	for k, v := range r.Variables {
		vars[k] = v
	}

	return &Deployment{
		clock:                     clk,
		id:                        r.ID,
		environmentID:             r.EnvironmentID,
		organizationID:            r.OrganizationID,
		stackID:                   r.StackID,
		stackName:                 r.StackName,
		projectName:               r.ProjectName,
		createdBy:                 r.CreatedBy,
		createdAt:                 r.CreatedAt,
		updatedAt:                 r.UpdatedAt,
		stackVersion:              r.StackVersion,
		status:                    r.Status,
		operation:                 r.OperationMode,
		variableOrder:             append([]string(nil), r.VariableOrder...),
		variables:                 vars,
		services:                  services,
		maintenanceObserverConfig: r.MaintenanceObserverConfig,
		healthCheckConfigs:        append([]stacksource.HealthCheckDefinition(nil), r.HealthCheckConfigs...),
		upgradeHistory:            append([]UpgradeRecord(nil), r.UpgradeHistory...),
		failureReason:             r.FailureReason,
	}
}

// ChangeOperationMode applies an operation-mode change outside a status
// transition (the observer loop's primary entry point). reason is
// currently unused by the aggregate itself; callers log/emit it.
func (d *Deployment) ChangeOperationMode(mode OperationMode, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transitionMode(mode); err != nil {
		return err
	}
	d.touch()
	return nil
}
