// Package ids provides strongly-typed opaque 128-bit identifiers for every
// entity in the deployment and runtime control plane. Each identifier is a
// distinct Go type backed by a uuid.UUID, so a DeploymentID can never be
// passed where an EnvironmentID is expected without an explicit conversion.
package ids

import "github.com/google/uuid"

// DeploymentID identifies a Deployment aggregate.
type DeploymentID uuid.UUID

// EnvironmentID identifies the environment a deployment runs in.
type EnvironmentID uuid.UUID

// OrganizationID identifies the owning organization.
type OrganizationID uuid.UUID

// StackID identifies the declarative stack definition a deployment was
// created from.
type StackID uuid.UUID

// UserID identifies the user that triggered an action.
type UserID uuid.UUID

// HealthSnapshotID identifies a single captured HealthSnapshot.
type HealthSnapshotID uuid.UUID

// NewDeploymentID generates a fresh random DeploymentID.
func NewDeploymentID() DeploymentID { return DeploymentID(uuid.New()) }

// NewEnvironmentID generates a fresh random EnvironmentID.
func NewEnvironmentID() EnvironmentID { return EnvironmentID(uuid.New()) }

// NewOrganizationID generates a fresh random OrganizationID.
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }

// NewStackID generates a fresh random StackID.
func NewStackID() StackID { return StackID(uuid.New()) }

// NewUserID generates a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewHealthSnapshotID generates a fresh random HealthSnapshotID.
func NewHealthSnapshotID() HealthSnapshotID { return HealthSnapshotID(uuid.New()) }

func (id DeploymentID) String() string      { return uuid.UUID(id).String() }
func (id EnvironmentID) String() string     { return uuid.UUID(id).String() }
func (id OrganizationID) String() string    { return uuid.UUID(id).String() }
func (id StackID) String() string           { return uuid.UUID(id).String() }
func (id UserID) String() string            { return uuid.UUID(id).String() }
func (id HealthSnapshotID) String() string  { return uuid.UUID(id).String() }

func (id DeploymentID) IsZero() bool     { return id == DeploymentID{} }
func (id EnvironmentID) IsZero() bool    { return id == EnvironmentID{} }
func (id OrganizationID) IsZero() bool   { return id == OrganizationID{} }
func (id StackID) IsZero() bool          { return id == StackID{} }
func (id UserID) IsZero() bool           { return id == UserID{} }
func (id HealthSnapshotID) IsZero() bool { return id == HealthSnapshotID{} }

// ParseDeploymentID parses a string representation into a DeploymentID.
func ParseDeploymentID(s string) (DeploymentID, error) {
	u, err := uuid.Parse(s)
	return DeploymentID(u), err
}

// ParseEnvironmentID parses a string representation into an EnvironmentID.
func ParseEnvironmentID(s string) (EnvironmentID, error) {
	u, err := uuid.Parse(s)
	return EnvironmentID(u), err
}

// ParseOrganizationID parses a string representation into an OrganizationID.
func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := uuid.Parse(s)
	return OrganizationID(u), err
}

// ParseStackID parses a string representation into a StackID.
func ParseStackID(s string) (StackID, error) {
	u, err := uuid.Parse(s)
	return StackID(u), err
}

// ParseUserID parses a string representation into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	return UserID(u), err
}

// ParseHealthSnapshotID parses a string representation into a HealthSnapshotID.
func ParseHealthSnapshotID(s string) (HealthSnapshotID, error) {
	u, err := uuid.Parse(s)
	return HealthSnapshotID(u), err
}
