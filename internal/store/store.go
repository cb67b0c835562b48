// Package store provides the repository contracts the deployment and
// runtime control plane persists its aggregates through (Deployment,
// HealthSnapshot, Environment, Organization, User), plus a BoltDB-backed
// implementation and an in-memory one for tests and single-process
// evaluation.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wiesenwischer/readystackgo/internal/clock"
)

var (
	bucketDeployments   = []byte("deployments")
	bucketHealthHistory = []byte("health_snapshots")
	bucketEnvironments  = []byte("environments")
	bucketOrganizations = []byte("organizations")
	bucketUsers         = []byte("users")
)

// Store wraps a BoltDB database holding every repository's bucket.
type Store struct {
	db    *bolt.DB
	clock clock.Clock
}

// Open creates or opens a BoltDB database at path and ensures all
// required buckets exist. clk is used to rehydrate Deployment aggregates
// loaded from storage; pass clock.Real{} outside tests.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	buckets := [][]byte{bucketDeployments, bucketHealthHistory, bucketEnvironments, bucketOrganizations, bucketUsers}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db, clock: clk}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Deployments returns the BoltDB-backed DeploymentRepository.
func (s *Store) Deployments() DeploymentRepository {
	return &boltDeploymentRepository{db: s.db, clock: s.clock}
}

// HealthSnapshots returns the BoltDB-backed HealthSnapshotRepository.
func (s *Store) HealthSnapshots() HealthSnapshotRepository {
	return &boltHealthSnapshotRepository{db: s.db}
}

// Environments returns the BoltDB-backed EnvironmentRepository.
func (s *Store) Environments() EnvironmentRepository { return &boltEnvironmentRepository{db: s.db} }

// Organizations returns the BoltDB-backed OrganizationRepository.
func (s *Store) Organizations() OrganizationRepository {
	return &boltOrganizationRepository{db: s.db}
}

// Users returns the BoltDB-backed UserRepository.
func (s *Store) Users() UserRepository { return &boltUserRepository{db: s.db} }
