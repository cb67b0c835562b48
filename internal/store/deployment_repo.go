package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/wiesenwischer/readystackgo/internal/clock"
	"github.com/wiesenwischer/readystackgo/internal/deployment"
	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// ErrNotFound is returned by a repository Get when no record exists for
// the requested id.
var ErrNotFound = errors.New("store: not found")

// DeploymentRepository persists Deployment aggregates.
type DeploymentRepository interface {
	Save(ctx context.Context, dep *deployment.Deployment) error
	Get(ctx context.Context, id ids.DeploymentID) (*deployment.Deployment, error)
	ListByEnvironment(ctx context.Context, envID ids.EnvironmentID) ([]*deployment.Deployment, error)
	// ListRunning returns every deployment with Status == Running, the
	// set the background schedulers visit each tick.
	ListRunning(ctx context.Context) ([]*deployment.Deployment, error)
	Delete(ctx context.Context, id ids.DeploymentID) error
}

type boltDeploymentRepository struct {
	db    *bolt.DB
	clock clock.Clock
}

func (r *boltDeploymentRepository) Save(ctx context.Context, dep *deployment.Deployment) error {
	record := dep.Snapshot()
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).Put([]byte(record.ID.String()), data)
	})
}

func (r *boltDeploymentRepository) Get(ctx context.Context, id ids.DeploymentID) (*deployment.Deployment, error) {
	var record deployment.Record
	found := false
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDeployments).Get([]byte(id.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("get deployment %s: %w", id, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return deployment.Restore(record, r.clock), nil
}

func (r *boltDeploymentRepository) ListByEnvironment(ctx context.Context, envID ids.EnvironmentID) ([]*deployment.Deployment, error) {
	return r.scan(func(rec deployment.Record) bool { return rec.EnvironmentID == envID })
}

func (r *boltDeploymentRepository) ListRunning(ctx context.Context) ([]*deployment.Deployment, error) {
	return r.scan(func(rec deployment.Record) bool { return rec.Status == deployment.StatusRunning })
}

func (r *boltDeploymentRepository) scan(match func(deployment.Record) bool) ([]*deployment.Deployment, error) {
	var out []*deployment.Deployment
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var record deployment.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal deployment %s: %w", k, err)
			}
			if match(record) {
				out = append(out, deployment.Restore(record, r.clock))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *boltDeploymentRepository) Delete(ctx context.Context, id ids.DeploymentID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).Delete([]byte(id.String()))
	})
}

// NewMemoryDeploymentRepository creates an in-memory DeploymentRepository,
// for tests and single-process evaluation where a BoltDB file would be
// overkill.
func NewMemoryDeploymentRepository(clk clock.Clock) DeploymentRepository {
	return &memoryDeploymentRepository{clock: clk, records: make(map[ids.DeploymentID]deployment.Record)}
}

type memoryDeploymentRepository struct {
	mu      sync.RWMutex
	clock   clock.Clock
	records map[ids.DeploymentID]deployment.Record
}

func (r *memoryDeploymentRepository) Save(ctx context.Context, dep *deployment.Deployment) error {
	record := dep.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	return nil
}

func (r *memoryDeploymentRepository) Get(ctx context.Context, id ids.DeploymentID) (*deployment.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return deployment.Restore(record, r.clock), nil
}

func (r *memoryDeploymentRepository) ListByEnvironment(ctx context.Context, envID ids.EnvironmentID) ([]*deployment.Deployment, error) {
	return r.scan(func(rec deployment.Record) bool { return rec.EnvironmentID == envID }), nil
}

func (r *memoryDeploymentRepository) ListRunning(ctx context.Context) ([]*deployment.Deployment, error) {
	return r.scan(func(rec deployment.Record) bool { return rec.Status == deployment.StatusRunning }), nil
}

func (r *memoryDeploymentRepository) scan(match func(deployment.Record) bool) []*deployment.Deployment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*deployment.Deployment
	for _, record := range r.records {
		if match(record) {
			out = append(out, deployment.Restore(record, r.clock))
		}
	}
	return out
}

func (r *memoryDeploymentRepository) Delete(ctx context.Context, id ids.DeploymentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}
