package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wiesenwischer/readystackgo/internal/health"
	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// HealthSnapshotRepository persists HealthSnapshots, keyed chronologically
// per deployment so the most recent N can be retrieved or pruned cheaply.
type HealthSnapshotRepository interface {
	Save(ctx context.Context, snap health.Snapshot) error
	// ListByDeployment returns up to limit snapshots for depID, newest
	// first. limit <= 0 means unbounded.
	ListByDeployment(ctx context.Context, depID ids.DeploymentID, limit int) ([]health.Snapshot, error)
	Latest(ctx context.Context, depID ids.DeploymentID) (*health.Snapshot, error)
	// PruneOlderThan deletes every snapshot for depID beyond the keep
	// most recent, implementing the configured retention policy.
	PruneOlderThan(ctx context.Context, depID ids.DeploymentID, keep int) error
}

type boltHealthSnapshotRepository struct {
	db *bolt.DB
}

func snapshotKey(depID ids.DeploymentID, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s::%s", depID.String(), at.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")))
}

func (r *boltHealthSnapshotRepository) Save(ctx context.Context, snap health.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal health snapshot: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHealthHistory).Put(snapshotKey(snap.DeploymentID, snap.CapturedAtUTC), data)
	})
}

func (r *boltHealthSnapshotRepository) ListByDeployment(ctx context.Context, depID ids.DeploymentID, limit int) ([]health.Snapshot, error) {
	prefix := []byte(depID.String() + "::")
	var out []health.Snapshot

	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHealthHistory).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var snap health.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("unmarshal health snapshot %s: %w", k, err)
			}
			out = append(out, snap)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *boltHealthSnapshotRepository) Latest(ctx context.Context, depID ids.DeploymentID) (*health.Snapshot, error) {
	snaps, err := r.ListByDeployment(ctx, depID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return &snaps[0], nil
}

func (r *boltHealthSnapshotRepository) PruneOlderThan(ctx context.Context, depID ids.DeploymentID, keep int) error {
	prefix := []byte(depID.String() + "::")
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHealthHistory)
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		if len(keys) <= keep {
			return nil
		}
		// keys are in ascending (oldest-first) key order; drop everything
		// before the last `keep` entries.
		for _, k := range keys[:len(keys)-keep] {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewMemoryHealthSnapshotRepository creates an in-memory
// HealthSnapshotRepository for tests and single-process evaluation.
func NewMemoryHealthSnapshotRepository() HealthSnapshotRepository {
	return &memoryHealthSnapshotRepository{byDeployment: make(map[ids.DeploymentID][]health.Snapshot)}
}

type memoryHealthSnapshotRepository struct {
	mu           sync.RWMutex
	byDeployment map[ids.DeploymentID][]health.Snapshot
}

func (r *memoryHealthSnapshotRepository) Save(ctx context.Context, snap health.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDeployment[snap.DeploymentID] = append(r.byDeployment[snap.DeploymentID], snap)
	sort.Slice(r.byDeployment[snap.DeploymentID], func(i, j int) bool {
		return r.byDeployment[snap.DeploymentID][i].CapturedAtUTC.Before(r.byDeployment[snap.DeploymentID][j].CapturedAtUTC)
	})
	return nil
}

func (r *memoryHealthSnapshotRepository) ListByDeployment(ctx context.Context, depID ids.DeploymentID, limit int) ([]health.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.byDeployment[depID]
	out := make([]health.Snapshot, len(all))
	for i, snap := range all {
		out[len(all)-1-i] = snap // newest first
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryHealthSnapshotRepository) Latest(ctx context.Context, depID ids.DeploymentID) (*health.Snapshot, error) {
	snaps, _ := r.ListByDeployment(ctx, depID, 1)
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return &snaps[0], nil
}

func (r *memoryHealthSnapshotRepository) PruneOlderThan(ctx context.Context, depID ids.DeploymentID, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.byDeployment[depID]
	if len(all) <= keep {
		return nil
	}
	r.byDeployment[depID] = all[len(all)-keep:]
	return nil
}
