package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/wiesenwischer/readystackgo/internal/ids"
)

// Environment is a single-host deployment target within an organization.
type Environment struct {
	ID             ids.EnvironmentID
	OrganizationID ids.OrganizationID
	Name           string
}

// Organization owns zero or more Environments.
type Organization struct {
	ID   ids.OrganizationID
	Name string
}

// User is a principal that can trigger deployment operations.
type User struct {
	ID    ids.UserID
	Name  string
	Email string
}

// EnvironmentRepository persists Environments.
type EnvironmentRepository interface {
	Save(ctx context.Context, env Environment) error
	Get(ctx context.Context, id ids.EnvironmentID) (Environment, error)
	ListByOrganization(ctx context.Context, orgID ids.OrganizationID) ([]Environment, error)
}

// OrganizationRepository persists Organizations.
type OrganizationRepository interface {
	Save(ctx context.Context, org Organization) error
	Get(ctx context.Context, id ids.OrganizationID) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
}

// UserRepository persists Users.
type UserRepository interface {
	Save(ctx context.Context, u User) error
	Get(ctx context.Context, id ids.UserID) (User, error)
}

type boltEnvironmentRepository struct{ db *bolt.DB }

func (r *boltEnvironmentRepository) Save(ctx context.Context, env Environment) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal environment: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).Put([]byte(env.ID.String()), data)
	})
}

func (r *boltEnvironmentRepository) Get(ctx context.Context, id ids.EnvironmentID) (Environment, error) {
	var env Environment
	found := false
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEnvironments).Get([]byte(id.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		return Environment{}, err
	}
	if !found {
		return Environment{}, ErrNotFound
	}
	return env, nil
}

func (r *boltEnvironmentRepository) ListByOrganization(ctx context.Context, orgID ids.OrganizationID) ([]Environment, error) {
	var out []Environment
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).ForEach(func(k, v []byte) error {
			var env Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			if env.OrganizationID == orgID {
				out = append(out, env)
			}
			return nil
		})
	})
	return out, err
}

type boltOrganizationRepository struct{ db *bolt.DB }

func (r *boltOrganizationRepository) Save(ctx context.Context, org Organization) error {
	data, err := json.Marshal(org)
	if err != nil {
		return fmt.Errorf("marshal organization: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrganizations).Put([]byte(org.ID.String()), data)
	})
}

func (r *boltOrganizationRepository) Get(ctx context.Context, id ids.OrganizationID) (Organization, error) {
	var org Organization
	found := false
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOrganizations).Get([]byte(id.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &org)
	})
	if err != nil {
		return Organization{}, err
	}
	if !found {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *boltOrganizationRepository) List(ctx context.Context) ([]Organization, error) {
	var out []Organization
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrganizations).ForEach(func(k, v []byte) error {
			var org Organization
			if err := json.Unmarshal(v, &org); err != nil {
				return err
			}
			out = append(out, org)
			return nil
		})
	})
	return out, err
}

type boltUserRepository struct{ db *bolt.DB }

func (r *boltUserRepository) Save(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Put([]byte(u.ID.String()), data)
	})
}

func (r *boltUserRepository) Get(ctx context.Context, id ids.UserID) (User, error) {
	var u User
	found := false
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUsers).Get([]byte(id.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &u)
	})
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, ErrNotFound
	}
	return u, nil
}

// NewMemoryDirectory creates in-memory Environment/Organization/User
// repositories sharing no state with any BoltDB-backed Store.
func NewMemoryDirectory() (EnvironmentRepository, OrganizationRepository, UserRepository) {
	return &memoryEnvironmentRepository{byID: make(map[ids.EnvironmentID]Environment)},
		&memoryOrganizationRepository{byID: make(map[ids.OrganizationID]Organization)},
		&memoryUserRepository{byID: make(map[ids.UserID]User)}
}

type memoryEnvironmentRepository struct {
	mu   sync.RWMutex
	byID map[ids.EnvironmentID]Environment
}

func (r *memoryEnvironmentRepository) Save(ctx context.Context, env Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[env.ID] = env
	return nil
}

func (r *memoryEnvironmentRepository) Get(ctx context.Context, id ids.EnvironmentID) (Environment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	env, ok := r.byID[id]
	if !ok {
		return Environment{}, ErrNotFound
	}
	return env, nil
}

func (r *memoryEnvironmentRepository) ListByOrganization(ctx context.Context, orgID ids.OrganizationID) ([]Environment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Environment
	for _, env := range r.byID {
		if env.OrganizationID == orgID {
			out = append(out, env)
		}
	}
	return out, nil
}

type memoryOrganizationRepository struct {
	mu   sync.RWMutex
	byID map[ids.OrganizationID]Organization
}

func (r *memoryOrganizationRepository) Save(ctx context.Context, org Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[org.ID] = org
	return nil
}

func (r *memoryOrganizationRepository) Get(ctx context.Context, id ids.OrganizationID) (Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.byID[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *memoryOrganizationRepository) List(ctx context.Context) ([]Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Organization, 0, len(r.byID))
	for _, org := range r.byID {
		out = append(out, org)
	}
	return out, nil
}

type memoryUserRepository struct {
	mu   sync.RWMutex
	byID map[ids.UserID]User
}

func (r *memoryUserRepository) Save(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	return nil
}

func (r *memoryUserRepository) Get(ctx context.Context, id ids.UserID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
