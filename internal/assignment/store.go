// Package assignment is the read-through cache in front of the persistent
// assignment documents.
package assignment

import (
	"context"
	"fmt"

	"github.com/jellydator/ttlcache/v3"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

const DefaultCacheCapacity = 10_000

type Options struct {
	// CacheCapacity bounds the number of assignments kept in memory.
	CacheCapacity uint64
}

// Store enforces "assign once" on top of a repository with a conditional
// create. Assignments never expire from the cache; capacity eviction only
// costs a repository read.
type Store struct {
	repo  ports.AssignmentRepository
	cache *ttlcache.Cache[domain.AssignmentKey, domain.Assignment]
}

func NewStore(repo ports.AssignmentRepository, opts Options) *Store {
	if opts.CacheCapacity == 0 {
		opts.CacheCapacity = DefaultCacheCapacity
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[domain.AssignmentKey, domain.Assignment](ttlcache.NoTTL),
		ttlcache.WithCapacity[domain.AssignmentKey, domain.Assignment](opts.CacheCapacity),
	)
	return &Store{repo: repo, cache: cache}
}

// Get returns the assignment for key, or nil when none exists.
func (s *Store) Get(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error) {
	if item := s.cache.Get(key); item != nil {
		a := item.Value()
		return &a, nil
	}

	a, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	if a == nil {
		return nil, nil
	}
	if !a.Belongs(key) {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: domain.ErrKeyMismatch}
	}

	s.cache.Set(key, *a, ttlcache.DefaultTTL)
	return a, nil
}

// Create persists a with create-if-absent semantics. When another writer got
// there first it returns the stored assignment and created=false. On error
// nothing is cached, so a later call retries the write. A lost write whose
// winner cannot be read back fails with domain.ErrAssignmentLost.
func (s *Store) Create(ctx context.Context, a domain.Assignment) (domain.Assignment, bool, error) {
	key := a.Key()

	created, err := s.repo.CreateIfAbsent(ctx, &a)
	if err != nil {
		return a, false, &domain.StoreError{Op: "create", Key: key, Err: err}
	}
	if created {
		s.cache.Set(key, a, ttlcache.DefaultTTL)
		return a, true, nil
	}

	existing, err := s.repo.Get(ctx, key)
	switch {
	case err != nil:
		return a, false, &domain.StoreError{Op: "create", Key: key, Err: fmt.Errorf("%w: %w", domain.ErrAssignmentLost, err)}
	case existing == nil:
		return a, false, &domain.StoreError{Op: "create", Key: key, Err: fmt.Errorf("%w: document missing", domain.ErrAssignmentLost)}
	case !existing.Belongs(key):
		return a, false, &domain.StoreError{Op: "create", Key: key, Err: fmt.Errorf("%w: %w", domain.ErrAssignmentLost, domain.ErrKeyMismatch)}
	}

	s.cache.Set(key, *existing, ttlcache.DefaultTTL)
	return *existing, false, nil
}

// Force overwrites the assignment for QA overrides.
func (s *Store) Force(ctx context.Context, a domain.Assignment) error {
	key := a.Key()
	if err := s.repo.Put(ctx, &a); err != nil {
		return &domain.StoreError{Op: "put", Key: key, Err: err}
	}
	s.cache.Set(key, a, ttlcache.DefaultTTL)
	return nil
}

// Reset forgets the assignment in memory and in the repository.
func (s *Store) Reset(ctx context.Context, key domain.AssignmentKey) error {
	s.cache.Delete(key)
	if err := s.repo.Delete(ctx, key); err != nil {
		return &domain.StoreError{Op: "delete", Key: key, Err: fmt.Errorf("failed to delete assignment: %w", err)}
	}
	return nil
}

// Cached reports whether key is held in memory.
func (s *Store) Cached(key domain.AssignmentKey) bool {
	return s.cache.Has(key)
}
