// Package memory provides an in-process artifacts.Store with TTL expiry.
// Entries expire lazily on access; Sweep evicts eagerly for long-lived
// processes.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/canvas/runtime/artifacts"
)

// DefaultTTL applies when Options.TTL is unset.
const DefaultTTL = 15 * time.Minute

type (
	// Options configures the store. The zero value applies defaults.
	Options struct {
		// TTL is the lifetime of stored artifacts. Defaults to DefaultTTL.
		TTL time.Duration

		// Clock overrides time.Now, primarily for tests.
		Clock func() time.Time
	}

	// Store is a TTL map of artifacts. Safe for concurrent use.
	Store struct {
		mu      sync.RWMutex
		entries map[string]entry
		ttl     time.Duration
		now     func() time.Time
	}

	entry struct {
		artifact  artifacts.Artifact
		expiresAt time.Time
	}
)

// New creates an in-memory artifact store.
func New(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

// Get implements artifacts.Store. Expired entries are evicted and reported as
// absent.
func (s *Store) Get(_ context.Context, id string) (*artifacts.Artifact, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return nil, nil
	}
	a := e.artifact
	return &a, nil
}

// Put implements artifacts.Store.
func (s *Store) Put(_ context.Context, a *artifacts.Artifact, owner string) (string, error) {
	if a == nil {
		return "", errors.New("memory: artifact is required")
	}
	id := uuid.NewString()
	now := s.now().UTC()
	stored := *a
	stored.ID = id
	stored.Owner = owner
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.mu.Lock()
	s.entries[id] = entry{artifact: stored, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()
	return id, nil
}

// Update implements artifacts.Store. The entry's TTL restarts on update.
func (s *Store) Update(_ context.Context, id string, a *artifacts.Artifact) (bool, error) {
	if a == nil {
		return false, errors.New("memory: artifact is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return false, nil
	}
	now := s.now().UTC()
	e.artifact.Kind = a.Kind
	e.artifact.Data = a.Data
	e.artifact.UpdatedAt = now
	e.expiresAt = now.Add(s.ttl)
	s.entries[id] = e
	return true, nil
}

// Sweep evicts expired entries and returns the number removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries, counting entries not yet swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
