// Package redis provides an artifacts.Store backed by Redis. Each artifact
// is stored as a JSON value under a namespaced key with a TTL applied by
// Redis itself, so expiry works uniformly across distributed deployments.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"goa.design/canvas/runtime/artifacts"
)

// DefaultTTL applies when Options.TTL is unset.
const DefaultTTL = 15 * time.Minute

const keyPrefix = "canvas:artifact:"

type (
	// Options configures the store.
	Options struct {
		// Client is the Redis client. Required. Cmdable is accepted so tests
		// and cluster deployments can substitute their own client flavor.
		Client redis.Cmdable

		// TTL is the lifetime applied to stored artifacts. Defaults to
		// DefaultTTL.
		TTL time.Duration
	}

	// Store implements artifacts.Store on Redis. Safe for concurrent use.
	Store struct {
		client redis.Cmdable
		ttl    time.Duration
	}
)

// New creates a Redis-backed artifact store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis: client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: opts.Client, ttl: ttl}, nil
}

// Get implements artifacts.Store. Missing and expired keys both report as
// absent; Redis handles expiry.
func (s *Store) Get(ctx context.Context, id string) (*artifacts.Artifact, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get artifact %s: %w", id, err)
	}
	var a artifacts.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("redis: decode artifact %s: %w", id, err)
	}
	return &a, nil
}

// Put implements artifacts.Store.
func (s *Store) Put(ctx context.Context, a *artifacts.Artifact, owner string) (string, error) {
	if a == nil {
		return "", errors.New("redis: artifact is required")
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	stored := *a
	stored.ID = id
	stored.Owner = owner
	stored.CreatedAt = now
	stored.UpdatedAt = now
	data, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("redis: encode artifact: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis: put artifact %s: %w", id, err)
	}
	return id, nil
}

// Update implements artifacts.Store. Updating restarts the record's TTL; a
// missing record returns false without error.
func (s *Store) Update(ctx context.Context, id string, a *artifacts.Artifact) (bool, error) {
	if a == nil {
		return false, errors.New("redis: artifact is required")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	existing.Kind = a.Kind
	existing.Data = a.Data
	existing.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(existing)
	if err != nil {
		return false, fmt.Errorf("redis: encode artifact: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, data, s.ttl).Err(); err != nil {
		return false, fmt.Errorf("redis: update artifact %s: %w", id, err)
	}
	return true, nil
}
