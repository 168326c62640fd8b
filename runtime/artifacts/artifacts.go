// Package artifacts defines the TTL key-value store runs use to stash
// intermediate results (generated surfaces, tool outputs) between turns.
// Records expire on an implementation-defined TTL; callers must tolerate
// missing records: a nil Get result or a false Update simply means the
// record does not exist (yet, or anymore) and is never fatal.
package artifacts

import (
	"context"
	"encoding/json"
	"time"
)

type (
	// Artifact is one stored record. Data is kept as raw JSON so stores never
	// need to understand artifact payloads.
	Artifact struct {
		// ID is the store-assigned identifier.
		ID string `json:"id"`
		// Kind classifies the artifact (for example "surface", "chart_data").
		Kind string `json:"kind,omitempty"`
		// Owner identifies the run or agent that created the artifact.
		Owner string `json:"owner,omitempty"`
		// Data is the JSON payload.
		Data json.RawMessage `json:"data,omitempty"`
		// CreatedAt records when the artifact was first stored (UTC).
		CreatedAt time.Time `json:"created_at"`
		// UpdatedAt records the last successful update (UTC).
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Store is the artifact store contract. Implementations apply their own
	// TTL and must be safe for concurrent use.
	Store interface {
		// Get returns the artifact with the given id, or nil when it does not
		// exist or has expired.
		Get(ctx context.Context, id string) (*Artifact, error)

		// Put stores a new artifact on behalf of owner and returns the
		// assigned id.
		Put(ctx context.Context, a *Artifact, owner string) (string, error)

		// Update replaces an existing artifact's kind and data. It returns
		// false when no record exists under id; false is not an error.
		Update(ctx context.Context, id string, a *Artifact) (bool, error)
	}
)
