// Package surface implements the in-memory model behind a rendered UI
// surface: an ordered graph of components keyed by id plus the data model
// bound to them. A Surface is owned by exactly one run for its lifetime; the
// run mutates it and publishes immutable wire frames derived from it.
package surface

import (
	"errors"
	"fmt"
)

type (
	// Component is one UI element: a stable identifier plus a kind-tagged
	// property payload. Kind names the component flavor (for example
	// "Checkbox", "BarChart", "Column") and Props holds the kind-specific
	// properties. Properties that bind to data model state hold a path
	// reference (see PathRef) instead of a literal value so the client can
	// keep them in sync without extra round trips.
	Component struct {
		// ID uniquely identifies the component within its surface. Once
		// introduced the id is permanent: later updates may replace the
		// component under the same id but never repurpose it implicitly.
		ID string `json:"id"`

		// Kind names the component flavor. On the wire the kind becomes the
		// single key of the component payload map.
		Kind string `json:"kind"`

		// Props holds the kind-specific properties. Values are restricted to
		// JSON-representable types (string, float64, bool, nested maps and
		// slices) so components survive encoding unchanged.
		Props map[string]any `json:"props,omitempty"`
	}

	// Surface tracks the component graph and render root for one UI surface.
	// Components are kept in first-introduction order, which is the order
	// they appear in update frames. Surface is not safe for concurrent use;
	// the owning run is the only mutator.
	Surface struct {
		id         string
		order      []string
		components map[string]Component
		rootID     string
		deleted    bool
	}
)

var (
	// ErrUnknownRoot is returned when a root designation names a component
	// that has not been introduced on the surface.
	ErrUnknownRoot = errors.New("surface: root references unknown component")

	// ErrDeleted is returned when an operation targets a deleted surface.
	ErrDeleted = errors.New("surface: surface has been deleted")
)

// New creates an empty surface with the given identifier.
func New(id string) *Surface {
	return &Surface{
		id:         id,
		components: make(map[string]Component),
	}
}

// ID returns the surface identifier.
func (s *Surface) ID() string { return s.id }

// Apply introduces or replaces components. A component whose id is already
// present replaces the existing definition but keeps its original position in
// the introduction order; new ids are appended. Components with an empty id
// or kind are rejected.
func (s *Surface) Apply(components ...Component) error {
	if s.deleted {
		return ErrDeleted
	}
	for _, c := range components {
		if c.ID == "" {
			return errors.New("surface: component id is required")
		}
		if c.Kind == "" {
			return fmt.Errorf("surface: component %q has no kind", c.ID)
		}
	}
	for _, c := range components {
		if _, ok := s.components[c.ID]; !ok {
			s.order = append(s.order, c.ID)
		}
		s.components[c.ID] = c
	}
	return nil
}

// Component returns the component with the given id.
func (s *Surface) Component(id string) (Component, bool) {
	c, ok := s.components[id]
	return c, ok
}

// Has reports whether a component with the given id has been introduced.
func (s *Surface) Has(id string) bool {
	_, ok := s.components[id]
	return ok
}

// Components returns all components in first-introduction order.
func (s *Surface) Components() []Component {
	out := make([]Component, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.components[id])
	}
	return out
}

// Len returns the number of components on the surface.
func (s *Surface) Len() int { return len(s.order) }

// SetRoot designates the render root. The id must name a component already
// present on the surface; designating an unknown id returns ErrUnknownRoot.
func (s *Surface) SetRoot(id string) error {
	if s.deleted {
		return ErrDeleted
	}
	if !s.Has(id) {
		return fmt.Errorf("%w: %q", ErrUnknownRoot, id)
	}
	s.rootID = id
	return nil
}

// Root returns the designated render root id, or "" when none has been set.
func (s *Surface) Root() string { return s.rootID }

// Delete marks the surface as deleted. Any subsequent mutation returns
// ErrDeleted; the id is never reused.
func (s *Surface) Delete() { s.deleted = true }

// Deleted reports whether the surface has been deleted.
func (s *Surface) Deleted() bool { return s.deleted }

// PathRef builds a data-model path reference suitable for use as a component
// property value. The client resolves the reference against the surface data
// model, enabling two-way binding.
func PathRef(path string) map[string]any {
	return map[string]any{"path": path}
}

// RefPath extracts the data-model path from a property value previously built
// with PathRef. The second return value reports whether v is a path reference.
func RefPath(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	p, ok := m["path"].(string)
	return p, ok
}
