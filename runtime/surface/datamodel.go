package surface

import (
	"fmt"
	"strings"
)

type (
	// Fragment is one path-addressed slice of surface state: a JSON-Pointer
	// style path plus the key→value entries to set beneath it. Values are
	// restricted to JSON scalar types and nested maps. Fragments from
	// different producers keep their own paths; they are never merged into a
	// combined path, which would corrupt lookups for components bound to
	// distinct sub-trees.
	Fragment struct {
		// Path addresses the sub-tree the entries apply to. Empty or "/"
		// targets the data model root.
		Path string

		// Contents holds the entries to set at Path. Later fragments override
		// earlier ones per (path, key).
		Contents map[string]any
	}

	// DataModel is the state tree bound to a surface. Updates apply in send
	// order with last-write-wins semantics per (path, key).
	DataModel struct {
		root map[string]any
	}
)

// NewDataModel creates an empty data model.
func NewDataModel() *DataModel {
	return &DataModel{root: make(map[string]any)}
}

// Apply sets the fragment's entries at its path, creating intermediate maps
// as needed. An intermediate path segment that addresses a non-map value is
// an error: scalar nodes are replaced only by targeting them directly.
func (m *DataModel) Apply(f Fragment) error {
	node, err := m.nodeAt(f.Path, true)
	if err != nil {
		return err
	}
	for k, v := range f.Contents {
		node[k] = v
	}
	return nil
}

// Resolve looks up the value at the given path. The second return value
// reports whether the path exists.
func (m *DataModel) Resolve(path string) (any, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return m.root, true
	}
	var cur any = m.root
	for _, seg := range segments {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// nodeAt walks to the map at path, optionally creating missing intermediate
// maps along the way.
func (m *DataModel) nodeAt(path string, create bool) (map[string]any, error) {
	node := m.root
	for _, seg := range splitPath(path) {
		child, ok := node[seg]
		if !ok {
			if !create {
				return nil, fmt.Errorf("surface: path %q not found", path)
			}
			next := make(map[string]any)
			node[seg] = next
			node = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("surface: path %q crosses non-map node %q", path, seg)
		}
		node = next
	}
	return node, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
