// Package wire defines the protocol frames exchanged between a run and its
// client, and the codec that moves them over line-oriented transports. The
// server→client family (surface updates, data model updates, render roots,
// surface deletion) drives the declarative UI; the client→server family
// (user actions, client errors) closes the loop.
//
// Frames are a tagged union discriminated by the "type" field. External field
// names use camelCase and are distinct from the internal Go naming; the alias
// table lives in the codec envelopes and is applied identically in both
// directions. Unknown discriminants are rejected, never silently ignored.
package wire

import "goa.design/canvas/runtime/surface"

// FrameType discriminates the frame union on the wire.
type FrameType string

const (
	// TypeSurfaceUpdate introduces or replaces components on a surface. It
	// must precede any frame referencing those components.
	TypeSurfaceUpdate FrameType = "surfaceUpdate"

	// TypeDataModelUpdate sets path-addressed data model entries. Later
	// updates for the same (path, key) override earlier ones.
	TypeDataModelUpdate FrameType = "dataModelUpdate"

	// TypeBeginRendering designates the render root. It is the last frame of
	// a construction cycle and its root must already exist on the surface.
	TypeBeginRendering FrameType = "beginRendering"

	// TypeDeleteSurface removes a surface; any later operation on the same
	// surface id is invalid.
	TypeDeleteSurface FrameType = "deleteSurface"

	// TypeUserAction reports a client-side interaction with an actionable
	// component.
	TypeUserAction FrameType = "userAction"

	// TypeError reports a client-side failure (validation, render error).
	TypeError FrameType = "error"
)

// ServerBound reports whether the frame type belongs to the server→client
// protocol family. Transports use this to triage mixed streams that
// interleave protocol frames with plain agent-text events.
func (t FrameType) ServerBound() bool {
	switch t {
	case TypeSurfaceUpdate, TypeDataModelUpdate, TypeBeginRendering, TypeDeleteSurface:
		return true
	}
	return false
}

// ClientBound reports whether the frame type belongs to the client→server
// protocol family.
func (t FrameType) ClientBound() bool {
	switch t {
	case TypeUserAction, TypeError:
		return true
	}
	return false
}

type (
	// Frame is the wire-level discriminated union. Exactly one member is
	// non-nil; the codec rejects frames violating this. Frames are immutable
	// once constructed: producers create them, the codec serializes them
	// once, and nothing mutates them afterwards.
	Frame struct {
		SurfaceUpdate   *SurfaceUpdate
		DataModelUpdate *DataModelUpdate
		BeginRendering  *BeginRendering
		DeleteSurface   *DeleteSurface
		UserAction      *UserAction
		Error           *ErrorMessage
	}

	// SurfaceUpdate introduces or replaces components on a surface.
	SurfaceUpdate struct {
		// SurfaceID addresses the target surface.
		SurfaceID string
		// Components lists the components to add or replace, in introduction
		// order.
		Components []surface.Component
	}

	// DataModelUpdate sets entries beneath a data model path.
	DataModelUpdate struct {
		// SurfaceID addresses the target surface.
		SurfaceID string
		// Path addresses the sub-tree the entries apply to. Empty targets the
		// data model root and is omitted on the wire.
		Path string
		// Contents lists the key/value entries to set at Path, in send order.
		Contents []Entry
	}

	// Entry is one typed data model assignment. Value is a JSON scalar
	// (string, number, boolean) or a nested map.
	Entry struct {
		Key   string
		Value any
	}

	// BeginRendering designates the render root for a surface.
	BeginRendering struct {
		// SurfaceID addresses the target surface.
		SurfaceID string
		// RootComponentID names the component to render as the surface root.
		// It must already have been introduced by a SurfaceUpdate.
		RootComponentID string
	}

	// DeleteSurface removes a surface.
	DeleteSurface struct {
		// SurfaceID addresses the surface to remove.
		SurfaceID string
	}

	// UserAction reports a client interaction, for example a button press.
	UserAction struct {
		// Name identifies the action as authored in the component payload.
		Name string
		// SurfaceID addresses the surface the action originated from.
		SurfaceID string
		// SourceComponentID names the component that fired the action.
		SourceComponentID string
		// Timestamp is an ISO-8601 instant supplied by the client. The
		// runtime carries it opaquely and does not parse or validate it.
		Timestamp string
		// Context carries resolved values attached to the action: literals
		// from the component payload or values resolved from data model paths
		// on the client.
		Context map[string]any
	}

	// ErrorMessage reports a client-side failure.
	ErrorMessage struct {
		// Code classifies the failure.
		Code string
		// SurfaceID addresses the surface the failure relates to, if any.
		SurfaceID string
		// Path locates the failing component or data node, if any.
		Path string
		// Message is the human-readable description.
		Message string
	}
)

// Type returns the discriminant of the single set member, or "" for a zero
// frame.
func (f Frame) Type() FrameType {
	switch {
	case f.SurfaceUpdate != nil:
		return TypeSurfaceUpdate
	case f.DataModelUpdate != nil:
		return TypeDataModelUpdate
	case f.BeginRendering != nil:
		return TypeBeginRendering
	case f.DeleteSurface != nil:
		return TypeDeleteSurface
	case f.UserAction != nil:
		return TypeUserAction
	case f.Error != nil:
		return TypeError
	}
	return ""
}

// ServerBound reports whether the frame belongs to the server→client family.
func (f Frame) ServerBound() bool { return f.Type().ServerBound() }

// NewSurfaceUpdate builds a surfaceUpdate frame.
func NewSurfaceUpdate(surfaceID string, components ...surface.Component) Frame {
	return Frame{SurfaceUpdate: &SurfaceUpdate{SurfaceID: surfaceID, Components: components}}
}

// NewDataModelUpdate builds a dataModelUpdate frame from a data fragment,
// preserving the fragment's own path. Entries are emitted in sorted key order
// so the frame serializes deterministically.
func NewDataModelUpdate(surfaceID string, fragment surface.Fragment) Frame {
	return Frame{DataModelUpdate: &DataModelUpdate{
		SurfaceID: surfaceID,
		Path:      fragment.Path,
		Contents:  entriesOf(fragment.Contents),
	}}
}

// NewBeginRendering builds a beginRendering frame.
func NewBeginRendering(surfaceID, rootComponentID string) Frame {
	return Frame{BeginRendering: &BeginRendering{SurfaceID: surfaceID, RootComponentID: rootComponentID}}
}

// NewDeleteSurface builds a deleteSurface frame.
func NewDeleteSurface(surfaceID string) Frame {
	return Frame{DeleteSurface: &DeleteSurface{SurfaceID: surfaceID}}
}

// NewError builds a client error frame.
func NewError(code, surfaceID, path, message string) Frame {
	return Frame{Error: &ErrorMessage{Code: code, SurfaceID: surfaceID, Path: path, Message: message}}
}
