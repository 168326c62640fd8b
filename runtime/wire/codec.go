package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"goa.design/canvas/runtime/surface"
)

// Codec is the pure, stateless transform between frames and their wire
// forms. Two framings are supported: Server-Sent Events ("data: <json>\n\n")
// and line-delimited JSON ("<json>\n"). Decoding accepts either form and
// reconstructs the identical frame.
type Codec struct{}

// ErrUnknownFrameType is returned when a decoded frame carries a discriminant
// outside the protocol. Unknown types are rejected explicitly rather than
// silently ignored.
var ErrUnknownFrameType = errors.New("wire: unknown frame type")

type (
	// Envelope alias tables. These structs define the external camelCase
	// field names; they are the single source of truth for both encoding and
	// decoding.
	surfaceUpdateEnvelope struct {
		Type       FrameType           `json:"type"`
		SurfaceID  string              `json:"surfaceId"`
		Components []componentEnvelope `json:"components"`
	}

	componentEnvelope struct {
		ID        string                    `json:"id"`
		Component map[string]map[string]any `json:"component"`
	}

	dataModelUpdateEnvelope struct {
		Type      FrameType       `json:"type"`
		SurfaceID string          `json:"surfaceId"`
		Path      string          `json:"path,omitempty"`
		Contents  []entryEnvelope `json:"contents"`
	}

	entryEnvelope struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}

	beginRenderingEnvelope struct {
		Type            FrameType `json:"type"`
		SurfaceID       string    `json:"surfaceId"`
		RootComponentID string    `json:"rootComponentId"`
	}

	deleteSurfaceEnvelope struct {
		Type      FrameType `json:"type"`
		SurfaceID string    `json:"surfaceId"`
	}

	userActionEnvelope struct {
		Type              FrameType      `json:"type"`
		Name              string         `json:"name"`
		SurfaceID         string         `json:"surfaceId"`
		SourceComponentID string         `json:"sourceComponentId"`
		Timestamp         string         `json:"timestamp"`
		Context           map[string]any `json:"context,omitempty"`
	}

	errorEnvelope struct {
		Type      FrameType `json:"type"`
		Code      string    `json:"code"`
		SurfaceID string    `json:"surfaceId,omitempty"`
		Path      string    `json:"path,omitempty"`
		Message   string    `json:"message"`
	}
)

// MarshalJSON serializes the frame into its flat wire object. Zero frames and
// frames with more than one member set are rejected.
func (f Frame) MarshalJSON() ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	switch f.Type() {
	case TypeSurfaceUpdate:
		return json.Marshal(surfaceUpdateEnvelope{
			Type:       TypeSurfaceUpdate,
			SurfaceID:  f.SurfaceUpdate.SurfaceID,
			Components: encodeComponents(f.SurfaceUpdate.Components),
		})
	case TypeDataModelUpdate:
		contents := make([]entryEnvelope, 0, len(f.DataModelUpdate.Contents))
		for _, e := range f.DataModelUpdate.Contents {
			contents = append(contents, entryEnvelope{Key: e.Key, Value: e.Value})
		}
		return json.Marshal(dataModelUpdateEnvelope{
			Type:      TypeDataModelUpdate,
			SurfaceID: f.DataModelUpdate.SurfaceID,
			Path:      f.DataModelUpdate.Path,
			Contents:  contents,
		})
	case TypeBeginRendering:
		return json.Marshal(beginRenderingEnvelope{
			Type:            TypeBeginRendering,
			SurfaceID:       f.BeginRendering.SurfaceID,
			RootComponentID: f.BeginRendering.RootComponentID,
		})
	case TypeDeleteSurface:
		return json.Marshal(deleteSurfaceEnvelope{
			Type:      TypeDeleteSurface,
			SurfaceID: f.DeleteSurface.SurfaceID,
		})
	case TypeUserAction:
		return json.Marshal(userActionEnvelope{
			Type:              TypeUserAction,
			Name:              f.UserAction.Name,
			SurfaceID:         f.UserAction.SurfaceID,
			SourceComponentID: f.UserAction.SourceComponentID,
			Timestamp:         f.UserAction.Timestamp,
			Context:           f.UserAction.Context,
		})
	case TypeError:
		return json.Marshal(errorEnvelope{
			Type:      TypeError,
			Code:      f.Error.Code,
			SurfaceID: f.Error.SurfaceID,
			Path:      f.Error.Path,
			Message:   f.Error.Message,
		})
	}
	return nil, errors.New("wire: frame has no member set")
}

// UnmarshalJSON reconstructs a frame from its wire object, dispatching on the
// discriminant.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	switch probe.Type {
	case TypeSurfaceUpdate:
		var env surfaceUpdateEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("wire: decode surfaceUpdate: %w", err)
		}
		components, err := decodeComponents(env.Components)
		if err != nil {
			return err
		}
		*f = Frame{SurfaceUpdate: &SurfaceUpdate{SurfaceID: env.SurfaceID, Components: components}}
	case TypeDataModelUpdate:
		var env dataModelUpdateEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("wire: decode dataModelUpdate: %w", err)
		}
		contents := make([]Entry, 0, len(env.Contents))
		for _, e := range env.Contents {
			contents = append(contents, Entry{Key: e.Key, Value: e.Value})
		}
		*f = Frame{DataModelUpdate: &DataModelUpdate{SurfaceID: env.SurfaceID, Path: env.Path, Contents: contents}}
	case TypeBeginRendering:
		var env beginRenderingEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("wire: decode beginRendering: %w", err)
		}
		*f = Frame{BeginRendering: &BeginRendering{SurfaceID: env.SurfaceID, RootComponentID: env.RootComponentID}}
	case TypeDeleteSurface:
		var env deleteSurfaceEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("wire: decode deleteSurface: %w", err)
		}
		*f = Frame{DeleteSurface: &DeleteSurface{SurfaceID: env.SurfaceID}}
	case TypeUserAction:
		var env userActionEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("wire: decode userAction: %w", err)
		}
		*f = Frame{UserAction: &UserAction{
			Name:              env.Name,
			SurfaceID:         env.SurfaceID,
			SourceComponentID: env.SourceComponentID,
			Timestamp:         env.Timestamp,
			Context:           env.Context,
		}}
	case TypeError:
		var env errorEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("wire: decode error frame: %w", err)
		}
		*f = Frame{Error: &ErrorMessage{Code: env.Code, SurfaceID: env.SurfaceID, Path: env.Path, Message: env.Message}}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrameType, probe.Type)
	}
	return nil
}

// EncodeSSE serializes the frame in Server-Sent Events framing.
func (Codec) EncodeSSE(f Frame) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return "data: " + string(data) + "\n\n", nil
}

// EncodeJSONL serializes the frame in line-delimited framing.
func (Codec) EncodeJSONL(f Frame) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// EncodeBatchSSE serializes frames in order, concatenating their SSE forms.
func (c Codec) EncodeBatchSSE(frames []Frame) (string, error) {
	var b strings.Builder
	for _, f := range frames {
		s, err := c.EncodeSSE(f)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// EncodeBatchJSONL serializes frames in order, concatenating their
// line-delimited forms.
func (c Codec) EncodeBatchJSONL(frames []Frame) (string, error) {
	var b strings.Builder
	for _, f := range frames {
		s, err := c.EncodeJSONL(f)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Decode reconstructs a frame from either wire form. The SSE "data: " prefix
// and trailing newlines are stripped before JSON decoding.
func (Codec) Decode(line string) (Frame, error) {
	payload := strings.TrimRight(line, "\n")
	payload = strings.TrimPrefix(payload, "data: ")
	var f Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// ClassifyServer reports whether the raw JSON object is a server→client
// protocol frame, judged solely by its discriminant field. Payload shape is
// never inspected, so mixed streams of protocol frames and plain agent-text
// events can be triaged without guessing.
func (Codec) ClassifyServer(data []byte) bool {
	var probe struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Type.ServerBound()
}

func (f Frame) validate() error {
	set := 0
	if f.SurfaceUpdate != nil {
		set++
	}
	if f.DataModelUpdate != nil {
		set++
	}
	if f.BeginRendering != nil {
		set++
	}
	if f.DeleteSurface != nil {
		set++
	}
	if f.UserAction != nil {
		set++
	}
	if f.Error != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("wire: frame must have exactly one member set, got %d", set)
	}
	return nil
}

// encodeComponents maps internal components to the single-key kind envelope.
// A nil Props map encodes as an empty object.
func encodeComponents(components []surface.Component) []componentEnvelope {
	out := make([]componentEnvelope, 0, len(components))
	for _, c := range components {
		props := c.Props
		if props == nil {
			props = map[string]any{}
		}
		out = append(out, componentEnvelope{
			ID:        c.ID,
			Component: map[string]map[string]any{c.Kind: props},
		})
	}
	return out
}

// decodeComponents reverses encodeComponents. The kind map must hold exactly
// one key; empty property objects decode back to nil.
func decodeComponents(envs []componentEnvelope) ([]surface.Component, error) {
	out := make([]surface.Component, 0, len(envs))
	for _, env := range envs {
		if len(env.Component) != 1 {
			return nil, fmt.Errorf("wire: component %q payload must have exactly one kind, got %d", env.ID, len(env.Component))
		}
		var c surface.Component
		c.ID = env.ID
		for kind, props := range env.Component {
			c.Kind = kind
			if len(props) > 0 {
				c.Props = props
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// entriesOf flattens a fragment content map into deterministic sorted-key
// entries.
func entriesOf(contents map[string]any) []Entry {
	keys := make([]string, 0, len(contents))
	for k := range contents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: contents[k]})
	}
	return out
}
