package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/canvas/runtime/surface"
)

func serverFrames() []Frame {
	return []Frame{
		NewSurfaceUpdate("s1",
			surface.Component{ID: "a", Kind: "Text", Props: map[string]any{"text": "hello"}},
			surface.Component{ID: "b", Kind: "Divider"},
		),
		NewDataModelUpdate("s1", surface.Fragment{
			Path:     "/forms/f1",
			Contents: map[string]any{"option0": false, "option1": true, "count": 3.0},
		}),
		NewBeginRendering("s1", "a"),
		NewDeleteSurface("s1"),
	}
}

func TestRoundTripSSE(t *testing.T) {
	var codec Codec
	for _, frame := range serverFrames() {
		encoded, err := codec.EncodeSSE(frame)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(encoded, "data: "))
		require.True(t, strings.HasSuffix(encoded, "\n\n"))

		decoded, err := codec.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, frame, decoded)
	}
}

func TestRoundTripJSONL(t *testing.T) {
	var codec Codec
	for _, frame := range serverFrames() {
		encoded, err := codec.EncodeJSONL(frame)
		require.NoError(t, err)
		require.False(t, strings.HasPrefix(encoded, "data: "))
		require.True(t, strings.HasSuffix(encoded, "\n"))

		decoded, err := codec.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, frame, decoded)
	}
}

func TestRoundTripClientFrames(t *testing.T) {
	var codec Codec
	frames := []Frame{
		{UserAction: &UserAction{
			Name:              "toggle",
			SurfaceID:         "s1",
			SourceComponentID: "b0",
			Timestamp:         "2026-08-24T12:00:00Z",
			Context:           map[string]any{"checked": true},
		}},
		NewError("validation_failed", "s1", "/forms/f1", "value out of range"),
	}
	for _, frame := range frames {
		encoded, err := codec.EncodeJSONL(frame)
		require.NoError(t, err)
		decoded, err := codec.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, frame, decoded)
	}
}

func TestWireFieldNames(t *testing.T) {
	data, err := json.Marshal(NewBeginRendering("s1", "root"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"beginRendering","surfaceId":"s1","rootComponentId":"root"}`, string(data))

	data, err = json.Marshal(NewSurfaceUpdate("s1", surface.Component{ID: "a", Kind: "Text"}))
	require.NoError(t, err)
	// The component payload is a single-key map of kind to props; nil props
	// encode as an empty object.
	require.JSONEq(t, `{"type":"surfaceUpdate","surfaceId":"s1","components":[{"id":"a","component":{"Text":{}}}]}`, string(data))
}

func TestDataModelUpdateEntriesSorted(t *testing.T) {
	frame := NewDataModelUpdate("s1", surface.Fragment{
		Path:     "/x",
		Contents: map[string]any{"zeta": 1.0, "alpha": 2.0, "mid": 3.0},
	})
	keys := make([]string, 0, 3)
	for _, e := range frame.DataModelUpdate.Contents {
		keys = append(keys, e.Key)
	}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, keys)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	var codec Codec
	_, err := codec.Decode(`{"type":"mystery","surfaceId":"s1"}`)
	require.ErrorIs(t, err, ErrUnknownFrameType)
}

func TestDecodeRejectsMultiKindComponent(t *testing.T) {
	var codec Codec
	_, err := codec.Decode(`{"type":"surfaceUpdate","surfaceId":"s1","components":[{"id":"a","component":{"Text":{},"Row":{}}}]}`)
	require.Error(t, err)
}

func TestMarshalRejectsInvalidUnion(t *testing.T) {
	_, err := json.Marshal(Frame{})
	require.Error(t, err)

	_, err = json.Marshal(Frame{
		DeleteSurface:  &DeleteSurface{SurfaceID: "s1"},
		BeginRendering: &BeginRendering{SurfaceID: "s1", RootComponentID: "a"},
	})
	require.Error(t, err)
}

func TestEncodeBatchPreservesOrder(t *testing.T) {
	var codec Codec
	frames := serverFrames()

	batch, err := codec.EncodeBatchJSONL(frames)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(batch, "\n"), "\n")
	require.Len(t, lines, len(frames))
	for i, line := range lines {
		decoded, err := codec.Decode(line)
		require.NoError(t, err)
		require.Equal(t, frames[i].Type(), decoded.Type())
	}

	sseBatch, err := codec.EncodeBatchSSE(frames)
	require.NoError(t, err)
	require.Equal(t, len(frames), strings.Count(sseBatch, "data: "))
}

func TestClassifyServer(t *testing.T) {
	var codec Codec
	cases := []struct {
		name   string
		line   string
		server bool
	}{
		{"surface update", `{"type":"surfaceUpdate","surfaceId":"s1","components":[]}`, true},
		{"begin rendering", `{"type":"beginRendering","surfaceId":"s1","rootComponentId":"a"}`, true},
		{"user action", `{"type":"userAction","name":"go","surfaceId":"s1","sourceComponentId":"a","timestamp":"t"}`, false},
		{"text event", `{"type":"textDelta","text":"hi"}`, false},
		{"not json", `hello`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.server, codec.ClassifyServer([]byte(tc.line)))
		})
	}
}
