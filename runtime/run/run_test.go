package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/canvas/runtime/agents"
	"goa.design/canvas/runtime/artifacts/memory"
	"goa.design/canvas/runtime/bridge"
	"goa.design/canvas/runtime/model"
	"goa.design/canvas/runtime/surface"
	"goa.design/canvas/runtime/uitools"
	"goa.design/canvas/runtime/wire"
)

// uiClient requests one chart tool call, then finishes with a short text.
type uiClient struct{}

func (uiClient) Complete(_ context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 1 {
		return &model.Response{ToolCalls: []model.ToolCall{{
			ID:      "c1",
			Name:    "chart",
			Payload: map[string]any{"title": "CPU"},
		}}}, nil
	}
	return &model.Response{Content: []model.Message{{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: "Done."}},
	}}}, nil
}

func (uiClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// textClient answers in plain text without streaming support.
type textClient struct{}

func (textClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Content: []model.Message{{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: "plain answer"}},
	}}}, nil
}

func (textClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// failingClient always fails the model invocation.
type failingClient struct{}

func (failingClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, errors.New("provider down")
}

func (failingClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func chartRegistry(t *testing.T) *uitools.Registry {
	t.Helper()
	reg := uitools.NewRegistry()
	require.NoError(t, reg.Register(uitools.New("chart", "Render a chart.", nil,
		func(_ context.Context, args map[string]any) (*uitools.Result, error) {
			title, _ := args["title"].(string)
			return &uitools.Result{
				Components: []surface.Component{{
					ID:    "chart-1",
					Kind:  "BarChart",
					Props: map[string]any{"title": title, "series": surface.PathRef("/charts/chart-1/series")},
				}},
				Data: &surface.Fragment{
					Path:     "/charts/chart-1",
					Contents: map[string]any{"series": map[string]any{"a": 1.0}},
				},
			}, nil
		})))
	return reg
}

// drainRun collects every bridge event until the run terminates.
func drainRun(t *testing.T, h *bridge.Handle) ([]bridge.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []bridge.Event
	for {
		ev, err := h.Next(ctx)
		if errors.Is(err, bridge.ErrNoEvent) {
			continue
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestUIRunEmitsFramesInProtocolOrder(t *testing.T) {
	store := memory.New(memory.Options{})
	runner, err := NewRunner(Options{
		Model:     uiClient{},
		Tools:     chartRegistry(t),
		Artifacts: store,
	})
	require.NoError(t, err)

	rc, err := runner.Start(context.Background(), "show me a cpu chart")
	require.NoError(t, err)
	require.NotEmpty(t, rc.RunID)
	require.NotEmpty(t, rc.SurfaceID)

	events, err := drainRun(t, rc.Handle())
	require.ErrorIs(t, err, bridge.ErrDone)

	// started, surfaceUpdate, dataModelUpdate, beginRendering, text, finished.
	require.Len(t, events, 6)

	started, ok := events[0].(bridge.LifecycleMarker)
	require.True(t, ok)
	require.Equal(t, bridge.PhaseStarted, started.Phase)

	su := frameOf(t, events[1])
	require.Equal(t, wire.TypeSurfaceUpdate, su.Type())
	require.Equal(t, rc.SurfaceID, su.SurfaceUpdate.SurfaceID)
	require.Len(t, su.SurfaceUpdate.Components, 1)

	dm := frameOf(t, events[2])
	require.Equal(t, wire.TypeDataModelUpdate, dm.Type())
	require.Equal(t, "/charts/chart-1", dm.DataModelUpdate.Path)

	br := frameOf(t, events[3])
	require.Equal(t, wire.TypeBeginRendering, br.Type())
	require.Equal(t, "chart-1", br.BeginRendering.RootComponentID)

	text, ok := events[4].(bridge.TextDelta)
	require.True(t, ok)
	require.Equal(t, "Done.", text.Text)

	finished, ok := events[5].(bridge.LifecycleMarker)
	require.True(t, ok)
	require.Equal(t, bridge.PhaseFinished, finished.Phase)

	// The run-owned surface reflects the published frames.
	require.Equal(t, 1, rc.Surface().Len())
	require.Equal(t, "chart-1", rc.Surface().Root())
	v, ok := rc.Data().Resolve("/charts/chart-1/series")
	require.True(t, ok)
	require.NotNil(t, v)

	// The finalized surface was captured as an artifact.
	require.Equal(t, 1, store.Len())
	require.Equal(t, 0, runner.ActiveRuns())
}

func TestTextRunEmitsPlainText(t *testing.T) {
	runner, err := NewRunner(Options{
		Model: textClient{},
		Tools: uitools.NewRegistry(),
		Agents: func() *agents.Registry {
			reg := agents.NewRegistry()
			require.NoError(t, reg.Register(agents.Agent{Name: "explainer", Keywords: []string{"explain"}}))
			return reg
		}(),
	})
	require.NoError(t, err)

	rc, err := runner.Start(context.Background(), "explain this")
	require.NoError(t, err)
	require.Equal(t, "explainer", rc.Agent.Name)

	events, err := drainRun(t, rc.Handle())
	require.ErrorIs(t, err, bridge.ErrDone)
	require.Len(t, events, 3)
	td, ok := events[1].(bridge.TextDelta)
	require.True(t, ok)
	require.Equal(t, "plain answer", td.Text)
	require.Equal(t, "plain answer", rc.Handle().Text())
}

func TestFailedRunRaisesProducerError(t *testing.T) {
	runner, err := NewRunner(Options{Model: failingClient{}, Tools: chartRegistry(t)})
	require.NoError(t, err)

	rc, err := runner.Start(context.Background(), "anything")
	require.NoError(t, err)

	events, err := drainRun(t, rc.Handle())
	require.Error(t, err)
	require.NotErrorIs(t, err, bridge.ErrDone)
	require.Contains(t, err.Error(), "provider down")

	// Only the started marker made it out; no finished marker after failure.
	require.Len(t, events, 1)
	_, err = rc.Handle().Next(context.Background())
	require.ErrorIs(t, err, bridge.ErrDone)
}

// gatedClient blocks in Complete until released so tests can interact with
// the run while it is still active.
type gatedClient struct {
	release chan struct{}
	inner   uiClient
}

func (c *gatedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.inner.Complete(ctx, req)
}

func (c *gatedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func TestDispatchAction(t *testing.T) {
	gate := &gatedClient{release: make(chan struct{})}
	runner, err := NewRunner(Options{Model: gate, Tools: chartRegistry(t)})
	require.NoError(t, err)

	rc, err := runner.Start(context.Background(), "chart")
	require.NoError(t, err)

	action := wire.UserAction{
		Name:              "toggle",
		SurfaceID:         rc.SurfaceID,
		SourceComponentID: "chart-1",
		Timestamp:         "2026-08-24T12:00:00Z",
	}
	require.NoError(t, runner.DispatchAction(context.Background(), action))

	select {
	case got := <-rc.Actions():
		require.Equal(t, "toggle", got.Name)
	case <-time.After(time.Second):
		t.Fatal("action not delivered")
	}

	err = runner.DispatchAction(context.Background(), wire.UserAction{SurfaceID: "unknown"})
	require.ErrorIs(t, err, ErrUnknownSurface)

	close(gate.release)
	_, err = drainRun(t, rc.Handle())
	require.ErrorIs(t, err, bridge.ErrDone)

	// A finished run no longer owns its surface.
	err = runner.DispatchAction(context.Background(), action)
	require.ErrorIs(t, err, ErrUnknownSurface)
}

func TestDispatchActionHook(t *testing.T) {
	var hooked []wire.UserAction
	gate := &gatedClient{release: make(chan struct{})}
	runner, err := NewRunner(Options{
		Model: gate,
		Tools: chartRegistry(t),
		OnAction: func(_ context.Context, _ *Context, a wire.UserAction) error {
			hooked = append(hooked, a)
			return nil
		},
	})
	require.NoError(t, err)

	rc, err := runner.Start(context.Background(), "chart")
	require.NoError(t, err)
	require.NoError(t, runner.DispatchAction(context.Background(), wire.UserAction{Name: "go", SurfaceID: rc.SurfaceID}))
	require.Len(t, hooked, 1)

	close(gate.release)
	_, err = drainRun(t, rc.Handle())
	require.ErrorIs(t, err, bridge.ErrDone)
}

func TestCancelMidStreamWithholdsRemainingFrames(t *testing.T) {
	store := memory.New(memory.Options{})
	runner, err := NewRunner(Options{
		Model:     uiClient{},
		Tools:     chartRegistry(t),
		Artifacts: store,
	})
	require.NoError(t, err)

	rc, err := runner.Start(context.Background(), "show me a cpu chart")
	require.NoError(t, err)
	h := rc.Handle()

	// Consume exactly two of the events the run emits, then disconnect.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var delivered []bridge.Event
	for len(delivered) < 2 {
		ev, err := h.Next(ctx)
		if errors.Is(err, bridge.ErrNoEvent) {
			continue
		}
		require.NoError(t, err)
		delivered = append(delivered, ev)
	}
	h.Cancel()

	// Nothing else is delivered, queued events included.
	_, err = h.Next(ctx)
	require.ErrorIs(t, err, bridge.ErrCanceled)

	// No terminal frame or marker made it out before the disconnect.
	for _, ev := range delivered {
		switch v := ev.(type) {
		case bridge.FrameEvent:
			frame, ok := v.Frame.(wire.Frame)
			require.True(t, ok)
			require.Nil(t, frame.BeginRendering)
		case bridge.LifecycleMarker:
			require.NotEqual(t, bridge.PhaseFinished, v.Phase)
		}
	}

	require.Eventually(t, func() bool { return runner.ActiveRuns() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	_, err := NewRunner(Options{Tools: uitools.NewRegistry()})
	require.Error(t, err)
	_, err = NewRunner(Options{Model: textClient{}})
	require.Error(t, err)
}

func frameOf(t *testing.T, ev bridge.Event) wire.Frame {
	t.Helper()
	fe, ok := ev.(bridge.FrameEvent)
	require.True(t, ok)
	frame, ok := fe.Frame.(wire.Frame)
	require.True(t, ok)
	return frame
}
