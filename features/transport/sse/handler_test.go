package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/canvas/runtime/model"
	"goa.design/canvas/runtime/run"
	"goa.design/canvas/runtime/surface"
	"goa.design/canvas/runtime/uitools"
	"goa.design/canvas/runtime/wire"
)

// stepClient asks for one widget tool call per step until count steps
// happened, then finishes. Steps can be gated so tests control pacing.
type stepClient struct {
	count int
	gate  chan struct{}
}

func (c *stepClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	step := len(req.Messages) / 2 // system-less: user, assistant+result pairs
	if step >= c.count {
		return &model.Response{}, nil
	}
	return &model.Response{ToolCalls: []model.ToolCall{{
		ID:      fmt.Sprintf("call-%d", step),
		Name:    "widget",
		Payload: map[string]any{"n": float64(step)},
	}}}, nil
}

func (c *stepClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// failClient fails the first model invocation.
type failClient struct{}

func (failClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return nil, errors.New("provider exploded")
}

func (failClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func widgetRegistry(t *testing.T) *uitools.Registry {
	t.Helper()
	reg := uitools.NewRegistry()
	require.NoError(t, reg.Register(uitools.New("widget", "Render a widget.", nil,
		func(_ context.Context, args map[string]any) (*uitools.Result, error) {
			n, _ := args["n"].(float64)
			id := fmt.Sprintf("widget-%d", int(n))
			return &uitools.Result{
				Components: []surface.Component{{ID: id, Kind: "Widget"}},
				Data: &surface.Fragment{
					Path:     "/widgets/" + id,
					Contents: map[string]any{"n": n},
				},
			}, nil
		})))
	return reg
}

func newRunner(t *testing.T, client model.Client, opts run.Options) *run.Runner {
	t.Helper()
	opts.Model = client
	if opts.Tools == nil {
		opts.Tools = widgetRegistry(t)
	}
	runner, err := run.NewRunner(opts)
	require.NoError(t, err)
	return runner
}

func TestStreamDeliversProtocolSequence(t *testing.T) {
	runner := newRunner(t, &stepClient{count: 2}, run.Options{})
	srv := httptest.NewServer(NewStreamHandler(runner))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?q=two+widgets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var payloads []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())

	// lifecycle started, surfaceUpdate, 2 dataModelUpdates, beginRendering,
	// lifecycle finished.
	require.Len(t, payloads, 6)

	var codec wire.Codec
	require.False(t, codec.ClassifyServer([]byte(payloads[0])))

	frame, err := codec.Decode(payloads[1])
	require.NoError(t, err)
	require.Equal(t, wire.TypeSurfaceUpdate, frame.Type())
	// Two widgets plus the synthesized container.
	require.Len(t, frame.SurfaceUpdate.Components, 3)

	for _, payload := range payloads[2:4] {
		frame, err = codec.Decode(payload)
		require.NoError(t, err)
		require.Equal(t, wire.TypeDataModelUpdate, frame.Type())
	}

	frame, err = codec.Decode(payloads[4])
	require.NoError(t, err)
	require.Equal(t, wire.TypeBeginRendering, frame.Type())
	require.True(t, strings.HasPrefix(frame.BeginRendering.RootComponentID, "root-"))

	require.False(t, codec.ClassifyServer([]byte(payloads[5])))
	require.Contains(t, payloads[5], "finished")
}

func TestStreamRequiresQuery(t *testing.T) {
	runner := newRunner(t, &stepClient{count: 1}, run.Options{})
	srv := httptest.NewServer(NewStreamHandler(runner))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientDisconnectCancelsRun(t *testing.T) {
	// The model blocks on the gate after the run starts, so the client
	// disconnects mid-run.
	client := &stepClient{count: 5, gate: make(chan struct{})}
	runner := newRunner(t, client, run.Options{})
	srv := httptest.NewServer(NewStreamHandler(runner))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?q=widgets", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "started")

	// Disconnect while the producer is still blocked in the model call.
	cancel()
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return runner.ActiveRuns() == 0
	}, 5*time.Second, 10*time.Millisecond, "run was not cancelled after disconnect")
}

func TestProducerFailureEmitsSingleErrorFrame(t *testing.T) {
	runner := newRunner(t, failClient{}, run.Options{})
	srv := httptest.NewServer(NewStreamHandler(runner))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?q=anything")
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var payloads []string
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}

	// started marker, then exactly one terminal error frame.
	require.Len(t, payloads, 2)
	var codec wire.Codec
	frame, err := codec.Decode(payloads[1])
	require.NoError(t, err)
	require.Equal(t, wire.TypeError, frame.Type())
	require.Equal(t, "run_failed", frame.Error.Code)
	require.Contains(t, frame.Error.Message, "provider exploded")
}

func TestActionHandlerDispatches(t *testing.T) {
	gate := make(chan struct{})
	client := &stepClient{count: 1, gate: gate}
	runner := newRunner(t, client, run.Options{})

	rc, err := runner.Start(context.Background(), "widget")
	require.NoError(t, err)

	srv := httptest.NewServer(NewActionHandler(runner))
	defer srv.Close()

	var codec wire.Codec
	body, err := codec.EncodeJSONL(wire.Frame{UserAction: &wire.UserAction{
		Name:              "tap",
		SurfaceID:         rc.SurfaceID,
		SourceComponentID: "widget-0",
		Timestamp:         "2026-08-24T12:00:00Z",
	}})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL, "application/jsonl", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case action := <-rc.Actions():
		require.Equal(t, "tap", action.Name)
		require.Equal(t, "widget-0", action.SourceComponentID)
	case <-time.After(time.Second):
		t.Fatal("action not delivered to run")
	}

	close(gate)
	rc.Handle().Cancel()
}

func TestActionHandlerRejectsUnknownSurface(t *testing.T) {
	runner := newRunner(t, &stepClient{count: 1}, run.Options{})
	srv := httptest.NewServer(NewActionHandler(runner))
	defer srv.Close()

	var codec wire.Codec
	body, err := codec.EncodeJSONL(wire.Frame{UserAction: &wire.UserAction{
		Name:      "tap",
		SurfaceID: "ghost",
	}})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL, "application/jsonl", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActionHandlerRejectsServerFramesAndBadInput(t *testing.T) {
	runner := newRunner(t, &stepClient{count: 1}, run.Options{})
	srv := httptest.NewServer(NewActionHandler(runner))
	defer srv.Close()

	var codec wire.Codec
	body, err := codec.EncodeJSONL(wire.NewDeleteSurface("s1"))
	require.NoError(t, err)
	resp, err := http.Post(srv.URL, "application/jsonl", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL, "application/jsonl", strings.NewReader(`{"type":"mystery"}`+"\n"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
