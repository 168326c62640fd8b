// Package sse exposes runs over Server-Sent Events. The stream handler runs
// the consumer loop for one client connection: it drains bridge events in
// emission order, encodes protocol frames through the wire codec, forwards
// plain text deltas as non-protocol events, and cancels the run when the
// client goes away. The action handler closes the loop by decoding
// client→server frames and dispatching user actions to the owning run.
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"

	"goa.design/clue/log"

	"goa.design/canvas/runtime/bridge"
	"goa.design/canvas/runtime/run"
	"goa.design/canvas/runtime/wire"
)

type (
	// StreamHandler serves GET requests that start a run and stream its
	// events until completion or disconnect.
	StreamHandler struct {
		runner *run.Runner
		codec  wire.Codec
	}

	// ActionHandler serves POST requests carrying client→server frames in
	// line-delimited form.
	ActionHandler struct {
		runner *run.Runner
		codec  wire.Codec
	}

	// textEvent is the non-protocol envelope for plain agent text. Its type
	// is deliberately outside the protocol family so classifier-based
	// triage keeps working on mixed streams.
	textEvent struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	// lifecycleEvent is the non-protocol envelope for run phase markers.
	lifecycleEvent struct {
		Type  string `json:"type"`
		Phase string `json:"phase"`
	}
)

// NewStreamHandler builds the streaming handler for a runner.
func NewStreamHandler(runner *run.Runner) *StreamHandler {
	return &StreamHandler{runner: runner}
}

// NewActionHandler builds the action dispatch handler for a runner.
func NewActionHandler(runner *run.Runner) *ActionHandler {
	return &ActionHandler{runner: runner}
}

// ServeHTTP starts a run for the "q" query parameter and streams its events.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	rc, err := h.runner.Start(ctx, query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	handle := rc.Handle()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Printf(ctx, "run %s streaming on surface %s", rc.RunID, rc.SurfaceID)

	for {
		// Disconnect check before each bounded wait.
		if ctx.Err() != nil {
			handle.Cancel()
			return
		}
		ev, err := handle.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, bridge.ErrNoEvent):
				continue
			case errors.Is(err, bridge.ErrDone), errors.Is(err, bridge.ErrCanceled):
				return
			case ctx.Err() != nil:
				handle.Cancel()
				return
			default:
				// Producer failure: exactly one terminal error frame after
				// the queue drained.
				h.writeFrame(w, flusher, wire.NewError("run_failed", rc.SurfaceID, "", err.Error()))
				return
			}
		}

		// Disconnect check again immediately before forwarding, to shrink
		// the window where a frame is written to a dead connection.
		if ctx.Err() != nil {
			handle.Cancel()
			return
		}
		h.writeEvent(w, flusher, ev)
	}
}

// writeEvent forwards one bridge event in SSE framing.
func (h *StreamHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, ev bridge.Event) {
	switch e := ev.(type) {
	case bridge.FrameEvent:
		frame, ok := e.Frame.(wire.Frame)
		if !ok {
			return
		}
		h.writeFrame(w, flusher, frame)
	case bridge.TextDelta:
		h.writeJSON(w, flusher, textEvent{Type: "textDelta", Text: e.Text})
	case bridge.LifecycleMarker:
		h.writeJSON(w, flusher, lifecycleEvent{Type: "lifecycle", Phase: string(e.Phase)})
	}
}

func (h *StreamHandler) writeFrame(w http.ResponseWriter, flusher http.Flusher, frame wire.Frame) {
	s, err := h.codec.EncodeSSE(frame)
	if err != nil {
		return
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return
	}
	flusher.Flush()
}

func (h *StreamHandler) writeJSON(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return
	}
	flusher.Flush()
}

// ServeHTTP decodes line-delimited client frames and dispatches user actions
// to their runs. Client error frames are logged; unknown surfaces report 404.
func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	scanner := bufio.NewScanner(r.Body)
	dispatched := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		frame, err := h.codec.Decode(line)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch {
		case frame.UserAction != nil:
			if err := h.runner.DispatchAction(ctx, *frame.UserAction); err != nil {
				if errors.Is(err, run.ErrUnknownSurface) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			dispatched++
		case frame.Error != nil:
			log.Printf(ctx, "client error on surface %s: %s (%s)",
				frame.Error.SurfaceID, frame.Error.Message, frame.Error.Code)
		default:
			http.Error(w, "unexpected server frame", http.StatusBadRequest)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"dispatched": dispatched})
}
