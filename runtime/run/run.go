// Package run glues the core together: it owns the per-run context (one
// surface, one bridge, one cancellation scope), routes queries to specialist
// agents, drives the tool loop for UI agents, and emits the resulting frames
// in protocol order. Runs are fully independent: no state is shared between
// two run contexts, and a context dies with its run.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"goa.design/canvas/runtime/agents"
	"goa.design/canvas/runtime/artifacts"
	"goa.design/canvas/runtime/bridge"
	"goa.design/canvas/runtime/model"
	"goa.design/canvas/runtime/surface"
	"goa.design/canvas/runtime/toolloop"
	"goa.design/canvas/runtime/uitools"
	"goa.design/canvas/runtime/wire"
)

type (
	// Options configures a Runner. Model and Tools are required; the rest
	// defaults to single-agent, in-process behavior.
	Options struct {
		// Model is the LLM client backing all runs.
		Model model.Client

		// Tools is the UI tool registry exposed to the tool loop.
		Tools *uitools.Registry

		// Agents optionally routes queries to specialists. When nil every
		// query is treated as a UI-building request.
		Agents *agents.Registry

		// Artifacts optionally stores run outputs for later retrieval. A nil
		// store disables artifact capture.
		Artifacts artifacts.Store

		// Loop tunes the tool loop (iteration cap, container kind).
		Loop toolloop.Options

		// Bridge tunes the event bridge (queue size, poll interval).
		Bridge bridge.Options

		// Deadline caps the wall-clock duration of one run. Zero disables the
		// deadline; the tool loop's iteration cap is then the only bound.
		Deadline time.Duration

		// OnAction, when set, receives dispatched user actions synchronously.
		// When nil, actions are delivered to the run context's Actions
		// channel instead.
		OnAction func(ctx context.Context, rc *Context, action wire.UserAction) error
	}

	// Runner starts runs and dispatches user actions to them.
	Runner struct {
		opts Options
		loop *toolloop.Controller

		mu     sync.Mutex
		active map[string]*Context
	}

	// Context is the state owned by one logical run: its surface, data model,
	// bridge handle and action queue. The background task is the only mutator
	// of the surface and data model; consumers only observe immutable events
	// through the bridge handle.
	Context struct {
		// RunID uniquely identifies the run.
		RunID string
		// SurfaceID identifies the surface owned by the run.
		SurfaceID string
		// Agent is the specialist the query routed to.
		Agent agents.Agent

		surface *surface.Surface
		data    *surface.DataModel
		handle  *bridge.Handle
		actions chan wire.UserAction
	}
)

// ErrUnknownSurface is returned when an action addresses a surface no active
// run owns.
var ErrUnknownSurface = errors.New("run: no active run for surface")

// actionQueueSize bounds pending undelivered actions per run.
const actionQueueSize = 16

// NewRunner builds a Runner from the given options.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Model == nil {
		return nil, errors.New("run: model client is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("run: tool registry is required")
	}
	loop, err := toolloop.New(opts.Model, opts.Tools, opts.Loop)
	if err != nil {
		return nil, err
	}
	return &Runner{
		opts:   opts,
		loop:   loop,
		active: make(map[string]*Context),
	}, nil
}

// Start routes the query, launches the background run and returns its
// context immediately. The caller drains events through Handle and must
// cancel the handle on client disconnect.
func (r *Runner) Start(ctx context.Context, query string) (*Context, error) {
	agent := agents.Agent{Name: "default", UI: true}
	if r.opts.Agents != nil {
		routed, ok := r.opts.Agents.Route(query)
		if !ok {
			return nil, errors.New("run: agent registry is empty")
		}
		agent = routed
	}

	surfaceID := uuid.NewString()
	rc := &Context{
		RunID:     uuid.NewString(),
		SurfaceID: surfaceID,
		Agent:     agent,
		surface:   surface.New(surfaceID),
		data:      surface.NewDataModel(),
		actions:   make(chan wire.UserAction, actionQueueSize),
	}

	r.mu.Lock()
	r.active[rc.SurfaceID] = rc
	r.mu.Unlock()

	fn := func(runCtx context.Context, p *bridge.Producer) error {
		defer r.release(rc.SurfaceID)
		if r.opts.Deadline > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, r.opts.Deadline)
			defer cancel()
		}
		return r.execute(runCtx, p, rc, query)
	}
	rc.handle = bridge.Start(ctx, fn, r.opts.Bridge)
	return rc, nil
}

// DispatchAction routes a user action to the run owning its surface. With an
// OnAction hook configured the action is delivered synchronously; otherwise
// it is queued on the run context's Actions channel.
func (r *Runner) DispatchAction(ctx context.Context, action wire.UserAction) error {
	r.mu.Lock()
	rc, ok := r.active[action.SurfaceID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSurface, action.SurfaceID)
	}
	if r.opts.OnAction != nil {
		return r.opts.OnAction(ctx, rc, action)
	}
	select {
	case rc.actions <- action:
		return nil
	default:
		return fmt.Errorf("run: action queue full for surface %s", action.SurfaceID)
	}
}

// ActiveRuns returns the number of runs currently executing.
func (r *Runner) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Runner) release(surfaceID string) {
	r.mu.Lock()
	delete(r.active, surfaceID)
	r.mu.Unlock()
}

// execute is the background run body. It emits lifecycle markers around the
// agent work and upholds the protocol ordering invariant: surface update
// first, then one data model update per tool fragment, then begin rendering.
func (r *Runner) execute(ctx context.Context, p *bridge.Producer, rc *Context, query string) error {
	if err := p.Submit(ctx, bridge.LifecycleMarker{Phase: bridge.PhaseStarted}); err != nil {
		return err
	}

	var err error
	if rc.Agent.UI {
		err = r.executeUI(ctx, p, rc, query)
	} else {
		err = r.executeText(ctx, p, rc, query)
	}
	if err != nil {
		log.Errorf(ctx, err, "run %s failed", rc.RunID)
		return err
	}

	// The finished marker is never emitted after cancellation: a cancelled
	// context fails the Submit instead.
	return p.Submit(ctx, bridge.LifecycleMarker{Phase: bridge.PhaseFinished})
}

// executeUI drives the tool loop and publishes the finalized surface.
func (r *Runner) executeUI(ctx context.Context, p *bridge.Producer, rc *Context, query string) error {
	conversation := r.conversation(rc.Agent, query)
	res, err := r.loop.Run(ctx, conversation)
	if err != nil {
		return err
	}

	// Mutate the run-owned surface first so invariant violations surface
	// here rather than on the client.
	if err := rc.surface.Apply(res.Components...); err != nil {
		return err
	}
	for _, fragment := range res.Fragments {
		if err := rc.data.Apply(fragment); err != nil {
			return err
		}
	}
	if err := rc.surface.SetRoot(res.RootID); err != nil {
		return err
	}

	if err := p.Submit(ctx, bridge.FrameEvent{Frame: wire.NewSurfaceUpdate(rc.SurfaceID, res.Components...)}); err != nil {
		return err
	}
	for _, fragment := range res.Fragments {
		if err := p.Submit(ctx, bridge.FrameEvent{Frame: wire.NewDataModelUpdate(rc.SurfaceID, fragment)}); err != nil {
			return err
		}
	}
	if err := p.Submit(ctx, bridge.FrameEvent{Frame: wire.NewBeginRendering(rc.SurfaceID, res.RootID)}); err != nil {
		return err
	}
	if res.FinalText != "" {
		if err := p.Submit(ctx, bridge.TextDelta{Text: res.FinalText}); err != nil {
			return err
		}
	}

	r.storeArtifact(ctx, rc, res)
	return nil
}

// executeText streams a plain text answer, falling back to a single
// completion when the provider does not stream.
func (r *Runner) executeText(ctx context.Context, p *bridge.Producer, rc *Context, query string) error {
	req := &model.Request{Messages: r.conversation(rc.Agent, query)}
	streamer, err := r.opts.Model.Stream(ctx, req)
	if errors.Is(err, model.ErrStreamingUnsupported) {
		resp, cerr := r.opts.Model.Complete(ctx, req)
		if cerr != nil {
			return cerr
		}
		if text := resp.Text(); text != "" {
			return p.Submit(ctx, bridge.TextDelta{Text: text})
		}
		return nil
	}
	if err != nil {
		return err
	}
	defer streamer.Close()
	for {
		chunk, err := streamer.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk.Type == model.ChunkTypeText && chunk.Text != "" {
			if err := p.Submit(ctx, bridge.TextDelta{Text: chunk.Text}); err != nil {
				return err
			}
		}
	}
}

// conversation builds the initial history for an agent and query.
func (r *Runner) conversation(agent agents.Agent, query string) []*model.Message {
	msgs := make([]*model.Message, 0, 2)
	if agent.SystemPrompt != "" {
		msgs = append(msgs, &model.Message{
			Role:  model.ConversationRoleSystem,
			Parts: []model.Part{model.TextPart{Text: agent.SystemPrompt}},
		})
	}
	msgs = append(msgs, &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: query}},
	})
	return msgs
}

// storeArtifact captures the finalized surface in the artifact store when one
// is configured. Store failures are logged, never fatal: the record may be
// recreated on the next turn.
func (r *Runner) storeArtifact(ctx context.Context, rc *Context, res *toolloop.Result) {
	if r.opts.Artifacts == nil {
		return
	}
	frame := wire.NewSurfaceUpdate(rc.SurfaceID, res.Components...)
	data, err := frame.MarshalJSON()
	if err != nil {
		log.Errorf(ctx, err, "encode surface artifact for run %s", rc.RunID)
		return
	}
	if _, err := r.opts.Artifacts.Put(ctx, &artifacts.Artifact{Kind: "surface", Data: data}, rc.RunID); err != nil {
		log.Errorf(ctx, err, "store surface artifact for run %s", rc.RunID)
	}
}

// Handle returns the consumer side of the run's bridge.
func (rc *Context) Handle() *bridge.Handle { return rc.handle }

// Actions returns the queue of dispatched user actions for runs without an
// OnAction hook.
func (rc *Context) Actions() <-chan wire.UserAction { return rc.actions }

// Surface returns the run-owned surface. Only the background task mutates
// it; callers must treat it as read-only.
func (rc *Context) Surface() *surface.Surface { return rc.surface }

// Data returns the run-owned data model. Read-only for callers.
func (rc *Context) Data() *surface.DataModel { return rc.data }
