// Package bridge decouples a background run from the single consumer that
// drains its events. A bridge carries heterogeneous events (plain text
// deltas, protocol frames, lifecycle markers) through a bounded FIFO queue:
// one producer goroutine, one consumer loop, exact emission order.
//
// Cancellation is cooperative and best-effort. The underlying model token
// generation may not be interruptible mid-token, so Cancel guarantees that no
// further events reach the consumer, not that the producer stops instantly.
// Producer failures are captured and re-raised to the consumer exactly once,
// after already-queued events have been drained.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EventType enumerates bridge event flavors.
type EventType string

const (
	// EventTextDelta is an incremental chunk of plain assistant text.
	EventTextDelta EventType = "text_delta"

	// EventFrame is a protocol frame carried opaquely to the transport.
	EventFrame EventType = "frame"

	// EventLifecycle marks a run lifecycle phase transition.
	EventLifecycle EventType = "lifecycle"
)

type (
	// Event is the sum type flowing through the bridge. Concrete types are
	// TextDelta, FrameEvent and LifecycleMarker; consumers dispatch on Type
	// or type-assert for structured access.
	Event interface {
		// Type returns the event flavor.
		Type() EventType
	}

	// TextDelta carries an incremental chunk of plain assistant text.
	TextDelta struct {
		// Text is the chunk content. Consumers concatenate sequential deltas
		// to reconstruct the full message.
		Text string
	}

	// FrameEvent carries one protocol frame. The payload is immutable: it is
	// created by the producer, serialized once by the transport and never
	// mutated afterwards.
	FrameEvent struct {
		// Frame is the protocol frame, typically a wire.Frame.
		Frame any
	}

	// LifecycleMarker signals a run phase transition.
	LifecycleMarker struct {
		// Phase names the transition, for example PhaseStarted or
		// PhaseFinished.
		Phase Phase
	}

	// Phase names a run lifecycle transition.
	Phase string

	// RunFunc is the background computation bound to a bridge. It emits
	// events through the producer and returns when the run completes. A
	// non-nil error is captured and re-raised to the consumer after the queue
	// drains.
	RunFunc func(ctx context.Context, p *Producer) error

	// Options tunes bridge behavior. The zero value applies defaults.
	Options struct {
		// QueueSize bounds the event queue. Submit blocks when the queue is
		// full until the consumer catches up or the run is cancelled; events
		// are never dropped. Defaults to DefaultQueueSize.
		QueueSize int

		// PollInterval bounds how long Next waits before returning ErrNoEvent
		// so the caller can re-check cancellation and disconnect. Defaults to
		// DefaultPollInterval.
		PollInterval time.Duration
	}

	// Handle is the consumer side of a bridge. It is owned by a single
	// consumer loop; Next must not be called concurrently.
	Handle struct {
		queue  chan Event
		cancel context.CancelFunc
		poll   time.Duration

		canceled atomic.Bool

		mu           sync.Mutex
		runErr       error
		errDelivered bool

		textMu sync.Mutex
		text   strings.Builder
	}

	// Producer is the producer side of a bridge, passed to the RunFunc. It is
	// owned by the single background goroutine running the RunFunc.
	Producer struct {
		h *Handle
	}
)

const (
	// PhaseStarted marks the beginning of a run.
	PhaseStarted Phase = "started"

	// PhaseFinished marks successful completion of a run. It is never
	// emitted after cancellation.
	PhaseFinished Phase = "finished"
)

const (
	// DefaultQueueSize is the default bound of the event queue.
	DefaultQueueSize = 64

	// DefaultPollInterval is the default bounded wait applied by Next.
	DefaultPollInterval = 50 * time.Millisecond
)

var (
	// ErrNoEvent signals that no event arrived within the bounded wait. The
	// caller should re-check cancellation and disconnect, then call Next
	// again.
	ErrNoEvent = errors.New("bridge: no event yet")

	// ErrDone signals that the run has finished and the queue is empty. No
	// further events will be delivered.
	ErrDone = errors.New("bridge: run complete")

	// ErrCanceled signals that the bridge was cancelled. No further events
	// are delivered after cancellation, including events already queued.
	ErrCanceled = errors.New("bridge: run cancelled")
)

// Type implements Event.
func (TextDelta) Type() EventType { return EventTextDelta }

// Type implements Event.
func (FrameEvent) Type() EventType { return EventFrame }

// Type implements Event.
func (LifecycleMarker) Type() EventType { return EventLifecycle }

// Start launches fn as an independent background goroutine bound to a fresh
// FIFO queue and returns immediately with the consumer handle. The goroutine
// runs under a context derived from ctx that Cancel aborts; a panic in fn is
// captured as a producer failure rather than crashing the process.
func Start(ctx context.Context, fn RunFunc, opts Options) *Handle {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		queue:  make(chan Event, size),
		cancel: cancel,
		poll:   poll,
	}
	p := &Producer{h: h}
	go func() {
		err := runProtected(runCtx, fn, p)
		h.mu.Lock()
		h.runErr = err
		h.mu.Unlock()
		close(h.queue)
	}()
	return h
}

func runProtected(ctx context.Context, fn RunFunc, p *Producer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge: producer panic: %v", r)
		}
	}()
	return fn(ctx, p)
}

// Submit enqueues an event in emission order. It blocks while the queue is
// full and unblocks when the consumer catches up or ctx is cancelled, so the
// producer never waits past cancellation and events are never dropped. Text
// deltas are additionally folded into the partial-text side channel.
func (p *Producer) Submit(ctx context.Context, ev Event) error {
	if td, ok := ev.(TextDelta); ok {
		p.h.textMu.Lock()
		p.h.text.WriteString(td.Text)
		p.h.textMu.Unlock()
	}
	select {
	case p.h.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next event in exact emission order. When no event arrives
// within the bounded poll interval it returns ErrNoEvent so the caller can
// re-check cancellation and disconnect before waiting again. Once the run has
// finished and the queue is drained, Next returns the captured run error
// exactly once if the producer failed, and ErrDone on every call thereafter.
// After Cancel, Next returns ErrCanceled without draining remaining events.
func (h *Handle) Next(ctx context.Context) (Event, error) {
	if h.canceled.Load() {
		return nil, ErrCanceled
	}
	timer := time.NewTimer(h.poll)
	defer timer.Stop()
	select {
	case ev, ok := <-h.queue:
		if !ok {
			return nil, h.terminal()
		}
		return ev, nil
	case <-timer.C:
		return nil, ErrNoEvent
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests the background run to stop. It is best-effort: the run may
// still be blocked in provider I/O, but no further events are delivered to
// the consumer after Cancel returns. Cancel is idempotent.
func (h *Handle) Cancel() {
	h.canceled.Store(true)
	h.cancel()
}

// Canceled reports whether Cancel was called.
func (h *Handle) Canceled() bool { return h.canceled.Load() }

// Text returns the plain text accumulated from all submitted text deltas so
// far. It is valid regardless of how the run ends, so callers can persist a
// partial assistant message after cancellation.
func (h *Handle) Text() string {
	h.textMu.Lock()
	defer h.textMu.Unlock()
	return h.text.String()
}

// terminal resolves the post-drain condition: the producer failure once, then
// ErrDone.
func (h *Handle) terminal() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runErr != nil && !h.errDelivered {
		h.errDelivered = true
		return h.runErr
	}
	return ErrDone
}
