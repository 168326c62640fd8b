package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// drain pulls events until the run terminates, skipping bounded-wait misses.
func drain(t *testing.T, h *Handle) ([]Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []Event
	for {
		ev, err := h.Next(ctx)
		if errors.Is(err, ErrNoEvent) {
			continue
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestDeliversEventsInEmissionOrder(t *testing.T) {
	h := Start(context.Background(), func(ctx context.Context, p *Producer) error {
		for i := 0; i < 20; i++ {
			if err := p.Submit(ctx, TextDelta{Text: fmt.Sprintf("chunk-%d", i)}); err != nil {
				return err
			}
		}
		return nil
	}, Options{})

	events, err := drain(t, h)
	require.ErrorIs(t, err, ErrDone)
	require.Len(t, events, 20)
	for i, ev := range events {
		td, ok := ev.(TextDelta)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("chunk-%d", i), td.Text)
	}
}

func TestNextBoundedWait(t *testing.T) {
	release := make(chan struct{})
	h := Start(context.Background(), func(ctx context.Context, p *Producer) error {
		<-release
		return p.Submit(ctx, TextDelta{Text: "late"})
	}, Options{PollInterval: 10 * time.Millisecond})

	start := time.Now()
	_, err := h.Next(context.Background())
	require.ErrorIs(t, err, ErrNoEvent)
	require.Less(t, time.Since(start), time.Second)

	close(release)
	events, err := drain(t, h)
	require.ErrorIs(t, err, ErrDone)
	require.Len(t, events, 1)
}

func TestCancelStopsDeliveryWithoutDraining(t *testing.T) {
	started := make(chan struct{})
	h := Start(context.Background(), func(ctx context.Context, p *Producer) error {
		for i := 0; i < 5; i++ {
			if err := p.Submit(ctx, TextDelta{Text: "queued"}); err != nil {
				return err
			}
		}
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, Options{})

	<-started
	h.Cancel()
	require.True(t, h.Canceled())

	// Queued events must not be delivered after cancellation.
	_, err := h.Next(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
	_, err = h.Next(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
}

func TestCancelIsIdempotent(t *testing.T) {
	h := Start(context.Background(), func(ctx context.Context, _ *Producer) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{})
	h.Cancel()
	h.Cancel()
	_, err := h.Next(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
}

func TestProducerErrorDeliveredOnceAfterDrain(t *testing.T) {
	boom := errors.New("boom")
	h := Start(context.Background(), func(ctx context.Context, p *Producer) error {
		if err := p.Submit(ctx, TextDelta{Text: "before failure"}); err != nil {
			return err
		}
		return boom
	}, Options{})

	events, err := drain(t, h)
	require.ErrorIs(t, err, boom)
	require.Len(t, events, 1)

	// The failure is re-raised exactly once, then ErrDone.
	_, err = h.Next(context.Background())
	require.ErrorIs(t, err, ErrDone)
}

func TestProducerPanicBecomesError(t *testing.T) {
	h := Start(context.Background(), func(context.Context, *Producer) error {
		panic("unexpected")
	}, Options{})

	_, err := drain(t, h)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDone)
	require.Contains(t, err.Error(), "panic")
}

func TestSubmitUnblocksOnCancel(t *testing.T) {
	returned := make(chan error, 1)
	h := Start(context.Background(), func(ctx context.Context, p *Producer) error {
		// Queue size 1: the second submit blocks until cancellation.
		if err := p.Submit(ctx, TextDelta{Text: "first"}); err != nil {
			return err
		}
		err := p.Submit(ctx, TextDelta{Text: "second"})
		returned <- err
		return err
	}, Options{QueueSize: 1})

	time.Sleep(20 * time.Millisecond)
	h.Cancel()

	select {
	case err := <-returned:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not unblock after cancel")
	}
}

func TestTextSideChannelSurvivesCancellation(t *testing.T) {
	submitted := make(chan struct{})
	h := Start(context.Background(), func(ctx context.Context, p *Producer) error {
		if err := p.Submit(ctx, TextDelta{Text: "partial "}); err != nil {
			return err
		}
		if err := p.Submit(ctx, TextDelta{Text: "answer"}); err != nil {
			return err
		}
		close(submitted)
		<-ctx.Done()
		return ctx.Err()
	}, Options{})

	<-submitted
	h.Cancel()
	require.Equal(t, "partial answer", h.Text())
}

func TestNextHonorsCallerContext(t *testing.T) {
	h := Start(context.Background(), func(ctx context.Context, _ *Producer) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{PollInterval: time.Minute})
	defer h.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
