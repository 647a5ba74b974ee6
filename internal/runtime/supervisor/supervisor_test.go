package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoErrorCancelsWhenConfigured(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after error")
	}
	if err := s.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want boom", err)
	}
}

func TestGoPanicIsRecovered(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("panicking", func(ctx context.Context) error { panic("kaput") })

	if err := s.Wait(context.Background()); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestGoRestartRetriesThenGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always fails")
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithMaxRestarts(3))

	if err := s.Wait(context.Background()); err == nil {
		t.Fatal("expected error after restart budget exhausted")
	}
	// Initial run plus the allowed restarts.
	if got := runs.Load(); got != 4 {
		t.Fatalf("runs = %d, want 4", got)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("oneshot", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestStopCancelsAndWaits(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	started := make(chan struct{})
	s.Go0("looper", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := s.Active(); n != 0 {
		t.Fatalf("Active = %d after Stop", n)
	}
}
