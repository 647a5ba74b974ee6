package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tendbot/internal/sequence"
	logx "tendbot/pkg/logx"
)

func testNode(label string) *sequence.Node {
	n := &sequence.Node{Kind: "seq"}
	n.SetLabel(label)
	return n
}

func TestDispatchRunsSequences(t *testing.T) {
	t.Parallel()
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{}, 8)
	runner := RunnerFunc(func(ctx context.Context, node *sequence.Node) error {
		mu.Lock()
		got = append(got, node.Label())
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	s := New(Config{Workers: 2, QueueSize: 8}, runner, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	s.Dispatch(testNode("a"))
	s.Dispatch(testNode("b"))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for runner")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("ran %v, want 2 sequences", got)
	}
}

func TestDispatchDropsWhenFull(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, node *sequence.Node) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	s := New(Config{Workers: 1, QueueSize: 1}, runner, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		close(block)
		s.Stop(context.Background())
	}()

	// One in the worker, one in the queue, the rest dropped.
	for i := 0; i < 6; i++ {
		s.Dispatch(testNode("burst"))
	}
	// Dispatch never blocks, so the drops are visible immediately.
	if s.Dropped() == 0 {
		t.Fatal("expected dropped sequences")
	}
}

func TestDispatchBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, NopRunner(logx.Nop()), logx.Nop(), nil)
	s.Dispatch(testNode("early")) // must not panic or block
	s.Dispatch(nil)
}

func TestRunnerErrorDoesNotStopWorkers(t *testing.T) {
	t.Parallel()
	calls := make(chan string, 4)
	runner := RunnerFunc(func(ctx context.Context, node *sequence.Node) error {
		calls <- node.Label()
		if node.Label() == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	s := New(Config{Workers: 1, QueueSize: 4}, runner, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	s.Dispatch(testNode("bad"))
	s.Dispatch(testNode("good"))

	for _, want := range []string{"bad", "good"} {
		select {
		case got := <-calls:
			if got != want {
				t.Fatalf("ran %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
