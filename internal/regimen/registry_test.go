package regimen

import (
	"context"
	"testing"
	"time"

	"tendbot/internal/eventbus"
	rtsup "tendbot/internal/runtime/supervisor"
	"tendbot/internal/storage"
	logx "tendbot/pkg/logx"
)

func TestRegistryEnsureRunsActor(t *testing.T) {
	t.Parallel()
	st := seedStore(t)
	st.SetTimezone("UTC")
	// Stale at any plausible test time: offset 0 is local midnight.
	st.PutRegimen(storage.Regimen{ID: 1, Name: "morning", Items: []storage.RegimenItem{
		{TimeOffset: 0, SequenceID: 101},
	}})

	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := rtsup.New(ctx, rtsup.WithLogger(logx.Nop()))

	r := NewRegistry(st, newChanDispatcher(), bus, sup, logx.Nop())
	r.Ensure(1)
	r.Ensure(1) // idempotent
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	// The actor comes up and publishes its start event.
	waitEvent(t, events, eventbus.TypeRegimenStarted, 3*time.Second)

	cancel()
	_ = sup.Wait(context.Background())
}

func TestRegistryReindexUnknownStartsActor(t *testing.T) {
	t.Parallel()
	st := seedStore(t)
	st.SetTimezone("UTC")
	st.PutRegimen(storage.Regimen{ID: 2, Name: "evening", Items: []storage.RegimenItem{
		{TimeOffset: 0, SequenceID: 102},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := rtsup.New(ctx)

	r := NewRegistry(st, newChanDispatcher(), eventbus.New(), sup, logx.Nop())
	reg, _ := st.RegimenByID(ctx, 2)
	if err := r.Reindex(ctx, reg); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	cancel()
	_ = sup.Wait(context.Background())
}
