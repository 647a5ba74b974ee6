package regimen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tendbot/internal/eventbus"
	rtsup "tendbot/internal/runtime/supervisor"
	"tendbot/internal/storage"
	logx "tendbot/pkg/logx"
)

// ErrRestarting is returned by Reindex while a regimen's actor is between
// incarnations.
var ErrRestarting = errors.New("regimen actor restarting")

// Registry maps regimen ids to running actors, creating them on demand. Each
// actor runs under the supervisor with restart backoff; every (re)start fetches
// the regimen definition fresh from the store and rebuilds the queue.
type Registry struct {
	log   logx.Logger
	store storage.Store
	disp  Dispatcher
	bus   eventbus.Bus
	sup   *rtsup.Supervisor

	mu      sync.Mutex
	handles map[int64]*handle
}

type handle struct {
	mu    sync.Mutex
	actor *Actor // current incarnation; nil between restarts
}

func (h *handle) current() *Actor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.actor
}

func NewRegistry(store storage.Store, disp Dispatcher, bus eventbus.Bus, sup *rtsup.Supervisor, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		log:     log,
		store:   store,
		disp:    disp,
		bus:     bus,
		sup:     sup,
		handles: map[int64]*handle{},
	}
}

// Ensure starts an actor for the regimen if one is not already registered.
func (r *Registry) Ensure(id int64) {
	r.mu.Lock()
	if _, ok := r.handles[id]; ok {
		r.mu.Unlock()
		return
	}
	h := &handle{}
	r.handles[id] = h
	r.mu.Unlock()

	name := fmt.Sprintf("regimen.%d", id)
	r.sup.GoRestart(name, func(ctx context.Context) error {
		// Fresh definition each incarnation; nothing persists across restarts.
		reg, err := r.store.RegimenByID(ctx, id)
		if err != nil {
			return err
		}
		act := NewActor(reg, Deps{
			Log:        r.log,
			Bus:        r.bus,
			Sequences:  r.store,
			Timezone:   r.store,
			Tracker:    r.store,
			Dispatcher: r.disp,
		})
		h.mu.Lock()
		h.actor = act
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			h.actor = nil
			h.mu.Unlock()
		}()
		return act.Run(ctx)
	}, rtsup.WithRestartBackoff(time.Second, 5*time.Minute))
}

// Reindex forwards an updated definition to the regimen's running actor.
func (r *Registry) Reindex(ctx context.Context, reg storage.Regimen) error {
	r.mu.Lock()
	h, ok := r.handles[reg.ID]
	r.mu.Unlock()
	if !ok {
		r.Ensure(reg.ID)
		return nil
	}
	act := h.current()
	if act == nil {
		return ErrRestarting
	}
	return act.Reindex(ctx, reg)
}

// Len reports how many regimens are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
