package regimen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tendbot/internal/eventbus"
	"tendbot/internal/storage"
	logx "tendbot/pkg/logx"
)

// ErrStopped is returned by Reindex when the actor has exited.
var ErrStopped = errors.New("regimen actor stopped")

// Deps are the actor's collaborators. Sequences, Timezone and Tracker are
// normally all the same storage.Store.
type Deps struct {
	Log        logx.Logger
	Bus        eventbus.Bus
	Sequences  SequenceSource
	Timezone   TimezoneSource
	Tracker    ExecutionTracker
	Dispatcher Dispatcher
}

// Actor schedules one regimen. It is single-use: Run may be called once; a
// supervisor restart constructs a fresh actor, and the queue is always rebuilt
// from the store — no scheduler state survives a restart.
type Actor struct {
	log  logx.Logger
	bus  eventbus.Bus
	seqs SequenceSource
	tzs  TimezoneSource
	trk  ExecutionTracker
	disp Dispatcher

	reg storage.Regimen // working copy; replaced on reindex

	now func() time.Time

	// Scheduler state, owned exclusively by Run's goroutine.
	queue []Entry
	epoch time.Time
	gen   uint64
	timer *time.Timer

	fires chan fire
	reqs  chan reindexReq
	done  chan struct{}
}

type fire struct {
	gen  uint64
	mode Mode
}

type reindexReq struct {
	reg   storage.Regimen
	reply chan error
}

func NewActor(reg storage.Regimen, deps Deps) *Actor {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Actor{
		log:   log.With(logx.Int64("regimen_id", reg.ID), logx.String("regimen", reg.Name)),
		bus:   deps.Bus,
		seqs:  deps.Sequences,
		tzs:   deps.Timezone,
		trk:   deps.Tracker,
		disp:  deps.Dispatcher,
		reg:   reg,
		now:   time.Now,
		fires: make(chan fire, 1),
		reqs:  make(chan reindexReq),
		done:  make(chan struct{}),
	}
}

// Run initializes the schedule and processes timer fires and reindex requests
// until ctx is canceled. Initialization failures (missing timezone, dangling
// sequence reference) are fatal and returned; the supervising layer decides
// restart policy.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.done)
	defer a.cancelTimer()

	if err := a.init(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-a.fires:
			if f.gen != a.gen {
				// Fire from a cancelled-and-replaced timer; ignore.
				continue
			}
			if err := a.onFire(ctx, f.mode); err != nil {
				return err
			}
		case r := <-a.reqs:
			r.reply <- a.onReindex(ctx, r.reg)
		}
	}
}

// Reindex replaces the actor's working copy and rebuilds its queue while
// keeping the current day boundary. It returns once the actor has applied (or
// rejected) the change.
func (a *Actor) Reindex(ctx context.Context, reg storage.Regimen) error {
	req := reindexReq{reg: reg, reply: make(chan error, 1)}
	select {
	case a.reqs <- req:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) init(ctx context.Context) error {
	tz, err := a.tzs.TimezoneSetting(ctx)
	if err != nil {
		return fmt.Errorf("regimen %q: timezone setting: %w", a.reg.Name, err)
	}
	epoch, err := Epoch(a.now(), tz)
	if err != nil {
		return fmt.Errorf("regimen %q: %w", a.reg.Name, err)
	}
	q, err := BuildQueue(ctx, a.seqs, a.reg.Items)
	if err != nil {
		return fmt.Errorf("regimen %q: %w", a.reg.Name, err)
	}
	a.epoch = epoch
	a.queue = q

	a.log.Info("regimen started",
		logx.Time("epoch", epoch),
		logx.Int("items", len(q)),
	)
	a.publishDay(eventbus.TypeRegimenStarted)

	if len(a.queue) > 0 {
		a.armHead()
	}
	return nil
}

func (a *Actor) onFire(ctx context.Context, mode Mode) error {
	if len(a.queue) == 0 {
		// Day complete: rebuild from the regimen's static items with a
		// fresh epoch.
		return a.rebuild(ctx)
	}

	e := a.queue[0]
	a.queue = a.queue[1:]

	if mode == ModeSkip {
		a.log.Info("item skipped (stale)",
			logx.String("sequence", e.Name),
			logx.Duration("offset", e.TimeOffset),
		)
		a.publishItem(eventbus.TypeRegimenSkipped, e, "stale")
	} else {
		a.execute(ctx, e)
	}

	if len(a.queue) > 0 {
		a.armHead()
	} else {
		a.armRollover()
	}
	return nil
}

// execute dispatches the entry unless its execution marker already exists.
// The marker is written before dispatch; if either storage call fails we skip
// the dispatch, preferring a missed run over a possible double run.
func (a *Actor) execute(ctx context.Context, e Entry) {
	k := storage.ExecutionKey{
		RegimenID:  a.reg.ID,
		SequenceID: e.SequenceID,
		Token:      e.Token,
		Epoch:      a.epoch,
	}
	seen, err := a.trk.HasExecuted(ctx, k)
	if err != nil {
		a.log.Error("execution check failed; not dispatching",
			logx.String("sequence", e.Name), logx.Err(err))
		return
	}
	if seen {
		a.log.Info("item already executed; skipping dispatch",
			logx.String("sequence", e.Name))
		a.publishItem(eventbus.TypeRegimenSkipped, e, "already_executed")
		return
	}
	if err := a.trk.MarkExecuted(ctx, k, a.now()); err != nil {
		a.log.Error("execution mark failed; not dispatching",
			logx.String("sequence", e.Name), logx.Err(err))
		return
	}

	a.disp.Dispatch(e.Node)
	a.log.Info("item dispatched",
		logx.String("sequence", e.Name),
		logx.Duration("offset", e.TimeOffset),
	)
	a.publishItem(eventbus.TypeRegimenExecuted, e, "")
}

// rebuild starts a new scheduling day. The timezone setting is re-read so a
// changed setting takes effect at the boundary; if it cannot be resolved the
// epoch simply advances one day in its previous location.
func (a *Actor) rebuild(ctx context.Context) error {
	fresh := NextMidnight(a.epoch)
	if tz, err := a.tzs.TimezoneSetting(ctx); err == nil {
		if epoch, eerr := Epoch(a.now(), tz); eerr == nil {
			fresh = epoch
		} else {
			a.log.Warn("epoch refresh failed; advancing previous epoch", logx.Err(eerr))
		}
	} else {
		a.log.Warn("timezone re-read failed; advancing previous epoch", logx.Err(err))
	}
	a.epoch = fresh

	q, err := BuildQueue(ctx, a.seqs, a.reg.Items)
	if err != nil {
		return fmt.Errorf("regimen %q: daily rebuild: %w", a.reg.Name, err)
	}
	a.queue = q

	a.log.Info("day rolled over",
		logx.Time("epoch", a.epoch),
		logx.Int("items", len(q)),
	)
	a.publishDay(eventbus.TypeRegimenRollover)

	if len(a.queue) > 0 {
		a.armHead()
	}
	return nil
}

func (a *Actor) onReindex(ctx context.Context, reg storage.Regimen) error {
	// Cancel first: a pending fire must never interleave with the rebuild.
	wasArmed := a.timer != nil
	a.cancelTimer()

	q, err := BuildQueue(ctx, a.seqs, reg.Items)
	if err != nil {
		// Leave the previous schedule in place.
		if wasArmed {
			if len(a.queue) > 0 {
				a.armHead()
			} else {
				a.armRollover()
			}
		}
		return fmt.Errorf("regimen %q: reindex: %w", a.reg.Name, err)
	}

	a.reg = reg
	a.queue = q
	// Epoch deliberately preserved: a late-day reindex must not move the day
	// boundary forward.

	a.log.Info("regimen reindexed", logx.Int("items", len(q)))
	a.publishDay(eventbus.TypeRegimenReindex)

	if len(a.queue) > 0 {
		a.armHead()
	}
	return nil
}

func (a *Actor) armHead() {
	e := a.queue[0]
	plan := PlanEntry(a.epoch, e, a.now())
	a.arm(plan)
	a.log.Debug("armed",
		logx.String("sequence", e.Name),
		logx.String("mode", plan.Mode.String()),
		logx.Duration("delay", plan.Delay),
		logx.Time("due", plan.Target),
	)
	a.publishItem(eventbus.TypeRegimenArmed, e, plan.Mode.String())
}

func (a *Actor) armRollover() {
	plan := PlanRollover(a.epoch, a.now())
	a.arm(plan)
	a.log.Debug("all items consumed; waiting for next day",
		logx.Time("next_midnight", plan.Target),
	)
}

// arm replaces the pending timer. The generation counter guarantees a
// cancelled timer's fire, even one already in flight, is never acted on.
func (a *Actor) arm(plan TimerPlan) {
	a.cancelTimer()
	g, m, done := a.gen, plan.Mode, a.done
	a.timer = time.AfterFunc(plan.Delay, func() {
		select {
		case a.fires <- fire{gen: g, mode: m}:
		case <-done:
		}
	})
}

// cancelTimer stops the pending timer and bumps the generation, so a fire
// already in flight from the cancelled timer is invalidated even when nothing
// is re-armed afterwards (e.g. a reindex to an empty definition).
func (a *Actor) cancelTimer() {
	if a.timer != nil {
		_ = a.timer.Stop()
		a.timer = nil
	}
	a.gen++
}

func (a *Actor) publishItem(typ string, e Entry, reason string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.Event{Type: typ, Data: ItemEvent{
		RegimenID:  a.reg.ID,
		Regimen:    a.reg.Name,
		Sequence:   e.Name,
		SequenceID: e.SequenceID,
		Offset:     e.TimeOffset,
		Due:        a.epoch.Add(e.TimeOffset),
		Reason:     reason,
	}})
}

func (a *Actor) publishDay(typ string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.Event{Type: typ, Data: DayEvent{
		RegimenID: a.reg.ID,
		Regimen:   a.reg.Name,
		Epoch:     a.epoch,
		Items:     len(a.queue),
	}})
}
