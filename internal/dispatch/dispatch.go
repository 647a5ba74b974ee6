// Package dispatch executes decoded command sequences asynchronously.
//
// The scheduler hands a sequence over and moves on; results are logged and
// published to the bus, never returned. The actual command interpreter is
// pluggable via Runner — this daemon only owns the queue and worker pool in
// front of it.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tendbot/internal/eventbus"
	rtsup "tendbot/internal/runtime/supervisor"
	"tendbot/internal/sequence"
	logx "tendbot/pkg/logx"
)

// Runner interprets one decoded sequence. Implementations are expected to
// honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, node *sequence.Node) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, node *sequence.Node) error

func (f RunnerFunc) Run(ctx context.Context, node *sequence.Node) error { return f(ctx, node) }

type Config struct {
	Workers   int
	QueueSize int
}

type Service struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	runner Runner

	mu     sync.Mutex
	q      chan *sequence.Node
	sup    *rtsup.Supervisor
	sealed bool

	dropped atomic.Uint64
}

func New(cfg Config, runner Runner, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, runner: runner, log: log, bus: bus}
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.q = make(chan *sequence.Node, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.Go0("dispatch.worker", s.worker)
	}
	s.sealed = false
	s.log.Info("dispatcher started",
		logx.Int("workers", s.cfg.Workers),
		logx.Int("queue", s.cfg.QueueSize),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.sealed = true
	s.mu.Unlock()
	if sup == nil {
		return
	}
	_ = sup.Stop(ctx)
	s.log.Info("dispatcher stopped")
}

// Dispatch enqueues a sequence for execution. It never blocks; when the queue
// is full the sequence is dropped with a warning.
func (s *Service) Dispatch(node *sequence.Node) {
	if node == nil {
		return
	}
	s.mu.Lock()
	q, sealed := s.q, s.sealed
	s.mu.Unlock()
	if q == nil || sealed {
		s.log.Warn("dispatch before start; sequence dropped", logx.String("label", node.Label()))
		return
	}
	select {
	case q <- node:
	default:
		s.dropped.Add(1)
		s.log.Warn("dispatch queue full; sequence dropped", logx.String("label", node.Label()))
		s.publish(eventbus.TypeSequenceDropped, node, 0, nil)
	}
}

// Dropped reports how many sequences were discarded due to a full queue.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) worker(ctx context.Context) {
	s.mu.Lock()
	q := s.q
	s.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case node := <-q:
			s.runOne(ctx, node)
		}
	}
}

func (s *Service) runOne(ctx context.Context, node *sequence.Node) {
	start := time.Now()
	s.publish(eventbus.TypeSequenceStarted, node, 0, nil)

	err := s.runner.Run(ctx, node)

	took := time.Since(start)
	if err != nil {
		s.log.Warn("sequence failed",
			logx.String("label", node.Label()),
			logx.Duration("took", took),
			logx.Err(err),
		)
	} else {
		s.log.Info("sequence finished",
			logx.String("label", node.Label()),
			logx.Duration("took", took),
		)
	}
	s.publish(eventbus.TypeSequenceFinished, node, took, err)
}

func (s *Service) publish(typ string, node *sequence.Node, took time.Duration, err error) {
	if s.bus == nil {
		return
	}
	data := map[string]any{"label": node.Label(), "kind": node.Kind}
	if took > 0 {
		data["took_ms"] = took.Milliseconds()
	}
	if err != nil {
		data["err"] = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// NopRunner walks the AST without interpreting it. It stands in when no
// command interpreter is wired, e.g. dry runs and tests.
func NopRunner(log logx.Logger) Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return RunnerFunc(func(ctx context.Context, node *sequence.Node) error {
		nodes := 0
		node.Walk(func(n *sequence.Node) bool {
			nodes++
			return true
		})
		log.Debug("sequence walked (no interpreter wired)",
			logx.String("label", node.Label()),
			logx.Int("nodes", nodes),
		)
		return nil
	})
}
