// Package notify relays regimen telemetry to an operator Telegram chat.
//
// It is a best-effort channel: messages are rate limited and dropped under
// backpressure, never queued without bound, and a send failure never reaches
// the scheduling core.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"tendbot/internal/eventbus"
	"tendbot/internal/regimen"
	rtsup "tendbot/internal/runtime/supervisor"
	logx "tendbot/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
	QueueSize  int
}

// Sender is the outbound surface we need from telebot. Narrowed for tests.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	sender  Sender
	limiter *rate.Limiter

	mu    sync.Mutex
	sup   *rtsup.Supervisor
	queue chan string
	unsub func()
}

// New builds the notifier. When cfg.Enabled is false (or the token is empty)
// it returns a service whose Start is a no-op.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
	if !cfg.Enabled {
		return s, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: token is required when enabled")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: chat_id is required when enabled")
	}
	// Send-only bot: no poller.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	s.sender = b
	return s, nil
}

func (s *Service) Enabled() bool { return s.cfg.Enabled && s.sender != nil }

// Start subscribes to the bus and runs the send worker. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.queue = make(chan string, s.cfg.QueueSize)
	events, unsub := s.bus.Subscribe(s.cfg.QueueSize)
	s.unsub = unsub
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go0("notify.consume", func(ctx context.Context) {
		s.consume(ctx, events)
	})
	s.sup.Go0("notify.send", s.sendLoop)
	s.log.Info("notifier started", logx.Int64("chat_id", s.cfg.ChatID))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	unsub := s.unsub
	s.sup = nil
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
}

func (s *Service) consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			msg := format(e)
			if msg == "" {
				continue
			}
			if !s.limiter.Allow() {
				continue // drop; telemetry is best-effort
			}
			select {
			case s.queue <- msg:
			default:
				s.log.Debug("notify queue full; message dropped")
			}
		}
	}
}

func (s *Service) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if _, err := s.sender.Send(tele.ChatID(s.cfg.ChatID), msg); err != nil {
				s.log.Warn("notify send failed", logx.Err(err))
			}
		}
	}
}

// format renders the operator-facing line for an event, or "" for events that
// aren't worth a message.
func format(e eventbus.Event) string {
	switch e.Type {
	case eventbus.TypeRegimenExecuted:
		d, ok := e.Data.(regimen.ItemEvent)
		if !ok {
			return ""
		}
		return fmt.Sprintf("▶ %s: %s dispatched (due %s)", d.Regimen, d.Sequence, d.Due.Format("15:04"))
	case eventbus.TypeRegimenSkipped:
		d, ok := e.Data.(regimen.ItemEvent)
		if !ok {
			return ""
		}
		return fmt.Sprintf("⏭ %s: %s skipped (%s)", d.Regimen, d.Sequence, d.Reason)
	case eventbus.TypeRegimenRollover:
		d, ok := e.Data.(regimen.DayEvent)
		if !ok {
			return ""
		}
		return fmt.Sprintf("🌙 %s: new day %s, %d items", d.Regimen, d.Epoch.Format("2006-01-02"), d.Items)
	default:
		return ""
	}
}
