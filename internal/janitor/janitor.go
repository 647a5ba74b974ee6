// Package janitor prunes old execution markers on a daily schedule.
//
// Markers only matter within their scheduling day; retention beyond that is
// kept for operator forensics, then deleted so the store does not grow without
// bound.
package janitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tendbot/internal/storage"
	logx "tendbot/pkg/logx"
)

const defaultRetention = 30 * 24 * time.Hour

type Config struct {
	Enabled   bool
	Retention time.Duration
	Timezone  string // IANA TZ; empty means process-local time
}

type Service struct {
	cfg   Config
	log   logx.Logger
	store storage.Store

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, log: log}
}

// Start schedules the daily prune. Idempotent; a no-op when disabled or when
// no store is configured.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.Enabled || s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	loc := s.loadLocation()
	s.c = cron.New(cron.WithLocation(loc))
	_, _ = s.c.AddFunc("@daily", func() { s.prune(ctx) })
	s.c.Start()
	s.log.Info("janitor started",
		logx.Duration("retention", s.cfg.Retention),
		logx.String("tz", loc.String()),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("janitor stopped")
}

func (s *Service) prune(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cutoff := time.Now().Add(-s.cfg.Retention)
	n, err := s.store.PruneExecuted(pctx, cutoff)
	if err != nil {
		s.log.Warn("prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("pruned execution markers", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
	}
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
