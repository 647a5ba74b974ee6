package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "tendbot/pkg/logx"
)

// Store is the persistence API used by the scheduling core and its services.
//
// Lookup methods return ErrNotFound for missing records. MarkExecuted is
// idempotent and durable: marking the same key twice is not an error.
type Store interface {
	Regimens(ctx context.Context) ([]Regimen, error)
	RegimenByID(ctx context.Context, id int64) (Regimen, error)
	SequenceByID(ctx context.Context, id int64) (Sequence, error)

	// TimezoneSetting returns the device IANA timezone, or "" if unset.
	TimezoneSetting(ctx context.Context) (string, error)

	HasExecuted(ctx context.Context, k ExecutionKey) (bool, error)
	MarkExecuted(ctx context.Context, k ExecutionKey, at time.Time) error
	PruneExecuted(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
