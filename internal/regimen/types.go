package regimen

import (
	"context"
	"time"

	"tendbot/internal/sequence"
	"tendbot/internal/storage"
)

// Entry is one decoded, schedulable regimen item.
//
// Token is minted fresh on every decode; it distinguishes this instantiation
// from any earlier or later one of the same sequence for dedup purposes and
// dies when the entry is consumed.
type Entry struct {
	Name       string
	TimeOffset time.Duration
	SequenceID int64
	Token      string
	Node       *sequence.Node
}

// SequenceSource resolves sequence references during queue construction.
// storage.Store satisfies it.
type SequenceSource interface {
	SequenceByID(ctx context.Context, id int64) (storage.Sequence, error)
}

// TimezoneSource supplies the device timezone setting.
// storage.Store satisfies it.
type TimezoneSource interface {
	TimezoneSetting(ctx context.Context) (string, error)
}

// ExecutionTracker provides durable at-most-once execution bookkeeping.
// storage.Store satisfies it.
type ExecutionTracker interface {
	HasExecuted(ctx context.Context, k storage.ExecutionKey) (bool, error)
	MarkExecuted(ctx context.Context, k storage.ExecutionKey, at time.Time) error
}

// Dispatcher executes a decoded sequence asynchronously. The scheduler never
// observes the result.
type Dispatcher interface {
	Dispatch(node *sequence.Node)
}

// ItemEvent is the bus payload for per-item telemetry.
type ItemEvent struct {
	RegimenID  int64
	Regimen    string
	Sequence   string
	SequenceID int64
	Offset     time.Duration
	Due        time.Time
	Reason     string
}

// DayEvent is the bus payload for day-boundary telemetry.
type DayEvent struct {
	RegimenID int64
	Regimen   string
	Epoch     time.Time
	Items     int
}
