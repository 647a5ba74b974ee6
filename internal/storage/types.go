package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	// A dangling sequence reference in a regimen surfaces as this error and is
	// treated as fatal by the scheduling core.
	ErrNotFound = errors.New("record not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-memory store (tests, throwaway runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Regimen is a named, ordered collection of scheduled command sequences.
// The store owns the definition; the scheduler works on a copy.
type Regimen struct {
	ID    int64
	Name  string
	Items []RegimenItem
}

// RegimenItem references a sequence due at a fixed offset from local midnight.
type RegimenItem struct {
	TimeOffset time.Duration
	SequenceID int64
}

// Sequence is a stored command sequence. Body holds the raw JSON-encoded AST.
type Sequence struct {
	ID   int64
	Name string
	Body []byte
}

// ExecutionKey identifies one instantiation of one regimen item on one day.
// Token is minted fresh per decode, so re-decoded items never collide with
// earlier instantiations of the same sequence.
type ExecutionKey struct {
	RegimenID  int64
	SequenceID int64
	Token      string
	Epoch      time.Time
}
