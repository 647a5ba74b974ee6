package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Store. It backs the "memory" driver and package tests.
type Memory struct {
	mu        sync.RWMutex
	regimens  map[int64]Regimen
	sequences map[int64]Sequence
	timezone  string
	executed  map[memKey]time.Time
}

type memKey struct {
	regimenID  int64
	sequenceID int64
	token      string
	epochMS    int64
}

func NewMemory() *Memory {
	return &Memory{
		regimens:  map[int64]Regimen{},
		sequences: map[int64]Sequence{},
		executed:  map[memKey]time.Time{},
	}
}

func (m *Memory) Close() error { return nil }

// PutRegimen / PutSequence / SetTimezone seed definitions (normally owned by
// the remote sync layer).

func (m *Memory) PutRegimen(r Regimen) {
	m.mu.Lock()
	m.regimens[r.ID] = r
	m.mu.Unlock()
}

func (m *Memory) PutSequence(s Sequence) {
	m.mu.Lock()
	m.sequences[s.ID] = s
	m.mu.Unlock()
}

func (m *Memory) SetTimezone(tz string) {
	m.mu.Lock()
	m.timezone = tz
	m.mu.Unlock()
}

func (m *Memory) Regimens(ctx context.Context) ([]Regimen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Regimen, 0, len(m.regimens))
	for _, r := range m.regimens {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) RegimenByID(ctx context.Context, id int64) (Regimen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regimens[id]
	if !ok {
		return Regimen{}, fmt.Errorf("regimen %d: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) SequenceByID(ctx context.Context, id int64) (Sequence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sequences[id]
	if !ok {
		return Sequence{}, fmt.Errorf("sequence %d: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *Memory) TimezoneSetting(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timezone, nil
}

func (m *Memory) HasExecuted(ctx context.Context, k ExecutionKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.executed[toMemKey(k)]
	return ok, nil
}

func (m *Memory) MarkExecuted(ctx context.Context, k ExecutionKey, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := toMemKey(k)
	// Idempotent: first mark wins.
	if _, ok := m.executed[key]; !ok {
		m.executed[key] = at
	}
	return nil
}

func (m *Memory) PruneExecuted(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.executed {
		if at.Before(before) {
			delete(m.executed, k)
			n++
		}
	}
	return n, nil
}

func toMemKey(k ExecutionKey) memKey {
	return memKey{
		regimenID:  k.RegimenID,
		sequenceID: k.SequenceID,
		token:      k.Token,
		epochMS:    k.Epoch.UnixMilli(),
	}
}
