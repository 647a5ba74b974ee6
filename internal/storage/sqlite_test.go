package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "tendbot/pkg/logx"
)

func openTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "tendbot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st.(*sqliteStore)
}

func seedSQLite(t *testing.T, st *sqliteStore) {
	t.Helper()
	ctx := context.Background()
	stmts := []struct {
		q    string
		args []any
	}{
		{`INSERT INTO sequences(id, name, body) VALUES(?,?,?)`, []any{10, "water", `{"kind":"valve.open"}`}},
		{`INSERT INTO sequences(id, name, body) VALUES(?,?,?)`, []any{11, "feed", `{"kind":"pump.dose"}`}},
		{`INSERT INTO regimens(id, name) VALUES(?,?)`, []any{1, "morning"}},
		{`INSERT INTO regimen_items(regimen_id, position, time_offset_ms, sequence_id) VALUES(?,?,?,?)`, []any{1, 0, int64(6 * time.Hour / time.Millisecond), 10}},
		{`INSERT INTO regimen_items(regimen_id, position, time_offset_ms, sequence_id) VALUES(?,?,?,?)`, []any{1, 1, int64(8 * time.Hour / time.Millisecond), 11}},
		{`INSERT INTO settings(key, value) VALUES('timezone', 'UTC')`, nil},
	}
	for _, s := range stmts {
		if _, err := st.db.ExecContext(ctx, s.q, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.q, err)
		}
	}
}

func TestSQLiteRegimens(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	seedSQLite(t, st)
	ctx := context.Background()

	regs, err := st.Regimens(ctx)
	if err != nil {
		t.Fatalf("Regimens: %v", err)
	}
	if len(regs) != 1 || regs[0].Name != "morning" {
		t.Fatalf("unexpected regimens: %+v", regs)
	}
	if len(regs[0].Items) != 2 {
		t.Fatalf("items = %d, want 2", len(regs[0].Items))
	}
	if regs[0].Items[0].TimeOffset != 6*time.Hour {
		t.Fatalf("offset = %v, want 6h", regs[0].Items[0].TimeOffset)
	}

	if _, err := st.RegimenByID(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sq, err := st.SequenceByID(ctx, 11)
	if err != nil || sq.Name != "feed" {
		t.Fatalf("SequenceByID = %+v, %v", sq, err)
	}

	tz, err := st.TimezoneSetting(ctx)
	if err != nil || tz != "UTC" {
		t.Fatalf("TimezoneSetting = %q, %v", tz, err)
	}
}

func TestSQLiteTimezoneUnset(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	tz, err := st.TimezoneSetting(context.Background())
	if err != nil {
		t.Fatalf("TimezoneSetting: %v", err)
	}
	if tz != "" {
		t.Fatalf("tz = %q, want empty", tz)
	}
}

func TestSQLiteExecutions(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	epoch := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	k := ExecutionKey{RegimenID: 1, SequenceID: 10, Token: "tok-a", Epoch: epoch}

	seen, err := st.HasExecuted(ctx, k)
	if err != nil || seen {
		t.Fatalf("HasExecuted before mark = %v, %v", seen, err)
	}

	at := epoch.Add(6 * time.Hour)
	if err := st.MarkExecuted(ctx, k, at); err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
	// Idempotent under the conflict clause.
	if err := st.MarkExecuted(ctx, k, at.Add(time.Hour)); err != nil {
		t.Fatalf("MarkExecuted twice: %v", err)
	}
	seen, err = st.HasExecuted(ctx, k)
	if err != nil || !seen {
		t.Fatalf("HasExecuted after mark = %v, %v", seen, err)
	}

	n, err := st.PruneExecuted(ctx, at.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("PruneExecuted = %d, %v", n, err)
	}
	seen, _ = st.HasExecuted(ctx, k)
	if seen {
		t.Fatal("marker survived prune")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
