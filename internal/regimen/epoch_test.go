package regimen

import (
	"errors"
	"testing"
	"time"
)

func TestEpochLocalMidnight(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  time.Time
		tz   string
	}{
		{name: "utc noon", now: time.Date(2026, 3, 14, 12, 30, 45, 0, time.UTC), tz: "UTC"},
		{name: "jakarta morning", now: time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC), tz: "Asia/Jakarta"},
		{name: "ny evening", now: time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC), tz: "America/New_York"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Epoch(tt.now, tt.tz)
			if err != nil {
				t.Fatalf("Epoch error: %v", err)
			}
			if got.After(tt.now) {
				t.Fatalf("epoch %v is after now %v", got, tt.now)
			}
			if h, m, s := got.Clock(); h != 0 || m != 0 || s != 0 {
				t.Fatalf("epoch is not midnight: %v", got)
			}
			if got.Location().String() != tt.tz {
				t.Fatalf("epoch location = %v, want %v", got.Location(), tt.tz)
			}
			if tt.now.Sub(got) >= 24*time.Hour+time.Hour {
				t.Fatalf("epoch more than a day behind now: %v", tt.now.Sub(got))
			}
		})
	}
}

func TestEpochNoTimezone(t *testing.T) {
	t.Parallel()
	_, err := Epoch(time.Now(), "")
	if !errors.Is(err, ErrNoTimezone) {
		t.Fatalf("expected ErrNoTimezone, got %v", err)
	}
	_, err = Epoch(time.Now(), "   ")
	if !errors.Is(err, ErrNoTimezone) {
		t.Fatalf("expected ErrNoTimezone for whitespace, got %v", err)
	}
}

func TestEpochBadTimezone(t *testing.T) {
	t.Parallel()
	_, err := Epoch(time.Now(), "Not/AZone")
	if err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestNextMidnight(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	epoch := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := NextMidnight(epoch); !got.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("NextMidnight = %v", got)
	}

	// Spring-forward: 2026-03-08 in America/New_York has only 23 hours.
	dst := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	next := NextMidnight(dst)
	if h, m, s := next.Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("next midnight is not midnight across DST: %v", next)
	}
	if d := next.Sub(dst); d != 23*time.Hour {
		t.Fatalf("DST day length = %v, want 23h", d)
	}
}
