package regimen

import (
	"testing"
	"time"
)

func TestPlanEntry(t *testing.T) {
	t.Parallel()
	epoch := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		offset time.Duration
		now    time.Time
		mode   Mode
		delay  time.Duration
	}{
		{
			name:   "stale",
			offset: 10 * time.Hour,
			now:    epoch.Add(10*time.Hour + 2*time.Minute),
			mode:   ModeSkip,
			delay:  PromptDelay,
		},
		{
			name:   "slightly past due",
			offset: 10 * time.Hour,
			now:    epoch.Add(10*time.Hour + 500*time.Millisecond),
			mode:   ModeExecute,
			delay:  PromptDelay,
		},
		{
			name:   "due exactly now",
			offset: 10 * time.Hour,
			now:    epoch.Add(10 * time.Hour),
			mode:   ModeExecute,
			delay:  PromptDelay,
		},
		{
			name:   "exactly at stale cutoff",
			offset: 10 * time.Hour,
			now:    epoch.Add(10*time.Hour + StaleCutoff),
			mode:   ModeExecute,
			delay:  PromptDelay,
		},
		{
			name:   "one ms past cutoff",
			offset: 10 * time.Hour,
			now:    epoch.Add(10*time.Hour + StaleCutoff + time.Millisecond),
			mode:   ModeSkip,
			delay:  PromptDelay,
		},
		{
			name:   "future",
			offset: 10 * time.Hour,
			now:    epoch.Add(10*time.Hour - 5*time.Second),
			mode:   ModeExecute,
			delay:  5 * time.Second,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{TimeOffset: tt.offset}
			got := PlanEntry(epoch, e, tt.now)
			if got.Mode != tt.mode {
				t.Fatalf("Mode = %v, want %v", got.Mode, tt.mode)
			}
			if got.Delay != tt.delay {
				t.Fatalf("Delay = %v, want %v", got.Delay, tt.delay)
			}
			if want := epoch.Add(tt.offset); !got.Target.Equal(want) {
				t.Fatalf("Target = %v, want %v", got.Target, want)
			}
		})
	}
}

func TestPlanRollover(t *testing.T) {
	t.Parallel()
	epoch := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	now := epoch.Add(18 * time.Hour)
	plan := PlanRollover(epoch, now)
	if plan.Mode != ModeExecute {
		t.Fatalf("Mode = %v, want execute", plan.Mode)
	}
	if want := NextMidnight(epoch); !plan.Target.Equal(want) {
		t.Fatalf("Target = %v, want %v", plan.Target, want)
	}
	if plan.Delay != 6*time.Hour {
		t.Fatalf("Delay = %v, want 6h", plan.Delay)
	}

	// Fires already past the boundary still get a short beat, never a negative delay.
	late := epoch.Add(24*time.Hour + time.Minute)
	plan = PlanRollover(epoch, late)
	if plan.Delay != PromptDelay {
		t.Fatalf("late Delay = %v, want %v", plan.Delay, PromptDelay)
	}
}

func TestModeString(t *testing.T) {
	t.Parallel()
	if ModeExecute.String() != "execute" || ModeSkip.String() != "skip" {
		t.Fatalf("unexpected mode strings: %q %q", ModeExecute.String(), ModeSkip.String())
	}
}
