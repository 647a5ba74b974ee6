package regimen

import "time"

// Drift policy. Tests depend on these exact values; change with care.
const (
	// StaleCutoff is how far past due an entry may be and still execute.
	StaleCutoff = 60 * time.Second

	// PromptDelay is the fixed delay for entries due now or slightly past,
	// and for stale skips. Firing after a short beat instead of instantly
	// keeps a backlog of simultaneously-due items from re-entering the loop
	// in a tight storm.
	PromptDelay = 1 * time.Second
)

// Mode says what a timer fire should do with the head entry.
type Mode int

const (
	ModeExecute Mode = iota
	ModeSkip
)

func (m Mode) String() string {
	if m == ModeSkip {
		return "skip"
	}
	return "execute"
}

// TimerPlan is an arming decision: deliver Mode after Delay, for the entry due
// at Target.
type TimerPlan struct {
	Mode   Mode
	Delay  time.Duration
	Target time.Time
}

// PlanEntry decides how to arm the head entry relative to now.
//
//	delta < -StaleCutoff        skip after PromptDelay
//	-StaleCutoff <= delta <= 0  execute after PromptDelay
//	delta > 0                   execute after exactly delta
func PlanEntry(epoch time.Time, e Entry, now time.Time) TimerPlan {
	target := epoch.Add(e.TimeOffset)
	delta := target.Sub(now)
	switch {
	case delta < -StaleCutoff:
		return TimerPlan{Mode: ModeSkip, Delay: PromptDelay, Target: target}
	case delta <= 0:
		return TimerPlan{Mode: ModeExecute, Delay: PromptDelay, Target: target}
	default:
		return TimerPlan{Mode: ModeExecute, Delay: delta, Target: target}
	}
}

// PlanRollover arms the day-complete fire at the next local midnight. The fire
// arrives with an empty queue, which triggers the rebuild for the new day.
func PlanRollover(epoch time.Time, now time.Time) TimerPlan {
	target := NextMidnight(epoch)
	delay := target.Sub(now)
	if delay < PromptDelay {
		delay = PromptDelay
	}
	return TimerPlan{Mode: ModeExecute, Delay: delay, Target: target}
}
