// Package regimen drives recurring execution of stored command sequences at
// fixed offsets from local midnight.
//
// # Overview
//
// Each regimen runs in its own actor goroutine that owns a queue of decoded
// schedule entries, the current day boundary (epoch) and exactly one pending
// timer. The loop is: arm the head entry, on fire check the durable execution
// marker, dispatch if unseen, advance; when the queue drains, wait for the next
// midnight and rebuild the queue for the new day.
//
// # Drift policy
//
// Firing is tolerant of clock and process drift: an entry more than a minute
// past due is dropped without execution, an entry due now or slightly past is
// run after a short fixed delay (so a backlog after a restart never busy-fires),
// and a future entry is armed for exactly its remaining delay.
//
// # At-most-once
//
// Every decode mints a fresh execution token. The (regimen, sequence, token,
// epoch) key is checked against and recorded in durable storage around each
// dispatch, so an entry executes at most once per day even across races with
// stale timers.
//
// # Timers
//
// Arming always cancels the pending timer first and bumps a generation
// counter; a fire carrying a stale generation is ignored. This guarantees a
// cancelled-and-replaced timer can never deliver its original fire.
package regimen
