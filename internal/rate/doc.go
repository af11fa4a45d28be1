// Package rate implements brute-force protection: per-identifier attempt
// windows with a reset-style sliding window and a temporary hard lockout.
//
// # Design
//
// State lives in a pluggable [Store]; the [Limiter] itself is stateless and
// safe for concurrent use. All transitions are evaluated lazily on
// Check/RecordFailure — there are no background timers. The state machine per
// window is Fresh → Accumulating → Locked; success or window expiry returns
// any state to Fresh, and only the passage of LockedUntil exits Locked.
//
// # What this package must NOT do
//
//   - Hard-fail a caller because the store is down: reads fail open, always.
//   - Assume atomic increments; the store contract is plain read-then-write.
//   - Import the root package or any sibling.
package rate
