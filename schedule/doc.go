// Package schedule implements the time-ordered action queue. The in-memory
// scheduler models scheduling state as an owned, lockable arena keyed by
// action ID with a per-lead index and explicit lease timestamps, so
// concurrent Due callers never receive the same action twice before a
// lease expires and a crashed worker's action is reclaimed automatically.
package schedule
