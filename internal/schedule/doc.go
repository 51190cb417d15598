// Package schedule owns the declarative irrigation schedule and the day's
// running totals per station.
//
// The Store is the source of truth for "what has already happened today":
// applied minutes, applied depth, the forecast remainder published by the
// coordinator, and the active-run marker used for restart safety. All
// mutating operations are serialized through a single mutex (single-writer);
// reads return copies and may run concurrently.
//
// Daily totals roll over exactly once when the local date changes, with a
// small grace period after midnight so a cycle straddling the boundary does
// not reset mid-run. State is persisted write-through to SQLite and
// reloaded at startup, so totals and any in-flight run survive a restart.
package schedule
