// Package coordinator orchestrates irrigation for one controller: it
// fuses the weather snapshot into the water-balance model, decides which
// station still needs water, drives the actuation gateway, and records
// deliveries in the schedule store.
//
// # Architecture
//
//	             ┌──────────────┐
//	  tick ─────▶│              │──▶ weather.Adapter (snapshot per cycle)
//	  manual ───▶│ Coordinator  │──▶ waterbalance (pure recompute)
//	  commands   │ single loop  │──▶ actuation.Gateway (sequential cmds)
//	             │              │──▶ schedule.Store (totals, rollover)
//	             └──────────────┘
//
// # State machine (per controller)
//
//	Idle ──entry due, water owed──▶ AwaitingStart ──ack──▶ Running
//	  ▲                                   │ retries exhausted
//	  └───────────────────────────────────┘
//	Running ──deadline / early stop / manual──▶ AwaitingStop ──ack──▶ Idle
//	any state ──stop_all / power off──▶ Idle (manual override wins)
//
// One Coordinator instance exists per configured controller, constructed
// explicitly with injected dependencies and an explicit Start/Stop
// lifecycle. Controllers are fully independent; nothing mutable is shared
// between them.
//
// A single goroutine runs the control loop: each pass drains the bounded
// manual command queue in arrival order, then evaluates every station
// against the latest snapshot. Actuation commands are strictly sequential;
// a new start is never issued while a prior command is outstanding. This
// makes the single-active-station invariant structural rather than
// lock-enforced.
package coordinator
