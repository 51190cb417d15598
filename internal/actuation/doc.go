// Package actuation abstracts the valve control method behind a uniform
// gateway contract.
//
// # Architecture
//
//	Coordinator ──▶ Gateway ──▶ MQTTBackend ──▶ broker ──▶ valve hardware
//	                        └─▶ LogBackend (dev/dry-run)
//
// The coordinator is backend-agnostic: it submits commands and awaits
// their terminal status through a Pending handle within a caller-supplied
// timeout. Physical actions take time, so completion is always reported
// asynchronously; the MQTT backend resolves a Pending when the valve's
// feedback topic confirms the commanded state.
//
// Backend guarantees, uniform across implementations:
//   - Start rejects with ErrConflict while another station is active. The
//     coordinator enforces exclusivity first; the gateway defends the
//     invariant independently.
//   - Stop on an already-stopped station is a no-op success (idempotent).
//
// Every dispatched command is also recorded in a bounded ring buffer
// (most recent N) for diagnostics.
package actuation
