// Package api provides the HTTP REST API for Aqua Core.
//
// It exposes controller status, per-station daily totals, the recent
// command log, and manual override operations (start, stop, stop-all,
// power) to dashboards and scripts.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Manual overrides are asynchronous: the server enqueues a command on the
// target coordinator and replies 202 Accepted. Whether and when the
// command takes effect is visible through the status and command-log
// endpoints.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
