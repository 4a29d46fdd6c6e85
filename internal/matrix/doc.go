// Package matrix implements the protocol client and polling coordinator for
// AVGear video/audio matrix switchers controlled over TCP.
//
// The device speaks a proprietary ASCII line protocol with no request
// identifiers and no fixed response schema. The package is built around two
// constraints that follow from that:
//
//   - Exactly one command/response exchange may be in flight per connection.
//     The Client holds an exchange gate for the full round trip, from the
//     command write through the final drain read.
//   - Responses are parsed heuristically. The status grammar was reverse
//     engineered from observed device output; parsers try an ordered list of
//     extraction strategies and never invent data they cannot justify from
//     the response text.
//
// # Components
//
//	┌──────────────┐   refresh/commands   ┌──────────────┐   TCP    ┌────────┐
//	│ Coordinator  │─────────────────────►│    Client    │◄────────►│ Device │
//	│ (polling,    │                      │ (connection, │          └────────┘
//	│  coalescing, │◄─────────────────────│  exchange    │
//	│  presets)    │   status snapshots   │  gate, codec)│
//	└──────────────┘                      └──────────────┘
//
// The Client owns the socket and the cached Status snapshot. The Coordinator
// schedules periodic refreshes, coalesces on-demand refresh requests, runs
// best-effort power/lock queries after each mandatory routing fetch, and
// tracks the client-side current preset selection.
//
// # Error Model
//
// Two error kinds cover everything:
//
//   - ErrConnection: dial failure, timeout, or any I/O error on the wire.
//     The connection is closed as a side effect; the next command starts
//     from a clean reconnect attempt.
//   - ErrCommand: a local precondition violation (index or preset out of
//     range). Raised before any bytes are written.
//
// Check with errors.Is.
//
// # Thread Safety
//
// All exported methods on Client and Coordinator are safe for concurrent
// use. Callers queue first-come-first-served on the exchange gate.
package matrix
