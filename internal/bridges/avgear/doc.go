// Package avgear bridges an AVGear matrix switcher to MQTT.
//
// The bridge sits between the polling coordinator (which owns the TCP link
// to the matrix) and the MQTT broker:
//
//	AV control clients ←→ MQTT Broker ←→ Bridge ←→ Coordinator ←→ Matrix
//
// # Responsibilities
//
//   - Receiving command messages over MQTT and executing them against the
//     coordinator (routing, presets, power, panel lock)
//   - Publishing retained state snapshots whenever a refresh completes
//   - Acknowledging every command with an accepted/failed ack message
//   - Recording routing changes to the history repository and metrics sink
//   - Periodic health reporting with link statistics
//
// # Message Flow
//
// Commands arrive on avgear/command/matrix/{matrix_id} as JSON. The bridge
// validates the action, executes it via the Controller interface, and
// publishes an ack on avgear/ack/matrix/{matrix_id}. State snapshots are
// published retained on avgear/state/matrix/{matrix_id} so late subscribers
// immediately see the current routing table.
//
// # Thread Safety
//
// All Bridge methods are safe for concurrent use. MQTT handlers run on the
// client's callback goroutines; the bridge serialises nothing itself because
// the coordinator already serialises access to the device.
package avgear
