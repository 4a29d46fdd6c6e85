package matrix

import "errors"

// Domain errors for the matrix package.
var (
	// ErrConnection is returned for dial failures, timeouts, and any I/O
	// error during a command exchange. The connection is always closed
	// before this error propagates.
	ErrConnection = errors.New("matrix: connection failed")

	// ErrCommand is returned when a command fails local validation
	// (input/output index or preset number out of range). No bytes are
	// written to the device.
	ErrCommand = errors.New("matrix: invalid command")

	// ErrStopped is returned to refresh awaiters when the coordinator
	// shuts down before their refresh could run.
	ErrStopped = errors.New("matrix: coordinator stopped")
)
