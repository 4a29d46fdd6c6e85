package avgear

import (
	"time"

	"github.com/maeneak/avgearip/internal/matrix"
)

// MQTT message types exchanged between AV control clients and the bridge.

// Command actions accepted on the command topic.
const (
	ActionRoute        = "route"         // route input to output
	ActionRouteAll     = "route_all"     // route input to every output
	ActionOutputOff    = "output_off"    // switch one output off
	ActionOutputOn     = "output_on"     // re-enable one output
	ActionAllOff       = "all_off"       // switch every output off
	ActionAllThrough   = "all_through"   // route input N to output N
	ActionRecallPreset = "recall_preset" // recall a stored routing preset
	ActionSavePreset   = "save_preset"   // save current routing as a preset
	ActionClearPreset  = "clear_preset"  // clear a stored preset
	ActionPanelLock    = "panel_lock"    // lock the front panel
	ActionPanelUnlock  = "panel_unlock"  // unlock the front panel
	ActionPower        = "power"         // set power state (on/off/standby)
	ActionRefresh      = "refresh"       // force an immediate poll cycle
)

// Power parameter values for the "power" action.
const (
	PowerParamOn      = "on"
	PowerParamOff     = "off"
	PowerParamStandby = "standby"
)

// CommandMessage is sent by a control client to execute a matrix operation.
// Topic: avgear/command/matrix/{matrix_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// MatrixID is the target matrix identifier.
	MatrixID string `json:"matrix_id"`

	// Action is the operation name (see Action* constants).
	Action string `json:"action"`

	// Input is the 1-based input number (route, route_all).
	Input int `json:"input,omitempty"`

	// Output is the 1-based output number (route, output_off, output_on).
	Output int `json:"output,omitempty"`

	// Preset is the preset number for preset actions. A pointer because
	// preset 0 is a valid value.
	Preset *int `json:"preset,omitempty"`

	// Power is the target power state for the "power" action
	// ("on", "off", "standby").
	Power string `json:"power,omitempty"`

	// Source indicates where the command originated ("api", "panel",
	// "automation"). Informational only.
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was executed against the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: avgear/ack/matrix/{matrix_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// MatrixID is the matrix the command targeted.
	MatrixID string `json:"matrix_id"`

	// Action echoes the command action.
	Action string `json:"action"`

	// Status indicates the acknowledgement status.
	Status AckStatus `json:"status"`

	// Error contains details when Status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g. "MATRIX_UNREACHABLE").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidAction     = "INVALID_ACTION"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeMatrixUnreachable = "MATRIX_UNREACHABLE"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is published whenever a refresh completes.
// Topic: avgear/state/matrix/{matrix_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// MatrixID is the matrix identifier.
	MatrixID string `json:"matrix_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Outputs maps output number to input number; 0 means off/unknown.
	Outputs map[int]int `json:"outputs"`

	// CurrentPreset is the last recalled or saved preset, if known.
	// Cleared after a reconnect because the device does not report it.
	CurrentPreset *int `json:"current_preset,omitempty"`

	// Locked reports the front panel lock state.
	Locked bool `json:"locked"`

	// Power is the device power state ("PWON", "PWOFF", "STANDBY").
	Power string `json:"power"`

	// Model is the device model string, if queried.
	Model string `json:"model,omitempty"`

	// Firmware is the device firmware version, if queried.
	Firmware string `json:"firmware,omitempty"`

	// Connected reports whether the TCP link to the matrix is up.
	Connected bool `json:"connected"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: avgear/health/matrix
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// MatrixID is the matrix identifier.
	MatrixID string `json:"matrix_id"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the controller software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Connection contains matrix link details.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics contains link counters.
	Statistics *LinkStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the matrix link state.
type ConnectionStatus struct {
	// Status is the link status ("connected", "disconnected").
	Status string `json:"status"`

	// Address is the matrix address (host:port).
	Address string `json:"address,omitempty"`
}

// LinkStatistics contains matrix link counters.
type LinkStatistics struct {
	// CommandsTx is the total number of commands written to the device.
	CommandsTx uint64 `json:"commands_tx"`

	// ErrorsTotal is the total number of failed exchanges.
	ErrorsTotal uint64 `json:"errors_total"`

	// Reconnects is the number of re-dials after a connection loss.
	Reconnects uint64 `json:"reconnects"`

	// Refreshes is the number of completed poll cycles.
	Refreshes uint64 `json:"refreshes"`

	// RefreshFailures is the number of poll cycles whose status fetch failed.
	RefreshFailures uint64 `json:"refresh_failures"`
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		MatrixID:  cmd.MatrixID,
		Action:    cmd.Action,
		Status:    status,
	}
}

// NewAckError creates a failed acknowledgement with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		MatrixID:  cmd.MatrixID,
		Action:    cmd.Action,
		Status:    AckFailed,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage builds a state snapshot message from a status.
// preset is included only when known is true.
func NewStateMessage(matrixID string, status matrix.Status, preset int, known, connected bool) StateMessage {
	msg := StateMessage{
		MatrixID:  matrixID,
		Timestamp: time.Now().UTC(),
		Outputs:   status.Outputs,
		Locked:    status.Locked,
		Power:     string(status.Power),
		Model:     status.Model,
		Firmware:  status.Firmware,
		Connected: connected,
	}
	if known {
		p := preset
		msg.CurrentPreset = &p
	}
	return msg
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(matrixID, version, address string, status HealthStatus, stats matrix.Stats, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		MatrixID:      matrixID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}

	connStatus := "disconnected"
	if stats.Connected {
		connStatus = "connected"
	}
	msg.Connection = &ConnectionStatus{
		Status:  connStatus,
		Address: address,
	}

	msg.Statistics = &LinkStatistics{
		CommandsTx:      stats.CommandsTx,
		ErrorsTotal:     stats.ErrorsTotal,
		Reconnects:      stats.ReconnectsTotal,
		Refreshes:       stats.Refreshes,
		RefreshFailures: stats.RefreshFailures,
	}

	return msg
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// The broker publishes it if the controller disconnects unexpectedly.
func NewLWTMessage(matrixID string) HealthMessage {
	return HealthMessage{
		MatrixID:  matrixID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
