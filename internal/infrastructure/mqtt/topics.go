package mqtt

import "fmt"

// Topic prefixes for the AVGear controller.
//
// All matrix topics use the flat scheme: avgear/{category}/matrix/{matrix_id}
const (
	// TopicPrefix is the base for all controller topics.
	TopicPrefix = "avgear"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "avgear/system"
)

// Topics provides builders for controller MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.MatrixState("matrix-001")
//	// Returns: "avgear/state/matrix/matrix-001"
type Topics struct{}

// MatrixState returns the topic for retained matrix state snapshots.
//
// Example: avgear/state/matrix/matrix-001
func (Topics) MatrixState(matrixID string) string {
	return fmt.Sprintf("%s/state/matrix/%s", TopicPrefix, matrixID)
}

// MatrixCommand returns the topic for commands to a matrix.
//
// Example: avgear/command/matrix/matrix-001
func (Topics) MatrixCommand(matrixID string) string {
	return fmt.Sprintf("%s/command/matrix/%s", TopicPrefix, matrixID)
}

// MatrixAck returns the topic for command acknowledgements.
//
// Example: avgear/ack/matrix/matrix-001
func (Topics) MatrixAck(matrixID string) string {
	return fmt.Sprintf("%s/ack/matrix/%s", TopicPrefix, matrixID)
}

// MatrixHealth returns the topic for matrix link health status.
//
// Example: avgear/health/matrix
func (Topics) MatrixHealth() string {
	return fmt.Sprintf("%s/health/matrix", TopicPrefix)
}

// SystemStatus returns the controller status topic, also used for the LWT.
//
// Example: avgear/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllMatrixStates returns a pattern matching all matrix state topics.
//
// Pattern: avgear/state/matrix/+
func (Topics) AllMatrixStates() string {
	return fmt.Sprintf("%s/state/matrix/+", TopicPrefix)
}

// AllMatrixCommands returns a pattern matching all matrix command topics.
//
// Pattern: avgear/command/matrix/+
func (Topics) AllMatrixCommands() string {
	return fmt.Sprintf("%s/command/matrix/+", TopicPrefix)
}

// AllMatrixAcks returns a pattern matching all matrix ack topics.
//
// Pattern: avgear/ack/matrix/+
func (Topics) AllMatrixAcks() string {
	return fmt.Sprintf("%s/ack/matrix/+", TopicPrefix)
}

// AllTopics returns a pattern matching all controller topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: avgear/#
func (Topics) AllTopics() string {
	return "avgear/#"
}
