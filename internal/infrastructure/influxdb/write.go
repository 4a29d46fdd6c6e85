package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRefreshMetric records one poll cycle against the matrix.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - matrixID: Matrix identifier from config
//   - duration: How long the refresh cycle took
//   - success: Whether the mandatory status fetch succeeded
//
// Example:
//
//	client.WriteRefreshMetric("matrix-001", 450*time.Millisecond, true)
func (c *Client) WriteRefreshMetric(matrixID string, duration time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"matrix_refresh",
		map[string]string{
			"matrix_id": matrixID,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
			"success":     success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRoutingChange records an observed routing change on one output.
//
// Parameters:
//   - matrixID: Matrix identifier
//   - output: Output number (1-based)
//   - input: Input routed to the output; 0 means switched off
//   - source: "command" or "poll"
func (c *Client) WriteRoutingChange(matrixID string, output, input int, source string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"matrix_routing",
		map[string]string{
			"matrix_id": matrixID,
			"source":    source,
		},
		map[string]interface{}{
			"output": output,
			"input":  input,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkStats records the device link counters.
//
// Parameters:
//   - matrixID: Matrix identifier
//   - commandsTx: Total commands sent
//   - errorsTotal: Total wire errors
//   - reconnects: Total re-dials after connection loss
//   - connected: Current link state
func (c *Client) WriteLinkStats(matrixID string, commandsTx, errorsTotal, reconnects uint64, connected bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"matrix_link",
		map[string]string{
			"matrix_id": matrixID,
		},
		map[string]interface{}{
			"commands_tx":  float64(commandsTx),
			"errors_total": float64(errorsTotal),
			"reconnects":   float64(reconnects),
			"connected":    connected,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "controller-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
