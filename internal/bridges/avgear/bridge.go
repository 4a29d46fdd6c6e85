package avgear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maeneak/avgearip/internal/infrastructure/mqtt"
	"github.com/maeneak/avgearip/internal/matrix"
)

// Bridge operation constants.
const (
	// refreshTimeout bounds an on-demand refresh triggered over MQTT.
	refreshTimeout = 30 * time.Second

	// historyTimeout bounds a single history insert.
	historyTimeout = 5 * time.Second
)

// Bridge connects the matrix coordinator to MQTT.
// It handles:
//   - Receiving command messages and executing them via the Controller
//   - Publishing retained state snapshots after each refresh
//   - Recording routing changes to history and metrics
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	matrixID   string
	address    string
	mqtt       MQTTClient
	controller Controller
	health     *HealthReporter
	history    HistoryRecorder // Optional routing history persistence
	metrics    MetricsWriter   // Optional time-series metrics sink
	topics     mqtt.Topics

	// Last routing table seen, for change detection. Commands update it
	// eagerly so the next poll does not double-record the same change.
	lastOutputs   map[int]int
	lastOutputsMu sync.Mutex

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// Controller is the interface the bridge drives matrix operations through.
// It is satisfied by *matrix.Coordinator.
type Controller interface {
	RouteInput(input, output int) error
	RouteInputToAll(input int) error
	SwitchOffOutput(output int) error
	SwitchOnOutput(output int) error
	SwitchOffAll() error
	AllThrough() error
	RecallPreset(preset int) error
	SavePreset(preset int) error
	ClearPreset(preset int) error
	SetPanelLock(locked bool) error
	PowerOn() error
	PowerOff() error
	Standby() error

	// Refresh performs a poll cycle and waits for it to complete.
	Refresh(ctx context.Context) error

	// CurrentPreset returns the last recalled/saved preset, if known.
	CurrentPreset() (int, bool)

	Connected() bool
	Status() matrix.Status
	Stats() matrix.Stats
	NumOutputs() int

	// SetOnRefresh registers a callback invoked after each completed
	// refresh with the fresh status snapshot.
	SetOnRefresh(fn func(matrix.Status))
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// HistoryRecorder persists observed routing changes.
// This is optional - if nil, the bridge operates without history.
type HistoryRecorder interface {
	// RecordRoute records that input was routed to output on a matrix.
	// input 0 means the output was switched off.
	// source is RouteSourceCommand or RouteSourcePoll.
	RecordRoute(ctx context.Context, matrixID string, output, input int, source string) error
}

// MetricsWriter writes operational metrics to a time-series sink.
// This is optional - if nil, the bridge operates without metrics.
// It is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteRefreshMetric(matrixID string, duration time.Duration, success bool)
	WriteRoutingChange(matrixID string, output, input int, source string)
	WriteLinkStats(matrixID string, commandsTx, errorsTotal, reconnects uint64, connected bool)
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// MatrixID is the matrix identifier used in topics and messages.
	MatrixID string

	// Address is the matrix host:port, reported in health messages.
	Address string

	// Version is the controller software version for health messages.
	Version string

	// HealthInterval is how often to publish health status.
	// Default: 30 seconds.
	HealthInterval time.Duration

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Controller drives the matrix operations.
	Controller Controller

	// History is optional routing history persistence.
	History HistoryRecorder

	// Metrics is optional time-series metrics sink.
	Metrics MetricsWriter

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MatrixID == "" {
		return nil, fmt.Errorf("matrix ID is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	// Bridge-level context so in-flight refreshes abort on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		matrixID:    opts.MatrixID,
		address:     opts.Address,
		mqtt:        opts.MQTTClient,
		controller:  opts.Controller,
		history:     opts.History, // May be nil (optional)
		metrics:     opts.Metrics, // May be nil (optional)
		lastOutputs: make(map[int]int),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		MatrixID:   opts.MatrixID,
		Address:    opts.Address,
		Version:    opts.Version,
		Interval:   opts.HealthInterval,
		Publisher:  opts.MQTTClient,
		Controller: opts.Controller,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This subscribes to the command topic, registers the refresh callback,
// and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Publish state and record poll-observed changes after each refresh
	b.controller.SetOnRefresh(b.handleRefresh)

	// Subscribe to command topic
	commandTopic := b.topics.MatrixCommand(b.matrixID)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Start health reporting
	b.health.Start(ctx)

	b.logInfo("bridge started", "matrix_id", b.matrixID, "address", b.address)

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Cancel bridge context to abort in-flight refreshes
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// Health returns the health reporter, for LWT wiring during MQTT setup.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// handleCommandMessage parses and executes a command message.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"action", cmd.Action,
		"source", cmd.Source)

	b.executeCommand(cmd)
}

// executeCommand dispatches a command to the controller and publishes the ack.
func (b *Bridge) executeCommand(cmd CommandMessage) {
	var err error

	switch cmd.Action {
	case ActionRoute:
		err = b.controller.RouteInput(cmd.Input, cmd.Output)
	case ActionRouteAll:
		err = b.controller.RouteInputToAll(cmd.Input)
	case ActionOutputOff:
		err = b.controller.SwitchOffOutput(cmd.Output)
	case ActionOutputOn:
		err = b.controller.SwitchOnOutput(cmd.Output)
	case ActionAllOff:
		err = b.controller.SwitchOffAll()
	case ActionAllThrough:
		err = b.controller.AllThrough()
	case ActionRecallPreset, ActionSavePreset, ActionClearPreset:
		if cmd.Preset == nil {
			err = fmt.Errorf("%w: missing 'preset' parameter", ErrInvalidParameters)
			break
		}
		err = b.executePreset(cmd.Action, *cmd.Preset)
	case ActionPanelLock:
		err = b.controller.SetPanelLock(true)
	case ActionPanelUnlock:
		err = b.controller.SetPanelLock(false)
	case ActionPower:
		err = b.executePower(cmd)
	case ActionRefresh:
		err = b.executeRefresh()
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidAction, cmd.Action)
	}

	if err != nil {
		b.logError("command execution failed", err)
		b.publishAckError(cmd, errorCode(err), err.Error())
		return
	}

	// Record routing changes the command implies, before the next poll
	// observes them.
	b.recordCommandRouting(cmd)

	b.publishAck(cmd, AckAccepted)
}

// executePreset handles the three preset actions.
func (b *Bridge) executePreset(action string, preset int) error {
	switch action {
	case ActionRecallPreset:
		return b.controller.RecallPreset(preset)
	case ActionSavePreset:
		return b.controller.SavePreset(preset)
	default:
		return b.controller.ClearPreset(preset)
	}
}

// executePower handles the "power" action.
func (b *Bridge) executePower(cmd CommandMessage) error {
	switch cmd.Power {
	case PowerParamOn:
		return b.controller.PowerOn()
	case PowerParamOff:
		return b.controller.PowerOff()
	case PowerParamStandby:
		return b.controller.Standby()
	default:
		return fmt.Errorf("%w: unknown power state %q", ErrInvalidParameters, cmd.Power)
	}
}

// executeRefresh runs an on-demand poll cycle and records its timing.
func (b *Bridge) executeRefresh() error {
	ctx, cancel := context.WithTimeout(b.ctx, refreshTimeout)
	defer cancel()

	start := time.Now()
	err := b.controller.Refresh(ctx)

	if b.metrics != nil {
		b.metrics.WriteRefreshMetric(b.matrixID, time.Since(start), err == nil)
	}

	return err
}

// errorCode maps a command error to an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAction):
		return ErrCodeInvalidAction
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, matrix.ErrCommand):
		return ErrCodeInvalidParameters
	case errors.Is(err, matrix.ErrConnection):
		return ErrCodeMatrixUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// recordCommandRouting records the routing changes a successful command
// implies. Only actions with a deterministic outcome are recorded here;
// anything else (presets, output_on) is picked up by the next poll.
func (b *Bridge) recordCommandRouting(cmd CommandMessage) {
	switch cmd.Action {
	case ActionRoute:
		b.noteRoute(cmd.Output, cmd.Input, RouteSourceCommand)
	case ActionRouteAll:
		for out := 1; out <= b.controller.NumOutputs(); out++ {
			b.noteRoute(out, cmd.Input, RouteSourceCommand)
		}
	case ActionOutputOff:
		b.noteRoute(cmd.Output, 0, RouteSourceCommand)
	case ActionAllOff:
		for out := 1; out <= b.controller.NumOutputs(); out++ {
			b.noteRoute(out, 0, RouteSourceCommand)
		}
	case ActionAllThrough:
		for out := 1; out <= b.controller.NumOutputs(); out++ {
			b.noteRoute(out, out, RouteSourceCommand)
		}
	}
}

// noteRoute records a routing change if it differs from the last seen value.
func (b *Bridge) noteRoute(output, input int, source string) {
	b.lastOutputsMu.Lock()
	prev, seen := b.lastOutputs[output]
	if seen && prev == input {
		b.lastOutputsMu.Unlock()
		return
	}
	b.lastOutputs[output] = input
	b.lastOutputsMu.Unlock()

	// First observation after startup is a baseline, not a change.
	if !seen && source == RouteSourcePoll {
		return
	}

	if b.history != nil {
		ctx, cancel := context.WithTimeout(b.ctx, historyTimeout)
		if err := b.history.RecordRoute(ctx, b.matrixID, output, input, source); err != nil {
			b.logError("failed to record routing history", err)
		}
		cancel()
	}

	if b.metrics != nil {
		b.metrics.WriteRoutingChange(b.matrixID, output, input, source)
	}

	b.logDebug("routing change",
		"output", output,
		"input", input,
		"source", source)
}

// handleRefresh runs after each completed poll cycle.
// It records poll-observed routing changes, publishes the retained state
// snapshot, and pushes link statistics to the metrics sink.
func (b *Bridge) handleRefresh(status matrix.Status) {
	for output, input := range status.Outputs {
		b.noteRoute(output, input, RouteSourcePoll)
	}

	b.publishState(status)

	if b.metrics != nil {
		stats := b.controller.Stats()
		b.metrics.WriteLinkStats(b.matrixID,
			stats.CommandsTx, stats.ErrorsTotal, stats.ReconnectsTotal,
			stats.Connected)
	}
}

// publishState publishes a retained state snapshot.
func (b *Bridge) publishState(status matrix.Status) {
	preset, known := b.controller.CurrentPreset()
	msg := NewStateMessage(b.matrixID, status, preset, known, b.controller.Connected())

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := b.topics.MatrixState(b.matrixID)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus) {
	ack := NewAckMessage(cmd, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := b.topics.MatrixAck(b.matrixID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgement.
func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	ack := NewAckError(cmd, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	topic := b.topics.MatrixAck(b.matrixID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
