package matrix

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Timeouts and limits for device communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the TCP dial.
	defaultConnectTimeout = 5 * time.Second

	// defaultResponseTimeout is the timeout for the first response chunk.
	defaultResponseTimeout = 5 * time.Second

	// commandDelay is the fixed pause between writing a command and
	// reading its response, covering device processing latency.
	commandDelay = 100 * time.Millisecond

	// drainTimeout bounds each follow-up read while draining a response.
	// Responses carry no terminator; a drain timeout is the only
	// end-of-message signal.
	drainTimeout = 100 * time.Millisecond

	// readBufferSize is the read buffer for response chunks.
	readBufferSize = 4096

	// maxMatrixSize is the largest supported matrix dimension.
	maxMatrixSize = 32

	// Preset index range (device stores ten presets).
	presetMin = 0
	presetMax = 9
)

// Matrix defaults for the common 8x8 unit.
const (
	DefaultPort       = 4001
	DefaultNumInputs  = 8
	DefaultNumOutputs = 8
)

// Config describes the device endpoint. It is immutable per client.
type Config struct {
	// Host is the device IP or hostname. Required.
	Host string

	// Port is the TCP control port. Default: 4001.
	Port int

	// NumInputs and NumOutputs declare the matrix size (1..32 each).
	// Defaults: 8x8.
	NumInputs  int
	NumOutputs int
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.NumInputs == 0 {
		c.NumInputs = DefaultNumInputs
	}
	if c.NumOutputs == 0 {
		c.NumOutputs = DefaultNumOutputs
	}
	return c
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DeviceInfo identifies the connected unit.
type DeviceInfo struct {
	Model    string
	Firmware string
}

// Client is the TCP protocol client for one matrix switcher.
//
// One physical connection is shared by all operations. The protocol has no
// request identifiers, so the exchange gate serialises command/response
// round trips; concurrent callers queue first-come-first-served. The client
// performs no internal retry: any wire fault closes the connection and the
// next command reconnects lazily.
type Client struct {
	cfg Config

	// exchangeMu is the exchange gate, held from the command write
	// through the final drain read.
	exchangeMu sync.Mutex

	// conn is touched only with connMu held. Exchanges additionally hold
	// exchangeMu, so Connect/Disconnect/Connected stay safe alongside an
	// in-flight round trip.
	conn   net.Conn
	connMu sync.RWMutex

	status   Status
	statusMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	commandsTx      atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	everConnected   atomic.Bool
}

// NewClient creates a client for the given endpoint. No connection is
// opened until the first command or an explicit Connect.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg.withDefaults(),
		status: Status{
			Outputs: make(map[int]int),
			Power:   PowerOn,
		},
	}
}

// Connect opens the TCP connection. It is a no-op when already connected.
func (c *Client) Connect() error {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()
	return c.connectLocked()
}

// connectLocked dials the device. Caller must hold exchangeMu.
func (c *Client) connectLocked() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: defaultConnectTimeout}
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, addr, err)
	}

	if c.everConnected.Load() {
		c.reconnectsTotal.Add(1)
	}
	c.everConnected.Store(true)
	c.conn = conn

	c.logDebug("connected", "address", addr)
	return nil
}

// Disconnect closes the connection. The close is best-effort; the handle is
// cleared even if it fails. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()
	c.closeLocked()
}

// closeLocked drops the connection. Caller must hold exchangeMu.
func (c *Client) closeLocked() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logDebug("close failed", "error", err)
	}
	c.conn = nil
	c.logDebug("disconnected")
}

// Connected reports whether a connection handle currently exists.
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// send performs one full command/response exchange.
//
// It connects if necessary, writes the command as raw ASCII, waits the
// fixed inter-command delay, reads the first chunk with the response
// timeout, then drains further chunks with short timeouts until the device
// goes quiet. Any timeout or I/O error closes the connection and returns
// ErrConnection; retry is the coordinator's job via its refresh cycle.
func (c *Client) send(command string) (string, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	if err := c.connectLocked(); err != nil {
		return "", err
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	c.logDebug("sending command", "command", command)

	if err := conn.SetWriteDeadline(time.Now().Add(defaultResponseTimeout)); err != nil {
		return "", c.failExchange("set write deadline", err)
	}
	if _, err := conn.Write([]byte(command)); err != nil {
		return "", c.failExchange("write", err)
	}
	c.commandsTx.Add(1)

	// Device processing latency.
	time.Sleep(commandDelay)

	buf := make([]byte, readBufferSize)
	if err := conn.SetReadDeadline(time.Now().Add(defaultResponseTimeout)); err != nil {
		return "", c.failExchange("set read deadline", err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		return "", c.failExchange("read", err)
	}
	response := append([]byte(nil), buf[:n]...)

	// Drain whatever else the device pushes out.
	for {
		if err := conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return "", c.failExchange("set drain deadline", err)
		}
		n, err := conn.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return "", c.failExchange("drain", err)
		}
		if n == 0 {
			break
		}
	}

	text := strings.TrimSpace(decodeASCII(response))
	c.logDebug("received response", "response", text)
	return text, nil
}

// failExchange records a wire fault, drops the presumed-broken connection
// and wraps the error. Caller must hold exchangeMu.
func (c *Client) failExchange(op string, err error) error {
	c.errorsTotal.Add(1)
	c.closeLocked()
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

// --- Query operations ---

// QueryModel asks the device for its model string.
func (c *Client) QueryModel() (string, error) {
	resp, err := c.send(cmdQueryModel)
	if err != nil {
		return "", err
	}
	c.statusMu.Lock()
	c.status.Model = resp
	c.statusMu.Unlock()
	return resp, nil
}

// QueryFirmware asks the device for its firmware version string.
func (c *Client) QueryFirmware() (string, error) {
	resp, err := c.send(cmdQueryFirmware)
	if err != nil {
		return "", err
	}
	c.statusMu.Lock()
	c.status.Firmware = resp
	c.statusMu.Unlock()
	return resp, nil
}

// RefreshStatus fetches and parses the full routing table, merging the
// result into the cache per the parser's retention rules. Returns the
// updated snapshot.
func (c *Client) RefreshStatus() (Status, error) {
	resp, err := c.send(cmdQueryStatus)
	if err != nil {
		return Status{}, err
	}

	c.statusMu.Lock()
	c.status.Outputs = parseStatusResponse(resp, c.cfg.NumOutputs, c.cfg.NumInputs, c.status.Outputs)
	snapshot := c.status.clone()
	c.statusMu.Unlock()

	return snapshot, nil
}

// QueryOutput fetches the routing of a single output. A response that
// yields no usable information degrades to the previously cached value
// rather than an error.
func (c *Client) QueryOutput(output int) (int, error) {
	if err := c.validateOutput(output); err != nil {
		return 0, err
	}
	resp, err := c.send(cmdQueryOutput(output))
	if err != nil {
		return 0, err
	}

	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if in, ok := parseSingleOutput(resp, c.cfg.NumInputs); ok {
		c.status.Outputs[output] = in
		return in, nil
	}
	return c.status.Outputs[output], nil
}

// QueryPowerState fetches the device power mode.
func (c *Client) QueryPowerState() (PowerState, error) {
	resp, err := c.send(cmdQueryPower)
	if err != nil {
		return "", err
	}
	state := parsePowerState(resp)
	c.statusMu.Lock()
	c.status.Power = state
	c.statusMu.Unlock()
	return state, nil
}

// QueryLockStatus fetches the front-panel lock state.
func (c *Client) QueryLockStatus() (bool, error) {
	resp, err := c.send(cmdQueryLock)
	if err != nil {
		return false, err
	}
	locked := parseLocked(resp)
	c.statusMu.Lock()
	c.status.Locked = locked
	c.statusMu.Unlock()
	return locked, nil
}

// --- Switching operations ---

// RouteInputToOutput routes one input to one output.
func (c *Client) RouteInputToOutput(input, output int) error {
	if err := c.validateInput(input); err != nil {
		return err
	}
	if err := c.validateOutput(output); err != nil {
		return err
	}
	if _, err := c.send(cmdRoute(input, output)); err != nil {
		return err
	}
	c.statusMu.Lock()
	c.status.Outputs[output] = input
	c.statusMu.Unlock()
	return nil
}

// RouteInputToAll routes one input to every output.
func (c *Client) RouteInputToAll(input int) error {
	if err := c.validateInput(input); err != nil {
		return err
	}
	if _, err := c.send(cmdRouteAll(input)); err != nil {
		return err
	}
	c.statusMu.Lock()
	for out := 1; out <= c.cfg.NumOutputs; out++ {
		c.status.Outputs[out] = input
	}
	c.statusMu.Unlock()
	return nil
}

// SwitchOffOutput closes one output.
func (c *Client) SwitchOffOutput(output int) error {
	if err := c.validateOutput(output); err != nil {
		return err
	}
	if _, err := c.send(cmdOutputOff(output)); err != nil {
		return err
	}
	c.statusMu.Lock()
	c.status.Outputs[output] = 0
	c.statusMu.Unlock()
	return nil
}

// SwitchOnOutput reopens one output. The routed input is unknown until the
// next poll, so the cache is left untouched.
func (c *Client) SwitchOnOutput(output int) error {
	if err := c.validateOutput(output); err != nil {
		return err
	}
	_, err := c.send(cmdOutputOn(output))
	return err
}

// SwitchOffAll closes every output.
func (c *Client) SwitchOffAll() error {
	if _, err := c.send(cmdAllOff); err != nil {
		return err
	}
	c.statusMu.Lock()
	for out := 1; out <= c.cfg.NumOutputs; out++ {
		c.status.Outputs[out] = 0
	}
	c.statusMu.Unlock()
	return nil
}

// AllThrough routes input N to output N for every output.
func (c *Client) AllThrough() error {
	if _, err := c.send(cmdAllThrough); err != nil {
		return err
	}
	c.statusMu.Lock()
	for out := 1; out <= c.cfg.NumOutputs; out++ {
		c.status.Outputs[out] = out
	}
	c.statusMu.Unlock()
	return nil
}

// --- Preset operations ---

// SavePreset stores the current routing in a device preset.
func (c *Client) SavePreset(preset int) error {
	if err := c.validatePreset(preset); err != nil {
		return err
	}
	_, err := c.send(cmdSavePreset(preset))
	return err
}

// RecallPreset applies a stored preset. Because a recall changes arbitrary
// routing unpredictably, a full status fetch follows the command.
func (c *Client) RecallPreset(preset int) error {
	if err := c.validatePreset(preset); err != nil {
		return err
	}
	if _, err := c.send(cmdRecallPreset(preset)); err != nil {
		return err
	}
	_, err := c.RefreshStatus()
	return err
}

// ClearPreset erases a stored preset.
func (c *Client) ClearPreset(preset int) error {
	if err := c.validatePreset(preset); err != nil {
		return err
	}
	_, err := c.send(cmdClearPreset(preset))
	return err
}

// --- Power operations ---

// PowerOn sets normal working mode.
func (c *Client) PowerOn() error {
	if _, err := c.send(cmdPowerOn); err != nil {
		return err
	}
	c.setPower(PowerOn)
	return nil
}

// PowerOff enters standby and cuts PoC power to receivers.
func (c *Client) PowerOff() error {
	if _, err := c.send(cmdPowerOff); err != nil {
		return err
	}
	c.setPower(PowerOff)
	return nil
}

// Standby enters standby while keeping PoC power to receivers.
func (c *Client) Standby() error {
	if _, err := c.send(cmdStandby); err != nil {
		return err
	}
	c.setPower(PowerStandby)
	return nil
}

func (c *Client) setPower(state PowerState) {
	c.statusMu.Lock()
	c.status.Power = state
	c.statusMu.Unlock()
}

// --- Panel lock operations ---

// LockPanel disables the front-panel buttons.
func (c *Client) LockPanel() error {
	if _, err := c.send(cmdLockPanel); err != nil {
		return err
	}
	c.setLocked(true)
	return nil
}

// UnlockPanel enables the front-panel buttons.
func (c *Client) UnlockPanel() error {
	if _, err := c.send(cmdUnlockPanel); err != nil {
		return err
	}
	c.setLocked(false)
	return nil
}

func (c *Client) setLocked(locked bool) {
	c.statusMu.Lock()
	c.status.Locked = locked
	c.statusMu.Unlock()
}

// TestConnection connects and queries model and firmware. Used for initial
// connectivity validation before the coordinator starts polling.
func (c *Client) TestConnection() (DeviceInfo, error) {
	if err := c.Connect(); err != nil {
		return DeviceInfo{}, err
	}
	model, err := c.QueryModel()
	if err != nil {
		return DeviceInfo{}, err
	}
	firmware, err := c.QueryFirmware()
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{Model: model, Firmware: firmware}, nil
}

// Status returns a snapshot copy of the cached device state.
func (c *Client) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status.clone()
}

// NumInputs returns the declared input count.
func (c *Client) NumInputs() int { return c.cfg.NumInputs }

// NumOutputs returns the declared output count.
func (c *Client) NumOutputs() int { return c.cfg.NumOutputs }

// Stats returns current operational counters. Refresh counters are filled
// in by the coordinator.
func (c *Client) Stats() Stats {
	return Stats{
		CommandsTx:      c.commandsTx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		Connected:       c.Connected(),
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// --- Validation ---

func (c *Client) validateInput(input int) error {
	if input < 1 || input > c.cfg.NumInputs {
		return fmt.Errorf("%w: input must be 1-%d, got %d", ErrCommand, c.cfg.NumInputs, input)
	}
	return nil
}

func (c *Client) validateOutput(output int) error {
	if output < 1 || output > c.cfg.NumOutputs {
		return fmt.Errorf("%w: output must be 1-%d, got %d", ErrCommand, c.cfg.NumOutputs, output)
	}
	return nil
}

func (c *Client) validatePreset(preset int) error {
	if preset < presetMin || preset > presetMax {
		return fmt.Errorf("%w: preset must be %d-%d, got %d", ErrCommand, presetMin, presetMax, preset)
	}
	return nil
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
