package matrix

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Poll interval bounds. Configured intervals are clamped into this range.
const (
	MinPollInterval     = 5 * time.Second
	MaxPollInterval     = 300 * time.Second
	DefaultPollInterval = 30 * time.Second
)

func clampInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return DefaultPollInterval
	}
	if interval < MinPollInterval {
		return MinPollInterval
	}
	if interval > MaxPollInterval {
		return MaxPollInterval
	}
	return interval
}

// Coordinator drives periodic and on-demand refreshes of one matrix and
// wraps the client's mutating operations so every state change is followed
// by a poll.
//
// A single run loop performs all refreshes; on-demand requests arriving
// while one is in flight coalesce into a single follow-up cycle. Each cycle
// fetches the routing table (mandatory) and the power and lock states
// (best-effort). The coordinator also tracks the active preset client-side,
// since the device does not report it: the tracked value is set only by
// recall/save and invalidated whenever the underlying connection was
// re-established, as the device may have been power-cycled in between.
type Coordinator struct {
	client   *Client
	interval time.Duration

	kick chan struct{}

	mu             sync.Mutex
	waiters        []chan error
	lastReconnects uint64

	presetMu      sync.Mutex
	currentPreset int
	presetKnown   bool

	callbackMu sync.RWMutex
	onRefresh  func(Status)

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	refreshes       atomic.Uint64
	refreshFailures atomic.Uint64
}

// NewCoordinator creates a coordinator polling the client at the given
// interval. The interval is clamped to the supported range; zero selects
// the default.
func NewCoordinator(client *Client, interval time.Duration) *Coordinator {
	return &Coordinator{
		client:   client,
		interval: clampInterval(interval),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. An immediate first refresh runs before the
// ticker takes over.
func (co *Coordinator) Start() {
	co.wg.Add(1)
	go co.run()
	co.RequestRefresh()
}

// Stop halts the poll loop and waits for any in-flight refresh to finish.
// Pending Refresh awaiters receive ErrStopped. Safe to call repeatedly.
func (co *Coordinator) Stop() {
	co.stopOnce.Do(func() {
		close(co.done)
	})
	co.wg.Wait()

	co.mu.Lock()
	waiters := co.waiters
	co.waiters = nil
	co.mu.Unlock()
	for _, w := range waiters {
		w <- ErrStopped
	}
}

func (co *Coordinator) run() {
	defer co.wg.Done()

	ticker := time.NewTicker(co.interval)
	defer ticker.Stop()

	for {
		select {
		case <-co.done:
			return
		case <-ticker.C:
			co.refresh()
		case <-co.kick:
			co.refresh()
		}
	}
}

// refresh serves one cycle. The waiter list is snapshotted before the
// network work starts, so a waiter registered mid-cycle is served by the
// follow-up cycle its kick already scheduled.
func (co *Coordinator) refresh() {
	co.mu.Lock()
	waiters := co.waiters
	co.waiters = nil
	co.mu.Unlock()

	err := co.refreshOnce()
	for _, w := range waiters {
		w <- err
	}
}

// refreshOnce performs the actual device round trips for one cycle.
func (co *Coordinator) refreshOnce() error {
	co.refreshes.Add(1)

	if _, err := co.client.RefreshStatus(); err != nil {
		co.refreshFailures.Add(1)
		co.logWarn("status refresh failed", "error", err)
		co.noteReconnects()
		return fmt.Errorf("refresh status: %w", err)
	}

	// Secondary queries are best-effort; an older device that does not
	// answer them must not fail the cycle.
	if _, err := co.client.QueryPowerState(); err != nil {
		co.logDebug("power query failed", "error", err)
	}
	if _, err := co.client.QueryLockStatus(); err != nil {
		co.logDebug("lock query failed", "error", err)
	}

	co.noteReconnects()

	co.callbackMu.RLock()
	callback := co.onRefresh
	co.callbackMu.RUnlock()
	if callback != nil {
		callback(co.client.Status())
	}

	return nil
}

// noteReconnects invalidates the tracked preset if the client reconnected
// since the last check.
func (co *Coordinator) noteReconnects() {
	reconnects := co.client.Stats().ReconnectsTotal

	co.mu.Lock()
	changed := reconnects != co.lastReconnects
	co.lastReconnects = reconnects
	co.mu.Unlock()

	if changed {
		co.logDebug("connection was re-established, resetting tracked preset")
		co.ResetCurrentPreset()
	}
}

// RequestRefresh schedules a refresh cycle without waiting for it. Requests
// arriving while a cycle is running coalesce into one follow-up.
func (co *Coordinator) RequestRefresh() {
	select {
	case co.kick <- struct{}{}:
	default:
	}
}

// Refresh schedules a refresh cycle and waits for a cycle that started
// after this call to complete, returning its mandatory-fetch result.
func (co *Coordinator) Refresh(ctx context.Context) error {
	waiter := make(chan error, 1)

	co.mu.Lock()
	co.waiters = append(co.waiters, waiter)
	co.mu.Unlock()

	co.RequestRefresh()

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Mutating operations ---
//
// Each wrapper issues the client command, checks for a reconnect, and
// schedules a verification poll.

// RouteInput routes one input to one output.
func (co *Coordinator) RouteInput(input, output int) error {
	err := co.client.RouteInputToOutput(input, output)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// RouteInputToAll routes one input to every output.
func (co *Coordinator) RouteInputToAll(input int) error {
	err := co.client.RouteInputToAll(input)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// SwitchOffOutput closes one output.
func (co *Coordinator) SwitchOffOutput(output int) error {
	err := co.client.SwitchOffOutput(output)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// SwitchOnOutput reopens one output.
func (co *Coordinator) SwitchOnOutput(output int) error {
	err := co.client.SwitchOnOutput(output)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// SwitchOffAll closes every output.
func (co *Coordinator) SwitchOffAll() error {
	err := co.client.SwitchOffAll()
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// AllThrough routes input N to output N for every output.
func (co *Coordinator) AllThrough() error {
	err := co.client.AllThrough()
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// RecallPreset applies a stored preset and records it as the active one.
// The reconnect check runs before the preset is recorded, so a reconnect
// that happened during the recall cannot clear the fresh value.
func (co *Coordinator) RecallPreset(preset int) error {
	err := co.client.RecallPreset(preset)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.setCurrentPreset(preset)
	co.RequestRefresh()
	return nil
}

// SavePreset stores the current routing in a preset and records it as the
// active one.
func (co *Coordinator) SavePreset(preset int) error {
	err := co.client.SavePreset(preset)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.setCurrentPreset(preset)
	co.RequestRefresh()
	return nil
}

// ClearPreset erases a stored preset. The active-preset tracking is left
// untouched; clearing a slot does not change the device routing.
func (co *Coordinator) ClearPreset(preset int) error {
	err := co.client.ClearPreset(preset)
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// SetPanelLock locks or unlocks the front panel.
func (co *Coordinator) SetPanelLock(locked bool) error {
	var err error
	if locked {
		err = co.client.LockPanel()
	} else {
		err = co.client.UnlockPanel()
	}
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// PowerOn sets normal working mode.
func (co *Coordinator) PowerOn() error {
	err := co.client.PowerOn()
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// PowerOff enters standby and cuts PoC power to receivers.
func (co *Coordinator) PowerOff() error {
	err := co.client.PowerOff()
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// Standby enters standby while keeping PoC power to receivers.
func (co *Coordinator) Standby() error {
	err := co.client.Standby()
	co.noteReconnects()
	if err != nil {
		return err
	}
	co.RequestRefresh()
	return nil
}

// --- Preset tracking ---

// CurrentPreset returns the tracked active preset. ok is false when no
// preset has been recalled or saved since startup or the last reconnect.
func (co *Coordinator) CurrentPreset() (preset int, ok bool) {
	co.presetMu.Lock()
	defer co.presetMu.Unlock()
	return co.currentPreset, co.presetKnown
}

// ResetCurrentPreset forgets the tracked active preset.
func (co *Coordinator) ResetCurrentPreset() {
	co.presetMu.Lock()
	co.currentPreset = 0
	co.presetKnown = false
	co.presetMu.Unlock()
}

func (co *Coordinator) setCurrentPreset(preset int) {
	co.presetMu.Lock()
	co.currentPreset = preset
	co.presetKnown = true
	co.presetMu.Unlock()
}

// --- Accessors ---

// Connected reports whether the client currently holds a connection.
func (co *Coordinator) Connected() bool {
	return co.client.Connected()
}

// Status returns the client's cached state snapshot.
func (co *Coordinator) Status() Status {
	return co.client.Status()
}

// NumInputs returns the declared input count of the matrix.
func (co *Coordinator) NumInputs() int { return co.client.NumInputs() }

// NumOutputs returns the declared output count of the matrix.
func (co *Coordinator) NumOutputs() int { return co.client.NumOutputs() }

// PollInterval returns the effective (clamped) poll interval.
func (co *Coordinator) PollInterval() time.Duration { return co.interval }

// Stats merges the client counters with the coordinator's refresh counters.
func (co *Coordinator) Stats() Stats {
	stats := co.client.Stats()
	stats.Refreshes = co.refreshes.Load()
	stats.RefreshFailures = co.refreshFailures.Load()
	return stats
}

// SetOnRefresh installs a callback invoked with a state snapshot after
// every successful refresh cycle. Pass nil to remove it.
func (co *Coordinator) SetOnRefresh(fn func(Status)) {
	co.callbackMu.Lock()
	co.onRefresh = fn
	co.callbackMu.Unlock()
}

// SetLogger sets the logger for this coordinator.
func (co *Coordinator) SetLogger(logger Logger) {
	co.loggerMu.Lock()
	co.logger = logger
	co.loggerMu.Unlock()
}

func (co *Coordinator) logDebug(msg string, keysAndValues ...any) {
	co.loggerMu.RLock()
	logger := co.logger
	co.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (co *Coordinator) logWarn(msg string, keysAndValues ...any) {
	co.loggerMu.RLock()
	logger := co.logger
	co.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
