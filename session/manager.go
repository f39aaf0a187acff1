package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	readyWatchdog = 500 * time.Millisecond
	wakeMaxTries  = 5
	wakeInterval  = 1500 * time.Millisecond
)

// ConnectResult classifies the outcome of a wireless connection attempt
// (spec.md §4.3/§7): callers return one of these so the manager can decide
// whether to keep retrying or give up.
type ConnectResult int

const (
	ConnectOK ConnectResult = iota
	ConnectTimeout
	ConnectRefused
	ConnectHostDown
)

// Hooks are the side-effecting actions the manager triggers; it never
// performs transport IO itself (spec.md §4.4, "the manager never itself
// performs IO on the transport sockets").
type Hooks struct {
	// ConnectWireless attempts to open the wireless transport to the
	// stored console MAC. Only the wake loop calls it; the manager does
	// not reconnect wirelessly when the wired transport goes away.
	ConnectWireless func(ctx context.Context) ConnectResult
	// SendHomePulse sends a brief HOME press/release over the interrupt
	// channel, the wake trigger's visible side effect.
	SendHomePulse func()
	// TeardownWireless closes any open wireless connection (called when
	// the wired transport returns with ENABLE).
	TeardownWireless func()
}

// Manager owns the process-wide power state and the independently-tracked
// wireless transport substate (spec.md §4.4).
type Manager struct {
	mu        sync.Mutex
	power     PowerState
	transport TransportSubstate

	pairing *Store
	hooks   Hooks
	logger  *slog.Logger

	watchdogCancel context.CancelFunc
	wakeCancel     context.CancelFunc
}

// New creates a manager in the initial state (spec.md §3: "Initial state:
// SYSTEM_ACTIVE with transport-state DISCONNECTED").
func New(pairing *Store, hooks Hooks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		power:     Active,
		transport: Disconnected,
		pairing:   pairing,
		hooks:     hooks,
		logger:    logger,
	}
}

// Power returns the current power state.
func (m *Manager) Power() PowerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power
}

// Transport returns the current wireless transport substate.
func (m *Manager) Transport() TransportSubstate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// WiredSuspend handles a console SUSPEND event observed on the wired
// transport: ACTIVE -> STANDBY.
func (m *Manager) WiredSuspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.power == Active {
		m.power = Standby
		m.logger.Info("session: entering standby")
	}
}

// WiredEnable handles the wired transport returning with an ENABLE event:
// the session becomes ACTIVE and any wireless connection is torn down
// (spec.md §4.4 "Conversely, if the wired transport returns (ENABLE), any
// open wireless connection is torn down").
func (m *Manager) WiredEnable() {
	m.mu.Lock()
	prevPower := m.power
	m.power = Active
	m.cancelWakeLocked()
	m.transport = Disconnected
	m.mu.Unlock()

	if prevPower != Active {
		m.logger.Info("session: wired ENABLE, returning to active")
	}
	if m.hooks.TeardownWireless != nil {
		m.hooks.TeardownWireless()
	}
}

// HomePressed handles the controller's HOME button while in STANDBY: it is
// the wake trigger (spec.md §4.4 "user presses HOME on controller ->
// WAKING"). No-op outside STANDBY.
func (m *Manager) HomePressed(ctx context.Context) {
	m.mu.Lock()
	if m.power != Standby {
		m.mu.Unlock()
		return
	}
	m.power = Waking
	wakeCtx, cancel := context.WithCancel(ctx)
	m.wakeCancel = cancel
	m.mu.Unlock()

	m.logger.Info("session: waking")
	go m.wakeLoop(wakeCtx)
}

func (m *Manager) cancelWakeLocked() {
	if m.wakeCancel != nil {
		m.wakeCancel()
		m.wakeCancel = nil
	}
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		m.watchdogCancel = nil
	}
}

// wakeLoop retries the wireless connection up to wakeMaxTries times,
// wakeInterval apart (spec.md §4.4/§5). A connection attempt is itself the
// wake trigger: the transport substate is CONNECTING for the duration of
// each attempt, so the transport's own connected/ready callbacks can
// advance it; on success it pulses HOME, on failure the substate returns
// to DISCONNECTED, and on exhaustion the power state falls back to STANDBY.
func (m *Manager) wakeLoop(ctx context.Context) {
	for attempt := 1; attempt <= wakeMaxTries; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if m.hooks.ConnectWireless == nil {
			break
		}
		m.mu.Lock()
		if m.transport == Disconnected {
			m.transport = Connecting
		}
		m.mu.Unlock()
		result := m.hooks.ConnectWireless(ctx)
		if result == ConnectOK {
			if m.hooks.SendHomePulse != nil {
				m.hooks.SendHomePulse()
			}
			m.logger.Info("session: wake succeeded", "attempt", attempt)
			return
		}
		m.mu.Lock()
		if m.transport == Connecting {
			m.transport = Disconnected
		}
		m.mu.Unlock()
		m.logger.Warn("session: wake attempt failed", "attempt", attempt, "result", result)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wakeInterval):
		}
	}

	m.mu.Lock()
	if m.power == Waking {
		m.power = Standby
	}
	m.mu.Unlock()
	m.logger.Warn("session: wake attempts exhausted, returning to standby")
}

// AdvanceTransport moves the wireless transport substate forward,
// rejecting out-of-order transitions (spec.md §8 property 8). Entering
// Ready starts the 500ms READY->ENABLED watchdog.
func (m *Manager) AdvanceTransport(to TransportSubstate) bool {
	m.mu.Lock()
	if !validTransportAdvance(m.transport, to) {
		m.mu.Unlock()
		return false
	}
	m.transport = to
	var startWatchdog bool
	if to == Ready {
		startWatchdog = true
	}
	if to == Enabled && m.power == Waking {
		m.power = Active
	}
	m.mu.Unlock()

	if startWatchdog {
		m.startReadyWatchdog()
	}
	return true
}

func (m *Manager) startReadyWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.watchdogCancel = cancel
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(readyWatchdog):
		}
		m.mu.Lock()
		if m.transport == Ready {
			m.transport = Enabled
			if m.power == Waking {
				m.power = Active
			}
			m.logger.Info("session: READY->ENABLED watchdog fired")
		}
		m.mu.Unlock()
	}()
}

// TransportDisconnected handles a wireless transport teardown: substate
// returns to DISCONNECTED. If not in STANDBY, the caller's reconnect policy
// (outside this package) may attempt to reconnect.
func (m *Manager) TransportDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelWakeLocked()
	m.transport = Disconnected
}

// WiredPairingObserved persists the console's wireless MAC captured during
// wired SET_REPORT 0xF5 (spec.md §4.4 transport handoff).
func (m *Manager) WiredPairingObserved(localMAC, consoleMAC [6]byte) error {
	if m.pairing == nil {
		return nil
	}
	return m.pairing.SetConsoleMAC(localMAC, consoleMAC)
}

// CanAutoConnectWireless reports whether a stored pairing exists, the
// precondition for wireless auto-connect on cold start (spec.md §3).
func (m *Manager) CanAutoConnectWireless() bool {
	if m.pairing == nil {
		return false
	}
	_, complete := m.pairing.Get()
	return complete
}
