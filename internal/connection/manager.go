package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aboyz1/HobbyVerse-sub001/internal/auth"
	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/reconnect"
)

// Manager owns the socket lifecycle. At most one live transport handle
// exists at any time; every other component reaches the network only
// through Emit.
type Manager interface {
	// Connect establishes the connection with the given credential.
	// No-op when already Connected. Transport failures are handled
	// internally (reconnect with backoff); only an auth rejection is
	// returned to the caller.
	Connect(ctx context.Context, cred auth.Credential) error

	// Disconnect tears down the transport, cancels any pending
	// reconnect and resets the attempt counter. User-initiated.
	Disconnect()

	// Emit sends a named event. Drops with a log when not Connected;
	// outbound events are never queued across disconnects.
	Emit(name string, payload any)

	// State returns the current lifecycle state.
	State() State

	// Frames returns the inbound frame channel consumed by the router.
	Frames() <-chan RawFrame
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	policy *reconnect.Policy
	logger *slog.Logger

	frames chan RawFrame

	mu       sync.Mutex
	ctx      context.Context
	state    State
	client   Client
	stop     chan struct{} // closed to detach the current pump goroutine
	cred     auth.Credential
	attempts int
	retry    *time.Timer
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:    cfg,
		policy: reconnect.NewPolicy(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay),
		logger: logger,
		frames: make(chan RawFrame, cfg.FrameBufferSize),
	}
}

// Connect establishes the connection.
func (m *manager) Connect(ctx context.Context, cred auth.Credential) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		m.logger.Debug("connect ignored, already connected")
		return nil
	}

	if err := cred.Check(time.Now()); err != nil {
		m.setStateLocked(StateFailed)
		m.mu.Unlock()
		m.publish(event.AuthRejectedName, event.AuthFailure{Reason: err.Error()})
		return fmt.Errorf("credential check: %w", err)
	}

	m.teardownLocked()
	m.ctx = ctx
	m.cred = cred
	m.attempts = 0
	m.policy.Reset()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.dial(); err != nil {
		if errors.Is(err, ErrAuthRejected) {
			return err
		}
		// Transport failure: a reconnect is already scheduled.
		return nil
	}
	return nil
}

// Disconnect tears everything down.
func (m *manager) Disconnect() {
	m.mu.Lock()
	wasConnected := m.state == StateConnected
	m.teardownLocked()
	m.attempts = 0
	m.policy.Reset()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if wasConnected {
		m.publish(event.DisconnectedName, event.ConnectionStatus{Reason: "client disconnect"})
	}
	m.logger.Info("disconnected")
}

// Emit sends a named event if connected.
func (m *manager) Emit(name string, payload any) {
	m.mu.Lock()
	cl := m.client
	st := m.state
	m.mu.Unlock()

	if st != StateConnected || cl == nil {
		m.logger.Warn("emit dropped, not connected", "event", name, "state", st.String())
		return
	}

	data, err := event.Marshal(name, payload)
	if err != nil {
		m.logger.Error("emit marshal failed", "event", name, "error", err)
		return
	}

	if err := cl.Send(data); err != nil {
		m.logger.Warn("emit failed", "event", name, "error", err)
	}
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Frames returns the inbound frame channel.
func (m *manager) Frames() <-chan RawFrame {
	return m.frames
}

// dial performs one connection attempt from the Connecting or
// Reconnecting state.
func (m *manager) dial() error {
	m.mu.Lock()
	if m.state != StateConnecting && m.state != StateReconnecting {
		m.mu.Unlock()
		return nil
	}
	if m.ctx != nil && m.ctx.Err() != nil {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return nil
	}

	ctx := m.ctx
	clientCfg := ClientConfig{
		URL:              m.cfg.WSURL,
		Token:            m.cred.Token(),
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		PingInterval:     m.cfg.PingInterval,
		PingTimeout:      m.cfg.PingTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.FrameBufferSize,
	}
	m.mu.Unlock()

	cl := NewClient(clientCfg, m.logger)
	if err := cl.Connect(ctx); err != nil {
		if errors.Is(err, ErrAuthRejected) {
			m.mu.Lock()
			m.setStateLocked(StateFailed)
			m.mu.Unlock()
			m.logger.Error("handshake rejected, not retrying", "error", err)
			m.publish(event.AuthRejectedName, event.AuthFailure{Reason: err.Error()})
			return err
		}
		m.scheduleRetry(err)
		return err
	}

	m.mu.Lock()
	if m.state != StateConnecting && m.state != StateReconnecting {
		// Disconnect (or a terminal failure) won the race while the
		// handshake was in flight; this transport must not come alive.
		st := m.state
		m.mu.Unlock()
		cl.Close()
		m.logger.Debug("discarding connection established after state change", "state", st.String())
		return nil
	}
	m.client = cl
	stop := make(chan struct{})
	m.stop = stop
	used := m.attempts
	m.attempts = 0
	m.policy.Reset()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.pump(cl, stop)

	m.logger.Info("connected", "attempts_used", used)
	m.publish(event.ConnectedName, event.ConnectionStatus{Attempts: used})
	return nil
}

// scheduleRetry arms the backoff timer for the next attempt, or
// transitions to Failed once the ceiling is exhausted.
func (m *manager) scheduleRetry(cause error) {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	if m.ctx != nil && m.ctx.Err() != nil {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxAttempts {
		attempts := m.attempts
		m.setStateLocked(StateFailed)
		m.mu.Unlock()
		m.logger.Error("reconnect ceiling reached, giving up",
			"attempts", attempts,
			"error", cause,
		)
		m.publish(event.ConnectionFailedName, event.ConnectionStatus{
			Attempts: attempts,
			Reason:   cause.Error(),
		})
		return
	}

	delay := m.policy.Next()
	m.attempts++
	attempt := m.attempts
	m.setStateLocked(StateReconnecting)
	m.retry = time.AfterFunc(delay, func() { m.dial() })
	m.mu.Unlock()

	m.logger.Warn("connection lost, reconnecting",
		"attempt", attempt,
		"delay", delay,
		"error", cause,
	)
}

// pump forwards frames from one client until it errors or is detached.
func (m *manager) pump(cl Client, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case err := <-cl.Errors():
			m.onTransportError(cl, err)
			return

		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			m.forward(RawFrame{Data: msg.Data, ReceivedAt: msg.ReceivedAt})
		}
	}
}

// onTransportError handles an unexpected close on the live client.
func (m *manager) onTransportError(cl Client, cause error) {
	m.mu.Lock()
	if m.client != cl {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.stop = nil
	m.mu.Unlock()

	cl.Close()
	m.publish(event.DisconnectedName, event.ConnectionStatus{Reason: cause.Error()})
	m.scheduleRetry(cause)
}

// teardownLocked closes the live transport handle, if any, and cancels
// any pending retry. Callers hold m.mu.
func (m *manager) teardownLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

func (m *manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state transition", "from", m.state.String(), "to", s.String())
	m.state = s
}

// publish injects a synthetic event into the inbound frame stream so
// lifecycle and failure notifications reach handlers through the same
// router as server pushes.
func (m *manager) publish(name string, payload any) {
	data, err := event.Marshal(name, payload)
	if err != nil {
		m.logger.Error("publish marshal failed", "event", name, "error", err)
		return
	}
	m.forward(RawFrame{Data: data, ReceivedAt: time.Now()})
}

func (m *manager) forward(f RawFrame) {
	select {
	case m.frames <- f:
	default:
		m.logger.Warn("inbound buffer full, dropping frame")
	}
}
