package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

// State is the connection manager's session state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	initialReconnectDelay = 10 * time.Second
	maxReconnectDelay     = 300 * time.Second
	defaultMaxAttempts    = 5
)

// Manager owns the session state and the reconnect policy for a Transport.
// All transport-touching operations in the rest of the service go through
// WithSessionRetry so the reconnect-then-retry-once rule is applied
// uniformly instead of being duplicated per call site.
//
// The poller is the only writer; the status endpoint reads snapshots
// concurrently, hence the mutex around the state fields.
type Manager struct {
	transport Transport

	mu             sync.Mutex
	state          State
	attempts       int
	maxAttempts    int
	reconnectDelay time.Duration
	lastReconnect  time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager wraps a transport with default backoff policy
// (10s initial delay, doubled per failed attempt, capped at 300s,
// at most 5 attempts before the Failed state).
func NewManager(t Transport) *Manager {
	return &Manager{
		transport:      t,
		state:          Disconnected,
		maxAttempts:    defaultMaxAttempts,
		reconnectDelay: initialReconnectDelay,
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the state, attempt counter and current backoff delay for
// the status endpoint.
func (m *Manager) Snapshot() (State, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.attempts, m.reconnectDelay
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	telemetry.SetSessionUp(s == Connected)
}

// Connect performs the initial connection. On failure it falls through to
// the reconnect path so a flaky first attempt still gets the backoff policy.
func (m *Manager) Connect(ctx context.Context) error {
	m.setState(Connecting)
	if err := m.transport.Connect(ctx); err != nil {
		slog.Warn("initial connect failed, entering reconnect path", slog.Any("err", err), slog.String("component", "conn"))
		if !m.Reconnect(ctx) {
			return fmt.Errorf("connect: %w", ErrReconnectExhausted)
		}
		return nil
	}
	m.mu.Lock()
	m.attempts = 0
	m.lastReconnect = m.now()
	m.mu.Unlock()
	m.setState(Connected)
	return nil
}

// CheckHealth performs a cheap authenticated round trip. It never returns
// an error; any failure reads as unhealthy.
func (m *Manager) CheckHealth(ctx context.Context) bool {
	if err := m.transport.Me(ctx); err != nil {
		slog.Debug("health check failed", slog.Any("err", err), slog.String("component", "conn"))
		return false
	}
	return true
}

// Reconnect tears down and reopens the transport, honoring the backoff
// window. It blocks until the window from the previous attempt has elapsed,
// then gives up immediately once the attempt budget is spent (the Failed
// state is terminal for this process). On success the attempt counter
// resets; on failure it increments and the delay doubles up to the cap.
func (m *Manager) Reconnect(ctx context.Context) bool {
	m.mu.Lock()
	if m.state == Failed {
		m.mu.Unlock()
		return false
	}
	wait := m.reconnectDelay - m.now().Sub(m.lastReconnect)
	m.mu.Unlock()

	if wait > 0 {
		slog.Info("waiting before reconnect attempt", slog.Duration("wait", wait), slog.String("component", "conn"))
		if err := m.sleep(ctx, wait); err != nil {
			return false
		}
	}

	m.mu.Lock()
	if m.attempts >= m.maxAttempts {
		m.mu.Unlock()
		m.setState(Failed)
		slog.Error("maximum reconnect attempts reached", slog.Int("max_attempts", m.maxAttempts), slog.String("component", "conn"))
		return false
	}
	attempt := m.attempts + 1
	m.mu.Unlock()

	m.setState(Reconnecting)
	slog.Info("attempting reconnect", slog.Int("attempt", attempt), slog.Int("max_attempts", m.maxAttempts), slog.String("component", "conn"))
	telemetry.Reconnects.Inc()

	_ = m.transport.Close()
	if err := m.transport.Connect(ctx); err != nil {
		telemetry.ReconnectFailures.Inc()
		m.mu.Lock()
		m.attempts++
		m.reconnectDelay = min(m.reconnectDelay*2, maxReconnectDelay)
		delay := m.reconnectDelay
		m.mu.Unlock()
		m.setState(Disconnected)
		slog.Warn("reconnect failed", slog.Any("err", err), slog.Duration("next_delay", delay), slog.String("component", "conn"))
		return false
	}

	m.mu.Lock()
	m.attempts = 0
	m.lastReconnect = m.now()
	m.mu.Unlock()
	m.setState(Connected)
	slog.Info("reconnect successful", slog.String("component", "conn"))
	return true
}

// WithSessionRetry runs op, and if it fails with an invalid-session
// condition, reconnects and retries exactly once. A second failure is
// surfaced to the caller; non-session failures are surfaced immediately.
func (m *Manager) WithSessionRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsSessionError(err) {
		return err
	}
	slog.Warn("session error, reconnecting before retry", slog.String("op", name), slog.Any("err", err), slog.String("component", "conn"))
	if !m.Reconnect(ctx) {
		if m.State() == Failed {
			return fmt.Errorf("%s: %w", name, ErrReconnectExhausted)
		}
		return fmt.Errorf("%s: reconnect failed: %w", name, err)
	}
	return op(ctx)
}
