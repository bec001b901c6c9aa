package telegram

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubTransport lets each test script connect/me behavior without pulling
// in the gateway client.
type stubTransport struct {
	connectErrs []error // popped per Connect call; empty means success
	connects    int
	closes      int
	meErr       error
}

func (s *stubTransport) Connect(ctx context.Context) error {
	s.connects++
	if len(s.connectErrs) == 0 {
		return nil
	}
	err := s.connectErrs[0]
	s.connectErrs = s.connectErrs[1:]
	return err
}

func (s *stubTransport) Me(ctx context.Context) error { return s.meErr }

func (s *stubTransport) RecentMessages(ctx context.Context, chatID int64, since time.Time, limit int) ([]Message, error) {
	return nil, nil
}

func (s *stubTransport) DownloadMedia(ctx context.Context, ref, dest string) error { return nil }
func (s *stubTransport) SendFile(ctx context.Context, recipient, path string) error {
	return nil
}
func (s *stubTransport) Dialogs(ctx context.Context) ([]Dialog, error) { return nil, nil }
func (s *stubTransport) Close() error                                  { s.closes++; return nil }

// newTestManager returns a manager whose sleeps are recorded instead of
// slept.
func newTestManager(t *stubTransport) (*Manager, *[]time.Duration) {
	m := NewManager(t)
	var slept []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return m, &slept
}

func TestReconnectBackoffDoubling(t *testing.T) {
	errBoom := errors.New("boom")
	tr := &stubTransport{connectErrs: []error{errBoom, errBoom, errBoom}}
	m, _ := newTestManager(tr)

	if ok := m.Reconnect(context.Background()); ok {
		t.Fatal("expected first reconnect to fail")
	}
	if _, attempts, delay := m.Snapshot(); attempts != 1 || delay != 20*time.Second {
		t.Errorf("after 1 failure: attempts=%d delay=%v, want 1 and 20s", attempts, delay)
	}

	if ok := m.Reconnect(context.Background()); ok {
		t.Fatal("expected second reconnect to fail")
	}
	if _, attempts, delay := m.Snapshot(); attempts != 2 || delay != 40*time.Second {
		t.Errorf("after 2 failures: attempts=%d delay=%v, want 2 and 40s", attempts, delay)
	}
}

func TestReconnectDelayCap(t *testing.T) {
	tr := &stubTransport{}
	m, _ := newTestManager(tr)
	m.reconnectDelay = 280 * time.Second
	tr.connectErrs = []error{errors.New("boom")}

	m.Reconnect(context.Background())
	if _, _, delay := m.Snapshot(); delay != 300*time.Second {
		t.Errorf("delay = %v, want capped at 300s", delay)
	}
}

func TestReconnectExhaustion(t *testing.T) {
	errBoom := errors.New("boom")
	tr := &stubTransport{connectErrs: []error{errBoom, errBoom, errBoom, errBoom, errBoom}}
	m, _ := newTestManager(tr)

	for i := 0; i < 5; i++ {
		if ok := m.Reconnect(context.Background()); ok {
			t.Fatalf("reconnect %d unexpectedly succeeded", i+1)
		}
	}
	// Budget spent: the next attempt must fail without touching the
	// transport, and the state is terminal.
	before := tr.connects
	if ok := m.Reconnect(context.Background()); ok {
		t.Fatal("expected reconnect to fail after exhaustion")
	}
	if m.State() != Failed {
		t.Errorf("state = %v, want Failed", m.State())
	}
	if tr.connects != before {
		t.Errorf("transport.Connect called %d more times after exhaustion", tr.connects-before)
	}
	if ok := m.Reconnect(context.Background()); ok {
		t.Fatal("Failed state must be terminal")
	}
}

func TestReconnectSuccessResetsAttempts(t *testing.T) {
	tr := &stubTransport{connectErrs: []error{errors.New("boom")}}
	m, _ := newTestManager(tr)

	m.Reconnect(context.Background())
	if ok := m.Reconnect(context.Background()); !ok {
		t.Fatal("expected second reconnect to succeed")
	}
	state, attempts, _ := m.Snapshot()
	if state != Connected || attempts != 0 {
		t.Errorf("state=%v attempts=%d, want Connected and 0", state, attempts)
	}
	if tr.closes == 0 {
		t.Error("expected transport to be closed before reopening")
	}
}

func TestReconnectWaitsOutBackoffWindow(t *testing.T) {
	tr := &stubTransport{}
	m, slept := newTestManager(tr)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.lastReconnect = now.Add(-4 * time.Second) // 6s of the 10s window left

	if ok := m.Reconnect(context.Background()); !ok {
		t.Fatal("expected reconnect to succeed")
	}
	if len(*slept) != 1 || (*slept)[0] != 6*time.Second {
		t.Errorf("slept %v, want one 6s wait", *slept)
	}
}

func TestCheckHealth(t *testing.T) {
	tr := &stubTransport{}
	m, _ := newTestManager(tr)
	if !m.CheckHealth(context.Background()) {
		t.Error("expected healthy")
	}
	tr.meErr = errors.New("session dead")
	if m.CheckHealth(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestWithSessionRetry(t *testing.T) {
	t.Run("retries once after session error", func(t *testing.T) {
		tr := &stubTransport{}
		m, _ := newTestManager(tr)
		calls := 0
		err := m.WithSessionRetry(context.Background(), "op", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return &SessionError{Op: "op", Err: errors.New("expired")}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 2 {
			t.Errorf("op called %d times, want 2", calls)
		}
		if tr.connects != 1 {
			t.Errorf("reconnects = %d, want 1", tr.connects)
		}
	})

	t.Run("second failure is surfaced", func(t *testing.T) {
		tr := &stubTransport{}
		m, _ := newTestManager(tr)
		calls := 0
		sessionErr := &SessionError{Op: "op", Err: errors.New("expired")}
		err := m.WithSessionRetry(context.Background(), "op", func(ctx context.Context) error {
			calls++
			return sessionErr
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 2 {
			t.Errorf("op called %d times, want exactly 2 (one retry)", calls)
		}
	})

	t.Run("non-session errors are not retried", func(t *testing.T) {
		tr := &stubTransport{}
		m, _ := newTestManager(tr)
		calls := 0
		err := m.WithSessionRetry(context.Background(), "op", func(ctx context.Context) error {
			calls++
			return &TransientError{Op: "op", Err: errors.New("blip")}
		})
		if !IsTransient(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("op called %d times, want 1", calls)
		}
		if tr.connects != 0 {
			t.Errorf("unexpected reconnect")
		}
	})
}
