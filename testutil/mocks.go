// Package testutil provides fakes and mock servers shared by tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Hyllesen/telegram-user-bot/ocr"
	"github.com/Hyllesen/telegram-user-bot/telegram"
)

// FakeTransport is a scriptable telegram.Transport. Unset function fields
// succeed with zero values. Call counters are safe for concurrent use.
type FakeTransport struct {
	ConnectFunc        func(ctx context.Context) error
	MeFunc             func(ctx context.Context) error
	RecentMessagesFunc func(ctx context.Context, chatID int64, since time.Time, limit int) ([]telegram.Message, error)
	DownloadMediaFunc  func(ctx context.Context, ref, dest string) error
	SendFileFunc       func(ctx context.Context, recipient, path string) error
	DialogsFunc        func(ctx context.Context) ([]telegram.Dialog, error)
	CloseFunc          func() error

	mu             sync.Mutex
	ConnectCalls   int
	MeCalls        int
	FetchCalls     int
	DownloadCalls  int
	SendFileCalls  int
	SentRecipients []string
	SentPaths      []string
}

func (f *FakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.ConnectCalls++
	f.mu.Unlock()
	if f.ConnectFunc != nil {
		return f.ConnectFunc(ctx)
	}
	return nil
}

func (f *FakeTransport) Me(ctx context.Context) error {
	f.mu.Lock()
	f.MeCalls++
	f.mu.Unlock()
	if f.MeFunc != nil {
		return f.MeFunc(ctx)
	}
	return nil
}

func (f *FakeTransport) RecentMessages(ctx context.Context, chatID int64, since time.Time, limit int) ([]telegram.Message, error) {
	f.mu.Lock()
	f.FetchCalls++
	f.mu.Unlock()
	if f.RecentMessagesFunc != nil {
		return f.RecentMessagesFunc(ctx, chatID, since, limit)
	}
	return nil, nil
}

func (f *FakeTransport) DownloadMedia(ctx context.Context, ref, dest string) error {
	f.mu.Lock()
	f.DownloadCalls++
	f.mu.Unlock()
	if f.DownloadMediaFunc != nil {
		return f.DownloadMediaFunc(ctx, ref, dest)
	}
	return os.WriteFile(dest, []byte(ref), 0o600)
}

func (f *FakeTransport) SendFile(ctx context.Context, recipient, path string) error {
	f.mu.Lock()
	f.SendFileCalls++
	f.SentRecipients = append(f.SentRecipients, recipient)
	f.SentPaths = append(f.SentPaths, path)
	f.mu.Unlock()
	if f.SendFileFunc != nil {
		return f.SendFileFunc(ctx, recipient, path)
	}
	return nil
}

func (f *FakeTransport) Dialogs(ctx context.Context) ([]telegram.Dialog, error) {
	if f.DialogsFunc != nil {
		return f.DialogsFunc(ctx)
	}
	return nil, nil
}

func (f *FakeTransport) Close() error {
	if f.CloseFunc != nil {
		return f.CloseFunc()
	}
	return nil
}

// Sends returns how many files were sent so far.
func (f *FakeTransport) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SendFileCalls
}

// FakeEngine is a canned ocr.Engine.
type FakeEngine struct {
	Regions []ocr.Region
	Err     error
	Calls   int
}

func (e *FakeEngine) ReadText(ctx context.Context, imagePath string) ([]ocr.Region, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Regions, nil
}

// MockGatewayServer mocks the session gateway's HTTP API.
type MockGatewayServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockGatewayServer creates a mock gateway; unset paths return 404.
func NewMockGatewayServer(t *testing.T) *MockGatewayServer {
	t.Helper()
	m := &MockGatewayServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockSession wires /session/connect, /session/disconnect and /me to
// succeed.
func (m *MockGatewayServer) MockSession() {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	m.Handlers["/session/connect"] = ok
	m.Handlers["/session/disconnect"] = ok
	m.Handlers["/me"] = ok
}

// MockMessages serves the given wire messages from /messages.
func (m *MockGatewayServer) MockMessages(msgs []map[string]any) {
	m.Handlers["/messages"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": msgs}) //nolint:errcheck // test mock response
	}
}

// MockSendFile records send-file requests and succeeds.
func (m *MockGatewayServer) MockSendFile(got *[]string) {
	m.Handlers["/send-file"] = func(w http.ResponseWriter, r *http.Request) {
		*got = append(*got, r.URL.Query().Get("recipient"))
		w.WriteHeader(http.StatusOK)
	}
}

// MockStatus makes every listed path answer with a fixed status code.
func (m *MockGatewayServer) MockStatus(code int, paths ...string) {
	for _, p := range paths {
		m.Handlers[p] = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) }
	}
}
