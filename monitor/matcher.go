// Package monitor drives the polling loop and the keyword/store-name
// matching state. One Poller is the sole writer of the seen/pending/sent
// sets; the status endpoint only reads snapshots.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Hyllesen/telegram-user-bot/db"
	"github.com/Hyllesen/telegram-user-bot/telegram"
	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

// Matcher joins keywords extracted from share links with store names
// extracted from screenshots and forwards each matching image at most once
// per keyword.
type Matcher struct {
	Conn      *telegram.Manager
	Transport telegram.Transport
	Recipient string
	History   *db.History // optional audit, nil disables

	mu      sync.Mutex
	pending map[string]string   // lowercased keyword -> display form
	sent    map[string]struct{} // lowercased keywords already forwarded
}

// NewMatcher returns a matcher forwarding matches through conn/t to
// recipient.
func NewMatcher(conn *telegram.Manager, t telegram.Transport, recipient string) *Matcher {
	return &Matcher{
		Conn:      conn,
		Transport: t,
		Recipient: recipient,
		pending:   make(map[string]string),
		sent:      make(map[string]struct{}),
	}
}

// OnKeyword records a keyword extracted from a resolved share link. Case is
// preserved for display, comparison is case-insensitive. Pending entries
// persist until process exit; a stale entry whose keyword was already
// forwarded is harmless because the sent set is checked before every
// forward.
func (m *Matcher) OnKeyword(kw string) {
	key := strings.ToLower(kw)
	m.mu.Lock()
	_, exists := m.pending[key]
	if !exists {
		m.pending[key] = kw
	}
	n := len(m.pending)
	m.mu.Unlock()
	if exists {
		slog.Debug("keyword already pending", slog.String("keyword", kw), slog.String("component", "matcher"))
		return
	}
	telemetry.SetPendingKeywords(n)
	slog.Info("keyword now pending", slog.String("keyword", kw), slog.String("component", "matcher"))
}

// OnStoreName checks the store name extracted from the image at imagePath
// against every pending keyword (case-insensitive prefix match, longest
// keyword wins when several are prefixes of the same name). On a fresh
// match it forwards the image and marks the keyword sent only after the
// forward succeeds; a keyword already sent is skipped silently.
func (m *Matcher) OnStoreName(ctx context.Context, storeName, imagePath string, messageID int64) {
	lower := strings.ToLower(storeName)

	m.mu.Lock()
	var matchKey, matchDisplay string
	for key, display := range m.pending {
		if strings.HasPrefix(lower, key) && len(key) > len(matchKey) {
			matchKey, matchDisplay = key, display
		}
	}
	if matchKey == "" {
		m.mu.Unlock()
		return
	}
	_, already := m.sent[matchKey]
	m.mu.Unlock()

	if already {
		slog.Debug("keyword already forwarded, skipping",
			slog.String("keyword", matchDisplay), slog.String("store_name", storeName), slog.String("component", "matcher"))
		return
	}
	slog.Info("store name matches pending keyword",
		slog.String("store_name", storeName), slog.String("keyword", matchDisplay), slog.String("component", "matcher"))

	err := m.Conn.WithSessionRetry(ctx, "send file", func(ctx context.Context) error {
		return m.Transport.SendFile(ctx, m.Recipient, imagePath)
	})
	if err != nil {
		telemetry.ForwardsFailed.Inc()
		slog.Error("forward failed", slog.Any("err", err), slog.String("keyword", matchDisplay), slog.String("component", "matcher"))
		return
	}

	m.mu.Lock()
	m.sent[matchKey] = struct{}{}
	n := len(m.sent)
	m.mu.Unlock()
	telemetry.SetSentKeywords(n)
	telemetry.ForwardsSent.Inc()
	slog.Info("image forwarded", slog.String("recipient", m.Recipient), slog.String("keyword", matchDisplay), slog.String("component", "matcher"))

	if err := m.History.RecordForward(ctx, matchDisplay, storeName, imagePath, messageID); err != nil {
		slog.Warn("forward audit insert failed", slog.Any("err", err), slog.String("component", "matcher"))
	}
}

// PendingCount returns the number of keywords awaiting a match.
func (m *Matcher) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SentCount returns the number of keywords already forwarded.
func (m *Matcher) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
