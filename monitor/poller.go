package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hyllesen/telegram-user-bot/db"
	"github.com/Hyllesen/telegram-user-bot/ocr"
	"github.com/Hyllesen/telegram-user-bot/telegram"
	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

var shareLinkPattern = regexp.MustCompile(`https://share\.temu\.com/\S+`)

// shareLinkExactLen is the portion of a detected share link that gets
// resolved: shorter matches are skipped, longer matches are cut down to
// exactly this many characters. Existing share codes fit inside it, so the
// truncation is part of the observable contract.
const shareLinkExactLen = 34

// KeywordResolver resolves a share link into a store keyword.
type KeywordResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// StoreExtractor extracts a store name from a downloaded screenshot.
type StoreExtractor interface {
	Extract(ctx context.Context, imagePath string) (string, error)
}

// Poller fetches recent group messages on a fixed cadence, deduplicates
// them, and dispatches text to the keyword resolver and media to the store
// extractor. It is the single stream of control: all set mutations happen
// from its loop, one cycle at a time.
type Poller struct {
	Transport telegram.Transport
	Conn      *telegram.Manager
	Matcher   *Matcher
	Resolver  KeywordResolver
	Extractor StoreExtractor
	History   *db.History // optional heartbeat, nil disables

	ChatID   int64
	MediaDir string

	Interval            time.Duration
	Window              time.Duration
	FetchLimit          int
	HealthCheckInterval time.Duration
	ErrorBackoff        time.Duration

	seen            map[int64]struct{}
	lastHealthCheck time.Time

	mu       sync.Mutex
	lastPoll time.Time

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller returns a poller with the fixed production cadence: 300s
// interval, 5 minute fetch window, 50 message cap, health checks at most
// every 300s, 60s backoff after a failed cycle.
func NewPoller(t telegram.Transport, conn *telegram.Manager, matcher *Matcher, resolver KeywordResolver, extractor StoreExtractor, chatID int64, mediaDir string) *Poller {
	return &Poller{
		Transport:           t,
		Conn:                conn,
		Matcher:             matcher,
		Resolver:            resolver,
		Extractor:           extractor,
		ChatID:              chatID,
		MediaDir:            mediaDir,
		Interval:            300 * time.Second,
		Window:              5 * time.Minute,
		FetchLimit:          50,
		HealthCheckInterval: 300 * time.Second,
		ErrorBackoff:        60 * time.Second,
		seen:                make(map[int64]struct{}),
		sleep:               sleepCtx,
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

// Start runs the polling loop until the context is cancelled or the
// connection manager exhausts its reconnect budget. A failed reconnect
// that still has budget only skips the cycle; exhaustion is fatal and
// surfaces here so the process can stop loudly.
func (p *Poller) Start(ctx context.Context) error {
	slog.Info("message poller starting",
		slog.Int64("chat_id", p.ChatID),
		slog.Duration("interval", p.Interval),
		slog.Duration("window", p.Window),
		slog.String("component", "poller"))

	for {
		if ctx.Err() != nil {
			slog.Info("message poller stopped", slog.String("component", "poller"))
			return nil
		}

		if time.Since(p.lastHealthCheck) > p.HealthCheckInterval {
			if !p.Conn.CheckHealth(ctx) {
				slog.Warn("connection health check failed, reconnecting", slog.String("component", "poller"))
				if !p.Conn.Reconnect(ctx) {
					if p.Conn.State() == telegram.Failed {
						return fmt.Errorf("poller: %w", telegram.ErrReconnectExhausted)
					}
					slog.Warn("reconnect failed, skipping cycle", slog.String("component", "poller"))
					if err := p.sleep(ctx, p.Interval); err != nil {
						return nil
					}
					continue
				}
			}
			p.lastHealthCheck = time.Now()
		}

		if _, err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Exhaustion inside a cycle (session retry burned the last
			// reconnect attempt) is just as terminal as exhaustion in the
			// health check above.
			if errors.Is(err, telegram.ErrReconnectExhausted) {
				return fmt.Errorf("poller: %w", err)
			}
			telemetry.PollCycleErrors.Inc()
			slog.Warn("poll cycle failed", slog.Any("err", err), slog.Duration("retry_in", p.ErrorBackoff), slog.String("component", "poller"))
			if err := p.sleep(ctx, p.ErrorBackoff); err != nil {
				return nil
			}
			continue
		}

		if err := p.sleep(ctx, p.Interval); err != nil {
			return nil
		}
	}
}

// PollOnce fetches messages newer than now minus the window, re-orders them
// chronologically, and dispatches each unseen one. Ids are marked seen
// before dispatch: a crash mid-batch drops the remainder of that batch
// rather than reprocessing it (documented limitation).
func (p *Poller) PollOnce(ctx context.Context) ([]telegram.Message, error) {
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	ctx, span := telemetry.StartSpan(ctx, "monitor", "poll-cycle")
	defer span.End()

	telemetry.PollCycles.Inc()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "poller"))

	since := time.Now().Add(-p.Window)
	var msgs []telegram.Message
	err := p.Conn.WithSessionRetry(ctx, "fetch messages", func(ctx context.Context) error {
		var err error
		msgs, err = p.Transport.RecentMessages(ctx, p.ChatID, since, p.FetchLimit)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	logger.Debug("fetched recent messages", slog.Int("count", len(msgs)))

	// Transport returns newest first; dispatch oldest first so a keyword
	// from an earlier link is pending before a later screenshot in the
	// same batch is matched.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	var fresh []telegram.Message
	p.mu.Lock()
	for _, m := range msgs {
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	p.mu.Unlock()

	for _, m := range fresh {
		telemetry.MessagesProcessed.Inc()
		p.dispatch(ctx, m)
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.mu.Unlock()
	if err := p.History.Heartbeat(ctx, "job_poll_last"); err != nil {
		logger.Warn("heartbeat write failed", slog.Any("err", err))
	}
	telemetry.SetSpanSuccess(span)
	return fresh, nil
}

// dispatch processes one message. Failures of a single message never abort
// the batch: they are logged and the message is skipped.
func (p *Poller) dispatch(ctx context.Context, m telegram.Message) {
	if m.HasMedia() {
		p.handleMedia(ctx, m)
	}
	if m.Text != "" {
		p.handleText(ctx, m)
	}
}

func (p *Poller) handleText(ctx context.Context, m telegram.Message) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("message_id", m.ID), slog.String("component", "poller"))
	for _, raw := range shareLinkPattern.FindAllString(m.Text, -1) {
		if len(raw) < shareLinkExactLen {
			logger.Warn("share link shorter than minimum, skipping", slog.String("url", raw), slog.Int("length", len(raw)))
			continue
		}
		link := raw[:shareLinkExactLen]
		kw, err := p.Resolver.Resolve(ctx, link)
		if err != nil {
			logger.Warn("keyword resolution failed", slog.String("url", link), slog.Any("err", err))
			continue
		}
		if kw == "" {
			logger.Info("no keyword in share link", slog.String("url", link))
			continue
		}
		telemetry.KeywordsExtracted.Inc()
		logger.Info("keyword extracted", slog.String("keyword", kw), slog.String("url", link))
		p.Matcher.OnKeyword(kw)
	}
}

func (p *Poller) handleMedia(ctx context.Context, m telegram.Message) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.Int64("message_id", m.ID), slog.String("component", "poller"))
	dest := filepath.Join(p.MediaDir, fmt.Sprintf("image_%d.jpg", m.ID))

	err := p.Conn.WithSessionRetry(ctx, "download media", func(ctx context.Context) error {
		return p.Transport.DownloadMedia(ctx, m.Media, dest)
	})
	if err != nil {
		logger.Warn("media download failed", slog.Any("err", err))
		return
	}
	logger.Info("image saved", slog.String("path", dest))

	storeName, err := p.Extractor.Extract(ctx, dest)
	if err != nil {
		if ocr.IsInvalidImage(err) {
			logger.Debug("screenshot discarded", slog.Any("err", err))
		} else {
			logger.Warn("store name extraction failed", slog.Any("err", err))
		}
		return
	}
	telemetry.StoreNamesExtracted.Inc()
	logger.Info("store name extracted", slog.String("store_name", storeName))
	p.Matcher.OnStoreName(ctx, storeName, dest, m.ID)
}

// LastPoll returns the completion time of the most recent successful cycle.
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

// SeenCount returns the number of distinct message ids processed so far.
func (p *Poller) SeenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}
