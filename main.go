// Command telegram-user-bot monitors one Telegram group for Temu share
// links and store-follow screenshots, matches recognized store names
// against pending link keywords, and forwards each matching screenshot to
// a fixed recipient once per keyword.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to the local session gateway with bounded reconnect/backoff.
//   - Runs the message polling loop (fetch, dedup, resolve, recognize, match).
//   - Optionally records a forward audit history in Postgres.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM. Reconnect exhaustion is fatal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Hyllesen/telegram-user-bot/config"
	"github.com/Hyllesen/telegram-user-bot/db"
	"github.com/Hyllesen/telegram-user-bot/groupstore"
	"github.com/Hyllesen/telegram-user-bot/keyword"
	"github.com/Hyllesen/telegram-user-bot/monitor"
	"github.com/Hyllesen/telegram-user-bot/ocr"
	"github.com/Hyllesen/telegram-user-bot/server"
	"github.com/Hyllesen/telegram-user-bot/telegram"
	"github.com/Hyllesen/telegram-user-bot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("telegram-user-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Target group: persisted selection wins, env default is the fallback.
	chatID := cfg.TargetGroupID
	if id, ok, err := groupstore.Load(cfg.GroupFile); err != nil {
		slog.Warn("selected group file unreadable, using configured default", slog.Any("err", err))
	} else if ok {
		chatID = id
		slog.Info("using persisted group selection", slog.Int64("chat_id", chatID), slog.String("file", cfg.GroupFile))
	} else if err := cfg.ValidateMonitorReady(); err != nil {
		slog.Error("no target group", slog.Any("err", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ImagesDir, 0o755); err != nil {
		slog.Error("failed to create images dir", slog.Any("err", err), slog.String("dir", cfg.ImagesDir))
		os.Exit(1)
	}

	// Optional forward audit history.
	var history *db.History
	if cfg.DBDsn != "" {
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(migrateCtx, database); err != nil {
			cancel()
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		cancel()
		history = &db.History{DB: database}
		slog.Info("forward audit history enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := telegram.NewGatewayClient(cfg.GatewayAddr)
	conn := telegram.NewManager(transport)
	if err := conn.Connect(ctx); err != nil {
		slog.Error("could not establish connection", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			slog.Warn("transport close failed", slog.Any("err", err))
		}
	}()

	matcher := monitor.NewMatcher(conn, transport, cfg.ForwardRecipient)
	matcher.History = history

	resolver := keyword.NewResolver()
	resolver.Timeout = cfg.ResolveTimeout

	extractor := &ocr.Extractor{Engine: &ocr.ExecEngine{Command: cfg.OCRCommand}}

	poller := monitor.NewPoller(transport, conn, matcher, resolver, extractor, chatID, cfg.ImagesDir)
	poller.Interval = cfg.PollInterval
	poller.Window = cfg.FetchWindow
	poller.FetchLimit = cfg.FetchLimit
	poller.History = history

	status := func() server.Status {
		state, attempts, delay := conn.Snapshot()
		return server.Status{
			SessionState:      state.String(),
			ReconnectAttempts: attempts,
			ReconnectDelay:    delay.String(),
			PendingKeywords:   matcher.PendingCount(),
			SentKeywords:      matcher.SentCount(),
			SeenMessages:      poller.SeenCount(),
			LastPoll:          poller.LastPoll(),
		}
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, addr, status); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- poller.Start(ctx) }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("monitor stopped", slog.Any("err", err))
			stop()
			if err := transport.Close(); err != nil {
				slog.Warn("transport close failed", slog.Any("err", err))
			}
			os.Exit(1)
		}
		slog.Info("monitor finished")
	}
}
