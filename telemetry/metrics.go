// Package telemetry provides Prometheus metrics, correlation-id aware
// logging helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles          prometheus.Counter
	PollCycleErrors     prometheus.Counter
	MessagesProcessed   prometheus.Counter
	KeywordsExtracted   prometheus.Counter
	StoreNamesExtracted prometheus.Counter
	ForwardsSent        prometheus.Counter
	ForwardsFailed      prometheus.Counter
	Reconnects          prometheus.Counter
	ReconnectFailures   prometheus.Counter

	// Histograms (seconds)
	ResolveDuration     prometheus.Observer
	RecognitionDuration prometheus.Observer

	// Gauges
	PendingKeywordsGauge prometheus.Gauge
	SentKeywordsGauge    prometheus.Gauge
	SessionUpGauge       prometheus.Gauge // 1=connected,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_poll_cycles_total", Help: "Number of message poll cycles"})
		PollCycleErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_poll_cycle_errors_total", Help: "Number of poll cycles that failed"})
		MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_processed_total", Help: "Number of unseen messages dispatched"})
		KeywordsExtracted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_keywords_extracted_total", Help: "Number of keywords extracted from share links"})
		StoreNamesExtracted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_store_names_extracted_total", Help: "Number of store names extracted from screenshots"})
		ForwardsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_forwards_sent_total", Help: "Number of images forwarded to the recipient"})
		ForwardsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_forwards_failed_total", Help: "Number of forward attempts that failed"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reconnects_total", Help: "Number of reconnect attempts"})
		ReconnectFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_reconnect_failures_total", Help: "Number of reconnect attempts that failed"})
		ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_resolve_duration_seconds", Help: "Share link resolution duration seconds", Buckets: prometheus.DefBuckets})
		RecognitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_recognition_duration_seconds", Help: "Screenshot recognition duration seconds", Buckets: prometheus.DefBuckets})
		PendingKeywordsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_pending_keywords", Help: "Current number of keywords awaiting a store name match"})
		SentKeywordsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_sent_keywords", Help: "Number of keywords already forwarded"})
		SessionUpGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_session_connected", Help: "Session connected=1 otherwise 0"})
	})
}

// SetSessionUp sets the session gauge to 1 when connected else 0.
func SetSessionUp(up bool) {
	if SessionUpGauge != nil {
		if up {
			SessionUpGauge.Set(1)
		} else {
			SessionUpGauge.Set(0)
		}
	}
}

// SetPendingKeywords records the current pending keyword count.
func SetPendingKeywords(n int) {
	if PendingKeywordsGauge != nil {
		PendingKeywordsGauge.Set(float64(n))
	}
}

// SetSentKeywords records the current sent keyword count.
func SetSentKeywords(n int) {
	if SentKeywordsGauge != nil {
		SentKeywordsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
