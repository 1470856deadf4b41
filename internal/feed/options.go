package feed

import (
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/metrics"
)

const (
	// DefaultPollInterval is the full-log refetch period while degraded.
	DefaultPollInterval = 2 * time.Second
	// DefaultReconnectInitial is the first reconnect delay when reconnect is enabled.
	DefaultReconnectInitial = 500 * time.Millisecond
	// DefaultReconnectMax caps the reconnect delay.
	DefaultReconnectMax = 30 * time.Second
)

// Option configures a Synchronizer. Use With* functions to create Options.
type Option func(*feedOptions)

type feedOptions struct {
	pollInterval     time.Duration
	reconnect        bool
	reconnectInitial time.Duration
	reconnectMax     time.Duration
	logger           *zap.Logger
	notifier         Notifier
	metrics          *metrics.Metrics
}

func defaultOptions() feedOptions {
	return feedOptions{
		pollInterval:     DefaultPollInterval,
		reconnectInitial: DefaultReconnectInitial,
		reconnectMax:     DefaultReconnectMax,
		logger:           zap.NewNop(),
	}
}

// WithPollInterval sets the degraded polling period.
func WithPollInterval(d time.Duration) Option {
	return func(o *feedOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithReconnect enables re-dialing the stream while degraded.
// Delays grow exponentially from initial up to max.
func WithReconnect(initial, max time.Duration) Option {
	return func(o *feedOptions) {
		o.reconnect = true
		if initial > 0 {
			o.reconnectInitial = initial
		}
		if max > 0 {
			o.reconnectMax = max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *feedOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNotifier sets the sink for feed_state events.
func WithNotifier(n Notifier) Option {
	return func(o *feedOptions) { o.notifier = n }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *feedOptions) { o.metrics = m }
}
