package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/pkg/models"
)

const (
	// DefaultStageDwell is the minimum time each stage stays active.
	DefaultStageDwell = 800 * time.Millisecond
	// DefaultRunTimeout bounds the remote run request.
	DefaultRunTimeout = 30 * time.Second
)

// Option configures a Sequencer. Use With* functions to create Options.
type Option func(*sequencerOptions)

type sequencerOptions struct {
	stages     []models.StageID
	dwell      time.Duration
	runTimeout time.Duration
	logger     *zap.Logger
	notifier   Notifier
	metrics    *metrics.Metrics
}

func defaultOptions() sequencerOptions {
	return sequencerOptions{
		stages:     models.DefaultStages(),
		dwell:      DefaultStageDwell,
		runTimeout: DefaultRunTimeout,
		logger:     zap.NewNop(),
	}
}

// WithStages overrides the stage order. Mostly useful in tests.
func WithStages(stages []models.StageID) Option {
	return func(o *sequencerOptions) { o.stages = append([]models.StageID(nil), stages...) }
}

// WithStageDwell sets how long each stage stays active.
func WithStageDwell(d time.Duration) Option {
	return func(o *sequencerOptions) { o.dwell = d }
}

// WithRunTimeout bounds the remote run request. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(o *sequencerOptions) { o.runTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *sequencerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNotifier sets the event sink for stage and run events.
func WithNotifier(n Notifier) Option {
	return func(o *sequencerOptions) { o.notifier = n }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *sequencerOptions) { o.metrics = m }
}
