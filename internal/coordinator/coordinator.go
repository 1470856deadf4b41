// Package coordinator wires the run pipeline, the run guard, the live feed and
// autopilot around one shared log store.
//
// Presentation code talks only to Coordinator: it issues commands
// (RequestRun, SetAutopilot) and reads copies of state. Events are hints
// to re-read state and may be dropped under load.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/autopilot"
	"github.com/ShayCichocki/nexus/internal/events"
	"github.com/ShayCichocki/nexus/internal/feed"
	"github.com/ShayCichocki/nexus/internal/logstore"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/pipeline"
	"github.com/ShayCichocki/nexus/internal/runguard"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("coordinator closed")

// Backend is the request/response surface of the swarm backend.
type Backend interface {
	Run(ctx context.Context) (*models.RunResult, error)
	Status(ctx context.Context) (models.Status, error)
	Logs(ctx context.Context) ([]models.LogEntry, error)
}

// WebsocketDialer is satisfied by *api.Client.
type WebsocketDialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// StreamDialer adapts a websocket dialer to the feed.
func StreamDialer(d WebsocketDialer) feed.Dialer {
	return feed.DialerFunc(func(ctx context.Context) (feed.Conn, error) {
		conn, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Config holds the coordinator timings.
type Config struct {
	StageDwell       time.Duration
	RunTimeout       time.Duration
	PollInterval     time.Duration
	Reconnect        bool
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	AutopilotPeriod  time.Duration
	// AutopilotEnabled turns autopilot on during Start.
	AutopilotEnabled bool
	EventBuffer      int
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		StageDwell:       pipeline.DefaultStageDwell,
		RunTimeout:       pipeline.DefaultRunTimeout,
		PollInterval:     feed.DefaultPollInterval,
		ReconnectInitial: feed.DefaultReconnectInitial,
		ReconnectMax:     feed.DefaultReconnectMax,
		AutopilotPeriod:  autopilot.DefaultPeriod,
		EventBuffer:      events.DefaultBufferSize,
	}
}

// Option configures a Coordinator.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	stages  []models.StageID
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *coordinatorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collectors shared by every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *coordinatorOptions) { o.metrics = m }
}

// WithStages overrides the stage order.
func WithStages(stages []models.StageID) Option {
	return func(o *coordinatorOptions) { o.stages = stages }
}

// Coordinator is the composition root.
type Coordinator struct {
	cfg     Config
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Metrics

	emitter   *events.Emitter
	store     *logstore.Store
	sequencer *pipeline.Sequencer
	guard     *runguard.Guard
	feed      *feed.Synchronizer
	autopilot *autopilot.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders run admission against Close so guard.Wait never races a new run.
	mu     sync.RWMutex
	closed bool
}

// New builds a Coordinator. Nothing runs until Start.
func New(cfg Config, backend Backend, dialer feed.Dialer, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if dialer == nil {
		return nil, errors.New("stream dialer is required")
	}
	o := coordinatorOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = events.DefaultBufferSize
	}

	c := &Coordinator{
		cfg:     cfg,
		backend: backend,
		logger:  o.logger,
		metrics: o.metrics,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.emitter = events.NewEmitter(cfg.EventBuffer, o.logger.Named("events"))
	c.store = logstore.New(c.emitter)

	seqOpts := []pipeline.Option{
		pipeline.WithStageDwell(cfg.StageDwell),
		pipeline.WithRunTimeout(cfg.RunTimeout),
		pipeline.WithLogger(o.logger.Named("pipeline")),
		pipeline.WithNotifier(c.emitter),
		pipeline.WithMetrics(o.metrics),
	}
	if len(o.stages) > 0 {
		seqOpts = append(seqOpts, pipeline.WithStages(o.stages))
	}
	c.sequencer = pipeline.New(backend, c.store, seqOpts...)

	c.guard = runguard.New(runguard.Hooks{
		OnAcquire: c.sequencer.Begin,
		OnRelease: c.sequencer.Finish,
	}, o.logger.Named("runguard"))

	feedOpts := []feed.Option{
		feed.WithPollInterval(cfg.PollInterval),
		feed.WithLogger(o.logger.Named("feed")),
		feed.WithNotifier(c.emitter),
		feed.WithMetrics(o.metrics),
	}
	if cfg.Reconnect {
		feedOpts = append(feedOpts, feed.WithReconnect(cfg.ReconnectInitial, cfg.ReconnectMax))
	}
	c.feed = feed.New(dialer, backend, c.store, feedOpts...)

	c.autopilot = autopilot.New(c,
		autopilot.WithPeriod(cfg.AutopilotPeriod),
		autopilot.WithLogger(o.logger.Named("autopilot")),
		autopilot.WithNotifier(c.emitter),
		autopilot.WithMetrics(o.metrics),
	)
	return c, nil
}

// Start mounts the live feed and refreshes the status snapshot once.
func (c *Coordinator) Start() error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := c.feed.Start(c.ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}

	status, err := c.backend.Status(c.ctx)
	if err != nil {
		c.logger.Warn("initial status fetch failed", zap.Error(err))
	} else {
		c.store.SetStatus(status)
	}

	if c.cfg.AutopilotEnabled {
		c.autopilot.SetEnabled(true)
	}
	c.logger.Info("coordinator started",
		zap.Duration("stage_dwell", c.cfg.StageDwell),
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Bool("reconnect", c.cfg.Reconnect))
	return nil
}

// RequestRun starts a run in the background unless one is in flight.
// A rejected request changes no state.
func (c *Coordinator) RequestRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}

	runID, ok := c.guard.Go(c.ctx, c.sequencer.Execute)
	if !ok {
		c.reject()
		return false
	}
	c.logger.Debug("run accepted", zap.String("run_id", runID))
	return true
}

// Run executes one run in the caller goroutine.
// It returns runguard.ErrRunInFlight if another run holds the guard.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	ctx, cancel := mergeCancel(ctx, c.ctx)
	defer cancel()

	_, err := c.guard.Do(ctx, c.sequencer.Execute)
	if errors.Is(err, runguard.ErrRunInFlight) {
		c.reject()
	}
	return err
}

func (c *Coordinator) reject() {
	c.metrics.RecordRun(metrics.ResultRejected, 0)
	c.emitter.Emit(models.NewEvent(models.EventRunRejected))
	c.logger.Debug("run request dropped, run in flight")
}

// SetAutopilot enables or disables periodic runs.
func (c *Coordinator) SetAutopilot(enabled bool) {
	c.autopilot.SetEnabled(enabled)
}

// Autopilot reports whether autopilot is enabled.
func (c *Coordinator) Autopilot() bool {
	return c.autopilot.Enabled()
}

// Busy reports whether a run is in flight.
func (c *Coordinator) Busy() bool {
	return c.guard.Busy()
}

// Stages returns the configured stage order.
func (c *Coordinator) Stages() []models.StageID {
	return c.sequencer.Stages()
}

// RunState returns a copy of the current run progress.
func (c *Coordinator) RunState() models.RunState {
	return c.sequencer.RunState()
}

// Logs returns a copy of the log, newest first.
func (c *Coordinator) Logs() []models.LogEntry {
	return c.store.Logs()
}

// Status returns a copy of the status snapshot.
func (c *Coordinator) Status() models.Status {
	return c.store.Status()
}

// FeedState returns the live feed state.
func (c *Coordinator) FeedState() feed.State {
	return c.feed.State()
}

// Events returns the event channel. It is closed by Close.
func (c *Coordinator) Events() <-chan models.Event {
	return c.emitter.Events()
}

// DroppedEvents returns how many events were dropped for slow readers.
func (c *Coordinator) DroppedEvents() uint64 {
	return c.emitter.DroppedCount()
}

// Close stops autopilot and the feed, waits for an in-flight run and
// releases everything. It is idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.autopilot.Close()
	err := c.feed.Close()

	// Bounded by the run timeout.
	c.guard.Wait()
	c.cancel()
	c.emitter.Close()

	c.logger.Info("coordinator closed", zap.Uint64("dropped_events", c.emitter.DroppedCount()))
	if err != nil {
		return fmt.Errorf("close feed: %w", err)
	}
	return nil
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(ctx, lifetime context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
