// Package autopilot periodically requests runs while enabled.
package autopilot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// DefaultPeriod is the tick period while enabled.
const DefaultPeriod = 2 * time.Second

// Trigger requests a run. It reports whether the request was accepted;
// a rejected request must have no side effects.
type Trigger interface {
	RequestRun() bool
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func() bool

// RequestRun calls f.
func (f TriggerFunc) RequestRun() bool { return f() }

// Notifier receives autopilot_changed events.
type Notifier interface {
	Emit(models.Event)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPeriod sets the tick period.
func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns one cancellable repeating task.
// Disabling stops future ticks only; a run already accepted keeps going.
type Scheduler struct {
	trigger  Trigger
	period   time.Duration
	logger   *zap.Logger
	notifier Notifier
	metrics  *metrics.Metrics

	mu      sync.Mutex
	enabled bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a disabled Scheduler.
func New(trigger Trigger, opts ...Option) *Scheduler {
	s := &Scheduler{
		trigger: trigger,
		period:  DefaultPeriod,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Period returns the tick period.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Enabled reports whether ticks are scheduled.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled starts or stops the ticker. Setting the current value is a no-op.
// After Close it does nothing.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	if s.closed || s.enabled == enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = enabled
	done := s.stopLocked()
	if enabled {
		s.startLocked()
	}
	s.mu.Unlock()

	// Wait outside the lock; the tick goroutine never takes s.mu.
	if done != nil {
		<-done
	}

	s.logger.Info("autopilot changed", zap.Bool("enabled", enabled), zap.Duration("period", s.period))
	if s.notifier != nil {
		e := models.NewEvent(models.EventAutopilotChanged)
		if enabled {
			e.Message = "on"
		} else {
			e.Message = "off"
		}
		s.notifier.Emit(e)
	}
}

// Close disables the scheduler permanently and waits for the tick goroutine.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.enabled = false
	done := s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// startLocked always replaces the previous handle.
func (s *Scheduler) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, done)
}

func (s *Scheduler) stopLocked() chan struct{} {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := s.done
	s.cancel = nil
	s.done = nil
	return done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			accepted := s.trigger.RequestRun()
			s.metrics.RecordTick(accepted)
			s.logger.Debug("autopilot tick", zap.Bool("accepted", accepted))
		}
	}
}
