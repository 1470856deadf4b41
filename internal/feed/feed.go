// Package feed keeps the shared log converged with the backend.
//
// The synchronizer prefers the push stream. When the stream closes or cannot
// be opened it degrades to a full-log refetch on a fixed period. By default
// the stream is dialed once per Start; WithReconnect re-dials with backoff
// while polling continues.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/pkg/models"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("feed already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("feed closed")
)

// State is the synchronizer lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is an open stream. *websocket.Conn satisfies it.
// Close must unblock a pending ReadMessage.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens the stream.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Fetcher performs the fallback full-log fetch.
type Fetcher interface {
	Logs(ctx context.Context) ([]models.LogEntry, error)
}

// Sink is the log the synchronizer writes to.
type Sink interface {
	ReplaceLogs(entries []models.LogEntry)
	Prepend(entry models.LogEntry)
}

// Notifier receives feed_state events.
type Notifier interface {
	Emit(models.Event)
}

// Synchronizer owns the stream connection and the fallback poller.
type Synchronizer struct {
	dialer  Dialer
	fetcher Fetcher
	sink    Sink
	opts    feedOptions

	state atomic.Int32

	mu         sync.Mutex
	started    bool
	closed     bool
	cancel     context.CancelFunc
	conn       Conn
	pollCancel context.CancelFunc
	// gen advances whenever polling stops; fetches from an older generation are dropped.
	gen uint64

	wg sync.WaitGroup
}

// New creates a Synchronizer in the connecting state.
func New(dialer Dialer, fetcher Fetcher, sink Sink, opts ...Option) *Synchronizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Synchronizer{
		dialer:  dialer,
		fetcher: fetcher,
		sink:    sink,
		opts:    o,
	}
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	return State(s.state.Load())
}

// Start dials the stream in the background. It may be called once.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Close tears down the stream and the poller and waits for both to exit.
// It is idempotent.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.wg.Wait()
	s.setState(StateClosed)
	return err
}

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	var bo *backoff.ExponentialBackOff
	if s.opts.reconnect {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = s.opts.reconnectInitial
		bo.MaxInterval = s.opts.reconnectMax
		bo.MaxElapsedTime = 0
		bo.Reset()
	}

	for {
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.opts.logger.Info("log stream unavailable", zap.Error(err))
		} else {
			if !s.attach(conn) {
				_ = conn.Close()
				return
			}
			if bo != nil {
				bo.Reset()
			}
			s.setState(StateStreaming)
			err = s.read(ctx, conn)
			s.detach(conn)
			if ctx.Err() != nil {
				return
			}
			s.opts.logger.Info("log stream closed", zap.Error(err))
		}

		if s.State() != StateDegraded {
			s.setState(StateDegraded)
			s.startPolling(ctx)
		}

		if bo == nil {
			// Degraded is permanent for this Start; polling runs until Close.
			<-ctx.Done()
			return
		}

		wait := bo.NextBackOff()
		s.opts.logger.Debug("reconnecting log stream", zap.Duration("in", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// attach records conn as the live stream and stops any polling.
// It reports false if the synchronizer was closed meanwhile.
func (s *Synchronizer) attach(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	s.gen++
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	return true
}

func (s *Synchronizer) detach(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Synchronizer) read(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.apply(data)
	}
}

func (s *Synchronizer) apply(data []byte) {
	msg, err := models.DecodeFeedMessage(data)
	if err != nil {
		s.opts.metrics.RecordFrame("ignored")
		s.opts.logger.Debug("ignoring feed frame", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	s.opts.metrics.RecordFrame(string(msg.Kind))

	switch msg.Kind {
	case models.FeedInit:
		s.sink.ReplaceLogs(msg.Logs)
	case models.FeedNewLog:
		s.sink.Prepend(msg.Log)
	}
}

func (s *Synchronizer) startPolling(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pollCancel != nil {
		return
	}
	pctx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel
	gen := s.gen

	s.wg.Add(1)
	go s.poll(pctx, gen)
}

func (s *Synchronizer) poll(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	s.fetch(ctx, gen)
	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetch(ctx, gen)
		}
	}
}

func (s *Synchronizer) fetch(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		return
	}
	logs, err := s.fetcher.Logs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.opts.metrics.RecordPoll(false)
			s.opts.logger.Debug("log poll failed", zap.Error(err))
		}
		return
	}
	s.opts.metrics.RecordPoll(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.sink.ReplaceLogs(logs)
}

func (s *Synchronizer) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	s.opts.logger.Debug("feed state", zap.Stringer("state", st))
	s.opts.metrics.SetFeedState(int(st))
	if s.opts.notifier != nil {
		e := models.NewEvent(models.EventFeedState)
		e.Message = st.String()
		s.opts.notifier.Emit(e)
	}
}
