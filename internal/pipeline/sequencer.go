// Package pipeline walks the fixed swarm stages while the backend run executes.
//
// The stage walk is pacing for operators: each stage stays active for a fixed
// dwell regardless of backend latency. The backend result is published only
// once both the walk and the remote call have finished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// ErrEmptyResult is returned when the backend answers a run with no body.
var ErrEmptyResult = errors.New("run returned no result")

// Remote is the backend surface a run needs.
type Remote interface {
	Run(ctx context.Context) (*models.RunResult, error)
	Status(ctx context.Context) (models.Status, error)
}

// Publisher receives the run result. ReplaceAll must swap log and status atomically.
type Publisher interface {
	ReplaceAll(logs []models.LogEntry, status models.Status)
	Status() models.Status
}

// Notifier receives stage and run events.
type Notifier interface {
	Emit(models.Event)
}

// Sequencer is the sole writer of RunState.
type Sequencer struct {
	remote Remote
	sink   Publisher

	stages     []models.StageID
	dwell      time.Duration
	runTimeout time.Duration
	logger     *zap.Logger
	notifier   Notifier
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	state models.RunState
}

// New creates a Sequencer publishing into sink.
func New(remote Remote, sink Publisher, opts ...Option) *Sequencer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Sequencer{
		remote:     remote,
		sink:       sink,
		stages:     o.stages,
		dwell:      o.dwell,
		runTimeout: o.runTimeout,
		logger:     o.logger,
		notifier:   o.notifier,
		metrics:    o.metrics,
		state:      models.RunState{CompletedStages: []models.StageID{}},
	}
}

// Stages returns the configured stage order.
func (s *Sequencer) Stages() []models.StageID {
	return append([]models.StageID(nil), s.stages...)
}

// RunState returns a copy of the current run progress.
func (s *Sequencer) RunState() models.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Begin marks a new run as started and clears the previous run's progress.
func (s *Sequencer) Begin(runID string) {
	s.mu.Lock()
	s.state = models.RunState{
		RunID:           runID,
		Running:         true,
		CompletedStages: []models.StageID{},
		StartedAt:       time.Now(),
	}
	s.mu.Unlock()

	s.logger.Info("run started", zap.String("run_id", runID))
	s.emit(models.EventRunStarted, runID, "", "")
}

// Finish marks the run as over. It is safe to call on every exit path.
func (s *Sequencer) Finish(runID string, err error) {
	s.mu.Lock()
	s.state.Running = false
	s.state.ActiveStage = nil
	s.state.FinishedAt = time.Now()
	s.state.LastError = ""
	if err != nil {
		s.state.LastError = err.Error()
	}
	elapsed := s.state.FinishedAt.Sub(s.state.StartedAt)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("run failed", zap.String("run_id", runID), zap.Duration("elapsed", elapsed), zap.Error(err))
		s.metrics.RecordRun(metrics.ResultFailed, elapsed)
		s.emit(models.EventRunFailed, runID, "", err.Error())
		return
	}
	s.logger.Info("run completed", zap.String("run_id", runID), zap.Duration("elapsed", elapsed))
	s.metrics.RecordRun(metrics.ResultCompleted, elapsed)
	s.emit(models.EventRunCompleted, runID, "", "")
}

// Execute performs one run: the stage walk and the remote call run concurrently
// and are joined before anything is published. On failure nothing is published.
func (s *Sequencer) Execute(ctx context.Context, runID string) error {
	remoteCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.runTimeout > 0 {
		remoteCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
	}
	defer cancel()

	var result *models.RunResult
	var g errgroup.Group
	g.Go(func() error {
		res, err := s.remote.Run(remoteCtx)
		if err != nil {
			return fmt.Errorf("run request: %w", err)
		}
		if res == nil {
			return ErrEmptyResult
		}
		result = res
		return nil
	})
	g.Go(func() error {
		return s.walk(ctx, runID)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debug("run result received",
		zap.String("run_id", runID),
		zap.Int("logs", len(result.Logs)),
		zap.Int64("execution_ms", result.ExecutionMS))

	s.sink.ReplaceAll(result.Logs, s.resolveStatus(remoteCtx, runID, result))
	return nil
}

// resolveStatus prefers a fresh status fetch, then the run body, then the current snapshot.
func (s *Sequencer) resolveStatus(ctx context.Context, runID string, result *models.RunResult) models.Status {
	status, err := s.remote.Status(ctx)
	if err == nil && status != nil {
		return status
	}
	if err != nil {
		s.logger.Warn("status refresh after run failed", zap.String("run_id", runID), zap.Error(err))
	}
	if result.Status != nil {
		return result.Status
	}
	return s.sink.Status()
}

func (s *Sequencer) walk(ctx context.Context, runID string) error {
	for _, stage := range s.stages {
		s.activate(runID, stage)
		if err := sleep(ctx, s.dwell); err != nil {
			s.clearActive()
			return fmt.Errorf("stage %s interrupted: %w", stage, err)
		}
		s.complete(runID, stage)
	}
	return nil
}

func (s *Sequencer) activate(runID string, stage models.StageID) {
	s.mu.Lock()
	st := stage
	s.state.ActiveStage = &st
	s.mu.Unlock()

	s.logger.Debug("stage active", zap.String("run_id", runID), zap.String("stage", string(stage)))
	s.emit(models.EventStageActivated, runID, stage, stage.Agent())
}

// complete moves the active stage to the completed list, leaving none active.
func (s *Sequencer) complete(runID string, stage models.StageID) {
	s.mu.Lock()
	s.state.ActiveStage = nil
	s.state.CompletedStages = append(s.state.CompletedStages, stage)
	s.mu.Unlock()

	s.emit(models.EventStageCompleted, runID, stage, stage.Agent())
}

func (s *Sequencer) clearActive() {
	s.mu.Lock()
	s.state.ActiveStage = nil
	s.mu.Unlock()
}

func (s *Sequencer) emit(t models.EventType, runID string, stage models.StageID, msg string) {
	if s.notifier == nil {
		return
	}
	e := models.NewEvent(t)
	e.RunID = runID
	e.Stage = stage
	e.Message = msg
	s.notifier.Emit(e)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
