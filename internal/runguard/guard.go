// Package runguard serializes swarm runs: at most one is ever in flight.
package runguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunInFlight is returned by Do when another run holds the guard.
	ErrRunInFlight = errors.New("a run is already in flight")
	// ErrRunPanicked wraps a panic recovered from a run function.
	ErrRunPanicked = errors.New("run panicked")
)

// RunFunc is the guarded work. runID is unique per accepted run.
type RunFunc func(ctx context.Context, runID string) error

// Hooks are invoked synchronously around a run, while the guard is held.
type Hooks struct {
	// OnAcquire runs in the caller goroutine right after the guard is taken.
	OnAcquire func(runID string)
	// OnRelease runs on every exit path, including panics, before the guard is freed.
	OnRelease func(runID string, err error)
}

// Guard is a single-flight lock with guaranteed release.
type Guard struct {
	busy   atomic.Bool
	wg     sync.WaitGroup
	hooks  Hooks
	logger *zap.Logger
}

// New creates a Guard. logger may be nil.
func New(hooks Hooks, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{hooks: hooks, logger: logger}
}

// Busy reports whether a run is in flight.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

// Go accepts the run if the guard is free and executes fn in a new goroutine.
// The check-and-set happens before Go returns, so of two back-to-back calls
// exactly one is accepted. A rejected call has no side effects.
func (g *Guard) Go(ctx context.Context, fn RunFunc) (string, bool) {
	runID, ok := g.acquire()
	if !ok {
		return "", false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = g.execute(ctx, runID, fn)
	}()
	return runID, true
}

// Do runs fn in the caller goroutine if the guard is free.
// It returns ErrRunInFlight without running fn otherwise.
func (g *Guard) Do(ctx context.Context, fn RunFunc) (string, error) {
	runID, ok := g.acquire()
	if !ok {
		return "", ErrRunInFlight
	}

	g.wg.Add(1)
	defer g.wg.Done()
	return runID, g.execute(ctx, runID, fn)
}

// Wait blocks until no run started through this guard is in flight.
func (g *Guard) Wait() {
	g.wg.Wait()
}

func (g *Guard) acquire() (string, bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return "", false
	}
	runID := uuid.NewString()
	if g.hooks.OnAcquire != nil {
		g.hooks.OnAcquire(runID)
	}
	return runID, true
}

func (g *Guard) execute(ctx context.Context, runID string, fn RunFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRunPanicked, r)
			g.logger.Error("run panicked", zap.String("run_id", runID), zap.Any("panic", r))
		}
		g.release(runID, err)
	}()
	return fn(ctx, runID)
}

func (g *Guard) release(runID string, err error) {
	defer g.busy.Store(false)
	if g.hooks.OnRelease != nil {
		g.hooks.OnRelease(runID, err)
	}
}
