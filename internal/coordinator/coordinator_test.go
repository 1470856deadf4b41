package coordinator

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ShayCichocki/nexus/internal/api"
	"github.com/ShayCichocki/nexus/internal/devserver"
	"github.com/ShayCichocki/nexus/internal/feed"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/runguard"
	"github.com/ShayCichocki/nexus/internal/state"
	"github.com/ShayCichocki/nexus/pkg/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.StageDwell = 5 * time.Millisecond
	cfg.RunTimeout = 5 * time.Second
	cfg.PollInterval = 20 * time.Millisecond
	cfg.AutopilotPeriod = 20 * time.Millisecond
	return cfg
}

func newBackend(t *testing.T, opts ...devserver.Option) *api.Client {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "swarm.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	s := devserver.New(db, opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
		db.Close()
	})

	client, err := api.NewClient(api.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func newCoordinator(t *testing.T, cfg Config, client *api.Client, dialer feed.Dialer, opts ...Option) *Coordinator {
	t.Helper()
	if dialer == nil {
		dialer = StreamDialer(client)
	}
	c, err := New(cfg, client, dialer, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { c.Close() })
	return c
}

var refusedDialer = feed.DialerFunc(func(ctx context.Context) (feed.Conn, error) {
	return nil, errors.New("connection refused")
})

func hasMessagePrefix(logs []models.LogEntry, prefix string) bool {
	for _, l := range logs {
		if strings.HasPrefix(l.Message, prefix) {
			return true
		}
	}
	return false
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), nil, refusedDialer)
	assert.Error(t, err)

	client, err := api.NewClient(api.ClientConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	_, err = New(DefaultConfig(), client, nil)
	assert.Error(t, err)
}

func TestCoordinator_StartStreamsAndLoadsStatus(t *testing.T) {
	client := newBackend(t, devserver.WithPingInterval(time.Hour))
	c := newCoordinator(t, fastConfig(), client, nil)

	require.Eventually(t, func() bool { return c.FeedState() == feed.StateStreaming }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return hasMessagePrefix(c.Logs(), "Nexus backend online")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Simulation", c.Status()["mode"])
	assert.False(t, c.Autopilot())
	assert.Equal(t, models.DefaultStages(), c.Stages())
}

func TestCoordinator_BackToBackRequestRunAcceptsOne(t *testing.T) {
	client := newBackend(t, devserver.WithPingInterval(time.Hour))
	c := newCoordinator(t, fastConfig(), client, nil)

	assert.True(t, c.RequestRun())
	assert.False(t, c.RequestRun())
	assert.True(t, c.Busy())

	require.Eventually(t, func() bool { return !c.Busy() }, 2*time.Second, 5*time.Millisecond)

	rs := c.RunState()
	assert.False(t, rs.Running)
	assert.Nil(t, rs.ActiveStage)
	assert.Equal(t, models.DefaultStages(), rs.CompletedStages)
	assert.True(t, hasMessagePrefix(c.Logs(), "Swarm cycle complete in "))
	assert.EqualValues(t, 1, c.Status()["total_runs"])
}

func TestCoordinator_RunPublishesResult(t *testing.T) {
	client := newBackend(t)
	c := newCoordinator(t, fastConfig(), client, refusedDialer)

	require.NoError(t, c.Run(context.Background()))

	rs := c.RunState()
	assert.False(t, rs.Running)
	assert.Empty(t, rs.LastError)
	assert.Len(t, rs.CompletedStages, 4)
	assert.True(t, hasMessagePrefix(c.Logs(), "Swarm cycle complete in "))
	assert.EqualValues(t, 1, c.Status()["total_runs"])
}

func TestCoordinator_RunRejectedWhileInFlight(t *testing.T) {
	client := newBackend(t, devserver.WithAgentDelay(20*time.Millisecond))
	c := newCoordinator(t, fastConfig(), client, refusedDialer)

	require.True(t, c.RequestRun())
	err := c.Run(context.Background())
	assert.ErrorIs(t, err, runguard.ErrRunInFlight)

	require.Eventually(t, func() bool { return !c.Busy() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Run(context.Background()))
}

func TestCoordinator_FeedFallsBackToPolling(t *testing.T) {
	client := newBackend(t)
	c := newCoordinator(t, fastConfig(), client, refusedDialer)

	require.Eventually(t, func() bool { return c.FeedState() == feed.StateDegraded }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return hasMessagePrefix(c.Logs(), "Nexus backend online")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCoordinator_AutopilotTriggersRuns(t *testing.T) {
	client := newBackend(t)
	c := newCoordinator(t, fastConfig(), client, refusedDialer)

	c.SetAutopilot(true)
	assert.True(t, c.Autopilot())

	require.Eventually(t, func() bool {
		n, ok := c.Status()["total_runs"].(float64)
		return ok && n >= 2
	}, 5*time.Second, 10*time.Millisecond)

	c.SetAutopilot(false)
	assert.False(t, c.Autopilot())
}

func TestCoordinator_AutopilotEnabledAtStart(t *testing.T) {
	client := newBackend(t)
	cfg := fastConfig()
	cfg.AutopilotEnabled = true
	c := newCoordinator(t, cfg, client, refusedDialer)

	assert.True(t, c.Autopilot())
}

func TestCoordinator_EventsReportRunLifecycle(t *testing.T) {
	client := newBackend(t)
	c := newCoordinator(t, fastConfig(), client, refusedDialer)

	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Close())

	var seen []models.EventType
	for ev := range c.Events() {
		seen = append(seen, ev.Type)
	}
	assert.Contains(t, seen, models.EventRunStarted)
	assert.Contains(t, seen, models.EventStageActivated)
	assert.Contains(t, seen, models.EventRunCompleted)
}

func TestCoordinator_CloseIsTerminalAndIdempotent(t *testing.T) {
	client := newBackend(t)
	c, err := New(fastConfig(), client, refusedDialer)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.False(t, c.RequestRun())
	assert.ErrorIs(t, c.Run(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.Start(), ErrClosed)
	assert.Equal(t, feed.StateClosed, c.FeedState())

	c.SetAutopilot(true)
	assert.False(t, c.Autopilot())
}

func TestCoordinator_CloseWaitsForRun(t *testing.T) {
	client := newBackend(t, devserver.WithAgentDelay(10*time.Millisecond))
	c, err := New(fastConfig(), client, refusedDialer)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	require.True(t, c.RequestRun())
	require.NoError(t, c.Close())

	assert.False(t, c.Busy())
	assert.False(t, c.RunState().Running)
}

func TestCoordinator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := newBackend(t)
	c := newCoordinator(t, fastConfig(), client, refusedDialer, WithMetrics(metrics.New(reg)))

	require.NoError(t, c.Run(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["nexus_run_total"], "runs counter registered: %v", names)
}

func TestMergeCancel(t *testing.T) {
	lifetime, stop := context.WithCancel(context.Background())
	ctx, cancel := mergeCancel(context.Background(), lifetime)
	defer cancel()

	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("merged context not cancelled by lifetime")
	}
}
