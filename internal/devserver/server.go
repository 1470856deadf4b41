// Package devserver is a simulation of the swarm backend for local use and tests.
//
// It implements the remote contract the coordinator depends on: a run
// endpoint returning the replacement log, a status snapshot, a full-log
// fetch and the push stream. Each run walks the four agents and logs one
// line per agent; no real lead scoring or content generation happens here.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/state"
	"github.com/ShayCichocki/nexus/internal/version"
	"github.com/ShayCichocki/nexus/pkg/models"
)

const (
	// DefaultPingInterval is how often stream clients receive a ping frame.
	DefaultPingInterval = 15 * time.Second
	// logsLimit is the size of the GET /logs response.
	logsLimit = 50
	// runLogsLimit is the size of the log returned by POST /run.
	runLogsLimit = 20
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPingInterval sets the stream ping period.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithAgentDelay makes each agent step take d, simulating backend latency.
func WithAgentDelay(d time.Duration) Option {
	return func(s *Server) { s.agentDelay = d }
}

// WithRegistry sets the registry served on /metrics. HTTP metrics register on it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// Server is the simulation backend.
type Server struct {
	store        state.StateStore
	logger       *zap.Logger
	pingInterval time.Duration
	agentDelay   time.Duration
	registry     *prometheus.Registry
	corsOrigins  []string

	hub     *Hub
	router  *gin.Engine
	started time.Time

	// logMu orders log writes against stream attachment so a new client
	// never misses or duplicates an entry.
	logMu sync.Mutex
	// runMu keeps the lines of concurrent runs from interleaving.
	runMu    sync.Mutex
	runCount int
}

// New creates a Server backed by store. store must already be migrated.
func New(store state.StateStore, opts ...Option) *Server {
	s := &Server{
		store:        store,
		logger:       zap.NewNop(),
		pingInterval: DefaultPingInterval,
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.hub = NewHub(s.pingInterval, s.logger.Named("hub"))
	s.router = s.routes()

	s.addLog("SYSTEM", "Nexus backend online - agents ready", models.LogTypeInfo)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("simulation backend listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Hijacked stream connections are not covered by Shutdown.
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects stream clients.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger.Named("http")))
	r.Use(requestMetrics(newHTTPMetrics(s.registry)))
	if len(s.corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.corsOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.POST("/run", s.handleRun)
	r.GET("/status", s.handleStatus)
	r.GET("/logs", s.handleLogs)
	r.GET("/logs-stream", s.handleStream)
	r.GET("/health", s.handleHealth)
	r.POST("/reset", s.handleReset)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) handleRun(c *gin.Context) {
	s.runMu.Lock()
	t0 := time.Now()
	s.runCount++
	for _, stage := range models.DefaultStages() {
		if s.agentDelay > 0 {
			select {
			case <-time.After(s.agentDelay):
			case <-c.Request.Context().Done():
				s.runMu.Unlock()
				return
			}
		}
		msg, typ := agentLine(stage, s.runCount)
		s.addLog(stage.Agent(), msg, typ)
	}
	elapsed := time.Since(t0).Milliseconds()
	s.addLog("SYSTEM", fmt.Sprintf("Swarm cycle complete in %dms", elapsed), models.LogTypeInfo)
	s.runMu.Unlock()

	if err := s.store.RecordRun(elapsed, len(models.DefaultStages())+1); err != nil {
		s.logger.Warn("record run failed", zap.Error(err))
	}

	logs, err := s.store.RecentLogs(runLogsLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.RunResult{
		Logs:        logs,
		Status:      s.status(),
		ExecutionMS: elapsed,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handleLogs(c *gin.Context) {
	logs, err := s.store.RecentLogs(logsLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.hub.Upgrade(c.Writer, c.Request)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("stream upgrade failed", zap.Error(err))
		return
	}

	s.logMu.Lock()
	logs, err := s.store.RecentLogs(state.MaxStoredLogs)
	if err != nil {
		s.logMu.Unlock()
		s.logger.Warn("stream init failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	frame, err := models.EncodeFeedInit(logs)
	if err != nil {
		s.logMu.Unlock()
		_ = conn.Close()
		return
	}
	stream, err := s.hub.Attach(conn, frame)
	s.logMu.Unlock()
	if err != nil {
		_ = conn.Close()
		return
	}

	s.hub.Pump(stream)
}

func (s *Server) handleHealth(c *gin.Context) {
	uptime := time.Since(s.started)
	c.JSON(http.StatusOK, gin.H{
		"status":            "online",
		"version":           version.Get(),
		"uptime":            formatUptime(uptime),
		"uptime_seconds":    int64(uptime.Seconds()),
		"websocket_clients": s.hub.Clients(),
	})
}

func (s *Server) handleReset(c *gin.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.logMu.Lock()
	err := s.store.Reset()
	s.logMu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.runCount = 0
	s.addLog("SYSTEM", "System reset - all state cleared", models.LogTypeInfo)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// addLog persists the entry and broadcasts it as a new_log frame.
func (s *Server) addLog(agent, message string, typ models.LogType) {
	entry := models.LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Agent:   agent,
		Type:    typ,
		Message: message,
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()
	if err := s.store.AppendLog(entry); err != nil {
		s.logger.Warn("append log failed", zap.Error(err))
		return
	}
	frame, err := models.EncodeFeedNewLog(entry)
	if err != nil {
		return
	}
	s.hub.Broadcast(frame)
}

func (s *Server) status() models.Status {
	status := models.Status{
		"mode":              "Simulation",
		"websocket_clients": s.hub.Clients(),
	}
	if n, err := s.store.CountLogs(); err == nil {
		status["total_logs"] = n
	}
	if stats, err := s.store.Stats(); err == nil {
		status["total_runs"] = stats.TotalRuns
		status["last_execution_ms"] = stats.LastExecutionMS
	}
	return status
}

func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
