package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/devserver"
	"github.com/ShayCichocki/nexus/internal/state"
)

var (
	serveAddr       string
	serveDBPath     string
	serveAgentDelay time.Duration
	serveCORS       []string
	serveRetention  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation backend",
	Long: `Serve a local simulation of the swarm backend.

The simulation implements the same HTTP and streaming contract as the real
backend: POST /run, GET /status, GET /logs, GET /logs-stream, GET /health,
POST /reset and GET /metrics. Logs and run history persist in SQLite.

Examples:
  nexus serve                          # Listen on server.addr
  nexus serve --addr :9000 --delay 1s  # Slow agents down
  nexus serve --cors http://localhost:5173`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database path (overrides server.db_path)")
	serveCmd.Flags().DurationVar(&serveAgentDelay, "delay", 0, "Simulated time each agent takes per run")
	serveCmd.Flags().StringSliceVar(&serveCORS, "cors", nil, "Origins allowed to call the API from a browser")
	serveCmd.Flags().DurationVar(&serveRetention, "retention", 7*24*time.Hour, "Drop run records older than this on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	dbPath := cfg.Server.DBPath
	if serveDBPath != "" {
		dbPath = serveDBPath
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if n, err := db.PurgeOldRuns(serveRetention); err != nil {
		logger.Warn("purge old runs failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("purged old runs", zap.Int64("count", n))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := devserver.New(db,
		devserver.WithLogger(logger.Named("devserver")),
		devserver.WithPingInterval(cfg.Server.PingInterval),
		devserver.WithAgentDelay(serveAgentDelay),
		devserver.WithRegistry(reg),
		devserver.WithCORSOrigins(serveCORS...),
	)

	ctx, cancel := signalContext()
	defer cancel()

	printStatus("◉", fmt.Sprintf("Simulation backend on %s (db %s)", addr, dbPath), color.FgCyan)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return err
	}
	printStatus("○", "Simulation backend stopped", color.FgYellow)
	return nil
}
