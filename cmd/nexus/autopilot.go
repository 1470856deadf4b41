package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/pkg/models"
)

var (
	autopilotPeriod      time.Duration
	autopilotMetricsAddr string
)

var autopilotCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Run the swarm on a fixed period without the console",
	Long: `Enable autopilot headlessly and print each run until interrupted.

A tick that finds a run in flight is skipped. With --metrics-addr, run,
feed and autopilot metrics are served on /metrics.`,
	RunE: runAutopilot,
}

func init() {
	autopilotCmd.Flags().DurationVar(&autopilotPeriod, "period", 0, "Tick period (overrides autopilot.period)")
	autopilotCmd.Flags().StringVar(&autopilotMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runAutopilot(cmd *cobra.Command, args []string) error {
	if autopilotPeriod > 0 {
		cfg.Autopilot.Period = autopilotPeriod
	}
	cfg.Autopilot.Enabled = true

	ctx, cancel := signalContext()
	defer cancel()

	var reg *prometheus.Registry
	if autopilotMetricsAddr != "" {
		reg = prometheus.NewRegistry()
		srv := &http.Server{
			Addr:              autopilotMetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	coord, err := newCoordinator(reg)
	if err != nil {
		return err
	}
	defer coord.Close()

	if err := coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	printStatus("◉", fmt.Sprintf("Autopilot engaged, every %s (Ctrl+C to stop)", cfg.Autopilot.Period), color.FgCyan)

	runs := 0
	for {
		select {
		case <-ctx.Done():
			printStatus("○", fmt.Sprintf("Autopilot disengaged after %d runs", runs), color.FgYellow)
			return nil
		case ev, ok := <-coord.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case models.EventRunCompleted:
				runs++
				printStatus("✓", fmt.Sprintf("Swarm cycle %d complete", runs), color.FgGreen)
				printLogs(coord, 1)
			case models.EventRunFailed:
				printStatus("✗", "Run failed: "+ev.Message, color.FgRed)
			case models.EventFeedState:
				printStatus("~", "Feed "+ev.Message, color.FgBlue)
			}
		}
	}
}
