package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/nexus/internal/api"
	"github.com/ShayCichocki/nexus/internal/coordinator"
	"github.com/ShayCichocki/nexus/internal/metrics"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newClient() (*api.Client, error) {
	cc := cfg.Client()
	cc.Logger = logger.Named("api")
	client, err := api.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	return client, nil
}

// newCoordinator builds a coordinator from the loaded config.
// reg may be nil when metrics are not exported.
func newCoordinator(reg *prometheus.Registry) (*coordinator.Coordinator, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	opts := []coordinator.Option{coordinator.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, coordinator.WithMetrics(metrics.New(reg)))
	}
	return coordinator.New(cfg.Coordinator(), client, coordinator.StreamDialer(client), opts...)
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
