// Package metrics holds the prometheus collectors for the run coordinator.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexus"

// Run results.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

// Poll and tick results.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultAccepted = "accepted"
)

// Metrics groups the coordinator collectors.
type Metrics struct {
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	feedFrames     *prometheus.CounterVec
	feedState      prometheus.Gauge
	feedPolls      *prometheus.CounterVec
	autopilotTicks *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// A nil reg leaves the collectors unregistered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "total",
				Help:      "Run requests by outcome.",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Wall time of accepted runs, stage walk included.",
				Buckets:   []float64{1, 2, 3, 3.5, 4, 5, 7.5, 10, 20, 30, 60},
			},
		),
		feedFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "frames_total",
				Help:      "Streaming frames received by kind (init, new_log, unknown, malformed).",
			},
			[]string{"kind"},
		),
		feedState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "state",
				Help:      "Synchronizer state: 0 connecting, 1 streaming, 2 degraded, 3 closed.",
			},
		),
		feedPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "poll_total",
				Help:      "Fallback log fetches by result.",
			},
			[]string{"result"},
		),
		autopilotTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "autopilot",
				Name:      "ticks_total",
				Help:      "Autopilot ticks by whether the run guard accepted them.",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.runs, m.runDuration, m.feedFrames, m.feedState, m.feedPolls, m.autopilotTicks)
	}
	return m
}

// RecordRun counts a run outcome. Duration is observed for accepted runs only.
func (m *Metrics) RecordRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result != ResultRejected {
		m.runDuration.Observe(d.Seconds())
	}
}

// RecordFrame counts a streaming frame by kind.
func (m *Metrics) RecordFrame(kind string) {
	if m == nil {
		return
	}
	m.feedFrames.WithLabelValues(kind).Inc()
}

// SetFeedState publishes the synchronizer state ordinal.
func (m *Metrics) SetFeedState(state int) {
	if m == nil {
		return
	}
	m.feedState.Set(float64(state))
}

// RecordPoll counts a fallback fetch.
func (m *Metrics) RecordPoll(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.feedPolls.WithLabelValues(ResultOK).Inc()
	} else {
		m.feedPolls.WithLabelValues(ResultError).Inc()
	}
}

// RecordTick counts an autopilot tick.
func (m *Metrics) RecordTick(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.autopilotTicks.WithLabelValues(ResultAccepted).Inc()
	} else {
		m.autopilotTicks.WithLabelValues(ResultRejected).Inc()
	}
}
