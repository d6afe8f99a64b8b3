// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports node counters and gauges for Prometheus. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cistern"

// Drop reasons for companion link frames
const (
	DropMalformed  = "malformed"
	DropOverflow   = "overflow"
	DropRejected   = "rejected"
	DropUnexpected = "unexpected"
)

// Metrics holds every collector a node updates
type Metrics struct {
	transitions    *prometheus.CounterVec
	connects       *prometheus.CounterVec
	publishes      *prometheus.CounterVec
	level          prometheus.Gauge
	distance       prometheus.Gauge
	invalidReads   prometheus.Counter
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	valve          prometheus.Gauge
	mode           *prometheus.GaugeVec
}

// New creates and registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_transitions_total",
			Help: "Connection state transitions by target state.",
		}, []string{"state"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connect_attempts_total",
			Help: "Link connect attempts by result.",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "publishes_total",
			Help: "Measurement publishes by result.",
		}, []string{"result"}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "level_cm",
			Help: "Last valid reservoir level.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "distance_cm",
			Help: "Last valid sensor distance.",
		}),
		invalidReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "invalid_measurements_total",
			Help: "Measurements with no echo.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Companion link frames decoded by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Companion link frames dropped by reason.",
		}, []string{"reason"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_sent_total",
			Help: "Companion link frames sent by type.",
		}, []string{"type"}),
		valve: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "valve_percent",
			Help: "Commanded valve opening.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mode",
			Help: "Current valve control mode (1 for the active mode).",
		}, []string{"mode"}),
	}
	reg.MustRegister(
		m.transitions, m.connects, m.publishes, m.level, m.distance, m.invalidReads,
		m.framesReceived, m.framesDropped, m.framesSent, m.valve, m.mode,
	)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Transition records a connection state change
func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// Connect records a connect attempt
func (m *Metrics) Connect(ok bool) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result(ok)).Inc()
}

// Publish records a publish
func (m *Metrics) Publish(ok bool) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result(ok)).Inc()
}

// Measurement records a sensor reading
func (m *Metrics) Measurement(distance, level float32, valid bool) {
	if m == nil {
		return
	}
	if !valid {
		m.invalidReads.Inc()
		return
	}
	m.distance.Set(float64(distance))
	m.level.Set(float64(level))
}

// FrameReceived records a decoded frame
func (m *Metrics) FrameReceived(msgType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(msgType).Inc()
}

// FramesDropped records n dropped frames
func (m *Metrics) FramesDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDropped.WithLabelValues(reason).Add(float64(n))
}

// FrameSent records an outbound frame
func (m *Metrics) FrameSent(msgType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(msgType).Inc()
}

// Valve records the commanded opening
func (m *Metrics) Valve(percent int) {
	if m == nil {
		return
	}
	m.valve.Set(float64(percent))
}

// Mode marks current as the active mode among all
func (m *Metrics) Mode(current string, all []string) {
	if m == nil {
		return
	}
	for _, name := range all {
		v := 0.0
		if name == current {
			v = 1
		}
		m.mode.WithLabelValues(name).Set(v)
	}
}

// Serve exposes gatherer on addr at /metrics until ctx is cancelled
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics listening", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
