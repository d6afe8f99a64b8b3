// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tms

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/logging"
	"github.com/Thermoquad/cistern/pkg/metrics"
	"github.com/Thermoquad/cistern/pkg/reconnect"
)

// Transport is the publish/subscribe link used by the sensing node
type Transport interface {
	reconnect.Connector
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ============================================================
// Link task
// ============================================================

// LinkTask drives the connection state machine from transport health
type LinkTask struct {
	holder    *StateHolder
	transport Transport
	policy    *reconnect.Policy
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Tick evaluates one step of the connection state machine
func (t *LinkTask) Tick() {
	switch t.holder.State() {
	case StateInit:
		// leaving INIT is done by the node at startup

	case StateConnecting:
		if t.attempt() {
			t.set(StateConnected)
		}

	case StateConnected:
		if t.transport.IsConnected() {
			t.set(StateMonitoring)
		} else {
			t.set(StateConnecting)
		}

	case StateMonitoring:
		if !t.transport.IsConnected() {
			t.logger.Warn("link lost")
			t.set(StateDisconnected)
		}

	case StateDisconnected:
		if t.attempt() {
			t.set(StateMonitoring)
		}
	}
}

func (t *LinkTask) attempt() bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	err := t.policy.Attempt(ctx)
	if errors.Is(err, reconnect.ErrNotDue) {
		return false
	}
	t.metrics.Connect(err == nil)
	return err == nil
}

func (t *LinkTask) set(next State) {
	if err := t.holder.SetState(next); err != nil {
		t.logger.Error("state change rejected", logging.Err(err))
		return
	}
	t.metrics.Transition(next.String())
}

// ============================================================
// Monitor task
// ============================================================

// MonitorTask samples the level and publishes it while monitoring
type MonitorTask struct {
	holder    *StateHolder
	sensor    device.RangeSensor
	transport Transport
	clock     kernel.Clock
	topic     string
	height    float32
	encoding  Encoding
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	last    Measurement
	hasLast bool
}

// Tick takes and publishes one reading. The sensor read blocks for up to its
// echo timeout.
func (t *MonitorTask) Tick() {
	state := t.holder.State()
	if state != StateMonitoring {
		return
	}

	m := NewMeasurement(t.sensor.MeasureDistance(), t.height, t.clock.Now(), state)

	t.mu.Lock()
	t.last = m
	t.hasLast = true
	t.mu.Unlock()

	t.metrics.Measurement(m.Distance(), m.Level(), m.IsValid())
	if !m.IsValid() {
		t.logger.Debug("no echo")
	}

	if !t.transport.IsConnected() {
		t.logger.Debug("publish skipped, transport down")
		return
	}

	payload, err := m.Encode(t.encoding)
	if err != nil {
		t.logger.Error("encode measurement", logging.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.transport.Publish(ctx, t.topic, payload); err != nil {
		t.logger.Warn("publish failed", slog.String("topic", t.topic), logging.Err(err))
		t.metrics.Publish(false)
		return
	}
	t.metrics.Publish(true)
	t.logger.Debug("published",
		slog.Float64("distance", float64(m.Distance())),
		slog.Float64("level", float64(m.Level())),
	)
}

// Last returns the most recent reading
func (t *MonitorTask) Last() (Measurement, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.hasLast
}

// ============================================================
// Indicator task
// ============================================================

// IndicatorTask shows the connection state on a green and a red output.
// Both blink together while in INIT.
type IndicatorTask struct {
	holder      *StateHolder
	green       device.Indicator
	red         device.Indicator
	clock       kernel.Clock
	blinkPeriod time.Duration

	lastToggle time.Time
	blinkOn    bool
}

// Tick updates both outputs
func (t *IndicatorTask) Tick() {
	switch t.holder.State() {
	case StateInit:
		now := t.clock.Now()
		if now.Sub(t.lastToggle) >= t.blinkPeriod {
			t.lastToggle = now
			t.blinkOn = !t.blinkOn
		}
		setIndicator(t.green, t.blinkOn)
		setIndicator(t.red, t.blinkOn)
	case StateConnected, StateMonitoring:
		t.green.TurnOn()
		t.red.TurnOff()
	case StateConnecting, StateDisconnected:
		t.green.TurnOff()
		t.red.TurnOn()
	}
}

func setIndicator(ind device.Indicator, on bool) {
	if on {
		ind.TurnOn()
	} else {
		ind.TurnOff()
	}
}
