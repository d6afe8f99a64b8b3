// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("MONITORING")
		m.Connect(true)
		m.Publish(false)
		m.Measurement(40, 160, true)
		m.FrameReceived("valve")
		m.FramesDropped(DropMalformed, 2)
		m.FrameSent("mode")
		m.Valve(50)
		m.Mode("MANUAL", []string{"AUTOMATIC", "MANUAL"})
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Connect(true)
	m.Connect(false)
	m.Connect(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connects.WithLabelValues("failure")))

	m.FramesDropped(DropOverflow, 3)
	m.FramesDropped(DropOverflow, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.framesDropped.WithLabelValues(DropOverflow)))
}

func TestMeasurementGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Measurement(40, 160, true)
	m.Measurement(-1, -1, false)
	assert.Equal(t, 160.0, testutil.ToFloat64(m.level))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.distance))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidReads))
}

func TestModeGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	all := []string{"AUTOMATIC", "MANUAL", "UNCONNECTED"}

	m.Mode("MANUAL", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mode.WithLabelValues("MANUAL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.mode.WithLabelValues("AUTOMATIC")))

	m.Mode("UNCONNECTED", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.mode.WithLabelValues("MANUAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mode.WithLabelValues("UNCONNECTED")))
}
