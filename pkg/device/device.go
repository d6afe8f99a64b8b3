// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device defines the narrow hardware interfaces the control nodes
// consume, along with simulated implementations for running a node on a host.
package device

// NoObject is the distance reported when no echo arrives before the timeout
const NoObject float32 = -1

// RangeSensor measures distance in centimetres. MeasureDistance blocks for
// up to the sensor timeout and returns NoObject when nothing is detected.
type RangeSensor interface {
	MeasureDistance() float32
}

// Indicator is a binary output such as a status LED
type Indicator interface {
	TurnOn()
	TurnOff()
}

// Actuator positions a rotary output in degrees
type Actuator interface {
	SetAngle(angle int)
}

// Display is a two-line text display
type Display interface {
	SetLine1(text string)
	SetLine2(text string)
}

// AnalogInput returns a raw converter reading
type AnalogInput interface {
	Sample() int
}

// Button is a debounced digital input
type Button interface {
	IsPressed() bool
}
