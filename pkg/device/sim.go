// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sync"
	"time"

	"github.com/Thermoquad/cistern/pkg/kernel"
)

// LED is a simulated indicator
type LED struct {
	mu sync.Mutex
	on bool
}

// TurnOn implements Indicator
func (l *LED) TurnOn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
}

// TurnOff implements Indicator
func (l *LED) TurnOff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
}

// IsOn reports the output level
func (l *LED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Servo is a simulated actuator clamped to its mechanical range
type Servo struct {
	mu       sync.Mutex
	angle    int
	minAngle int
	maxAngle int
	moves    int
}

// NewServo creates a servo limited to [minAngle, maxAngle]
func NewServo(minAngle, maxAngle int) *Servo {
	return &Servo{minAngle: minAngle, maxAngle: maxAngle, angle: minAngle}
}

// SetAngle implements Actuator
func (s *Servo) SetAngle(angle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.angle = min(max(angle, s.minAngle), s.maxAngle)
	s.moves++
}

// Angle returns the current position
func (s *Servo) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// Moves returns the number of SetAngle calls
func (s *Servo) Moves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves
}

// LCD is a simulated two-line display
type LCD struct {
	mu    sync.Mutex
	lines [2]string
}

// SetLine1 implements Display
func (d *LCD) SetLine1(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[0] = text
}

// SetLine2 implements Display
func (d *LCD) SetLine2(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[1] = text
}

// Lines returns both lines
func (d *LCD) Lines() (string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines[0], d.lines[1]
}

// Potentiometer ADC range
const (
	PotMin = 0
	PotMax = 1023
)

// Potentiometer is a simulated analog input
type Potentiometer struct {
	mu    sync.Mutex
	value int
}

// Set moves the wiper, clamped to the converter range
func (p *Potentiometer) Set(value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = min(max(value, PotMin), PotMax)
}

// Sample implements AnalogInput
func (p *Potentiometer) Sample() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// DefaultPressHold is how long a simulated press reads as held
const DefaultPressHold = 150 * time.Millisecond

// SimulatedButton reads as pressed for a hold window after Press. The window
// stands in for the settled, debounced level of a real switch.
type SimulatedButton struct {
	mu        sync.Mutex
	clock     kernel.Clock
	hold      time.Duration
	pressedAt time.Time
}

// NewSimulatedButton creates a button using clock for its hold window
func NewSimulatedButton(clock kernel.Clock, hold time.Duration) *SimulatedButton {
	if clock == nil {
		clock = kernel.SystemClock{}
	}
	if hold <= 0 {
		hold = DefaultPressHold
	}
	return &SimulatedButton{clock: clock, hold: hold}
}

// Press starts a press
func (b *SimulatedButton) Press() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressedAt = b.clock.Now()
}

// IsPressed implements Button
func (b *SimulatedButton) IsPressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.pressedAt.IsZero() && b.clock.Now().Sub(b.pressedAt) < b.hold
}

var (
	_ Indicator   = (*LED)(nil)
	_ Actuator    = (*Servo)(nil)
	_ Display     = (*LCD)(nil)
	_ AnalogInput = (*Potentiometer)(nil)
	_ Button      = (*SimulatedButton)(nil)
	_ RangeSensor = (*SimulatedSonar)(nil)
)
