// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sync"
	"time"

	"github.com/chewxy/math32"
)

// Sonar timing
const (
	DefaultEchoTimeout = 30 * time.Millisecond
	DefaultTemperature = 20 // degrees Celsius
)

// SoundSpeed returns the speed of sound in m/s at temp degrees Celsius
func SoundSpeed(temp float32) float32 {
	return 331.5 + 0.6*temp
}

// EchoDistance converts a round-trip echo time in microseconds to centimetres
func EchoDistance(echoMicros, temp float32) float32 {
	return (echoMicros / 2) * (SoundSpeed(temp) / 10000)
}

// EchoTime is the inverse of EchoDistance
func EchoTime(distance, temp float32) float32 {
	return 2 * distance / (SoundSpeed(temp) / 10000)
}

// SimulatedSonar models an ultrasonic ranger. Each measurement blocks for
// the echo round trip, or for the whole timeout when no object is in range.
type SimulatedSonar struct {
	mu          sync.Mutex
	distance    float32
	temperature float32
	timeout     time.Duration
	sleep       func(time.Duration)
}

// NewSimulatedSonar creates a sonar with the given echo timeout
func NewSimulatedSonar(distance float32, timeout time.Duration) *SimulatedSonar {
	if timeout <= 0 {
		timeout = DefaultEchoTimeout
	}
	return &SimulatedSonar{
		distance:    distance,
		temperature: DefaultTemperature,
		timeout:     timeout,
		sleep:       time.Sleep,
	}
}

// SetDistance moves the simulated surface. A negative distance removes it.
func (s *SimulatedSonar) SetDistance(distance float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distance = distance
}

// Distance returns the simulated surface distance
func (s *SimulatedSonar) Distance() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distance
}

// SetTemperature sets the air temperature used for the speed of sound
func (s *SimulatedSonar) SetTemperature(temp float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temperature = temp
}

// MeasureDistance implements RangeSensor
func (s *SimulatedSonar) MeasureDistance() float32 {
	s.mu.Lock()
	distance, temp, timeout := s.distance, s.temperature, s.timeout
	s.mu.Unlock()

	if distance < 0 {
		s.sleep(timeout)
		return NoObject
	}

	echo := EchoTime(distance, temp)
	if time.Duration(echo)*time.Microsecond > timeout {
		s.sleep(timeout)
		return NoObject
	}
	s.sleep(time.Duration(echo) * time.Microsecond)

	// the hardware reports whole microseconds
	return EchoDistance(math32.Round(echo), temp)
}
