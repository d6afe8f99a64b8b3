// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wcs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Thermoquad/cistern/pkg/device"
)

// Valve command domain
const (
	ValveMin = 0
	ValveMax = 100
)

// ErrOutOfRange is returned for a valve percentage outside [ValveMin, ValveMax]
var ErrOutOfRange = errors.New("valve percentage out of range")

// AngleFor maps a percentage linearly onto [minAngle, maxAngle]. The input
// is clamped so the result never leaves the mechanical range.
func AngleFor(percent, minAngle, maxAngle int) int {
	percent = min(max(percent, ValveMin), ValveMax)
	return minAngle + percent*(maxAngle-minAngle)/(ValveMax-ValveMin)
}

// PotToPercent maps a raw potentiometer reading to a percentage
func PotToPercent(raw int) int {
	raw = min(max(raw, device.PotMin), device.PotMax)
	return ValveMin + (raw-device.PotMin)*(ValveMax-ValveMin)/(device.PotMax-device.PotMin)
}

// Valve drives the actuator from percentage commands
type Valve struct {
	mu       sync.RWMutex
	actuator device.Actuator
	minAngle int
	maxAngle int
	percent  int
}

// NewValve creates a valve over actuator. The valve starts closed.
func NewValve(actuator device.Actuator, minAngle, maxAngle int) *Valve {
	v := &Valve{actuator: actuator, minAngle: minAngle, maxAngle: maxAngle}
	actuator.SetAngle(minAngle)
	return v
}

// Set moves the valve. A percentage outside the command domain is rejected
// without touching the actuator.
func (v *Valve) Set(percent int) error {
	if percent < ValveMin || percent > ValveMax {
		return fmt.Errorf("%w: %d", ErrOutOfRange, percent)
	}
	v.mu.Lock()
	v.percent = percent
	v.mu.Unlock()
	v.actuator.SetAngle(AngleFor(percent, v.minAngle, v.maxAngle))
	return nil
}

// Close moves the valve to the fully closed position
func (v *Valve) Close() {
	_ = v.Set(ValveMin)
}

// Percent returns the last applied percentage
func (v *Valve) Percent() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.percent
}

// Angle returns the angle for the last applied percentage
func (v *Valve) Angle() int {
	return AngleFor(v.Percent(), v.minAngle, v.maxAngle)
}
