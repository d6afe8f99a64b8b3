// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wcs

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/framer"
	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/logging"
	"github.com/Thermoquad/cistern/pkg/metrics"
)

// Controller is the actuation node task. Each tick it drains the companion
// link, handles the button, and runs the current mode.
type Controller struct {
	mode    *ModeState
	valve   *Valve
	display device.Display
	pot     device.AnalogInput
	button  device.Button

	framer  *framer.Framer
	inbound <-chan []byte
	out     io.Writer

	clock          kernel.Clock
	manualInterval time.Duration
	hysteresis     int
	logger         *slog.Logger
	metrics        *metrics.Metrics

	lastPotUpdate    time.Time
	lastPhysical     int // last applied pot percentage, -1 when unknown
	buttonWasPressed bool
	overflows        uint64
}

// Tick runs one controller cycle
func (c *Controller) Tick() {
	c.receive()
	c.checkButton()

	entered := c.mode.CheckAndClearJustEntered()
	switch c.mode.Mode() {
	case ModeAutomatic:
		if entered {
			c.enter(ModeAutomatic)
		}

	case ModeManual:
		if entered {
			c.enter(ModeManual)
		}
		c.processPot()

	case ModeUnconnected:
		if entered {
			c.enter(ModeUnconnected)
		}
	}
}

// enter runs the entry actions of m
func (c *Controller) enter(m Mode) {
	c.logger.Info("mode entered", slog.String("mode", m.String()))
	c.metrics.Mode(m.String(), Modes())

	if m == ModeUnconnected {
		c.valve.Close()
		c.metrics.Valve(c.valve.Percent())
		c.updateDisplay()
		return
	}
	c.updateDisplay()
	c.send(framer.TypeMode, framer.EncodeMode(m.String()))
}

// ============================================================
// Companion link
// ============================================================

func (c *Controller) receive() {
	for {
		select {
		case data, ok := <-c.inbound:
			if !ok {
				c.inbound = nil
				c.drain()
				return
			}
			c.framer.Write(data)
			c.drain()
		default:
			c.drain()
			return
		}
	}
}

// drain dispatches every complete frame in the buffer
func (c *Controller) drain() {
	if n := c.framer.Stats().Overflows; n != c.overflows {
		c.logger.Debug("link buffer overflow, frame lost")
		c.metrics.FramesDropped(metrics.DropOverflow, int(n-c.overflows))
		c.overflows = n
	}

	for c.framer.MessageReady() {
		msg, err := c.framer.Extract()
		if err != nil {
			c.logger.Debug("frame dropped", logging.Err(err))
			c.metrics.FramesDropped(metrics.DropMalformed, 1)
			continue
		}
		c.metrics.FrameReceived(msg.Type)
		c.dispatch(msg)
	}
}

// Deliver feeds link bytes directly, bypassing the inbound channel
func (c *Controller) Deliver(data []byte) {
	c.framer.Write(data)
}

func (c *Controller) dispatch(msg framer.Message) {
	switch msg.Type {
	case framer.TypeValve:
		c.handleValve(msg.Value)
	case framer.TypeDisplay, framer.TypeMode:
		c.handleSync(msg.Value)
	default:
		c.logger.Debug("unexpected frame", slog.String("type", msg.Type), slog.String("value", msg.Value))
		c.metrics.FramesDropped(metrics.DropUnexpected, 1)
	}
}

// handleValve applies a remote valve command. Commands only drive the valve
// in automatic mode.
func (c *Controller) handleValve(value string) {
	if c.mode.Mode() != ModeAutomatic {
		c.logger.Debug("valve command ignored", slog.String("mode", c.mode.Mode().String()), slog.String("value", value))
		return
	}
	percent, err := strconv.Atoi(strings.TrimSpace(value))
	if err == nil {
		err = c.valve.Set(percent)
	}
	if err != nil {
		c.reject(value, err)
		return
	}
	c.metrics.Valve(percent)
	c.updateDisplay()
}

// handleSync forces the mode announced by the control unit and, when the
// message carries one, the synchronized valve position.
func (c *Controller) handleSync(value string) {
	name, percent, hasValve, err := framer.SplitSync(value)
	if err != nil {
		c.reject(value, err)
		return
	}
	m, err := ParseMode(name)
	if err != nil {
		c.reject(value, err)
		return
	}

	entered := c.mode.SetMode(m)
	if entered {
		c.logger.Debug("mode synchronized", slog.String("mode", m.String()))
	}
	if m == ModeUnconnected {
		return
	}
	if !hasValve {
		if entered && m == ModeManual {
			// no position to hold, the pot takes over on the next sample
			c.lastPhysical = -1
			c.lastPotUpdate = time.Time{}
		}
		return
	}
	if err := c.valve.Set(percent); err != nil {
		c.reject(value, err)
		return
	}
	c.metrics.Valve(percent)
	if m == ModeManual {
		// the pot only takes over again once the operator moves it
		c.lastPhysical = PotToPercent(c.pot.Sample())
	}
	c.updateDisplay()
}

func (c *Controller) reject(value string, err error) {
	c.logger.Debug("command rejected", slog.String("value", value), logging.Err(err))
	c.metrics.FramesDropped(metrics.DropRejected, 1)
}

func (c *Controller) send(msgType string, frame []byte) {
	if c.out == nil {
		return
	}
	if _, err := c.out.Write(frame); err != nil {
		c.logger.Warn("link write failed", slog.String("type", msgType), logging.Err(err))
		return
	}
	c.metrics.FrameSent(msgType)
}

// ============================================================
// Local inputs
// ============================================================

// checkButton toggles AUTOMATIC and MANUAL on a press edge
func (c *Controller) checkButton() {
	pressed := c.button.IsPressed()
	edge := pressed && !c.buttonWasPressed
	c.buttonWasPressed = pressed
	if !edge {
		return
	}

	switch c.mode.Mode() {
	case ModeAutomatic:
		c.lastPhysical = -1
		c.lastPotUpdate = time.Time{}
		c.mode.SetMode(ModeManual)
	case ModeManual:
		c.mode.SetMode(ModeAutomatic)
	default:
		c.logger.Debug("button ignored while unconnected")
	}
}

// processPot samples the pot once per manual interval and applies changes
// larger than the hysteresis
func (c *Controller) processPot() {
	now := c.clock.Now()
	if !c.lastPotUpdate.IsZero() && now.Sub(c.lastPotUpdate) < c.manualInterval {
		return
	}
	c.lastPotUpdate = now

	percent := PotToPercent(c.pot.Sample())
	if c.lastPhysical >= 0 && abs(percent-c.lastPhysical) <= c.hysteresis {
		return
	}
	c.lastPhysical = percent

	if err := c.valve.Set(percent); err != nil {
		c.reject(strconv.Itoa(percent), err)
		return
	}
	c.metrics.Valve(percent)
	c.updateDisplay()
	c.send(framer.TypeValve, framer.EncodeValve(percent))
}

func (c *Controller) updateDisplay() {
	c.display.SetLine1("Mode: " + c.mode.Mode().String())
	c.display.SetLine2(fmt.Sprintf("Valve: %d%%", c.valve.Percent()))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
