// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wcs implements the actuation node: it drives the valve from the
// control unit's commands or from the local potentiometer, and keeps its
// mode synchronized with the control unit over the companion link.
package wcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/framer"
	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/logging"
	"github.com/Thermoquad/cistern/pkg/metrics"
)

// Config holds the node timing and actuation parameters
type Config struct {
	BasePeriod     time.Duration
	MaxTasks       int
	TaskPeriod     time.Duration
	ManualInterval time.Duration
	Hysteresis     int
	MinAngle       int
	MaxAngle       int
	FramerCapacity int
}

// DefaultConfig returns the reference node parameters
func DefaultConfig() Config {
	return Config{
		BasePeriod:     50 * time.Millisecond,
		MaxTasks:       kernel.MaxTasks,
		TaskPeriod:     100 * time.Millisecond,
		ManualInterval: 500 * time.Millisecond,
		Hysteresis:     2,
		MinAngle:       0,
		MaxAngle:       90,
		FramerCapacity: framer.DefaultCapacity,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	var errs []error
	if c.BasePeriod <= 0 {
		errs = append(errs, errors.New("base period must be positive"))
	}
	if c.TaskPeriod < c.BasePeriod {
		errs = append(errs, fmt.Errorf("task period %v is shorter than the base period", c.TaskPeriod))
	}
	if c.MaxAngle <= c.MinAngle {
		errs = append(errs, fmt.Errorf("angle range [%d, %d] is empty", c.MinAngle, c.MaxAngle))
	}
	if c.Hysteresis < 0 {
		errs = append(errs, errors.New("hysteresis must not be negative"))
	}
	return errors.Join(errs...)
}

// Devices are the hardware collaborators of the actuation node
type Devices struct {
	Actuator device.Actuator
	Display  device.Display
	Pot      device.AnalogInput
	Button   device.Button
}

// Node wires the controller onto a scheduler and pumps the companion link
type Node struct {
	cfg        Config
	scheduler  *kernel.Scheduler
	mode       *ModeState
	valve      *Valve
	controller *Controller
	link       io.ReadWriter
	inbound    chan []byte
	logger     *slog.Logger
}

type nodeOptions struct {
	clock   kernel.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Node
type Option func(*nodeOptions)

// WithClock sets the node time source
func WithClock(clock kernel.Clock) Option {
	return func(o *nodeOptions) { o.clock = clock }
}

// WithLogger sets the node logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *nodeOptions) { o.logger = logger }
}

// WithMetrics enables metric collection
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *nodeOptions) { o.metrics = m }
}

// NewNode builds the actuation node over link. The node starts in AUTOMATIC.
func NewNode(cfg Config, dev Devices, link io.ReadWriter, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	if dev.Actuator == nil || dev.Display == nil || dev.Pot == nil || dev.Button == nil {
		return nil, errors.New("actuator, display, pot and button are required")
	}
	if link == nil {
		return nil, errors.New("companion link is required")
	}

	o := nodeOptions{clock: kernel.SystemClock{}, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{
		cfg:       cfg,
		scheduler: kernel.NewScheduler(cfg.BasePeriod, cfg.MaxTasks, o.logger),
		mode:      NewModeState(ModeAutomatic),
		valve:     NewValve(dev.Actuator, cfg.MinAngle, cfg.MaxAngle),
		link:      link,
		inbound:   make(chan []byte, 64),
		logger:    o.logger,
	}
	n.controller = &Controller{
		mode:           n.mode,
		valve:          n.valve,
		display:        dev.Display,
		pot:            dev.Pot,
		button:         dev.Button,
		framer:         framer.New(cfg.FramerCapacity),
		inbound:        n.inbound,
		out:            link,
		clock:          o.clock,
		manualInterval: cfg.ManualInterval,
		hysteresis:     cfg.Hysteresis,
		logger:         o.logger.With(slog.String("component", "controller")),
		metrics:        o.metrics,
		lastPhysical:   -1,
	}

	if !n.scheduler.AddTask(kernel.NewTask("controller", cfg.TaskPeriod, n.controller)) {
		return nil, errors.New("cannot register controller task")
	}
	return n, nil
}

// Run pumps the link and dispatches tasks until ctx is cancelled
func (n *Node) Run(ctx context.Context) error {
	go n.readLoop(ctx)
	n.logger.Info("actuation node running", slog.Duration("base_period", n.cfg.BasePeriod))
	return n.scheduler.Run(ctx)
}

// readLoop copies link reads onto the inbound channel
func (n *Node) readLoop(ctx context.Context) {
	buf := make([]byte, 128)
	for {
		if ctx.Err() != nil {
			return
		}
		count, err := n.link.Read(buf)
		if count > 0 {
			data := append([]byte(nil), buf[:count]...)
			select {
			case n.inbound <- data:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				n.logger.Warn("companion link closed", logging.Err(err))
				return
			}
			n.logger.Debug("link read error", logging.Err(err))
			// brief pause before retry on transient errors
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// Tick runs one scheduler cycle
func (n *Node) Tick() {
	n.scheduler.Schedule()
}

// Mode returns the current control mode
func (n *Node) Mode() Mode {
	return n.mode.Mode()
}

// ValvePercent returns the commanded valve opening
func (n *Node) ValvePercent() int {
	return n.valve.Percent()
}

// ValveAngle returns the commanded actuator angle
func (n *Node) ValveAngle() int {
	return n.valve.Angle()
}

// Controller returns the node task
func (n *Node) Controller() *Controller {
	return n.controller
}

// Config returns the node configuration
func (n *Node) Config() Config {
	return n.cfg
}
