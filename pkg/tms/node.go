// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package tms implements the sensing node: it measures the reservoir level
// and publishes it while the messaging link is healthy.
package tms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/logging"
	"github.com/Thermoquad/cistern/pkg/metrics"
	"github.com/Thermoquad/cistern/pkg/reconnect"
)

// Config holds the node timing and measurement parameters
type Config struct {
	BasePeriod       time.Duration
	MaxTasks         int
	LinkPeriod       time.Duration
	MonitorPeriod    time.Duration
	IndicatorPeriod  time.Duration
	BlinkPeriod      time.Duration
	ReconnectFloor   time.Duration
	ReconnectCeiling time.Duration
	AttemptTimeout   time.Duration
	PublishTimeout   time.Duration
	TankHeight       float32
	Topic            string
	Encoding         Encoding
}

// DefaultTopic is where level readings are published
const DefaultTopic = "tms/rainwater/level"

// DefaultConfig returns the reference node parameters
func DefaultConfig() Config {
	return Config{
		BasePeriod:       10 * time.Millisecond,
		MaxTasks:         kernel.MaxTasks,
		LinkPeriod:       100 * time.Millisecond,
		MonitorPeriod:    time.Second,
		IndicatorPeriod:  200 * time.Millisecond,
		BlinkPeriod:      500 * time.Millisecond,
		ReconnectFloor:   reconnect.DefaultFloor,
		ReconnectCeiling: reconnect.DefaultCeiling,
		AttemptTimeout:   5 * time.Second,
		PublishTimeout:   time.Second,
		TankHeight:       200,
		Topic:            DefaultTopic,
		Encoding:         EncodingJSON,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	var errs []error
	if c.BasePeriod <= 0 {
		errs = append(errs, errors.New("base period must be positive"))
	}
	for name, p := range map[string]time.Duration{
		"link": c.LinkPeriod, "monitor": c.MonitorPeriod, "indicator": c.IndicatorPeriod,
	} {
		if p < c.BasePeriod {
			errs = append(errs, fmt.Errorf("%s period %v is shorter than the base period", name, p))
		}
	}
	if c.TankHeight <= 0 {
		errs = append(errs, errors.New("tank height must be positive"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if c.Encoding != EncodingJSON && c.Encoding != EncodingCBOR {
		errs = append(errs, fmt.Errorf("unsupported encoding %q", c.Encoding))
	}
	return errors.Join(errs...)
}

// Devices are the hardware collaborators of the sensing node
type Devices struct {
	Sensor device.RangeSensor
	Green  device.Indicator
	Red    device.Indicator
}

// Node wires the sensing node's tasks onto one scheduler
type Node struct {
	cfg       Config
	scheduler *kernel.Scheduler
	holder    *StateHolder
	policy    *reconnect.Policy
	link      *LinkTask
	monitor   *MonitorTask
	indicator *IndicatorTask
	logger    *slog.Logger
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

// NewNode builds the node and registers its tasks in the order indicator,
// link, monitor.
func NewNode(cfg Config, dev Devices, transport Transport, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	if dev.Sensor == nil || dev.Green == nil || dev.Red == nil {
		return nil, errors.New("sensor and both indicators are required")
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	o := nodeOptions{clock: kernel.SystemClock{}, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	holder := NewStateHolder(o.clock, o.logger)
	policy := reconnect.NewPolicy(transport, cfg.ReconnectFloor, cfg.ReconnectCeiling,
		reconnect.WithClock(o.clock),
		reconnect.WithLogger(o.logger.With(slog.String("component", "reconnect"))),
	)

	n := &Node{
		cfg:       cfg,
		scheduler: kernel.NewScheduler(cfg.BasePeriod, cfg.MaxTasks, o.logger),
		holder:    holder,
		policy:    policy,
		logger:    o.logger,
		indicator: &IndicatorTask{
			holder:      holder,
			green:       dev.Green,
			red:         dev.Red,
			clock:       o.clock,
			blinkPeriod: cfg.BlinkPeriod,
		},
		link: &LinkTask{
			holder:    holder,
			transport: transport,
			policy:    policy,
			timeout:   cfg.AttemptTimeout,
			logger:    o.logger.With(slog.String("component", "link")),
			metrics:   o.metrics,
		},
		monitor: &MonitorTask{
			holder:    holder,
			sensor:    dev.Sensor,
			transport: transport,
			clock:     o.clock,
			topic:     cfg.Topic,
			height:    cfg.TankHeight,
			encoding:  cfg.Encoding,
			timeout:   cfg.PublishTimeout,
			logger:    o.logger.With(slog.String("component", "monitor")),
			metrics:   o.metrics,
		},
	}

	tasks := []*kernel.Task{
		kernel.NewTask("indicator", cfg.IndicatorPeriod, n.indicator),
		kernel.NewTask("link", cfg.LinkPeriod, n.link),
		kernel.NewTask("monitor", cfg.MonitorPeriod, n.monitor),
	}
	for _, t := range tasks {
		if !n.scheduler.AddTask(t) {
			return nil, fmt.Errorf("cannot register task %s", t.Name())
		}
	}
	return n, nil
}

// Start completes startup by leaving INIT
func (n *Node) Start() error {
	if n.holder.State() != StateInit {
		return nil
	}
	if err := n.holder.SetState(StateConnecting); err != nil {
		return err
	}
	n.link.metrics.Transition(StateConnecting.String())
	return nil
}

// Run starts the node and dispatches tasks until ctx is cancelled
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}
	n.logger.Info("sensing node running",
		slog.Duration("base_period", n.cfg.BasePeriod),
		slog.String("topic", n.cfg.Topic),
	)
	return n.scheduler.Run(ctx)
}

// Tick runs one scheduler cycle
func (n *Node) Tick() {
	n.scheduler.Schedule()
}

// State returns the connection state
func (n *Node) State() State {
	return n.holder.State()
}

// StateHolder returns the shared state holder
func (n *Node) StateHolder() *StateHolder {
	return n.holder
}

// LastMeasurement returns the latest reading
func (n *Node) LastMeasurement() (Measurement, bool) {
	return n.monitor.Last()
}

// Config returns the node configuration
func (n *Node) Config() Config {
	return n.cfg
}
