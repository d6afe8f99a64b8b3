// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package reconnect implements the exponential backoff gate that rate-limits
// link re-establishment.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/logging"
)

// Backoff bounds used when none are configured
const (
	DefaultFloor   = 5 * time.Second
	DefaultCeiling = 60 * time.Second
)

// ErrNotDue is returned by Attempt while the current delay has not elapsed
var ErrNotDue = errors.New("reconnect attempt not due")

// Connector is the two-step connect sequence guarded by the policy: bring up
// the transport link, then run the application handshake over it.
type Connector interface {
	ConnectLink(ctx context.Context) error
	Handshake(ctx context.Context) error
}

// Policy gates connection attempts behind a doubling delay
type Policy struct {
	connector Connector
	clock     kernel.Clock
	logger    *slog.Logger

	floor   time.Duration
	ceiling time.Duration
	delay   time.Duration

	lastAttempt time.Time
	attempted   bool
	failures    int
}

// Option configures a Policy
type Option func(*Policy)

// WithClock sets the time source
func WithClock(clock kernel.Clock) Option {
	return func(p *Policy) {
		p.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// NewPolicy creates a policy. A non-positive floor selects DefaultFloor and a
// ceiling below the floor is raised to it.
func NewPolicy(connector Connector, floor, ceiling time.Duration, opts ...Option) *Policy {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if ceiling < floor {
		ceiling = floor
	}
	p := &Policy{
		connector: connector,
		clock:     kernel.SystemClock{},
		logger:    logging.Discard(),
		floor:     floor,
		ceiling:   ceiling,
		delay:     floor,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attempt runs the connect sequence if the current delay has elapsed since
// the previous attempt. The first attempt is never gated. Any failure doubles
// the delay up to the ceiling; success resets it to the floor.
func (p *Policy) Attempt(ctx context.Context) error {
	now := p.clock.Now()
	if p.attempted && now.Sub(p.lastAttempt) < p.delay {
		return ErrNotDue
	}
	p.lastAttempt = now
	p.attempted = true

	if err := p.connector.ConnectLink(ctx); err != nil {
		p.fail("link", err)
		return fmt.Errorf("link: %w", err)
	}
	if err := p.connector.Handshake(ctx); err != nil {
		p.fail("handshake", err)
		return fmt.Errorf("handshake: %w", err)
	}

	if p.failures > 0 {
		p.logger.Info("reconnected", slog.Int("failures", p.failures))
	}
	p.delay = p.floor
	p.failures = 0
	return nil
}

func (p *Policy) fail(step string, err error) {
	p.failures++
	p.delay *= 2
	if p.delay > p.ceiling || p.delay <= 0 {
		p.delay = p.ceiling
	}
	p.logger.Warn("connect attempt failed",
		slog.String("step", step),
		logging.Err(err),
		slog.Int("failures", p.failures),
		slog.Duration("delay", p.delay),
	)
}

// Delay returns the wait required before the next attempt
func (p *Policy) Delay() time.Duration {
	return p.delay
}

// Failures returns the number of consecutive failed attempts
func (p *Policy) Failures() int {
	return p.failures
}

// LastAttempt returns when the previous attempt started
func (p *Policy) LastAttempt() time.Time {
	return p.lastAttempt
}

// Floor returns the minimum delay
func (p *Policy) Floor() time.Duration {
	return p.floor
}

// Ceiling returns the maximum delay
func (p *Policy) Ceiling() time.Duration {
	return p.ceiling
}
