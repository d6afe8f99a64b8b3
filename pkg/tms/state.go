// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tms

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/logging"
)

// State is the sensing node's connection state
type State int

// Connection states
const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateMonitoring
	StateDisconnected
)

var stateNames = []string{"INIT", "CONNECTING", "CONNECTED", "MONITORING", "DISCONNECTED"}

// String returns the canonical state name
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// States lists every state name
func States() []string {
	return slices.Clone(stateNames)
}

// ErrInvalidTransition is returned for a transition the machine does not allow
var ErrInvalidTransition = errors.New("invalid state transition")

// allowed transitions. INIT is never a target.
var transitions = map[State][]State{
	StateInit:         {StateConnecting},
	StateConnecting:   {StateConnected},
	StateConnected:    {StateMonitoring, StateConnecting},
	StateMonitoring:   {StateDisconnected},
	StateDisconnected: {StateMonitoring},
}

// StateHolder owns the connection state. SetState is the only way to change
// it.
type StateHolder struct {
	mu             sync.RWMutex
	clock          kernel.Clock
	logger         *slog.Logger
	state          State
	lastTransition time.Time
	onChange       func(State)
}

// NewStateHolder creates a holder in StateInit
func NewStateHolder(clock kernel.Clock, logger *slog.Logger) *StateHolder {
	if clock == nil {
		clock = kernel.SystemClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &StateHolder{
		clock:          clock,
		logger:         logger,
		state:          StateInit,
		lastTransition: clock.Now(),
	}
}

// OnChange registers a callback run after each transition
func (h *StateHolder) OnChange(fn func(State)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// State returns the current state
func (h *StateHolder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// SetState moves to next. Repeating the current state is a no-op and does
// not touch the transition time.
func (h *StateHolder) SetState(next State) error {
	h.mu.Lock()
	prev := h.state
	if next == prev {
		h.mu.Unlock()
		return nil
	}
	if !slices.Contains(transitions[prev], next) {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}
	h.state = next
	h.lastTransition = h.clock.Now()
	fn := h.onChange
	h.mu.Unlock()

	h.logger.Info("state changed", slog.String("from", prev.String()), slog.String("to", next.String()))
	if fn != nil {
		fn(next)
	}
	return nil
}

// LastTransition returns when the current state was entered
func (h *StateHolder) LastTransition() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastTransition
}

// TimeInState returns how long the current state has been held
func (h *StateHolder) TimeInState() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clock.Now().Sub(h.lastTransition)
}

// IsOperational reports whether sampling and publishing are enabled
func (h *StateHolder) IsOperational() bool {
	return h.State() == StateMonitoring
}

// IsConnected reports whether the link was up at the last transition
func (h *StateHolder) IsConnected() bool {
	s := h.State()
	return s == StateConnected || s == StateMonitoring
}
