// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wcs

import (
	"fmt"
	"strings"
	"sync"
)

// Mode is the valve control authority
type Mode int

// Control modes
const (
	ModeAutomatic Mode = iota
	ModeManual
	ModeUnconnected
)

var modeNames = []string{"AUTOMATIC", "MANUAL", "UNCONNECTED"}

// String returns the wire name of the mode
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(m))
}

// Modes lists every mode name
func Modes() []string {
	return append([]string(nil), modeNames...)
}

// ParseMode converts a wire name to a Mode
func ParseMode(name string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "AUTOMATIC":
		return ModeAutomatic, nil
	case "MANUAL":
		return ModeManual, nil
	case "UNCONNECTED":
		return ModeUnconnected, nil
	}
	return 0, fmt.Errorf("unknown mode %q", name)
}

// ModeState holds the current mode and a one-shot entry flag. The flag is
// raised by every transition and cleared by the first read.
type ModeState struct {
	mu          sync.RWMutex
	mode        Mode
	justEntered bool
}

// NewModeState starts in initial with the entry flag raised
func NewModeState(initial Mode) *ModeState {
	return &ModeState{mode: initial, justEntered: true}
}

// Mode returns the current mode
func (s *ModeState) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches to m and raises the entry flag. Repeating the current
// mode is a no-op and reports false.
func (s *ModeState) SetMode(m Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == s.mode {
		return false
	}
	s.mode = m
	s.justEntered = true
	return true
}

// CheckAndClearJustEntered reports whether the mode was entered since the
// previous call
func (s *ModeState) CheckAndClearJustEntered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entered := s.justEntered
	s.justEntered = false
	return entered
}
