// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type scalarFrame struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type displayFrame struct {
	Type  string `json:"type"`
	Mode  string `json:"mode"`
	Valve int    `json:"valve"`
}

// Encode builds a newline-terminated frame carrying a scalar value
func Encode(msgType string, value any) ([]byte, error) {
	switch value.(type) {
	case string, int, int32, int64, uint8, uint16, uint32, float32, float64, bool:
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
	data, err := json.Marshal(scalarFrame{Type: msgType, Value: value})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// EncodeMode builds a mode notification
func EncodeMode(mode string) []byte {
	data, _ := Encode(TypeMode, mode)
	return data
}

// EncodeValve builds a valve percentage frame
func EncodeValve(percent int) []byte {
	data, _ := Encode(TypeValve, percent)
	return data
}

// EncodeDisplay builds a display-sync frame as sent by the control unit
func EncodeDisplay(mode string, valve int) []byte {
	data, _ := json.Marshal(displayFrame{Type: TypeDisplay, Mode: mode, Valve: valve})
	return append(data, '\n')
}

// SplitSync separates a display-sync value into its mode and valve parts.
// hasValve is false when the value carries a mode only.
func SplitSync(value string) (mode string, valve int, hasValve bool, err error) {
	mode, rest, found := strings.Cut(value, SyncSeparator)
	if !found {
		return mode, 0, false, nil
	}
	valve, err = strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return mode, 0, false, fmt.Errorf("invalid valve in %q: %w", value, err)
	}
	return mode, valve, true, nil
}
