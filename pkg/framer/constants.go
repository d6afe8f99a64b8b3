// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framer

// Buffer limits
const (
	DefaultCapacity = 256 // Bytes held before an unterminated frame is dropped
)

// Framing bytes
const (
	Delimiter = '}' // Closes a frame
)

// Companion link message types
const (
	TypeValve   = "valve"   // Valve percentage, both directions
	TypeDisplay = "display" // Mode sync with valve percentage, control unit to node
	TypeMode    = "mode"    // Mode notification or sync
	TypeStatus  = "status"  // Free-form status text
)

// Field names
const (
	fieldType  = "type"
	fieldValue = "value"
	fieldMode  = "mode"
	fieldValve = "valve"
)

// SyncSeparator joins mode and valve in a display-sync value
const SyncSeparator = "|"

// isSeparator reports bytes skipped between frames
func isSeparator(b byte) bool {
	switch b {
	case '\n', '\r', '\t', ' ':
		return true
	}
	return false
}
