// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tms

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/cistern/pkg/device"
)

// InvalidLevel marks a measurement taken with no echo
const InvalidLevel float32 = -1

// Encoding selects the published payload format
type Encoding string

// Payload encodings
const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// Measurement is one level reading. It is immutable once built.
type Measurement struct {
	distance  float32
	level     float32
	timestamp time.Time
	state     State
}

// NewMeasurement derives the fill level from a sensor distance against the
// reservoir height. The level is clamped to [0, height]; a negative distance
// is the no-object sentinel and yields InvalidLevel.
func NewMeasurement(distance, height float32, at time.Time, state State) Measurement {
	m := Measurement{
		distance:  distance,
		timestamp: at,
		state:     state,
	}
	if distance < 0 {
		m.distance = device.NoObject
		m.level = InvalidLevel
		return m
	}
	m.level = math32.Min(math32.Max(height-distance, 0), height)
	return m
}

// Distance returns the sensor distance in centimetres
func (m Measurement) Distance() float32 {
	return m.distance
}

// Level returns the fill level in centimetres, or InvalidLevel
func (m Measurement) Level() float32 {
	return m.level
}

// Timestamp returns when the reading was taken
func (m Measurement) Timestamp() time.Time {
	return m.timestamp
}

// State returns the connection state at the time of the reading
func (m Measurement) State() State {
	return m.state
}

// IsValid reports whether the level can be used
func (m Measurement) IsValid() bool {
	return m.level != InvalidLevel
}

// Payload is the published record
type Payload struct {
	Distance  float32 `json:"distance" cbor:"distance"`
	Level     float32 `json:"level" cbor:"level"`
	Timestamp float64 `json:"timestamp" cbor:"timestamp"` // Unix seconds
	State     string  `json:"state" cbor:"state"`
}

// Payload returns the record for publishing
func (m Measurement) Payload() Payload {
	return Payload{
		Distance:  m.distance,
		Level:     m.level,
		Timestamp: float64(m.timestamp.UnixMilli()) / 1000,
		State:     m.state.String(),
	}
}

// Encode serializes the payload
func (m Measurement) Encode(enc Encoding) ([]byte, error) {
	switch enc {
	case "", EncodingJSON:
		return json.Marshal(m.Payload())
	case EncodingCBOR:
		return cbor.Marshal(m.Payload())
	}
	return nil, fmt.Errorf("unsupported payload encoding %q", enc)
}

// DecodePayload parses a published record
func DecodePayload(data []byte, enc Encoding) (Payload, error) {
	var p Payload
	var err error
	switch enc {
	case "", EncodingJSON:
		err = json.Unmarshal(data, &p)
	case EncodingCBOR:
		err = cbor.Unmarshal(data, &p)
	default:
		err = fmt.Errorf("unsupported payload encoding %q", enc)
	}
	return p, err
}
