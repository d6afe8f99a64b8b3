// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package framer extracts JSON messages from the companion serial link.
//
// Frames are flat JSON objects carrying a mandatory "type" field and one or
// more of "value", "mode" and "valve". The first '}' in the buffer closes a
// frame, so nested objects are not supported.
package framer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Errors reported by Extract
var (
	ErrNotReady    = errors.New("no complete frame buffered")
	ErrMalformed   = errors.New("malformed frame")
	ErrMissingType = errors.New("frame has no type field")
)

// Message is one decoded frame
type Message struct {
	Type  string
	Value string
}

// Stats counts framer outcomes since creation
type Stats struct {
	Extracted uint64
	Malformed uint64
	Overflows uint64
}

// Framer accumulates link bytes into a bounded buffer. On overflow the whole
// buffer is discarded.
type Framer struct {
	buffer   []byte
	capacity int
	stats    Stats
}

// New creates a framer. A capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Framer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Framer{
		buffer:   make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Reset discards buffered bytes
func (f *Framer) Reset() {
	f.buffer = f.buffer[:0]
}

// Feed appends one byte. Separators are skipped while the buffer is empty.
// A byte that would exceed the capacity clears the buffer instead of being
// appended.
func (f *Framer) Feed(b byte) {
	if len(f.buffer) == 0 && isSeparator(b) {
		return
	}
	if len(f.buffer) >= f.capacity {
		f.Reset()
		f.stats.Overflows++
		return
	}
	f.buffer = append(f.buffer, b)
}

// Write feeds every byte of p. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	for _, b := range p {
		f.Feed(b)
	}
	return len(p), nil
}

// MessageReady reports whether a frame delimiter is buffered
func (f *Framer) MessageReady() bool {
	return bytes.IndexByte(f.buffer, Delimiter) >= 0
}

// Extract removes the first frame from the buffer and decodes it. The frame
// is consumed even when decoding fails.
func (f *Framer) Extract() (Message, error) {
	end := bytes.IndexByte(f.buffer, Delimiter)
	if end < 0 {
		return Message{}, ErrNotReady
	}

	msg, err := decode(f.buffer[:end+1])
	f.consume(end + 1)
	if err != nil {
		f.stats.Malformed++
		return Message{}, err
	}
	f.stats.Extracted++
	return msg, nil
}

// consume drops the first n bytes and any separators following them
func (f *Framer) consume(n int) {
	rest := f.buffer[n:]
	for len(rest) > 0 && isSeparator(rest[0]) {
		rest = rest[1:]
	}
	f.buffer = f.buffer[:copy(f.buffer, rest)]
}

// Len returns the number of buffered bytes
func (f *Framer) Len() int {
	return len(f.buffer)
}

// Capacity returns the buffer limit
func (f *Framer) Capacity() int {
	return f.capacity
}

// Buffered returns a copy of the pending bytes
func (f *Framer) Buffered() []byte {
	return append([]byte(nil), f.buffer...)
}

// Stats returns the outcome counters
func (f *Framer) Stats() Stats {
	return f.stats
}

func decode(frame []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msgType, ok := scalar(fields[fieldType])
	if !ok {
		return Message{}, ErrMissingType
	}

	mode, hasMode := scalar(fields[fieldMode])
	valve, hasValve := scalar(fields[fieldValve])
	value, hasValue := scalar(fields[fieldValue])

	msg := Message{Type: msgType}
	switch {
	case hasMode && hasValve:
		msg.Value = mode + SyncSeparator + valve
	case hasValue:
		msg.Value = value
	case hasMode:
		msg.Value = mode
	case hasValve:
		msg.Value = valve
	}
	return msg, nil
}

// scalar renders a JSON field as text. Strings are unquoted, other values
// keep their literal form. Absent and null fields report false.
func scalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}
