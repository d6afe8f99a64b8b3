// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func feedString(f *Framer, s string) {
	f.Write([]byte(s))
}

// ============================================================
// Feed Tests
// ============================================================

func TestFeed_SkipsLeadingSeparators(t *testing.T) {
	f := New(0)
	feedString(f, "\r\n\t  {\"type\":\"valve\"")
	if !bytes.HasPrefix(f.Buffered(), []byte("{")) {
		t.Errorf("leading separators should be skipped, buffer %q", f.Buffered())
	}
}

func TestFeed_KeepsInnerSeparators(t *testing.T) {
	f := New(0)
	feedString(f, "{ \"type\" : \"valve\" }")
	if f.Len() != len("{ \"type\" : \"valve\" }") {
		t.Errorf("inner whitespace should be kept, buffer %q", f.Buffered())
	}
}

func TestFeed_OverflowClearsBuffer(t *testing.T) {
	f := New(16)
	feedString(f, strings.Repeat("x", 16))
	if f.Len() != 16 {
		t.Fatalf("expected full buffer, got %d", f.Len())
	}

	// the delimiter itself is the byte that overflows
	f.Feed(Delimiter)
	if f.Len() != 0 {
		t.Errorf("overflow should clear buffer, got %d bytes", f.Len())
	}
	if f.MessageReady() {
		t.Error("MessageReady should be false after overflow")
	}
	if f.Stats().Overflows != 1 {
		t.Errorf("expected 1 overflow, got %d", f.Stats().Overflows)
	}
}

func TestFeed_NeverExceedsCapacity(t *testing.T) {
	f := New(DefaultCapacity)
	for i := 0; i < 3*DefaultCapacity; i++ {
		f.Feed('a')
		if f.Len() > f.Capacity() {
			t.Fatalf("buffer length %d exceeds capacity %d", f.Len(), f.Capacity())
		}
	}
}

func TestFeed_RecoversAfterOverflow(t *testing.T) {
	f := New(32)
	feedString(f, strings.Repeat("{", 33))
	feedString(f, "\n")
	f.Reset()
	feedString(f, `{"type":"valve","value":7}`)

	msg, err := f.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Value != "7" {
		t.Errorf("expected value 7, got %q", msg.Value)
	}
}

// ============================================================
// Extract Tests
// ============================================================

func TestExtract_TwoConcatenatedMessages(t *testing.T) {
	f := New(0)
	feedString(f, `{"type":"valve","value":10}{"type":"valve","value":20}`)

	expected := []Message{{Type: "valve", Value: "10"}, {Type: "valve", Value: "20"}}
	for i, want := range expected {
		if !f.MessageReady() {
			t.Fatalf("message %d should be ready", i)
		}
		got, err := f.Extract()
		if err != nil {
			t.Fatalf("message %d: unexpected error %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: expected %+v, got %+v", i, want, got)
		}
	}
	if f.Len() != 0 {
		t.Errorf("buffer should be empty, has %q", f.Buffered())
	}
	if f.MessageReady() {
		t.Error("no message should remain")
	}
}

func TestExtract_NewlineSeparated(t *testing.T) {
	f := New(0)
	feedString(f, "{\"type\":\"valve\",\"value\":10}\r\n{\"type\":\"mode\",\"value\":\"MANUAL\"}\n")

	first, _ := f.Extract()
	if !bytes.HasPrefix(f.Buffered(), []byte("{")) {
		t.Errorf("separators after a frame should be trimmed, buffer %q", f.Buffered())
	}
	second, _ := f.Extract()
	if first.Value != "10" || second.Value != "MANUAL" {
		t.Errorf("unexpected messages %+v %+v", first, second)
	}
	if f.Len() != 0 {
		t.Errorf("buffer should be empty, has %q", f.Buffered())
	}
}

func TestExtract_ValueSelection(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected Message
	}{
		{"integer value", `{"type":"valve","value":42}`, Message{"valve", "42"}},
		{"string value", `{"type":"mode","value":"AUTOMATIC"}`, Message{"mode", "AUTOMATIC"}},
		{"mode and valve", `{"type":"display","mode":"MANUAL","valve":35}`, Message{"display", "MANUAL|35"}},
		{"mode and valve win over value", `{"type":"display","value":1,"mode":"MANUAL","valve":35}`, Message{"display", "MANUAL|35"}},
		{"mode only", `{"type":"display","mode":"UNCONNECTED"}`, Message{"display", "UNCONNECTED"}},
		{"valve only", `{"type":"display","valve":12}`, Message{"display", "12"}},
		{"value beats mode", `{"type":"mode","value":"MANUAL","mode":"AUTOMATIC"}`, Message{"mode", "MANUAL"}},
		{"type only", `{"type":"status"}`, Message{"status", ""}},
		{"null value", `{"type":"valve","value":null}`, Message{"valve", ""}},
		{"float value", `{"type":"valve","value":12.5}`, Message{"valve", "12.5"}},
		{"boolean value", `{"type":"status","value":true}`, Message{"status", "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(0)
			feedString(f, tt.frame)
			got, err := f.Extract()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestExtract_MalformedFrameConsumed(t *testing.T) {
	f := New(0)
	feedString(f, `{"type":"valve",value:10}{"type":"valve","value":20}`)

	_, err := f.Extract()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	msg, err := f.Extract()
	if err != nil {
		t.Fatalf("frame after a bad one should decode, got %v", err)
	}
	if msg.Value != "20" {
		t.Errorf("expected value 20, got %q", msg.Value)
	}

	stats := f.Stats()
	if stats.Malformed != 1 || stats.Extracted != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestExtract_MissingType(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"absent", `{"value":10}`},
		{"null", `{"type":null,"value":10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(0)
			feedString(f, tt.frame+"\n")
			_, err := f.Extract()
			if !errors.Is(err, ErrMissingType) {
				t.Fatalf("expected ErrMissingType, got %v", err)
			}
			if f.Len() != 0 {
				t.Errorf("bad frame should be consumed, buffer %q", f.Buffered())
			}
		})
	}
}

func TestExtract_NotReady(t *testing.T) {
	f := New(0)
	feedString(f, `{"type":"valve","value":1`)
	if f.MessageReady() {
		t.Fatal("partial frame should not be ready")
	}
	if _, err := f.Extract(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if f.Len() == 0 {
		t.Error("partial frame should stay buffered")
	}
}

func TestExtract_SplitAcrossWrites(t *testing.T) {
	f := New(0)
	feedString(f, `{"type":"va`)
	feedString(f, `lve","value":`)
	if f.MessageReady() {
		t.Fatal("frame should not be ready yet")
	}
	feedString(f, "55}\n")

	msg, err := f.Extract()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != (Message{"valve", "55"}) {
		t.Errorf("unexpected message %+v", msg)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_Frames(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"mode", EncodeMode("MANUAL"), `{"type":"mode","value":"MANUAL"}` + "\n"},
		{"valve", EncodeValve(40), `{"type":"valve","value":40}` + "\n"},
		{"display", EncodeDisplay("AUTOMATIC", 25), `{"type":"display","mode":"AUTOMATIC","valve":25}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.data) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.data)
			}
		})
	}
}

func TestEncode_RejectsComposite(t *testing.T) {
	if _, err := Encode(TypeValve, []int{1}); err == nil {
		t.Error("expected error for slice value")
	}
}

func TestEncode_ReadBack(t *testing.T) {
	f := New(0)
	f.Write(EncodeDisplay("MANUAL", 60))
	f.Write(EncodeValve(15))

	sync, _ := f.Extract()
	mode, valve, hasValve, err := SplitSync(sync.Value)
	if err != nil || !hasValve || mode != "MANUAL" || valve != 60 {
		t.Errorf("unexpected sync decode: %q %d %v %v", mode, valve, hasValve, err)
	}

	v, _ := f.Extract()
	if v != (Message{TypeValve, "15"}) {
		t.Errorf("unexpected valve frame %+v", v)
	}
}

func TestSplitSync(t *testing.T) {
	tests := []struct {
		value    string
		mode     string
		valve    int
		hasValve bool
		wantErr  bool
	}{
		{"AUTOMATIC|40", "AUTOMATIC", 40, true, false},
		{"UNCONNECTED", "UNCONNECTED", 0, false, false},
		{"MANUAL|abc", "MANUAL", 0, false, true},
		{"MANUAL| 7", "MANUAL", 7, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			mode, valve, hasValve, err := SplitSync(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if mode != tt.mode || valve != tt.valve || hasValve != tt.hasValve {
				t.Errorf("expected %s/%d/%v, got %s/%d/%v", tt.mode, tt.valve, tt.hasValve, mode, valve, hasValve)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC)
	out := FormatMessage(Message{TypeDisplay, "MANUAL|35"}, at)
	if !strings.Contains(out, "12:30:00.000") || !strings.Contains(out, "mode=MANUAL valve=35%") {
		t.Errorf("unexpected format %q", out)
	}
	out = FormatMessage(Message{TypeValve, "10"}, at)
	if !strings.Contains(out, "VALVE") || !strings.Contains(out, "10%") {
		t.Errorf("unexpected format %q", out)
	}
}
