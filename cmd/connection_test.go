// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cistern/pkg/config"
	"github.com/Thermoquad/cistern/pkg/framer"
	"github.com/Thermoquad/cistern/pkg/tms"
)

type wsFrame struct {
	kind int
	data string
}

// bridge is a WebSocket endpoint that sends frames then reports what it gets
func bridge(t *testing.T, frames []wsFrame, received chan<- string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(f.kind, []byte(f.data)); err != nil {
				return
			}
		}
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage {
				received <- string(data)
			}
			if string(data) == "bye" {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_ReadsTextAndBinary(t *testing.T) {
	received := make(chan string, 4)
	url := bridge(t, []wsFrame{
		{websocket.TextMessage, `{"type":"valve",`},
		{websocket.BinaryMessage, `"value":40}`},
	}, received)

	conn, err := OpenWebSocketConnection(url, false)
	require.NoError(t, err)
	defer conn.Close()

	f := framer.New(framer.DefaultCapacity)
	buf := make([]byte, 8) // smaller than a message to exercise buffering
	deadline := time.Now().Add(5 * time.Second)
	for !f.MessageReady() && time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		f.Write(buf[:n])
	}

	msg, err := f.Extract()
	require.NoError(t, err)
	assert.Equal(t, framer.Message{Type: "valve", Value: "40"}, msg)
}

func TestWebSocketConnection_WritesText(t *testing.T) {
	received := make(chan string, 4)
	url := bridge(t, nil, received)

	conn, err := OpenWebSocketConnection(url, false)
	require.NoError(t, err)
	defer conn.Close()

	frame := framer.EncodeMode("MANUAL")
	n, err := conn.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)

	select {
	case got := <-received:
		assert.Equal(t, string(frame), got)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not receive the frame")
	}
}

func TestWebSocketConnection_CloseIsEOF(t *testing.T) {
	received := make(chan string, 4)
	url := bridge(t, nil, received)

	conn, err := OpenWebSocketConnection(url, false)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("bye"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	// later reads fail fast
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestOpenWebSocketConnection_RejectsScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://example.invalid/ws", false)
	assert.ErrorContains(t, err, "unsupported URL scheme")
}

func TestOpenConnection_RequiresEndpoint(t *testing.T) {
	_, _, err := OpenConnection(config.LinkConfig{Baud: 9600})
	assert.Error(t, err)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{26*time.Hour + 2*time.Minute + 5*time.Second, "1 day, 2 hours, 2 minutes, and 5 seconds"},
		{2 * time.Hour, "2 hours"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatUptime(tt.d))
	}
}

func TestEventLog(t *testing.T) {
	l := newEventLog(3)
	for i := 0; i < 5; i++ {
		l.add(string(rune('a'+i)), false)
	}
	require.Len(t, l.entries, 3)
	assert.Equal(t, "c", l.entries[0].message)
	assert.Equal(t, "e", l.entries[2].message)
}

func TestEventWriter_DropsWhenFull(t *testing.T) {
	w := newEventWriter()
	for i := 0; i < cap(w.lines)+10; i++ {
		n, err := w.Write([]byte("level=INFO msg=tick\n"))
		require.NoError(t, err)
		assert.Equal(t, 20, n)
	}
	assert.Len(t, w.lines, cap(w.lines))
	assert.Equal(t, "level=INFO msg=tick", <-w.lines)
}

func TestIsProblem(t *testing.T) {
	assert.True(t, isProblem(`time=now level=WARN msg="link lost"`))
	assert.True(t, isProblem(`{"time":"now","level":"ERROR","msg":"x"}`))
	assert.False(t, isProblem(`time=now level=INFO msg="state changed"`))
}

func TestFormatReading(t *testing.T) {
	at := float64(time.Date(2025, 1, 1, 12, 0, 0, 0, time.Local).UnixMilli()) / 1000

	line := formatReading("tms/rainwater/level", tms.Payload{Distance: 40, Level: 160, Timestamp: at, State: "MONITORING"})
	assert.Equal(t, "[12:00:00.000] tms/rainwater/level  level=160.0cm  distance=40.0cm  state=MONITORING\n", line)

	line = formatReading("tms/rainwater/level", tms.Payload{Distance: -1, Level: tms.InvalidLevel, Timestamp: at, State: "MONITORING"})
	assert.Contains(t, line, "no echo")
}
