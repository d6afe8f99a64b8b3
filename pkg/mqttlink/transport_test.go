// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttlink

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/logging"
	"github.com/Thermoquad/cistern/pkg/tms"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startBroker runs a broker on a free port. The returned stop func may be
// called by the test; cleanup shuts the broker down at most once.
func startBroker(t *testing.T) (stop func() error, addr string) {
	t.Helper()
	addr = freeAddress(t)

	server := mochi.New(&mochi.Options{Logger: logging.Discard()})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, server.Serve())

	var (
		once     sync.Once
		closeErr error
	)
	stop = func() error {
		once.Do(func() { closeErr = server.Close() })
		return closeErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop, addr
}

func connect(t *testing.T, cfg Config) *Transport {
	t.Helper()
	tr := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.ConnectLink(ctx))
	require.NoError(t, tr.Handshake(ctx))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

type inbox struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (b *inbox) handle(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][][]byte)
	}
	b.msgs[topic] = append(b.msgs[topic], payload)
}

func (b *inbox) get(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgs[topic]
}

func TestTransport_PublishSubscribe(t *testing.T) {
	_, addr := startBroker(t)

	sub := connect(t, Config{Broker: addr, ClientID: "watcher", CleanStart: true})
	box := &inbox{}
	require.NoError(t, sub.Subscribe(context.Background(), "tms/#", box.handle))

	pub := connect(t, Config{Broker: addr, ClientID: "sensor", CleanStart: true})
	assert.True(t, pub.IsConnected())

	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), "tms/rainwater/level", []byte(`{"level":42}`))
		return len(box.get("tms/rainwater/level")) > 0
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, []byte(`{"level":42}`), box.get("tms/rainwater/level")[0])
	assert.Empty(t, box.get("other/topic"))
}

func TestTransport_PublishWithoutSession(t *testing.T) {
	tr := New(DefaultConfig())
	err := tr.Publish(context.Background(), "tms/rainwater/level", []byte("{}"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, tr.IsConnected())
}

func TestTransport_HandshakeWithoutLink(t *testing.T) {
	tr := New(DefaultConfig())
	assert.ErrorIs(t, tr.Handshake(context.Background()), ErrNoLink)
}

func TestTransport_LinkFailure(t *testing.T) {
	addr := freeAddress(t)
	tr := New(Config{Broker: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, tr.ConnectLink(ctx))
	assert.ErrorIs(t, tr.Handshake(ctx), ErrNoLink)
}

func TestTransport_BrokerLoss(t *testing.T) {
	stopBroker, addr := startBroker(t)
	tr := connect(t, Config{Broker: addr, ClientID: "sensor", KeepAlive: time.Second, CleanStart: true})
	require.True(t, tr.IsConnected())

	require.NoError(t, stopBroker())
	require.Eventually(t, func() bool {
		_ = tr.Publish(context.Background(), "tms/rainwater/level", []byte("{}"))
		return !tr.IsConnected()
	}, 10*time.Second, 100*time.Millisecond)
	assert.NoError(t, stopBroker(), "stopping twice")
}

func TestTransport_CloseIsIdempotent(t *testing.T) {
	_, addr := startBroker(t)
	tr := connect(t, Config{Broker: addr, ClientID: "sensor"})
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter, topic string
		match         bool
	}{
		{"tms/rainwater/level", "tms/rainwater/level", true},
		{"tms/+/level", "tms/rainwater/level", true},
		{"tms/#", "tms/rainwater/level", true},
		{"#", "tms", true},
		{"tms/+", "tms/rainwater/level", false},
		{"tms/rainwater/level", "tms/rainwater", false},
		{"tms/greywater/level", "tms/rainwater/level", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, MatchTopic(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

type fixedSensor struct {
	distance float32
}

func (s fixedSensor) MeasureDistance() float32 {
	return s.distance
}

func TestTransport_SensingNodeEndToEnd(t *testing.T) {
	_, addr := startBroker(t)

	watcher := connect(t, Config{Broker: addr, ClientID: "watcher", CleanStart: true})
	box := &inbox{}
	require.NoError(t, watcher.Subscribe(context.Background(), tms.DefaultTopic, box.handle))

	cfg := tms.DefaultConfig()
	cfg.LinkPeriod = cfg.BasePeriod
	cfg.MonitorPeriod = cfg.BasePeriod
	cfg.IndicatorPeriod = cfg.BasePeriod

	tr := New(Config{Broker: addr, ClientID: DefaultClientID, CleanStart: true})
	t.Cleanup(func() { _ = tr.Close() })

	node, err := tms.NewNode(cfg, tms.Devices{
		Sensor: fixedSensor{distance: 40},
		Green:  &device.LED{},
		Red:    &device.LED{},
	}, tr)
	require.NoError(t, err)
	require.NoError(t, node.Start())

	require.Eventually(t, func() bool {
		node.Tick()
		return len(box.get(tms.DefaultTopic)) > 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, tms.StateMonitoring, node.State())
	payload, err := tms.DecodePayload(box.get(tms.DefaultTopic)[0], tms.EncodingJSON)
	require.NoError(t, err)
	assert.InDelta(t, 40, payload.Distance, 0.001)
	assert.InDelta(t, 160, payload.Level, 0.001)
	assert.Equal(t, "MONITORING", payload.State)
}
