// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttlink carries sensor readings to the broker over MQTT v5.
//
// The transport splits connection setup into the two phases the sensing
// node drives separately: ConnectLink opens the network path and Handshake
// performs the MQTT session handshake over it.
package mqttlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/Thermoquad/cistern/pkg/logging"
)

var (
	// ErrNotConnected is returned when publishing without a session
	ErrNotConnected = errors.New("mqtt session not established")
	// ErrNoLink is returned by Handshake when no network link is open
	ErrNoLink = errors.New("network link not open")
)

// Defaults
const (
	DefaultBroker    = "localhost:1883"
	DefaultClientID  = "TMS_ESP32"
	DefaultKeepAlive = 30 * time.Second
)

// Config holds the broker session parameters
type Config struct {
	Broker     string
	ClientID   string
	KeepAlive  time.Duration
	CleanStart bool
	QoS        byte
	Retain     bool
}

// DefaultConfig returns the reference session parameters
func DefaultConfig() Config {
	return Config{
		Broker:     DefaultBroker,
		ClientID:   DefaultClientID,
		KeepAlive:  DefaultKeepAlive,
		CleanStart: true,
	}
}

// ConnectionProvider opens a network connection to the broker. The returned
// conn must tolerate concurrent writes.
type ConnectionProvider func(context.Context) (net.Conn, error)

// TCPConnection dials the broker at address over TCP
func TCPConnection(address string) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("failed to dial broker %s: %w", address, err)
		}
		return conn, nil
	}
}

// Handler receives messages for a subscription
type Handler func(topic string, payload []byte)

type subscription struct {
	filter  string
	handler Handler
}

// Transport is an MQTT client session. It is safe for concurrent use.
type Transport struct {
	cfg      Config
	provider ConnectionProvider
	logger   *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	client *paho.Client

	// subsMu is separate so inbound dispatch never waits on a handshake
	subsMu sync.RWMutex
	subs   []subscription

	connected atomic.Bool
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the transport logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithConnectionProvider replaces the TCP dialer
func WithConnectionProvider(provider ConnectionProvider) Option {
	return func(t *Transport) { t.provider = provider }
}

// New creates a disconnected transport
func New(cfg Config, opts ...Option) *Transport {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Broker == "" {
		cfg.Broker = DefaultBroker
	}
	t := &Transport{cfg: cfg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(t)
	}
	if t.provider == nil {
		t.provider = TCPConnection(cfg.Broker)
	}
	return t
}

// ConnectLink opens the network path to the broker, dropping any previous
// session first
func (t *Transport) ConnectLink(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.teardownLocked()
	conn, err := t.provider(ctx)
	if err != nil {
		return err
	}
	t.conn = conn
	t.logger.Debug("broker link open", slog.String("broker", t.cfg.Broker))
	return nil
}

// Handshake establishes the MQTT session over the open link and restores
// the subscriptions
func (t *Transport) Handshake(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNoLink
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID:           t.cfg.ClientID,
		Conn:               t.conn,
		OnClientError:      t.onClientError,
		OnServerDisconnect: t.onServerDisconnect,
	})
	client.AddOnPublishReceived(t.onPublish)

	connack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   t.cfg.ClientID,
		KeepAlive:  uint16(t.cfg.KeepAlive / time.Second),
		CleanStart: t.cfg.CleanStart,
	})
	if err != nil {
		t.teardownLocked()
		if connack != nil {
			return fmt.Errorf("broker refused session (reason %d): %w", connack.ReasonCode, err)
		}
		return fmt.Errorf("mqtt connect failed: %w", err)
	}

	t.client = client
	t.connected.Store(true)
	t.logger.Info("mqtt session established", slog.String("client_id", t.cfg.ClientID))

	for _, s := range t.subscriptions() {
		if err := t.subscribeLocked(ctx, s.filter); err != nil {
			t.logger.Warn("resubscribe failed", slog.String("topic", s.filter), logging.Err(err))
		}
	}
	return nil
}

// IsConnected reports whether the session is up
func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

// Publish sends payload to topic. A write failure marks the session down.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !t.connected.Load() {
		return ErrNotConnected
	}

	_, err := client.Publish(ctx, &paho.Publish{
		QoS:     t.cfg.QoS,
		Retain:  t.cfg.Retain,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		t.connected.Store(false)
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for filter. The subscription is sent now when
// a session is up, and again after every handshake.
func (t *Transport) Subscribe(ctx context.Context, filter string, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.subsMu.Lock()
	t.subs = append(t.subs, subscription{filter: filter, handler: handler})
	t.subsMu.Unlock()

	if t.client == nil || !t.connected.Load() {
		return nil
	}
	return t.subscribeLocked(ctx, filter)
}

func (t *Transport) subscriptions() []subscription {
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()
	return append([]subscription(nil), t.subs...)
}

func (t *Transport) subscribeLocked(ctx context.Context, filter string) error {
	_, err := t.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: t.cfg.QoS}},
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s failed: %w", filter, err)
	}
	return nil
}

// Close ends the session and the link
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	return nil
}

func (t *Transport) teardownLocked() {
	t.connected.Store(false)
	if t.client != nil {
		// Disconnect closes the underlying conn
		_ = t.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		t.client = nil
		t.conn = nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

func (t *Transport) onClientError(err error) {
	t.connected.Store(false)
	t.logger.Warn("mqtt session lost", logging.Err(err))
}

func (t *Transport) onServerDisconnect(d *paho.Disconnect) {
	t.connected.Store(false)
	t.logger.Warn("broker closed the session", slog.Int("reason", int(d.ReasonCode)))
}

func (t *Transport) onPublish(pr paho.PublishReceived) (bool, error) {
	topic := pr.Packet.Topic

	var handlers []Handler
	for _, s := range t.subscriptions() {
		if MatchTopic(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}

	for _, h := range handlers {
		h(topic, pr.Packet.Payload)
	}
	return len(handlers) > 0, nil
}

// MatchTopic reports whether topic matches the subscription filter,
// honouring the + and # wildcards
func MatchTopic(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
