// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the YAML configuration shared by the cistern tools.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/framer"
	"github.com/Thermoquad/cistern/pkg/kernel"
	"github.com/Thermoquad/cistern/pkg/mqttlink"
	"github.com/Thermoquad/cistern/pkg/tms"
	"github.com/Thermoquad/cistern/pkg/wcs"
)

// DefaultFile is the configuration path used when none is given
const DefaultFile = "cistern.yaml"

// Config represents the application configuration.
type Config struct {
	TMS     TMSConfig     `yaml:"tms"`
	WCS     WCSConfig     `yaml:"wcs"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Link    LinkConfig    `yaml:"link"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TMSConfig contains the sensing node parameters.
type TMSConfig struct {
	BasePeriod       time.Duration `yaml:"base_period"`
	LinkPeriod       time.Duration `yaml:"link_period"`
	MonitorPeriod    time.Duration `yaml:"monitor_period"`
	IndicatorPeriod  time.Duration `yaml:"indicator_period"`
	BlinkPeriod      time.Duration `yaml:"blink_period"`
	ReconnectFloor   time.Duration `yaml:"reconnect_floor"`
	ReconnectCeiling time.Duration `yaml:"reconnect_ceiling"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	PublishTimeout   time.Duration `yaml:"publish_timeout"`
	EchoTimeout      time.Duration `yaml:"echo_timeout"` // Sonar wait before reporting no object
	TankHeight       float32       `yaml:"tank_height"`  // cm
	Topic            string        `yaml:"topic"`
	Encoding         string        `yaml:"encoding"` // json or cbor
}

// WCSConfig contains the actuation node parameters.
type WCSConfig struct {
	BasePeriod     time.Duration `yaml:"base_period"`
	TaskPeriod     time.Duration `yaml:"task_period"`
	ManualInterval time.Duration `yaml:"manual_interval"`
	Hysteresis     int           `yaml:"hysteresis"` // percentage points
	MinAngle       int           `yaml:"min_angle"`
	MaxAngle       int           `yaml:"max_angle"`
	FramerCapacity int           `yaml:"framer_capacity"`
}

// MQTTConfig contains the broker session parameters.
type MQTTConfig struct {
	Broker     string        `yaml:"broker"`
	ClientID   string        `yaml:"client_id"`
	KeepAlive  time.Duration `yaml:"keep_alive"`
	CleanStart bool          `yaml:"clean_start"`
	QoS        byte          `yaml:"qos"`
	Retain     bool          `yaml:"retain"`
}

// LinkConfig contains the companion link configuration.
type LinkConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	URL  string `yaml:"url"` // WebSocket bridge, takes precedence over port
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	t := tms.DefaultConfig()
	w := wcs.DefaultConfig()
	m := mqttlink.DefaultConfig()

	return &Config{
		TMS: TMSConfig{
			BasePeriod:       t.BasePeriod,
			LinkPeriod:       t.LinkPeriod,
			MonitorPeriod:    t.MonitorPeriod,
			IndicatorPeriod:  t.IndicatorPeriod,
			BlinkPeriod:      t.BlinkPeriod,
			ReconnectFloor:   t.ReconnectFloor,
			ReconnectCeiling: t.ReconnectCeiling,
			AttemptTimeout:   t.AttemptTimeout,
			PublishTimeout:   t.PublishTimeout,
			EchoTimeout:      device.DefaultEchoTimeout,
			TankHeight:       t.TankHeight,
			Topic:            t.Topic,
			Encoding:         string(t.Encoding),
		},
		WCS: WCSConfig{
			BasePeriod:     w.BasePeriod,
			TaskPeriod:     w.TaskPeriod,
			ManualInterval: w.ManualInterval,
			Hysteresis:     w.Hysteresis,
			MinAngle:       w.MinAngle,
			MaxAngle:       w.MaxAngle,
			FramerCapacity: w.FramerCapacity,
		},
		MQTT: MQTTConfig{
			Broker:     m.Broker,
			ClientID:   m.ClientID,
			KeepAlive:  m.KeepAlive,
			CleanStart: m.CleanStart,
		},
		Link: LinkConfig{
			Port: "/dev/ttyUSB0",
			Baud: 9600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills fields a partial file left at zero.
func (c *Config) ensureDefaults() {
	def := Default()

	setDuration(&c.TMS.BasePeriod, def.TMS.BasePeriod)
	setDuration(&c.TMS.LinkPeriod, def.TMS.LinkPeriod)
	setDuration(&c.TMS.MonitorPeriod, def.TMS.MonitorPeriod)
	setDuration(&c.TMS.IndicatorPeriod, def.TMS.IndicatorPeriod)
	setDuration(&c.TMS.BlinkPeriod, def.TMS.BlinkPeriod)
	setDuration(&c.TMS.ReconnectFloor, def.TMS.ReconnectFloor)
	setDuration(&c.TMS.ReconnectCeiling, def.TMS.ReconnectCeiling)
	setDuration(&c.TMS.AttemptTimeout, def.TMS.AttemptTimeout)
	setDuration(&c.TMS.PublishTimeout, def.TMS.PublishTimeout)
	setDuration(&c.TMS.EchoTimeout, def.TMS.EchoTimeout)
	if c.TMS.TankHeight == 0 {
		c.TMS.TankHeight = def.TMS.TankHeight
	}
	if c.TMS.Topic == "" {
		c.TMS.Topic = def.TMS.Topic
	}
	if c.TMS.Encoding == "" {
		c.TMS.Encoding = def.TMS.Encoding
	}

	setDuration(&c.WCS.BasePeriod, def.WCS.BasePeriod)
	setDuration(&c.WCS.TaskPeriod, def.WCS.TaskPeriod)
	setDuration(&c.WCS.ManualInterval, def.WCS.ManualInterval)
	if c.WCS.MinAngle == 0 && c.WCS.MaxAngle == 0 {
		c.WCS.MinAngle = def.WCS.MinAngle
		c.WCS.MaxAngle = def.WCS.MaxAngle
	}
	if c.WCS.FramerCapacity == 0 {
		c.WCS.FramerCapacity = def.WCS.FramerCapacity
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	setDuration(&c.MQTT.KeepAlive, def.MQTT.KeepAlive)

	if c.Link.Baud == 0 {
		c.Link.Baud = def.Link.Baud
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// TMSNode converts the sensing node section.
func (c *Config) TMSNode() tms.Config {
	return tms.Config{
		BasePeriod:       c.TMS.BasePeriod,
		MaxTasks:         kernel.MaxTasks,
		LinkPeriod:       c.TMS.LinkPeriod,
		MonitorPeriod:    c.TMS.MonitorPeriod,
		IndicatorPeriod:  c.TMS.IndicatorPeriod,
		BlinkPeriod:      c.TMS.BlinkPeriod,
		ReconnectFloor:   c.TMS.ReconnectFloor,
		ReconnectCeiling: c.TMS.ReconnectCeiling,
		AttemptTimeout:   c.TMS.AttemptTimeout,
		PublishTimeout:   c.TMS.PublishTimeout,
		TankHeight:       c.TMS.TankHeight,
		Topic:            c.TMS.Topic,
		Encoding:         tms.Encoding(c.TMS.Encoding),
	}
}

// WCSNode converts the actuation node section.
func (c *Config) WCSNode() wcs.Config {
	capacity := c.WCS.FramerCapacity
	if capacity <= 0 {
		capacity = framer.DefaultCapacity
	}
	return wcs.Config{
		BasePeriod:     c.WCS.BasePeriod,
		MaxTasks:       kernel.MaxTasks,
		TaskPeriod:     c.WCS.TaskPeriod,
		ManualInterval: c.WCS.ManualInterval,
		Hysteresis:     c.WCS.Hysteresis,
		MinAngle:       c.WCS.MinAngle,
		MaxAngle:       c.WCS.MaxAngle,
		FramerCapacity: capacity,
	}
}

// Session converts the MQTT section.
func (c *Config) Session() mqttlink.Config {
	return mqttlink.Config{
		Broker:     c.MQTT.Broker,
		ClientID:   c.MQTT.ClientID,
		KeepAlive:  c.MQTT.KeepAlive,
		CleanStart: c.MQTT.CleanStart,
		QoS:        c.MQTT.QoS,
		Retain:     c.MQTT.Retain,
	}
}
