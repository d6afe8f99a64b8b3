// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/logging"
	"github.com/Thermoquad/cistern/pkg/metrics"
	"github.com/Thermoquad/cistern/pkg/mqttlink"
	"github.com/Thermoquad/cistern/pkg/tms"
)

var (
	tmsDistance float32
	tmsBroker   string
	tmsHeadless bool
)

var tmsCmd = &cobra.Command{
	Use:   "tms",
	Short: "Run the simulated sensing node",
	Long: `Run the tank monitoring node against a simulated ultrasonic sensor.

The node connects to the MQTT broker with exponential backoff, then samples
the level once per monitor period and publishes it to the level topic. The
green and red indicators follow the connection state.

Interactive controls:
  up/k      raise the water (shorter echo)
  down/j    lower the water
  n         toggle "no object" (no echo within the timeout)
  q         quit

Without a terminal, or with --headless, the node logs to stderr instead.`,
	RunE: runTMS,
}

func init() {
	rootCmd.AddCommand(tmsCmd)
	tmsCmd.Flags().Float32Var(&tmsDistance, "distance", 40, "Initial distance from sensor to water surface (cm)")
	tmsCmd.Flags().StringVar(&tmsBroker, "broker", "", "Broker address (host:port), overrides mqtt.broker")
	tmsCmd.Flags().BoolVar(&tmsHeadless, "headless", false, "Disable the TUI")
}

func runTMS(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if tmsBroker != "" {
		cfg.MQTT.Broker = tmsBroker
	}

	useTUI := !tmsHeadless && interactive()
	var events *eventWriter
	var logOut io.Writer = os.Stderr
	if useTUI {
		events = newEventWriter()
		logOut = events
	}
	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sonar := device.NewSimulatedSonar(tmsDistance, cfg.TMS.EchoTimeout)
	green, red := &device.LED{}, &device.LED{}

	transport := mqttlink.New(cfg.Session(), mqttlink.WithLogger(logger.With(slog.String("component", "mqtt"))))
	defer transport.Close()

	node, err := tms.NewNode(cfg.TMSNode(), tms.Devices{Sensor: sonar, Green: green, Red: red}, transport,
		tms.WithLogger(logger),
		tms.WithMetrics(startMetrics(ctx, cfg.Metrics.Addr, logger)),
	)
	if err != nil {
		return err
	}

	if !useTUI {
		return node.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	nodeErr := make(chan error, 1)
	go func() { nodeErr <- node.Run(ctx) }()

	m := newTMSModel(node, sonar, green, red, transport, cfg.MQTT.Broker, events)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	cancel()

	if runErr := <-nodeErr; runErr != nil {
		return runErr
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// startMetrics serves a fresh registry on addr. It returns nil when addr is
// empty, which disables collection.
func startMetrics(ctx context.Context, addr string, logger *slog.Logger) *metrics.Metrics {
	if addr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	go func() {
		if err := metrics.Serve(ctx, addr, reg, logger); err != nil {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	return m
}
