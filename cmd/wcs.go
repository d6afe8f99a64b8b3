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
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/wcs"
)

var (
	wcsPot      int
	wcsHeadless bool
)

var wcsCmd = &cobra.Command{
	Use:   "wcs",
	Short: "Run the simulated actuation node",
	Long: `Run the water control node over the companion link.

In AUTOMATIC the valve follows the control unit's commands. The button
switches to MANUAL, where the potentiometer drives the valve and every
change is reported back. Display-sync frames from the control unit force
the mode, and UNCONNECTED closes the valve until the control unit recovers.

Interactive controls:
  b/space   press the mode button
  left/-    turn the potentiometer down
  right/+   turn the potentiometer up
  q         quit

Supports both serial and WebSocket connections.`,
	RunE: runWCS,
}

func init() {
	rootCmd.AddCommand(wcsCmd)
	wcsCmd.Flags().IntVar(&wcsPot, "pot", 0, "Initial potentiometer reading (0-1023)")
	wcsCmd.Flags().BoolVar(&wcsHeadless, "headless", false, "Disable the TUI")
}

func runWCS(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	useTUI := !wcsHeadless && interactive()
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

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("companion link open", slog.String("connection", connInfo))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nodeCfg := cfg.WCSNode()
	servo := device.NewServo(nodeCfg.MinAngle, nodeCfg.MaxAngle)
	lcd := &device.LCD{}
	pot := &device.Potentiometer{}
	pot.Set(wcsPot)
	button := device.NewSimulatedButton(nil, device.DefaultPressHold)

	node, err := wcs.NewNode(nodeCfg, wcs.Devices{Actuator: servo, Display: lcd, Pot: pot, Button: button}, conn,
		wcs.WithLogger(logger),
		wcs.WithMetrics(startMetrics(ctx, cfg.Metrics.Addr, logger)),
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

	m := newWCSModel(node, servo, lcd, pot, button, connInfo, events)
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
