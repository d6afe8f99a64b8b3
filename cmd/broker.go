// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/spf13/cobra"
)

var (
	brokerAddr   string
	brokerWSAddr string
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run a local MQTT broker for the sensing node",
	Long: `Run an in-process MQTT v5 broker that accepts every client.

Intended for bench testing: point the sensing node and 'cistern watch' at it
to exercise the full publish path without external infrastructure.`,
	RunE: runBroker,
}

func init() {
	rootCmd.AddCommand(brokerCmd)
	brokerCmd.Flags().StringVar(&brokerAddr, "addr", ":1883", "TCP listen address")
	brokerCmd.Flags().StringVar(&brokerWSAddr, "ws-addr", "", "Optional WebSocket listen address")
}

func runBroker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	server := mochi.New(&mochi.Options{Logger: logger.With(slog.String("component", "broker"))})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return fmt.Errorf("failed to add auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{Type: "tcp", ID: "tcp", Address: brokerAddr})
	if err := server.AddListener(tcp); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", brokerAddr, err)
	}
	if brokerWSAddr != "" {
		ws := listeners.NewWebsocket(listeners.Config{Type: "ws", ID: "ws", Address: brokerWSAddr})
		if err := server.AddListener(ws); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", brokerWSAddr, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(); err != nil {
		return fmt.Errorf("broker failed to start: %w", err)
	}
	logger.Info("broker running", slog.String("addr", brokerAddr))

	<-ctx.Done()
	logger.Info("broker stopping")
	return server.Close()
}
