// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cistern/pkg/mqttlink"
	"github.com/Thermoquad/cistern/pkg/tms"
)

var (
	watchBroker string
	watchTopic  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print level readings published by the sensing node",
	Long: `Subscribe to the level topic and print every reading as it arrives.

The payload encoding (json or cbor) follows the tms.encoding setting.
The watcher uses a random client ID so it never displaces the node session.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchBroker, "broker", "", "Broker address (host:port), overrides mqtt.broker")
	watchCmd.Flags().StringVar(&watchTopic, "topic", "", "Topic filter, overrides tms.topic")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	session := cfg.Session()
	session.ClientID = "cistern-watch-" + uuid.NewString()[:8]
	session.CleanStart = true
	if watchBroker != "" {
		session.Broker = watchBroker
	}
	topic := cfg.TMS.Topic
	if watchTopic != "" {
		topic = watchTopic
	}
	encoding := tms.Encoding(cfg.TMS.Encoding)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := mqttlink.New(session, mqttlink.WithLogger(logger))
	defer transport.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := transport.ConnectLink(connectCtx); err != nil {
		return err
	}
	if err := transport.Handshake(connectCtx); err != nil {
		return err
	}

	err = transport.Subscribe(ctx, topic, func(topic string, payload []byte) {
		p, err := tms.DecodePayload(payload, encoding)
		if err != nil {
			fmt.Printf("[%s] %s: undecodable payload (%v)\n", time.Now().Format("15:04:05.000"), topic, err)
			return
		}
		fmt.Print(formatReading(topic, p))
	})
	if err != nil {
		return err
	}

	fmt.Printf("Cistern - Level Watch\n")
	fmt.Printf("Broker: %s  Topic: %s\n", session.Broker, topic)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	<-ctx.Done()
	return nil
}

func formatReading(topic string, p tms.Payload) string {
	at := time.UnixMilli(int64(p.Timestamp * 1000)).Format("15:04:05.000")
	if p.Level == tms.InvalidLevel {
		return fmt.Sprintf("[%s] %s  no echo  state=%s\n", at, topic, p.State)
	}
	return fmt.Sprintf("[%s] %s  level=%.1fcm  distance=%.1fcm  state=%s\n", at, topic, p.Level, p.Distance, p.State)
}
