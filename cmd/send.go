// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cistern/pkg/framer"
	"github.com/Thermoquad/cistern/pkg/wcs"
)

var (
	sendWait time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send control unit frames over the companion link",
	Long: `Play the control unit: send one frame to the actuation node and print
the frames it answers with until --wait elapses.

Examples:
  # Open the valve to 40% (honoured in AUTOMATIC only)
  cistern send valve 40 --port /dev/ttyUSB0

  # Force MANUAL with the valve at 25%
  cistern send display MANUAL 25 --url ws://192.168.4.1/ws

  # Announce that the control unit lost its upstream link
  cistern send mode UNCONNECTED

Values are sent as given so out-of-range commands can be tested.`,
}

var sendValveCmd = &cobra.Command{
	Use:   "valve <percent>",
	Short: "Send a valve command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		percent, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid percentage %q: %w", args[0], err)
		}
		return sendFrame(cmd, framer.EncodeValve(percent))
	},
}

var sendDisplayCmd = &cobra.Command{
	Use:   "display <mode> <percent>",
	Short: "Send a display-sync frame carrying mode and valve",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := wcs.ParseMode(args[0])
		if err != nil {
			return err
		}
		percent, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid percentage %q: %w", args[1], err)
		}
		return sendFrame(cmd, framer.EncodeDisplay(mode.String(), percent))
	},
}

var sendModeCmd = &cobra.Command{
	Use:   "mode <mode>",
	Short: "Send a mode announcement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := wcs.ParseMode(args[0])
		if err != nil {
			return fmt.Errorf("%w (use %s)", err, strings.Join(wcs.Modes(), ", "))
		}
		return sendFrame(cmd, framer.EncodeMode(mode.String()))
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.AddCommand(sendValveCmd, sendDisplayCmd, sendModeCmd)
	sendCmd.PersistentFlags().DurationVar(&sendWait, "wait", 2*time.Second, "How long to print replies")
}

func sendFrame(cmd *cobra.Command, frame []byte) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	fmt.Printf("Sent: %s", frame)

	if sendWait <= 0 {
		return nil
	}

	replies := make(chan framer.Message, 16)
	go func() {
		f := framer.New(cfg.WCS.FramerCapacity)
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				f.Write(buf[:n])
				for f.MessageReady() {
					if msg, err := f.Extract(); err == nil {
						replies <- msg
					}
				}
			}
			if err != nil {
				close(replies)
				return
			}
		}
	}()

	timeout := time.After(sendWait)
	for {
		select {
		case msg, ok := <-replies:
			if !ok {
				return nil
			}
			fmt.Print(framer.FormatMessage(msg, time.Now()))
		case <-timeout:
			return nil
		}
	}
}
