// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/cistern/pkg/framer"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display companion link frames in human-readable format",
	Long: `Continuously decode and display companion link frames as they arrive.

Each frame is printed with a timestamp, its type and its value. Display-sync
frames show the mode and valve position separately. Frames that fail to
decode are reported and skipped.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Cistern - Companion Link Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	f := framer.New(cfg.WCS.FramerCapacity)
	buf := make([]byte, 128)
	overflows := uint64(0)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			f.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if s := f.Stats(); s.Overflows != overflows {
			fmt.Printf("[ERROR] buffer overflow, %d bytes discarded\n", f.Capacity())
			overflows = s.Overflows
		}

		for f.MessageReady() {
			msg, err := f.Extract()
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			fmt.Print(framer.FormatMessage(msg, time.Now()))
		}
	}
}
