// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var portsDetailed bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports available for the companion link",
	Long: `List the serial ports on this host.

With --detailed, USB adapters are shown with their vendor and product IDs
to help pick the port the actuation node is attached to.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVarP(&portsDetailed, "detailed", "d", false, "Show USB details")
}

func runPorts(cmd *cobra.Command, args []string) error {
	if !portsDetailed {
		ports, err := serial.GetPortsList()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, port := range ports {
			fmt.Println(port)
		}
		return nil
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(details) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, port := range details {
		if !port.IsUSB {
			fmt.Printf("%s\n", port.Name)
			continue
		}
		fmt.Printf("%s  USB %s:%s", port.Name, port.VID, port.PID)
		if port.Product != "" {
			fmt.Printf("  %s", port.Product)
		}
		if port.SerialNumber != "" {
			fmt.Printf("  serial=%s", port.SerialNumber)
		}
		fmt.Println()
	}
	return nil
}
