// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Cistern - Rainwater reservoir monitoring and valve control
//
// Simulated sensing and actuation nodes plus the host tooling used to drive
// and observe them.

package main

import (
	"os"

	"github.com/Thermoquad/cistern/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
