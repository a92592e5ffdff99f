// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// agxmon - AGX tegrastats monitor
//
// Connects to the Socket.IO telemetry feed of an NVIDIA AGX module and
// keeps the latest CPU, memory, temperature, power and GPU readings.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/agxmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
