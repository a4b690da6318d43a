// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// yncastat - YNCA Receiver Protocol Tool
//
// A CLI tool for monitoring and controlling Yamaha receivers over the YNCA
// serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/yncastat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
