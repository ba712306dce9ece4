// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Skyrelay - MAVLink Telemetry Router
//
// Reads MAVLink from a serial flight controller (or a websocket bridge),
// forwards every frame to configured UDP/TCP ground stations and exposes
// vehicle telemetry and router control over HTTP.

package main

import (
	"os"

	"github.com/Thermoquad/skyrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
