// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry projects decoded MAVLink frames onto a single live
// vehicle state record.
package telemetry

import "time"

// VehicleState is the latest known value of each telemetry field. Pointer
// fields are nil until a frame first reports them and serialize as null.
type VehicleState struct {
	Altitude         *float64 `json:"altitude"`          // m MSL
	RelativeAltitude *float64 `json:"relative_altitude"` // m above home
	GroundSpeed      *float64 `json:"groundspeed"`       // m/s
	AirSpeed         *float64 `json:"airspeed"`          // m/s
	ClimbRate        *float64 `json:"climb_rate"`        // m/s
	Heading          *float64 `json:"heading"`           // deg
	Latitude         *float64 `json:"latitude"`          // deg
	Longitude        *float64 `json:"longitude"`         // deg
	Throttle         *int     `json:"throttle"`          // %
	Roll             *float64 `json:"roll"`              // deg
	Pitch            *float64 `json:"pitch"`             // deg
	Yaw              *float64 `json:"yaw"`               // deg

	BatteryVoltage   *float64 `json:"battery_voltage"`   // V
	BatteryCurrent   *float64 `json:"battery_current"`   // A
	BatteryRemaining *int     `json:"battery_remaining"` // %

	GPSFixType    *int `json:"gps_fix_type"`
	GPSSatellites *int `json:"gps_satellites"`

	Armed       bool    `json:"armed"`
	Mode        *string `json:"mode"`
	CustomMode  *uint32 `json:"custom_mode"`
	Autopilot   *string `json:"autopilot"`
	VehicleType *string `json:"vehicle_type"`
	SystemID    *int    `json:"system_id"`

	HeartbeatReceived bool       `json:"heartbeat_received"`
	LastHeartbeat     *time.Time `json:"last_heartbeat"`
}

func ptr[T any](v T) *T {
	return &v
}
