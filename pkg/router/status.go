// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/telemetry"
)

// State is the router lifecycle state
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Failed
)

var stateNames = [...]string{
	Stopped:  "stopped",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Failed:   "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText renders the state name in JSON and CBOR
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown router state %q", text)
}

// Stats are the router counters for the current session
type Stats struct {
	Received      uint64     `json:"received"`
	Forwarded     uint64     `json:"forwarded"`
	Errors        uint64     `json:"errors"`
	FrameErrors   uint64     `json:"frame_errors"`
	Uplinked      uint64     `json:"uplinked"`
	Dropped       uint64     `json:"dropped"`
	LastHeartbeat *time.Time `json:"last_heartbeat"`
}

// Status is a point-in-time view of the router
type Status struct {
	State             State                  `json:"state"`
	Running           bool                   `json:"running"`
	HeartbeatReceived bool                   `json:"heartbeat_received"`
	Error             string                 `json:"error,omitempty"`
	Device            string                 `json:"serial_port,omitempty"`
	BaudRate          int                    `json:"baud_rate,omitempty"`
	SessionID         string                 `json:"session_id,omitempty"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	Stats             Stats                  `json:"stats"`
	Destinations      []destination.Info     `json:"destinations"`
	Telemetry         telemetry.VehicleState `json:"telemetry"`
}

// counters are written by the pumps and read by Status
type counters struct {
	received      atomic.Uint64
	forwarded     atomic.Uint64
	errors        atomic.Uint64
	frameErrors   atomic.Uint64
	uplinked      atomic.Uint64
	dropped       atomic.Uint64
	lastHeartbeat atomic.Pointer[time.Time]
}

func (c *counters) reset() {
	c.received.Store(0)
	c.forwarded.Store(0)
	c.errors.Store(0)
	c.frameErrors.Store(0)
	c.uplinked.Store(0)
	c.dropped.Store(0)
	c.lastHeartbeat.Store(nil)
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:      c.received.Load(),
		Forwarded:     c.forwarded.Load(),
		Errors:        c.errors.Load(),
		FrameErrors:   c.frameErrors.Load(),
		Uplinked:      c.uplinked.Load(),
		Dropped:       c.dropped.Load(),
		LastHeartbeat: c.lastHeartbeat.Load(),
	}
}
