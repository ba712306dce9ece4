// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

// Sentinel values for fields the autopilot does not know
const (
	unknownU16     = math.MaxUint16
	unknownCurrent = -1
	unknownPercent = -1
)

// Extractor owns a VehicleState. Apply is called by a single writer (the
// fan-out pump); Snapshot may be called from any goroutine.
type Extractor struct {
	mu    sync.RWMutex
	state VehicleState
	modes ModeTable
	now   func() time.Time
}

// NewExtractor creates an extractor with the given mode table
func NewExtractor(modes ModeTable, now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{modes: modes, now: now}
}

// Snapshot returns a copy of the current state. Updates always replace
// pointer fields, so the copy never aliases values that change later.
func (e *Extractor) Snapshot() VehicleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// HeartbeatReceived reports the heartbeat latch
func (e *Extractor) HeartbeatReceived() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.HeartbeatReceived
}

// ResetLatch clears the heartbeat latch. Other fields keep their last value.
func (e *Extractor) ResetLatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.HeartbeatReceived = false
}

// Apply updates the state from a frame and reports whether the frame kind
// was recognised. Payloads are decoded before the lock is taken.
func (e *Extractor) Apply(f *mavlink.Frame) bool {
	switch f.MsgID {
	case mavlink.MsgHeartbeat:
		hb, err := mavlink.DecodeHeartbeat(f)
		if err != nil {
			return false
		}
		e.applyHeartbeat(f.SysID, hb)

	case mavlink.MsgSysStatus:
		m, err := mavlink.DecodeSysStatus(f)
		if err != nil {
			return false
		}
		e.update(func(s *VehicleState) {
			if m.VoltageBattery != unknownU16 {
				s.BatteryVoltage = ptr(float64(m.VoltageBattery) / 1000.0)
			}
			if m.CurrentBattery != unknownCurrent {
				s.BatteryCurrent = ptr(float64(m.CurrentBattery) / 100.0)
			}
			if m.BatteryRemaining != unknownPercent {
				s.BatteryRemaining = ptr(int(m.BatteryRemaining))
			}
		})

	case mavlink.MsgGPSRawInt:
		m, err := mavlink.DecodeGPSRawInt(f)
		if err != nil {
			return false
		}
		e.update(func(s *VehicleState) {
			s.GPSFixType = ptr(int(m.FixType))
			s.GPSSatellites = ptr(int(m.SatellitesVisible))
		})

	case mavlink.MsgAttitude:
		m, err := mavlink.DecodeAttitude(f)
		if err != nil {
			return false
		}
		e.update(func(s *VehicleState) {
			s.Roll = ptr(toDegrees(m.Roll))
			s.Pitch = ptr(toDegrees(m.Pitch))
			s.Yaw = ptr(toDegrees(m.Yaw))
		})

	case mavlink.MsgGlobalPositionInt:
		m, err := mavlink.DecodeGlobalPositionInt(f)
		if err != nil {
			return false
		}
		e.update(func(s *VehicleState) {
			s.Latitude = ptr(float64(m.Lat) / 1e7)
			s.Longitude = ptr(float64(m.Lon) / 1e7)
			s.Altitude = ptr(float64(m.Alt) / 1000.0)
			s.RelativeAltitude = ptr(float64(m.RelativeAlt) / 1000.0)
			if m.Hdg != unknownU16 {
				s.Heading = ptr(float64(m.Hdg) / 100.0)
			}
		})

	case mavlink.MsgVFRHUD:
		m, err := mavlink.DecodeVFRHUD(f)
		if err != nil {
			return false
		}
		e.update(func(s *VehicleState) {
			s.GroundSpeed = ptr(float64(m.Groundspeed))
			s.AirSpeed = ptr(float64(m.Airspeed))
			s.ClimbRate = ptr(float64(m.Climb))
			s.Heading = ptr(float64(m.Heading))
			s.Throttle = ptr(int(m.Throttle))
		})

	default:
		return false
	}
	return true
}

func (e *Extractor) applyHeartbeat(sysID uint8, hb mavlink.Heartbeat) {
	now := e.now()

	// Ground stations and onboard peripherals announce themselves too; they
	// prove the link is alive but say nothing about the vehicle.
	vehicle := hb.Type != mavlink.TypeGCS && hb.Autopilot != mavlink.AutopilotInvalid
	var (
		armed bool
		mode  string
	)
	if vehicle {
		armed, mode = e.modes.Lookup(hb.Autopilot).Decode(hb)
	}

	e.update(func(s *VehicleState) {
		s.HeartbeatReceived = true
		s.LastHeartbeat = ptr(now)
		if !vehicle {
			return
		}
		s.Armed = armed
		s.Mode = ptr(mode)
		s.CustomMode = ptr(hb.CustomMode)
		s.Autopilot = ptr(mavlink.FormatAutopilot(hb.Autopilot))
		s.VehicleType = ptr(mavlink.FormatVehicleType(hb.Type))
		s.SystemID = ptr(int(sysID))
	})
}

func (e *Extractor) update(apply func(*VehicleState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	apply(&e.state)
}

func toDegrees(rad float32) float64 {
	return float64(rad) * 180.0 / math.Pi
}
