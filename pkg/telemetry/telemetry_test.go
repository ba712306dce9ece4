// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/skyrelay/pkg/mavlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	return NewExtractor(DefaultModeTable(), func() time.Time { return epoch })
}

func frame(msgID uint32, payload []byte) *mavlink.Frame {
	return mavlink.NewFrame(2, 0, 1, 1, msgID, payload)
}

func heartbeat(autopilot, vehicleType uint8, baseMode uint8, customMode uint32) *mavlink.Frame {
	hb := mavlink.Heartbeat{
		CustomMode: customMode,
		Type:       vehicleType,
		Autopilot:  autopilot,
		BaseMode:   baseMode,
	}
	return frame(mavlink.MsgHeartbeat, hb.Marshal())
}

// ============================================================
// Extractor Tests
// ============================================================

func TestApply_SparseUpdate(t *testing.T) {
	e := newTestExtractor()

	gpi := mavlink.GlobalPositionInt{Lat: 473977418, Lon: 85455939, Alt: 488500, RelativeAlt: 25000, Hdg: 9000}
	require.True(t, e.Apply(frame(mavlink.MsgGlobalPositionInt, gpi.Marshal())))

	before := e.Snapshot()
	require.NotNil(t, before.Latitude)
	assert.InDelta(t, 47.3977418, *before.Latitude, 1e-9)
	assert.InDelta(t, 8.5455939, *before.Longitude, 1e-9)
	assert.InDelta(t, 488.5, *before.Altitude, 1e-9)
	assert.InDelta(t, 25.0, *before.RelativeAltitude, 1e-9)
	assert.InDelta(t, 90.0, *before.Heading, 1e-9)

	// A battery report leaves position untouched
	sys := mavlink.SysStatus{VoltageBattery: 12600, CurrentBattery: 1550, BatteryRemaining: 76}
	require.True(t, e.Apply(frame(mavlink.MsgSysStatus, sys.Marshal())))

	after := e.Snapshot()
	assert.Equal(t, *before.Latitude, *after.Latitude)
	assert.Equal(t, *before.Longitude, *after.Longitude)
	assert.Equal(t, *before.Altitude, *after.Altitude)
	assert.InDelta(t, 12.6, *after.BatteryVoltage, 1e-9)
	assert.InDelta(t, 15.5, *after.BatteryCurrent, 1e-9)
	assert.Equal(t, 76, *after.BatteryRemaining)
	assert.Nil(t, after.GroundSpeed, "fields never reported stay unknown")
}

func TestApply_UnknownSentinelsKeepLastValue(t *testing.T) {
	e := newTestExtractor()
	e.Apply(frame(mavlink.MsgSysStatus, mavlink.SysStatus{VoltageBattery: 11100, CurrentBattery: 200, BatteryRemaining: 50}.Marshal()))
	e.Apply(frame(mavlink.MsgSysStatus, mavlink.SysStatus{VoltageBattery: math.MaxUint16, CurrentBattery: -1, BatteryRemaining: -1}.Marshal()))

	s := e.Snapshot()
	assert.InDelta(t, 11.1, *s.BatteryVoltage, 1e-9)
	assert.InDelta(t, 2.0, *s.BatteryCurrent, 1e-9)
	assert.Equal(t, 50, *s.BatteryRemaining)
}

func TestApply_VFRHUDAndGPS(t *testing.T) {
	e := newTestExtractor()
	hud := mavlink.VFRHUD{Airspeed: 15, Groundspeed: 13.5, Alt: 100, Climb: -0.5, Heading: 270, Throttle: 42}
	gps := mavlink.GPSRawInt{FixType: 3, SatellitesVisible: 14}

	require.True(t, e.Apply(frame(mavlink.MsgVFRHUD, hud.Marshal())))
	require.True(t, e.Apply(frame(mavlink.MsgGPSRawInt, gps.Marshal())))

	s := e.Snapshot()
	assert.Equal(t, 15.0, *s.AirSpeed)
	assert.Equal(t, 13.5, *s.GroundSpeed)
	assert.Equal(t, -0.5, *s.ClimbRate)
	assert.Equal(t, 270.0, *s.Heading)
	assert.Equal(t, 42, *s.Throttle)
	assert.Equal(t, 3, *s.GPSFixType)
	assert.Equal(t, 14, *s.GPSSatellites)
}

func TestApply_Attitude(t *testing.T) {
	e := newTestExtractor()
	att := mavlink.Attitude{Roll: math.Pi / 2, Pitch: -math.Pi / 4, Yaw: math.Pi}
	require.True(t, e.Apply(frame(mavlink.MsgAttitude, att.Marshal())))

	s := e.Snapshot()
	assert.InDelta(t, 90.0, *s.Roll, 1e-4)
	assert.InDelta(t, -45.0, *s.Pitch, 1e-4)
	assert.InDelta(t, 180.0, *s.Yaw, 1e-4)
}

func TestApply_IgnoresOtherKinds(t *testing.T) {
	e := newTestExtractor()
	assert.False(t, e.Apply(frame(mavlink.MsgCommandAck, []byte{1, 0, 0})))
	assert.Equal(t, VehicleState{}, e.Snapshot())
}

func TestSnapshot_DoesNotAlias(t *testing.T) {
	e := newTestExtractor()
	e.Apply(frame(mavlink.MsgGPSRawInt, mavlink.GPSRawInt{SatellitesVisible: 5}.Marshal()))
	snap := e.Snapshot()

	e.Apply(frame(mavlink.MsgGPSRawInt, mavlink.GPSRawInt{SatellitesVisible: 9}.Marshal()))
	assert.Equal(t, 5, *snap.GPSSatellites)
	assert.Equal(t, 9, *e.Snapshot().GPSSatellites)
}

// ============================================================
// Heartbeat Latch Tests
// ============================================================

func TestHeartbeat_Latch(t *testing.T) {
	e := newTestExtractor()
	assert.False(t, e.HeartbeatReceived())

	e.Apply(heartbeat(mavlink.AutopilotArduPilotMega, mavlink.TypeQuadrotor, mavlink.ModeFlagSafetyArmed, 5))
	assert.True(t, e.HeartbeatReceived())

	// Non-heartbeat traffic never clears the latch
	e.Apply(frame(mavlink.MsgVFRHUD, mavlink.VFRHUD{}.Marshal()))
	assert.True(t, e.HeartbeatReceived())

	e.ResetLatch()
	s := e.Snapshot()
	assert.False(t, s.HeartbeatReceived)
	assert.Equal(t, "LOITER", *s.Mode, "reset clears only the latch")
}

func TestHeartbeat_FieldsAndSource(t *testing.T) {
	e := newTestExtractor()
	f := heartbeat(mavlink.AutopilotArduPilotMega, mavlink.TypeQuadrotor, mavlink.ModeFlagSafetyArmed, 4)
	f.SysID = 7
	e.Apply(f)

	s := e.Snapshot()
	assert.True(t, s.Armed)
	assert.Equal(t, "GUIDED", *s.Mode)
	assert.Equal(t, uint32(4), *s.CustomMode)
	assert.Equal(t, "ARDUPILOTMEGA", *s.Autopilot)
	assert.Equal(t, "QUADROTOR", *s.VehicleType)
	assert.Equal(t, 7, *s.SystemID)
	assert.True(t, s.LastHeartbeat.Equal(epoch))
}

func TestHeartbeat_GCSDoesNotChangeVehicleState(t *testing.T) {
	e := newTestExtractor()
	e.Apply(heartbeat(mavlink.AutopilotArduPilotMega, mavlink.TypeQuadrotor, mavlink.ModeFlagSafetyArmed, 3))

	e.Apply(heartbeat(mavlink.AutopilotInvalid, mavlink.TypeGCS, 0, 0))
	e.Apply(heartbeat(mavlink.AutopilotInvalid, mavlink.TypeOctorotor, 0, 0))

	s := e.Snapshot()
	assert.True(t, s.Armed)
	assert.Equal(t, "AUTO", *s.Mode)
}

func TestHeartbeat_GCSOnlySetsLatch(t *testing.T) {
	e := newTestExtractor()
	e.Apply(heartbeat(mavlink.AutopilotInvalid, mavlink.TypeGCS, mavlink.ModeFlagSafetyArmed, 0))

	s := e.Snapshot()
	assert.True(t, s.HeartbeatReceived)
	assert.False(t, s.Armed)
	assert.Nil(t, s.Mode)
}

// ============================================================
// Mode Table Tests
// ============================================================

func TestModeTable(t *testing.T) {
	tests := []struct {
		name       string
		autopilot  uint8
		vehicle    uint8
		baseMode   uint8
		customMode uint32
		wantArmed  bool
		wantMode   string
	}{
		{"copter stabilize", mavlink.AutopilotArduPilotMega, mavlink.TypeQuadrotor, 0, 0, false, "STABILIZE"},
		{"copter rtl armed", mavlink.AutopilotArduPilotMega, mavlink.TypeHexarotor, mavlink.ModeFlagSafetyArmed, 6, true, "RTL"},
		{"copter smart rtl", mavlink.AutopilotArduPilotMega, mavlink.TypeQuadrotor, 0, 21, false, "SMART_RTL"},
		{"plane fbwa", mavlink.AutopilotArduPilotMega, mavlink.TypeFixedWing, 0, 5, false, "FBWA"},
		{"vtol qhover", mavlink.AutopilotArduPilotMega, mavlink.TypeVTOLTiltrotor, 0, 18, false, "QHOVER"},
		{"rover hold", mavlink.AutopilotArduPilotMega, mavlink.TypeGroundRover, 0, 4, false, "HOLD"},
		{"boat auto", mavlink.AutopilotArduPilotMega, mavlink.TypeSurfaceBoat, 0, 10, false, "AUTO"},
		{"sub surface", mavlink.AutopilotArduPilotMega, mavlink.TypeSubmarine, 0, 9, false, "SURFACE"},
		{"ardupilot unknown number", mavlink.AutopilotArduPilotMega, mavlink.TypeQuadrotor, 0, 99, false, "CUSTOM(99)"},
		{"px4 posctl", mavlink.AutopilotPX4, mavlink.TypeQuadrotor, mavlink.ModeFlagSafetyArmed, 3 << 16, true, "POSCTL"},
		{"px4 auto mission", mavlink.AutopilotPX4, mavlink.TypeQuadrotor, 0, 4<<16 | 4<<24, false, "AUTO.MISSION"},
		{"px4 auto rtl", mavlink.AutopilotPX4, mavlink.TypeFixedWing, 0, 4<<16 | 5<<24, false, "AUTO.RTL"},
		{"px4 unknown main", mavlink.AutopilotPX4, mavlink.TypeQuadrotor, 0, 42 << 16, false, "CUSTOM(2752512)"},
		{"generic armed", mavlink.AutopilotGeneric, mavlink.TypeQuadrotor, mavlink.ModeFlagSafetyArmed, 12, true, "CUSTOM(12)"},
		{"unlisted autopilot", mavlink.AutopilotOpenPilot, mavlink.TypeQuadrotor, 0, 1, false, "CUSTOM(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor()
			e.Apply(heartbeat(tt.autopilot, tt.vehicle, tt.baseMode, tt.customMode))
			s := e.Snapshot()
			assert.Equal(t, tt.wantArmed, s.Armed)
			require.NotNil(t, s.Mode)
			assert.Equal(t, tt.wantMode, *s.Mode)
		})
	}
}

func TestModeTable_Pluggable(t *testing.T) {
	custom := DefaultModeTable().With(mavlink.AutopilotOpenPilot, ModeDecoderFunc(func(hb mavlink.Heartbeat) (bool, string) {
		return hb.SystemStatus == 4, "OPENPILOT"
	}))
	e := NewExtractor(custom, nil)

	hb := mavlink.Heartbeat{Autopilot: mavlink.AutopilotOpenPilot, Type: mavlink.TypeQuadrotor, SystemStatus: 4}
	e.Apply(frame(mavlink.MsgHeartbeat, hb.Marshal()))

	s := e.Snapshot()
	assert.True(t, s.Armed)
	assert.Equal(t, "OPENPILOT", *s.Mode)
	_, isGeneric := DefaultModeTable().Lookup(mavlink.AutopilotOpenPilot).(GenericModes)
	assert.True(t, isGeneric, "With must not mutate the source table")
}

// ============================================================
// Serialization Tests
// ============================================================

func TestVehicleState_JSONNulls(t *testing.T) {
	e := newTestExtractor()
	e.Apply(frame(mavlink.MsgGPSRawInt, mavlink.GPSRawInt{FixType: 3, SatellitesVisible: 8}.Marshal()))

	data, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "altitude")
	assert.Nil(t, decoded["altitude"])
	assert.Equal(t, float64(8), decoded["gps_satellites"])
	assert.Equal(t, false, decoded["armed"])
}
