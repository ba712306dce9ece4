// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload layouts follow the MAVLink wire order (fields sorted by size,
// little-endian). Only the fields the router projects are decoded.

var le = binary.LittleEndian

// Heartbeat is the HEARTBEAT (#0) payload
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

// SysStatus is the subset of SYS_STATUS (#1) the router uses
type SysStatus struct {
	Load             uint16 // d%
	VoltageBattery   uint16 // mV, UINT16_MAX when unknown
	CurrentBattery   int16  // cA, -1 when unknown
	DropRateComm     uint16 // c%
	BatteryRemaining int8   // %, -1 when unknown
}

// GPSRawInt is the subset of GPS_RAW_INT (#24) the router uses
type GPSRawInt struct {
	TimeUsec          uint64
	Lat               int32 // degE7
	Lon               int32 // degE7
	Alt               int32 // mm MSL
	Eph               uint16
	Epv               uint16
	Vel               uint16 // cm/s
	Cog               uint16 // cdeg
	FixType           uint8
	SatellitesVisible uint8
}

// Attitude is the ATTITUDE (#30) payload
type Attitude struct {
	TimeBootMs uint32
	Roll       float32 // rad
	Pitch      float32 // rad
	Yaw        float32 // rad
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

// GlobalPositionInt is the GLOBAL_POSITION_INT (#33) payload
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32 // degE7
	Lon         int32 // degE7
	Alt         int32 // mm MSL
	RelativeAlt int32 // mm
	Vx          int16 // cm/s
	Vy          int16
	Vz          int16
	Hdg         uint16 // cdeg, UINT16_MAX when unknown
}

// VFRHUD is the VFR_HUD (#74) payload
type VFRHUD struct {
	Airspeed    float32 // m/s
	Groundspeed float32 // m/s
	Alt         float32 // m MSL
	Climb       float32 // m/s
	Heading     int16   // deg
	Throttle    uint16  // %
}

func checkMsgID(f *Frame, want uint32) error {
	if f.MsgID != want {
		return fmt.Errorf("frame carries %s (%d), not %s", f.Name(), f.MsgID, MessageName(want))
	}
	return nil
}

// DecodeHeartbeat decodes a HEARTBEAT frame
func DecodeHeartbeat(f *Frame) (Heartbeat, error) {
	if err := checkMsgID(f, MsgHeartbeat); err != nil {
		return Heartbeat{}, err
	}
	p := f.PayloadN(9)
	return Heartbeat{
		CustomMode:     le.Uint32(p[0:]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}, nil
}

// Marshal returns the wire payload
func (m Heartbeat) Marshal() []byte {
	p := make([]byte, 9)
	le.PutUint32(p[0:], m.CustomMode)
	p[4] = m.Type
	p[5] = m.Autopilot
	p[6] = m.BaseMode
	p[7] = m.SystemStatus
	p[8] = m.MavlinkVersion
	return p
}

// Armed reports the generic MAV_MODE_FLAG_SAFETY_ARMED bit
func (m Heartbeat) Armed() bool {
	return m.BaseMode&ModeFlagSafetyArmed != 0
}

// DecodeSysStatus decodes a SYS_STATUS frame
func DecodeSysStatus(f *Frame) (SysStatus, error) {
	if err := checkMsgID(f, MsgSysStatus); err != nil {
		return SysStatus{}, err
	}
	p := f.PayloadN(31)
	return SysStatus{
		Load:             le.Uint16(p[12:]),
		VoltageBattery:   le.Uint16(p[14:]),
		CurrentBattery:   int16(le.Uint16(p[16:])),
		DropRateComm:     le.Uint16(p[18:]),
		BatteryRemaining: int8(p[30]),
	}, nil
}

// Marshal returns the wire payload. Sensor bitmasks and error counters are zero.
func (m SysStatus) Marshal() []byte {
	p := make([]byte, 31)
	le.PutUint16(p[12:], m.Load)
	le.PutUint16(p[14:], m.VoltageBattery)
	le.PutUint16(p[16:], uint16(m.CurrentBattery))
	le.PutUint16(p[18:], m.DropRateComm)
	p[30] = byte(m.BatteryRemaining)
	return p
}

// DecodeGPSRawInt decodes a GPS_RAW_INT frame
func DecodeGPSRawInt(f *Frame) (GPSRawInt, error) {
	if err := checkMsgID(f, MsgGPSRawInt); err != nil {
		return GPSRawInt{}, err
	}
	p := f.PayloadN(30)
	return GPSRawInt{
		TimeUsec:          le.Uint64(p[0:]),
		Lat:               int32(le.Uint32(p[8:])),
		Lon:               int32(le.Uint32(p[12:])),
		Alt:               int32(le.Uint32(p[16:])),
		Eph:               le.Uint16(p[20:]),
		Epv:               le.Uint16(p[22:]),
		Vel:               le.Uint16(p[24:]),
		Cog:               le.Uint16(p[26:]),
		FixType:           p[28],
		SatellitesVisible: p[29],
	}, nil
}

// Marshal returns the wire payload
func (m GPSRawInt) Marshal() []byte {
	p := make([]byte, 30)
	le.PutUint64(p[0:], m.TimeUsec)
	le.PutUint32(p[8:], uint32(m.Lat))
	le.PutUint32(p[12:], uint32(m.Lon))
	le.PutUint32(p[16:], uint32(m.Alt))
	le.PutUint16(p[20:], m.Eph)
	le.PutUint16(p[22:], m.Epv)
	le.PutUint16(p[24:], m.Vel)
	le.PutUint16(p[26:], m.Cog)
	p[28] = m.FixType
	p[29] = m.SatellitesVisible
	return p
}

// DecodeAttitude decodes an ATTITUDE frame
func DecodeAttitude(f *Frame) (Attitude, error) {
	if err := checkMsgID(f, MsgAttitude); err != nil {
		return Attitude{}, err
	}
	p := f.PayloadN(28)
	return Attitude{
		TimeBootMs: le.Uint32(p[0:]),
		Roll:       math.Float32frombits(le.Uint32(p[4:])),
		Pitch:      math.Float32frombits(le.Uint32(p[8:])),
		Yaw:        math.Float32frombits(le.Uint32(p[12:])),
		RollSpeed:  math.Float32frombits(le.Uint32(p[16:])),
		PitchSpeed: math.Float32frombits(le.Uint32(p[20:])),
		YawSpeed:   math.Float32frombits(le.Uint32(p[24:])),
	}, nil
}

// Marshal returns the wire payload
func (m Attitude) Marshal() []byte {
	p := make([]byte, 28)
	le.PutUint32(p[0:], m.TimeBootMs)
	le.PutUint32(p[4:], math.Float32bits(m.Roll))
	le.PutUint32(p[8:], math.Float32bits(m.Pitch))
	le.PutUint32(p[12:], math.Float32bits(m.Yaw))
	le.PutUint32(p[16:], math.Float32bits(m.RollSpeed))
	le.PutUint32(p[20:], math.Float32bits(m.PitchSpeed))
	le.PutUint32(p[24:], math.Float32bits(m.YawSpeed))
	return p
}

// DecodeGlobalPositionInt decodes a GLOBAL_POSITION_INT frame
func DecodeGlobalPositionInt(f *Frame) (GlobalPositionInt, error) {
	if err := checkMsgID(f, MsgGlobalPositionInt); err != nil {
		return GlobalPositionInt{}, err
	}
	p := f.PayloadN(28)
	return GlobalPositionInt{
		TimeBootMs:  le.Uint32(p[0:]),
		Lat:         int32(le.Uint32(p[4:])),
		Lon:         int32(le.Uint32(p[8:])),
		Alt:         int32(le.Uint32(p[12:])),
		RelativeAlt: int32(le.Uint32(p[16:])),
		Vx:          int16(le.Uint16(p[20:])),
		Vy:          int16(le.Uint16(p[22:])),
		Vz:          int16(le.Uint16(p[24:])),
		Hdg:         le.Uint16(p[26:]),
	}, nil
}

// Marshal returns the wire payload
func (m GlobalPositionInt) Marshal() []byte {
	p := make([]byte, 28)
	le.PutUint32(p[0:], m.TimeBootMs)
	le.PutUint32(p[4:], uint32(m.Lat))
	le.PutUint32(p[8:], uint32(m.Lon))
	le.PutUint32(p[12:], uint32(m.Alt))
	le.PutUint32(p[16:], uint32(m.RelativeAlt))
	le.PutUint16(p[20:], uint16(m.Vx))
	le.PutUint16(p[22:], uint16(m.Vy))
	le.PutUint16(p[24:], uint16(m.Vz))
	le.PutUint16(p[26:], m.Hdg)
	return p
}

// DecodeVFRHUD decodes a VFR_HUD frame
func DecodeVFRHUD(f *Frame) (VFRHUD, error) {
	if err := checkMsgID(f, MsgVFRHUD); err != nil {
		return VFRHUD{}, err
	}
	p := f.PayloadN(20)
	return VFRHUD{
		Airspeed:    math.Float32frombits(le.Uint32(p[0:])),
		Groundspeed: math.Float32frombits(le.Uint32(p[4:])),
		Alt:         math.Float32frombits(le.Uint32(p[8:])),
		Climb:       math.Float32frombits(le.Uint32(p[12:])),
		Heading:     int16(le.Uint16(p[16:])),
		Throttle:    le.Uint16(p[18:]),
	}, nil
}

// Marshal returns the wire payload
func (m VFRHUD) Marshal() []byte {
	p := make([]byte, 20)
	le.PutUint32(p[0:], math.Float32bits(m.Airspeed))
	le.PutUint32(p[4:], math.Float32bits(m.Groundspeed))
	le.PutUint32(p[8:], math.Float32bits(m.Alt))
	le.PutUint32(p[12:], math.Float32bits(m.Climb))
	le.PutUint16(p[16:], uint16(m.Heading))
	le.PutUint16(p[18:], m.Throttle)
	return p
}
