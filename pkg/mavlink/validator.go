// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"math"
)

// AnomalyType represents different kinds of suspicious frame content. A frame
// with anomalies has a valid checksum; the values it carries are implausible.
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyCoordinates
	AnomalyAttitude
	AnomalyBattery
	AnomalyFixType
)

// String returns the anomaly label
func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "LENGTH_MISMATCH"
	case AnomalyCoordinates:
		return "COORDINATES"
	case AnomalyAttitude:
		return "ATTITUDE"
	case AnomalyBattery:
		return "BATTERY"
	case AnomalyFixType:
		return "FIX_TYPE"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents one anomaly found in a frame
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]any
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Plausibility limits
const (
	maxBatteryMillivolts = 60000
	unknownVoltage       = math.MaxUint16
	unknownHeading       = math.MaxUint16
)

// ValidateFrame checks a frame for anomalies and returns them (empty when the
// frame looks sane). Message kinds without typed decoders are only checked for
// length.
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	// v1 frames are never truncated, so a short payload is a sender bug
	if info, ok := messages[f.MsgID]; ok && f.Version == 1 && len(f.Payload) < info.length {
		errors = append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload too short (received=%d, expected=%d)", info.name, len(f.Payload), info.length),
			Details: map[string]any{"received": len(f.Payload), "expected": info.length},
		})
	}

	switch f.MsgID {
	case MsgSysStatus:
		m, _ := DecodeSysStatus(f)
		if m.VoltageBattery != unknownVoltage && m.VoltageBattery > maxBatteryMillivolts {
			errors = append(errors, ValidationError{
				Type:    AnomalyBattery,
				Message: fmt.Sprintf("Battery voltage out of range (%d mV, max %d)", m.VoltageBattery, maxBatteryMillivolts),
				Details: map[string]any{"voltage_mv": m.VoltageBattery},
			})
		}
		if m.BatteryRemaining > 100 || m.BatteryRemaining < -1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyBattery,
				Message: fmt.Sprintf("Battery remaining out of range (%d%%)", m.BatteryRemaining),
				Details: map[string]any{"remaining": m.BatteryRemaining},
			})
		}

	case MsgGPSRawInt:
		m, _ := DecodeGPSRawInt(f)
		errors = append(errors, validateCoordinates(m.Lat, m.Lon)...)
		if m.FixType > 8 {
			errors = append(errors, ValidationError{
				Type:    AnomalyFixType,
				Message: fmt.Sprintf("Unknown GPS fix type %d", m.FixType),
				Details: map[string]any{"fix_type": m.FixType},
			})
		}

	case MsgGlobalPositionInt:
		m, _ := DecodeGlobalPositionInt(f)
		errors = append(errors, validateCoordinates(m.Lat, m.Lon)...)
		if m.Hdg != unknownHeading && m.Hdg >= 36000 {
			errors = append(errors, ValidationError{
				Type:    AnomalyCoordinates,
				Message: fmt.Sprintf("Heading out of range (%d cdeg)", m.Hdg),
				Details: map[string]any{"hdg": m.Hdg},
			})
		}

	case MsgAttitude:
		m, _ := DecodeAttitude(f)
		for name, v := range map[string]float32{"roll": m.Roll, "pitch": m.Pitch, "yaw": m.Yaw} {
			if math.IsNaN(float64(v)) || math.Abs(float64(v)) > 2*math.Pi {
				errors = append(errors, ValidationError{
					Type:    AnomalyAttitude,
					Message: fmt.Sprintf("Attitude %s out of range (%v rad)", name, v),
					Details: map[string]any{"axis": name, "value": v},
				})
			}
		}
	}

	return errors
}

func validateCoordinates(lat, lon int32) []ValidationError {
	if lat < -900000000 || lat > 900000000 || lon < -1800000000 || lon > 1800000000 {
		return []ValidationError{{
			Type:    AnomalyCoordinates,
			Message: fmt.Sprintf("Coordinates out of range (lat=%.7f, lon=%.7f)", float64(lat)/1e7, float64(lon)/1e7),
			Details: map[string]any{"lat": lat, "lon": lon},
		}}
	}
	return nil
}
