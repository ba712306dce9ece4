// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"math"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s (#%d) v%d seq=%d sys=%d comp=%d len=%d",
		timestamp, f.Name(), f.MsgID, f.Version, f.Seq, f.SysID, f.CompID, len(f.Payload))
	if f.IsSigned() {
		sb.WriteString(" signed")
	}
	sb.WriteString("\n")
	sb.WriteString(FormatPayload(f))
	return sb.String()
}

// FormatPayload renders the decoded fields of the message kinds the router
// understands, and a hex dump for everything else.
func FormatPayload(f *Frame) string {
	switch f.MsgID {
	case MsgHeartbeat:
		m, _ := DecodeHeartbeat(f)
		armed := "DISARMED"
		if m.Armed() {
			armed = "ARMED"
		}
		return fmt.Sprintf("  Type: %s (%d), Autopilot: %s (%d), %s, CustomMode: %d, Status: %s\n",
			FormatVehicleType(m.Type), m.Type, FormatAutopilot(m.Autopilot), m.Autopilot,
			armed, m.CustomMode, formatSystemStatus(m.SystemStatus))

	case MsgSysStatus:
		m, _ := DecodeSysStatus(f)
		return fmt.Sprintf("  Battery: %.2f V, %s, Remaining: %s, Load: %.1f%%\n",
			float64(m.VoltageBattery)/1000.0, formatCurrent(m.CurrentBattery),
			formatRemaining(m.BatteryRemaining), float64(m.Load)/10.0)

	case MsgGPSRawInt:
		m, _ := DecodeGPSRawInt(f)
		return fmt.Sprintf("  Fix: %s (%d), Sats: %d, Lat: %.7f, Lon: %.7f, Alt: %.1f m, Vel: %.2f m/s\n",
			FormatFixType(m.FixType), m.FixType, m.SatellitesVisible,
			float64(m.Lat)/1e7, float64(m.Lon)/1e7, float64(m.Alt)/1000.0, float64(m.Vel)/100.0)

	case MsgAttitude:
		m, _ := DecodeAttitude(f)
		return fmt.Sprintf("  Roll: %.1f°, Pitch: %.1f°, Yaw: %.1f°, Time=%d ms\n",
			degrees(m.Roll), degrees(m.Pitch), degrees(m.Yaw), m.TimeBootMs)

	case MsgGlobalPositionInt:
		m, _ := DecodeGlobalPositionInt(f)
		return fmt.Sprintf("  Lat: %.7f, Lon: %.7f, Alt: %.1f m, RelAlt: %.1f m, Hdg: %.1f°, Time=%d ms\n",
			float64(m.Lat)/1e7, float64(m.Lon)/1e7, float64(m.Alt)/1000.0,
			float64(m.RelativeAlt)/1000.0, float64(m.Hdg)/100.0, m.TimeBootMs)

	case MsgVFRHUD:
		m, _ := DecodeVFRHUD(f)
		return fmt.Sprintf("  Airspeed: %.1f m/s, Groundspeed: %.1f m/s, Alt: %.1f m, Climb: %.1f m/s, Heading: %d°, Throttle: %d%%\n",
			m.Airspeed, m.Groundspeed, m.Alt, m.Climb, m.Heading, m.Throttle)
	}

	if len(f.Payload) == 0 {
		return "  (no payload)\n"
	}
	return fmt.Sprintf("  Payload: % X\n", f.Payload)
}

// FormatAutopilot returns the MAV_AUTOPILOT label
func FormatAutopilot(autopilot uint8) string {
	switch autopilot {
	case AutopilotGeneric:
		return "GENERIC"
	case AutopilotSLUGS:
		return "SLUGS"
	case AutopilotArduPilotMega:
		return "ARDUPILOTMEGA"
	case AutopilotOpenPilot:
		return "OPENPILOT"
	case AutopilotInvalid:
		return "INVALID"
	case AutopilotPX4:
		return "PX4"
	default:
		return fmt.Sprintf("AUTOPILOT(%d)", autopilot)
	}
}

// FormatVehicleType returns the MAV_TYPE label
func FormatVehicleType(vehicleType uint8) string {
	switch vehicleType {
	case TypeGeneric:
		return "GENERIC"
	case TypeFixedWing:
		return "FIXED_WING"
	case TypeQuadrotor:
		return "QUADROTOR"
	case TypeCoaxial:
		return "COAXIAL"
	case TypeHelicopter:
		return "HELICOPTER"
	case TypeAntennaTracker:
		return "ANTENNA_TRACKER"
	case TypeGCS:
		return "GCS"
	case TypeGroundRover:
		return "GROUND_ROVER"
	case TypeSurfaceBoat:
		return "SURFACE_BOAT"
	case TypeSubmarine:
		return "SUBMARINE"
	case TypeHexarotor:
		return "HEXAROTOR"
	case TypeOctorotor:
		return "OCTOROTOR"
	case TypeTricopter:
		return "TRICOPTER"
	case TypeVTOLTailsitterDuo, TypeVTOLTailsitterQuad, TypeVTOLTiltrotor,
		TypeVTOLFixedrotor, TypeVTOLTailsitter, TypeVTOLTiltwing:
		return "VTOL"
	case TypeDodecarotor:
		return "DODECAROTOR"
	case TypeDecarotor:
		return "DECAROTOR"
	default:
		return fmt.Sprintf("TYPE(%d)", vehicleType)
	}
}

// FormatFixType returns the GPS_FIX_TYPE label
func FormatFixType(fix uint8) string {
	names := []string{"NO_GPS", "NO_FIX", "2D_FIX", "3D_FIX", "DGPS", "RTK_FLOAT", "RTK_FIXED", "STATIC", "PPP"}
	if int(fix) < len(names) {
		return names[fix]
	}
	return "UNKNOWN"
}

// formatSystemStatus returns the MAV_STATE label
func formatSystemStatus(status uint8) string {
	names := []string{"UNINIT", "BOOT", "CALIBRATING", "STANDBY", "ACTIVE", "CRITICAL", "EMERGENCY", "POWEROFF", "FLIGHT_TERMINATION"}
	if int(status) < len(names) {
		return names[status]
	}
	return "UNKNOWN"
}

func formatCurrent(cA int16) string {
	if cA < 0 {
		return "Current: n/a"
	}
	return fmt.Sprintf("Current: %.2f A", float64(cA)/100.0)
}

func formatRemaining(pct int8) string {
	if pct < 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", pct)
}

func degrees(rad float32) float64 {
	return float64(rad) * 180.0 / math.Pi
}
