// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

// ModeDecoder derives the armed flag and flight mode label from a heartbeat.
// Numbering is flight-stack specific, so decoders are looked up by the
// heartbeat's autopilot field.
type ModeDecoder interface {
	Decode(hb mavlink.Heartbeat) (armed bool, mode string)
}

// ModeDecoderFunc adapts a function to ModeDecoder
type ModeDecoderFunc func(hb mavlink.Heartbeat) (bool, string)

// Decode calls f
func (f ModeDecoderFunc) Decode(hb mavlink.Heartbeat) (bool, string) {
	return f(hb)
}

// ModeTable maps MAV_AUTOPILOT values to decoders. Autopilots without an
// entry use Fallback.
type ModeTable struct {
	Decoders map[uint8]ModeDecoder
	Fallback ModeDecoder
}

// DefaultModeTable knows ArduPilot and PX4 and falls back to the generic
// base_mode interpretation
func DefaultModeTable() ModeTable {
	return ModeTable{
		Decoders: map[uint8]ModeDecoder{
			mavlink.AutopilotArduPilotMega: ArduPilotModes{},
			mavlink.AutopilotPX4:           PX4Modes{},
		},
		Fallback: GenericModes{},
	}
}

// Lookup returns the decoder for an autopilot
func (t ModeTable) Lookup(autopilot uint8) ModeDecoder {
	if d, ok := t.Decoders[autopilot]; ok {
		return d
	}
	if t.Fallback != nil {
		return t.Fallback
	}
	return GenericModes{}
}

// With returns a copy of the table with one decoder replaced
func (t ModeTable) With(autopilot uint8, d ModeDecoder) ModeTable {
	decoders := make(map[uint8]ModeDecoder, len(t.Decoders)+1)
	for k, v := range t.Decoders {
		decoders[k] = v
	}
	decoders[autopilot] = d
	return ModeTable{Decoders: decoders, Fallback: t.Fallback}
}

// GenericModes reads the armed bit and reports the custom mode number
type GenericModes struct{}

// Decode implements ModeDecoder
func (GenericModes) Decode(hb mavlink.Heartbeat) (bool, string) {
	return hb.Armed(), customLabel(hb.CustomMode)
}

func customLabel(mode uint32) string {
	return fmt.Sprintf("CUSTOM(%d)", mode)
}

// ============================================================
// ArduPilot
// ============================================================

// ArduPilot custom_mode numbering per vehicle firmware
var (
	arduCopterModes = map[uint32]string{
		0: "STABILIZE", 1: "ACRO", 2: "ALT_HOLD", 3: "AUTO", 4: "GUIDED", 5: "LOITER",
		6: "RTL", 7: "CIRCLE", 9: "LAND", 11: "DRIFT", 13: "SPORT", 14: "FLIP",
		15: "AUTOTUNE", 16: "POSHOLD", 17: "BRAKE", 18: "THROW", 19: "AVOID_ADSB",
		20: "GUIDED_NOGPS", 21: "SMART_RTL", 22: "FLOWHOLD", 23: "FOLLOW", 24: "ZIGZAG",
		25: "SYSTEMID", 26: "AUTOROTATE", 27: "AUTO_RTL",
	}
	arduPlaneModes = map[uint32]string{
		0: "MANUAL", 1: "CIRCLE", 2: "STABILIZE", 3: "TRAINING", 4: "ACRO", 5: "FBWA",
		6: "FBWB", 7: "CRUISE", 8: "AUTOTUNE", 10: "AUTO", 11: "RTL", 12: "LOITER",
		13: "TAKEOFF", 14: "AVOID_ADSB", 15: "GUIDED", 17: "QSTABILIZE", 18: "QHOVER",
		19: "QLOITER", 20: "QLAND", 21: "QRTL", 22: "QAUTOTUNE", 23: "QACRO", 24: "THERMAL",
	}
	arduRoverModes = map[uint32]string{
		0: "MANUAL", 1: "ACRO", 3: "STEERING", 4: "HOLD", 5: "LOITER", 6: "FOLLOW",
		7: "SIMPLE", 10: "AUTO", 11: "RTL", 12: "SMART_RTL", 15: "GUIDED",
	}
	arduSubModes = map[uint32]string{
		0: "STABILIZE", 1: "ACRO", 2: "ALT_HOLD", 3: "AUTO", 4: "GUIDED", 7: "CIRCLE",
		9: "SURFACE", 16: "POSHOLD", 19: "MANUAL",
	}
)

// ArduPilotModes picks the firmware's table from the vehicle type
type ArduPilotModes struct{}

// Decode implements ModeDecoder
func (ArduPilotModes) Decode(hb mavlink.Heartbeat) (bool, string) {
	var table map[uint32]string
	switch hb.Type {
	case mavlink.TypeFixedWing,
		mavlink.TypeVTOLTailsitterDuo, mavlink.TypeVTOLTailsitterQuad, mavlink.TypeVTOLTiltrotor,
		mavlink.TypeVTOLFixedrotor, mavlink.TypeVTOLTailsitter, mavlink.TypeVTOLTiltwing:
		table = arduPlaneModes
	case mavlink.TypeGroundRover, mavlink.TypeSurfaceBoat:
		table = arduRoverModes
	case mavlink.TypeSubmarine:
		table = arduSubModes
	default:
		table = arduCopterModes
	}
	if name, ok := table[hb.CustomMode]; ok {
		return hb.Armed(), name
	}
	return hb.Armed(), customLabel(hb.CustomMode)
}

// ============================================================
// PX4
// ============================================================

var (
	px4MainModes = map[uint32]string{
		1: "MANUAL", 2: "ALTCTL", 3: "POSCTL", 4: "AUTO", 5: "ACRO", 6: "OFFBOARD",
		7: "STABILIZED", 8: "RATTITUDE",
	}
	px4AutoModes = map[uint32]string{
		1: "READY", 2: "TAKEOFF", 3: "LOITER", 4: "MISSION", 5: "RTL", 6: "LAND",
		8: "FOLLOW_TARGET", 9: "PRECLAND",
	}
)

const px4MainModeAuto = 4

// PX4Modes splits custom_mode into main mode (bits 16-23) and sub mode
// (bits 24-31). AUTO sub modes are reported as AUTO.<SUB>.
type PX4Modes struct{}

// Decode implements ModeDecoder
func (PX4Modes) Decode(hb mavlink.Heartbeat) (bool, string) {
	main := (hb.CustomMode >> 16) & 0xFF
	sub := (hb.CustomMode >> 24) & 0xFF

	name, ok := px4MainModes[main]
	if !ok {
		return hb.Armed(), customLabel(hb.CustomMode)
	}
	if main == px4MainModeAuto {
		if subName, ok := px4AutoModes[sub]; ok {
			name += "." + subName
		}
	}
	return hb.Armed(), name
}
