// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mavlink implements MAVLink v1/v2 framing for the skyrelay router.
//
// The package extracts integrity-checked frames from an unreliable byte
// stream, re-serializes frames for transmission, and decodes the handful of
// common-dialect payloads the router needs for its vehicle state projection.
// It does not attempt full dialect coverage: frames of any message id are
// forwarded as opaque payloads once their CRC has been verified.
package mavlink

// Protocol framing bytes
const (
	MagicV1 = 0xFE
	MagicV2 = 0xFD
)

// Frame size limits
const (
	HeaderLenV1    = 6  // magic, len, seq, sysid, compid, msgid
	HeaderLenV2    = 10 // magic, len, incompat, compat, seq, sysid, compid, msgid[3]
	ChecksumLen    = 2
	SignatureLen   = 13
	MaxPayloadLen  = 255
	MaxFrameLen    = HeaderLenV2 + MaxPayloadLen + ChecksumLen + SignatureLen
	MaxMsgIDV1     = 0xFF
	MaxMsgIDV2     = 0xFFFFFF
	defaultBufSize = 4 * MaxFrameLen
)

// Incompatibility flags (v2)
const (
	IncompatFlagSigned = 0x01
)

// Message ids of the common dialect that the router knows about.
const (
	MsgHeartbeat            = 0
	MsgSysStatus            = 1
	MsgSystemTime           = 2
	MsgPing                 = 4
	MsgSetMode              = 11
	MsgParamRequestRead     = 20
	MsgParamRequestList     = 21
	MsgParamValue           = 22
	MsgParamSet             = 23
	MsgGPSRawInt            = 24
	MsgRawIMU               = 27
	MsgScaledPressure       = 29
	MsgAttitude             = 30
	MsgLocalPositionNED     = 32
	MsgGlobalPositionInt    = 33
	MsgRCChannelsRaw        = 35
	MsgServoOutputRaw       = 36
	MsgMissionItem          = 39
	MsgMissionRequest       = 40
	MsgMissionCurrent       = 42
	MsgMissionRequestList   = 43
	MsgMissionCount         = 44
	MsgMissionAck           = 47
	MsgMissionRequestInt    = 51
	MsgNavControllerOutput  = 62
	MsgRCChannels           = 65
	MsgRequestDataStream    = 66
	MsgManualControl        = 69
	MsgMissionItemInt       = 73
	MsgVFRHUD               = 74
	MsgCommandInt           = 75
	MsgCommandLong          = 76
	MsgCommandAck           = 77
	MsgPositionTargetGlobal = 87
	MsgHighresIMU           = 105
	MsgRadioStatus          = 109
	MsgTimesync             = 111
	MsgScaledIMU2           = 116
	MsgPowerStatus          = 125
	MsgBatteryStatus        = 147
	MsgAutopilotVersion     = 148
	MsgVibration            = 241
	MsgHomePosition         = 242
	MsgExtendedSysState     = 245
	MsgStatustext           = 253
)

// MAV_AUTOPILOT values
const (
	AutopilotGeneric       = 0
	AutopilotSLUGS         = 2
	AutopilotArduPilotMega = 3
	AutopilotOpenPilot     = 4
	AutopilotInvalid       = 8
	AutopilotPX4           = 12
)

// MAV_TYPE values used for mode table selection
const (
	TypeGeneric            = 0
	TypeFixedWing          = 1
	TypeQuadrotor          = 2
	TypeCoaxial            = 3
	TypeHelicopter         = 4
	TypeAntennaTracker     = 5
	TypeGCS                = 6
	TypeGroundRover        = 10
	TypeSurfaceBoat        = 11
	TypeSubmarine          = 12
	TypeHexarotor          = 13
	TypeOctorotor          = 14
	TypeTricopter          = 15
	TypeVTOLTailsitterDuo  = 19
	TypeVTOLTailsitterQuad = 20
	TypeVTOLTiltrotor      = 21
	TypeVTOLFixedrotor     = 22
	TypeVTOLTailsitter     = 23
	TypeVTOLTiltwing       = 24
	TypeDodecarotor        = 29
	TypeDecarotor          = 35
)

// MAV_MODE_FLAG bits of HEARTBEAT.base_mode
const (
	ModeFlagCustomModeEnabled  = 0x01
	ModeFlagTestEnabled        = 0x02
	ModeFlagAutoEnabled        = 0x04
	ModeFlagGuidedEnabled      = 0x08
	ModeFlagStabilizeEnabled   = 0x10
	ModeFlagHILEnabled         = 0x20
	ModeFlagManualInputEnabled = 0x40
	ModeFlagSafetyArmed        = 0x80
)
