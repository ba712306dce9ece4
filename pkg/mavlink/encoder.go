// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a frame to wire format.
// The checksum is recomputed for known message ids; frames of unknown ids
// (accepted in pass-through mode) keep the checksum they arrived with.
func Encode(f *Frame) ([]byte, error) {
	return AppendEncode(make([]byte, 0, f.Len()), f)
}

// AppendEncode appends the wire form of f to dst
func AppendEncode(dst []byte, f *Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(f.Payload), MaxPayloadLen)
	}

	start := len(dst)
	switch f.Version {
	case 1:
		if f.MsgID > MaxMsgIDV1 {
			return nil, fmt.Errorf("message id %d does not fit a v1 frame", f.MsgID)
		}
		dst = append(dst, MagicV1, byte(len(f.Payload)), f.Seq, f.SysID, f.CompID, byte(f.MsgID))
	case 2:
		if f.MsgID > MaxMsgIDV2 {
			return nil, fmt.Errorf("message id %d out of range", f.MsgID)
		}
		if f.IsSigned() && len(f.Signature) != SignatureLen {
			return nil, fmt.Errorf("signed frame carries %d signature bytes (want %d)", len(f.Signature), SignatureLen)
		}
		dst = append(dst, MagicV2, byte(len(f.Payload)), f.IncompatFlags, f.CompatFlags,
			f.Seq, f.SysID, f.CompID, byte(f.MsgID), byte(f.MsgID>>8), byte(f.MsgID>>16))
	default:
		return nil, fmt.Errorf("unsupported MAVLink version %d", f.Version)
	}

	dst = append(dst, f.Payload...)

	checksum := f.Checksum
	if crcExtra, ok := CRCExtra(f.MsgID); ok {
		checksum = frameCRC(dst[start+1:], crcExtra)
	}
	dst = binary.LittleEndian.AppendUint16(dst, checksum)

	if f.IsSigned() {
		dst = append(dst, f.Signature...)
	}
	return dst, nil
}

// MustEncode encodes a frame and panics on error.
// Intended for frames built in code (tests, probes), not for relayed traffic.
func MustEncode(f *Frame) []byte {
	data, err := Encode(f)
	if err != nil {
		panic(fmt.Sprintf("mavlink: encode error: %v", err))
	}
	return data
}
