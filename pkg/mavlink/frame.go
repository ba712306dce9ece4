// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import "time"

// Frame represents one decoded, integrity-checked MAVLink message
type Frame struct {
	Version       uint8 // 1 or 2
	IncompatFlags uint8
	CompatFlags   uint8
	Seq           uint8
	SysID         uint8
	CompID        uint8
	MsgID         uint32
	Payload       []byte
	Signature     []byte // nil unless the frame is signed (v2 only)
	Checksum      uint16
	Timestamp     time.Time
}

// NewFrame builds a frame ready for encoding. The checksum is computed by Encode.
func NewFrame(version uint8, seq, sysID, compID uint8, msgID uint32, payload []byte) *Frame {
	return &Frame{
		Version:   version,
		Seq:       seq,
		SysID:     sysID,
		CompID:    compID,
		MsgID:     msgID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Name returns the dialect name of the frame's message id
func (f *Frame) Name() string {
	return MessageName(f.MsgID)
}

// IsSigned returns true if the frame carries a v2 signature block
func (f *Frame) IsSigned() bool {
	return f.Version == 2 && f.IncompatFlags&IncompatFlagSigned != 0
}

// Len returns the encoded size of the frame in bytes
func (f *Frame) Len() int {
	n := HeaderLenV1 + len(f.Payload) + ChecksumLen
	if f.Version == 2 {
		n = HeaderLenV2 + len(f.Payload) + ChecksumLen
		if f.IsSigned() {
			n += SignatureLen
		}
	}
	return n
}

// PayloadN returns the payload zero-extended to n bytes. MAVLink v2 senders
// strip trailing zero bytes, so typed decoders must not assume full length.
func (f *Frame) PayloadN(n int) []byte {
	if len(f.Payload) >= n {
		return f.Payload
	}
	extended := make([]byte, n)
	copy(extended, f.Payload)
	return extended
}
