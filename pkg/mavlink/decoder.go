// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"iter"
	"time"
)

// DecoderStats counts what the decoder saw on the stream
type DecoderStats struct {
	Frames          uint64 // frames that passed the integrity check
	CRCErrors       uint64 // candidate frames rejected on checksum
	HeaderErrors    uint64 // candidate frames with unsupported v2 incompat flags
	UnknownMessages uint64 // candidate frames whose message id has no known CRC_EXTRA
	FramingErrors   uint64 // runs of bytes skipped between frames
	DiscardedBytes  uint64
}

// Errors returns the total number of integrity failures
func (s DecoderStats) Errors() uint64 {
	return s.CRCErrors + s.HeaderErrors + s.UnknownMessages + s.FramingErrors
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithUnknownMessages makes the decoder accept message ids outside the known
// set. Such frames cannot be checksummed (their CRC_EXTRA is unknown) and are
// accepted on structure alone.
func WithUnknownMessages(accept bool) DecoderOption {
	return func(d *Decoder) {
		d.acceptUnknown = accept
	}
}

// Decoder extracts MAVLink frames from a byte stream. Bytes are buffered
// across Feed calls so frames may straddle read boundaries. A Decoder is not
// safe for concurrent use; each stream gets its own.
type Decoder struct {
	buf           []byte
	r             int // read offset into buf
	acceptUnknown bool
	resyncing     bool // inside a run of skipped bytes
	stats         DecoderStats
}

// NewDecoder creates a new frame decoder
func NewDecoder(options ...DecoderOption) *Decoder {
	d := &Decoder{
		buf: make([]byte, 0, defaultBufSize),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Reset drops any buffered bytes. Statistics are kept.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.r = 0
	d.resyncing = false
}

// Stats returns a copy of the decoder counters
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Buffered returns the number of bytes waiting for a complete frame
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.r
}

// Feed appends raw stream bytes to the decoder buffer
func (d *Decoder) Feed(data []byte) {
	if d.r > 0 {
		n := copy(d.buf, d.buf[d.r:])
		d.buf = d.buf[:n]
		d.r = 0
	}
	d.buf = append(d.buf, data...)
}

// Frames feeds data and returns an iterator over every frame that becomes
// complete. Iteration is lazy; bytes not consumed stay buffered for the next
// call.
func (d *Decoder) Frames(data []byte) iter.Seq[*Frame] {
	d.Feed(data)
	return func(yield func(*Frame) bool) {
		for {
			frame, ok := d.Next()
			if !ok || !yield(frame) {
				return
			}
		}
	}
}

// Next returns the next complete frame in the buffer, or false when more bytes
// are needed. Corrupt candidates are dropped one byte at a time and scanning
// resumes at the following byte.
func (d *Decoder) Next() (*Frame, bool) {
	for {
		pending := d.buf[d.r:]

		// Scan for a start-of-frame marker
		skip := 0
		for skip < len(pending) && pending[skip] != MagicV1 && pending[skip] != MagicV2 {
			skip++
		}
		if skip > 0 {
			d.discard(skip)
			pending = pending[skip:]
		}
		if len(pending) == 0 {
			return nil, false
		}

		frame, size := d.parse(pending)
		switch {
		case size == 0:
			// Incomplete - wait for more bytes
			return nil, false
		case frame == nil:
			// Integrity failure - drop the magic byte and rescan
			d.r++
			d.stats.DiscardedBytes++
			d.resyncing = true
			continue
		}

		d.r += size
		d.resyncing = false
		d.stats.Frames++
		return frame, true
	}
}

// discard skips n noise bytes, counting each contiguous run once
func (d *Decoder) discard(n int) {
	d.r += n
	d.stats.DiscardedBytes += uint64(n)
	if !d.resyncing {
		d.stats.FramingErrors++
		d.resyncing = true
	}
}

// parse attempts to decode a frame at the start of data, which begins with a
// magic byte. Returns (nil, 0) when more bytes are needed, (nil, n>0) on an
// integrity failure, and (frame, size) on success.
func (d *Decoder) parse(data []byte) (*Frame, int) {
	headerLen := HeaderLenV1
	if data[0] == MagicV2 {
		headerLen = HeaderLenV2
	}
	if len(data) < headerLen {
		return nil, 0
	}

	frame := &Frame{Version: 1}
	payloadLen := int(data[1])
	signed := false

	if data[0] == MagicV2 {
		frame.Version = 2
		frame.IncompatFlags = data[2]
		frame.CompatFlags = data[3]
		if frame.IncompatFlags&^IncompatFlagSigned != 0 {
			d.stats.HeaderErrors++
			return nil, 1
		}
		signed = frame.IncompatFlags&IncompatFlagSigned != 0
		frame.Seq = data[4]
		frame.SysID = data[5]
		frame.CompID = data[6]
		frame.MsgID = uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16
	} else {
		frame.Seq = data[2]
		frame.SysID = data[3]
		frame.CompID = data[4]
		frame.MsgID = uint32(data[5])
	}

	size := headerLen + payloadLen + ChecksumLen
	if signed {
		size += SignatureLen
	}
	if len(data) < size {
		return nil, 0
	}

	crcExtra, known := CRCExtra(frame.MsgID)
	if !known && !d.acceptUnknown {
		d.stats.UnknownMessages++
		return nil, 1
	}

	checksumAt := headerLen + payloadLen
	frame.Checksum = binary.LittleEndian.Uint16(data[checksumAt:])
	if known && frameCRC(data[1:checksumAt], crcExtra) != frame.Checksum {
		d.stats.CRCErrors++
		return nil, 1
	}

	frame.Payload = append([]byte(nil), data[headerLen:checksumAt]...)
	if signed {
		frame.Signature = append([]byte(nil), data[checksumAt+ChecksumLen:size]...)
	}
	frame.Timestamp = time.Now()

	return frame, size
}
