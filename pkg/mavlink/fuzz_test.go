// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// knownIDs lists message ids with a CRC_EXTRA, for picking random valid frames
func knownIDs() []uint32 {
	ids := make([]uint32, 0, len(messages))
	for id := range messages {
		ids = append(ids, id)
	}
	return ids
}

// randomFrame builds a random, encodable frame of a known message id
func randomFrame(rng *rand.Rand, ids []uint32) *Frame {
	id := ids[rng.Intn(len(ids))]
	version := uint8(1 + rng.Intn(2))
	if id > MaxMsgIDV1 {
		version = 2
	}
	payload := make([]byte, rng.Intn(messages[id].length+1))
	rng.Read(payload)
	f := NewFrame(version, uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), id, payload)
	if version == 2 && rng.Intn(4) == 0 {
		f.IncompatFlags = IncompatFlagSigned
		f.Signature = make([]byte, SignatureLen)
		rng.Read(f.Signature)
	}
	return f
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or grow without bound
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		length := rng.Intn(2048) + 1
		data := make([]byte, length)
		rng.Read(data)

		for off := 0; off < len(data); {
			n := min(rng.Intn(64)+1, len(data)-off)
			for range d.Frames(data[off : off+n]) {
			}
			off += n
		}

		if d.Buffered() > MaxFrameLen {
			t.Fatalf("Round %d: decoder retained %d bytes (max frame %d)", i, d.Buffered(), MaxFrameLen)
		}
	}
}

// TestFuzzDecoder_RandomFrames encodes random frames, splits the stream at
// random points and verifies every frame comes back intact and in order
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	ids := knownIDs()
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		count := rng.Intn(8) + 1
		sent := make([][]byte, count)
		var stream []byte
		for j := range sent {
			sent[j] = MustEncode(randomFrame(rng, ids))
			stream = append(stream, sent[j]...)
		}

		d := NewDecoder()
		var got [][]byte
		for off := 0; off < len(stream); {
			n := min(rng.Intn(96)+1, len(stream)-off)
			for f := range d.Frames(stream[off : off+n]) {
				got = append(got, MustEncode(f))
			}
			off += n
		}

		if len(got) != count {
			t.Fatalf("Round %d: expected %d frames, got %d", i, count, len(got))
		}
		for j := range sent {
			if !bytes.Equal(sent[j], got[j]) {
				t.Fatalf("Round %d frame %d: mismatch\n  sent % X\n  got  % X", i, j, sent[j], got[j])
			}
		}
	}
}

// TestFuzzDecoder_NoiseBetweenFrames interleaves valid frames with non-magic
// noise and verifies no frame is lost
func TestFuzzDecoder_NoiseBetweenFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	ids := knownIDs()
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		count := rng.Intn(6) + 1
		var stream []byte
		for range count {
			noise := make([]byte, rng.Intn(16))
			for k := range noise {
				// Any byte except the two magic values
				noise[k] = byte(rng.Intn(MagicV2))
			}
			stream = append(stream, noise...)
			stream = append(stream, MustEncode(randomFrame(rng, ids))...)
		}

		d := NewDecoder()
		got := 0
		for range d.Frames(stream) {
			got++
		}
		if got != count {
			t.Fatalf("Round %d: expected %d frames, got %d", i, count, got)
		}
	}
}
