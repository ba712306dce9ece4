// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates for diagnostic tools
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	AnomalousFrames uint64
	Decoder         DecoderStats
	ByMessage       map[uint32]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByMessage:      make(map[uint32]uint64),
	}
}

// Update records a decoded frame and the anomalies found in it
func (s *Statistics) Update(f *Frame, anomalies []ValidationError) {
	s.TotalFrames++
	s.ByMessage[f.MsgID]++
	if len(anomalies) > 0 {
		s.AnomalousFrames++
	} else {
		s.ValidFrames++
	}
	s.LastUpdateTime = time.Now()
}

// SyncDecoder copies the integrity counters of the decoder feeding this tracker
func (s *Statistics) SyncDecoder(ds DecoderStats) {
	s.Decoder = ds
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Decoder.Errors()+s.AnomalousFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, anomalousPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		anomalousPercent = float64(s.AnomalousFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.AnomalousFrames, anomalousPercent)
	}
	if s.Decoder.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.Decoder.CRCErrors)
	}
	if s.Decoder.HeaderErrors > 0 {
		result += fmt.Sprintf("Header Errors:   %8d\n", s.Decoder.HeaderErrors)
	}
	if s.Decoder.UnknownMessages > 0 {
		result += fmt.Sprintf("Unknown Msgs:    %8d\n", s.Decoder.UnknownMessages)
	}
	if s.Decoder.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%d bytes skipped)\n", s.Decoder.FramingErrors, s.Decoder.DiscardedBytes)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.AnomalousFrames = 0
	s.Decoder = DecoderStats{}
	s.ByMessage = make(map[uint32]uint64)
	s.FrameRate = 0
	s.ErrorRate = 0
}
