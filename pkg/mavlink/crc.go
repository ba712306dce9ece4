// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

// CRC-16/MCRF4XX (X.25) configuration
const crcInitial = 0xFFFF

// CalculateCRC computes the MAVLink X.25 checksum for the given data
func CalculateCRC(data []byte) uint16 {
	return accumulateCRC(crcInitial, data)
}

// accumulateCRC folds data into a running checksum
func accumulateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		tmp := b ^ byte(crc&0xFF)
		tmp ^= tmp << 4
		crc = (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
	}
	return crc
}

// frameCRC computes the checksum of a frame body (everything after the magic
// byte, up to the checksum) seeded with the message's CRC_EXTRA byte.
func frameCRC(body []byte, crcExtra byte) uint16 {
	crc := accumulateCRC(crcInitial, body)
	return accumulateCRC(crc, []byte{crcExtra})
}
