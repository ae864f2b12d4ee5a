// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frameproto

// CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF, no input or
// output reflection, no final XOR. This is the variant the frame header
// uses to cover bytes 0..27.
//
// The table-driven implementation follows the same precomputed
// [256]uint16 table idiom as the teacher's reversed-CRC helper, but is
// built MSB-first (non-reflected) to match this polynomial's parameters.
const ccittPoly = 0x1021

var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ ccittPoly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// crc16CCITT computes the CRC-16/CCITT-FALSE checksum over p.
func crc16CCITT(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
