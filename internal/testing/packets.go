// go-ccidserial
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ccidserial.
//
// go-ccidserial is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ccidserial is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ccidserial; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package testing

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
)

// CCID message types the simulator understands
const (
	PCToRDRIccPowerOn     = 0x62
	PCToRDRIccPowerOff    = 0x63
	PCToRDRGetSlotStatus  = 0x65
	PCToRDREscape         = 0x6B
	PCToRDRXfrBlock       = 0x6F
	RDRToPCDataBlock      = 0x80
	RDRToPCSlotStatus     = 0x81
	RDRToPCEscape         = 0x83
	statusCommandFailed   = 0x40
	errCmdNotSupported    = 0x00
	defaultResponseStatus = 0x00
)

// BuildMessage assembles a CCID message: type, dwLength, slot, seq, three
// message specific bytes and data.
func BuildMessage(msgType, slot, seq byte, data []byte) []byte {
	msg := make([]byte, frame.FrameOverhead+len(data))
	msg[0] = msgType
	binary.LittleEndian.PutUint32(msg[frame.LengthOffset:frame.HeaderSize], uint32(len(data))) //nolint:gosec // test sizes
	msg[5] = slot
	msg[6] = seq
	copy(msg[frame.FrameOverhead:], data)
	return msg
}

// BuildPacket wraps msg as SYNC ACK msg LRC, the way both sides send it.
func BuildPacket(msg []byte) []byte {
	pkt := make([]byte, len(msg)+frame.Framing)
	n, ok := frame.Encode(pkt, msg)
	if !ok {
		panic("testing: message too large for a packet")
	}
	return pkt[:n]
}

// CorruptLRC returns a copy of pkt with its trailing checksum flipped.
func CorruptLRC(pkt []byte) []byte {
	out := append([]byte(nil), pkt...)
	out[len(out)-1] ^= 0xFF
	return out
}

// NakPacket is the reader's rejection packet.
func NakPacket() []byte {
	return []byte{frame.Sync, frame.Nak, frame.NakLRC}
}

// SlotChange is a card movement notification carrying code.
func SlotChange(code byte) []byte {
	return []byte{frame.NotifySlotChange, code}
}

// Concat joins byte slices into one stream.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
