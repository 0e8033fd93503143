// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frame holds the wire constants and byte-level helpers of the
// GemPC Twin serial protocol: every CCID message travels as
// SYNC CTRL <message> LRC.
package frame

// Control bytes
const (
	Sync = 0x03 // Start of an ACK/NAK framed packet
	Ack  = 0x06 // Positive control byte, followed by a CCID message
	Nak  = 0x15 // Negative control byte, followed only by an LRC
)

// Asynchronous card movement notification (RDR_to_PC_NotifySlotChange)
const (
	NotifySlotChange = 0x50
	CardAbsent       = 0x02
	CardPresent      = 0x03
)

// TimeRequestMin is the lowest byte value the reader uses to ask for more
// processing time (T=0 procedure bytes). Everything from here to 0xFF is
// discarded while scanning for the next packet.
const TimeRequestMin = 0x80

// Frame size limits
const (
	HeaderSize    = 5   // Message type + dwLength, read before the rest of the frame
	LengthOffset  = 1   // dwLength position inside the header (little endian)
	FrameOverhead = 10  // Fixed CCID header length added to dwLength
	Framing       = 3   // SYNC + CTRL + LRC around a message
	MaxMessage    = 271 // Largest short APDU message the reader accepts

	// BufferSize is the packet ceiling, doubled because every command is
	// echoed back ahead of its response.
	BufferSize = (MaxMessage + Framing) * 2

	// MaxPayload is the largest message Encode accepts.
	MaxPayload = BufferSize - Framing
)

// NakLRC is the only valid checksum after SYNC NAK.
const NakLRC = Sync ^ Nak

// AckLRCSeed is the value a received ACK frame's LRC must fold to once
// every message byte has been XORed into it.
const AckLRCSeed = Sync ^ Ack
