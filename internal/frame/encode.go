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

package frame

import "encoding/binary"

// Encode writes SYNC ACK payload LRC into dst and returns the packet length.
// It returns false without touching dst when payload exceeds MaxPayload or
// dst is too short to hold the packet.
func Encode(dst, payload []byte) (int, bool) {
	n := len(payload) + Framing
	if len(payload) > MaxPayload || len(dst) < n {
		return 0, false
	}

	dst[0] = Sync
	dst[1] = Ack
	copy(dst[2:], payload)
	dst[n-1] = LRC(dst[:n-1])

	return n, true
}

// MessageLength returns the total CCID message length announced by a
// header: the fixed overhead plus dwLength. header must hold at least
// HeaderSize bytes. It returns false when the message could not fit in a
// BufferSize packet.
func MessageLength(header []byte) (int, bool) {
	dwLength := binary.LittleEndian.Uint32(header[LengthOffset:HeaderSize])
	if uint64(dwLength) > BufferSize-FrameOverhead {
		return 0, false
	}
	return FrameOverhead + int(dwLength), true
}
