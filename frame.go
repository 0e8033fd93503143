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

package ccidserial

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
)

// Frame is one complete CCID message: a 10-byte header (bMessageType,
// dwLength, bSlot, bSeq, three message specific bytes) followed by
// dwLength data bytes.
type Frame []byte

// MessageType returns bMessageType, or 0 for a truncated frame.
func (f Frame) MessageType() byte {
	if len(f) == 0 {
		return 0
	}
	return f[0]
}

// PayloadLength returns the dwLength field.
func (f Frame) PayloadLength() uint32 {
	if len(f) < frame.HeaderSize {
		return 0
	}
	return binary.LittleEndian.Uint32(f[frame.LengthOffset:frame.HeaderSize])
}

// Slot returns bSlot.
func (f Frame) Slot() byte {
	if len(f) < 6 {
		return 0
	}
	return f[5]
}

// Seq returns bSeq.
func (f Frame) Seq() byte {
	if len(f) < 7 {
		return 0
	}
	return f[6]
}

// Payload returns the data bytes after the fixed header.
func (f Frame) Payload() []byte {
	if len(f) < frame.FrameOverhead {
		return nil
	}
	return f[frame.FrameOverhead:]
}
