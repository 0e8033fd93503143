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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
)

// CCID message types used by the open handshake
const (
	pcToRdrEscape = 0x6B
	rdrToPcEscape = 0x83
)

// bmCommandStatus occupies the top two bits of bStatus
const (
	statusCommandMask   = 0xC0
	statusCommandFailed = 0x40
)

// handshakeTimeout keeps Open from hanging when nothing is attached.
const handshakeTimeout = 2 * time.Second

// Escape commands understood by the GemPC Twin
var (
	escapeGetFirmware      = []byte{0x02}
	escapeSyncNotification = []byte{0x01, 0x01, 0x01}
)

var (
	// ErrUnexpectedResponse is returned when the reader answers an escape
	// with another message type.
	ErrUnexpectedResponse = errors.New("unexpected response message")
	// ErrCommandFailed is returned when the reader flags a command as failed.
	ErrCommandFailed = errors.New("command failed")
)

// Escape sends a PC_to_RDR_Escape carrying cmd and returns the data of the
// RDR_to_PC_Escape answer. It consumes one bSeq value.
func (c *Connection) Escape(cmd []byte) ([]byte, error) {
	msg := make([]byte, frame.FrameOverhead+len(cmd))
	msg[0] = pcToRdrEscape
	binary.LittleEndian.PutUint32(msg[frame.LengthOffset:frame.HeaderSize], uint32(len(cmd))) //nolint:gosec // bounded by Send
	msg[5] = c.caps.CurrentSlotIndex
	msg[6] = c.caps.NextSeq()
	copy(msg[frame.FrameOverhead:], cmd)

	resp, err := c.Transmit(msg)
	if err != nil {
		return nil, err
	}

	answer := resp.Frame
	if answer.MessageType() != rdrToPcEscape {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedResponse, answer.MessageType())
	}
	if len(answer) >= frame.FrameOverhead && answer[7]&statusCommandMask == statusCommandFailed {
		return nil, fmt.Errorf("%w: bError 0x%02X", ErrCommandFailed, answer[8])
	}
	return answer.Payload(), nil
}

// Handshake checks that a GemPC Twin answers on the line and switches its
// card movement notification to synchronous mode, so that slot changes
// arrive after a command's echo and before its answer. It returns the
// firmware string.
func (c *Connection) Handshake() (string, error) {
	timeout := c.caps.ReadTimeout
	c.caps.ReadTimeout = handshakeTimeout
	data, err := c.Escape(escapeGetFirmware)
	c.caps.ReadTimeout = timeout
	if err != nil {
		Debugln("Get firmware failed. Maybe the reader is not connected")
		return "", fmt.Errorf("get firmware: %w", err)
	}

	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	c.firmware = string(data)
	Debugf("Firmware: %s", c.firmware)

	if _, err := c.Escape(escapeSyncNotification); err != nil {
		Debugln("Change card movement notification failed.")
		return c.firmware, fmt.Errorf("set card movement notification: %w", err)
	}

	return c.firmware, nil
}
