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
	"fmt"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
)

// maxPayload is the largest command Send accepts: the buffer capacity
// minus SYNC, CTRL and LRC.
const maxPayload = frame.MaxPayload

// Response is the outcome of one Receive.
type Response struct {
	// Frame is the reader's answer. The echo of the command is not included.
	Frame Frame
	// Events holds the card movements seen while waiting, in stream order.
	Events []LinkEvent
	// ChecksumMismatch is set when the answer's LRC did not verify. The
	// frame is still delivered.
	ChecksumMismatch bool
}

// Send frames payload as SYNC ACK payload LRC and writes it to the line in
// a single write. A short write fails the call; nothing is retried.
func (c *Connection) Send(payload []byte) error {
	if c.closed {
		return NewTransportError("Send", c.path, ErrTransportClosed, ErrorTypePermanent)
	}
	if len(payload) > maxPayload {
		Debugf("command too long: %d for max %d", len(payload), maxPayload)
		return NewPayloadTooLargeError("Send", c.path, len(payload))
	}

	c.trace = NewTraceBuffer(c.path, 32)

	var pkt [frame.BufferSize]byte
	n, _ := frame.Encode(pkt[:], payload)

	debugXXD(c.slotHeader("->"), pkt[:n])
	c.traceTX(pkt[:n], "")

	written, err := c.desc.Write(pkt[:n])
	if err != nil {
		Debugf("write error: %v", err)
		return c.endTrace(NewTransportWriteError("Send", c.path, err))
	}
	if written != n {
		Debugf("write error: wrote %d of %d bytes", written, n)
		return c.endTrace(NewTransportWriteError("Send", c.path,
			fmt.Errorf("short write: %d of %d bytes", written, n)))
	}

	return nil
}

// Receive reads the reader's answer to the last Send. It first consumes the
// echo of the command, then returns the following frame. Card movement
// notifications, NAK packets and time extension requests met on the way
// are absorbed.
func (c *Connection) Receive() (*Response, error) {
	if c.closed {
		return nil, NewTransportError("Receive", c.path, ErrTransportClosed, ErrorTypePermanent)
	}
	if c.trace == nil {
		c.trace = NewTraceBuffer(c.path, 32)
	}
	d := newDecoder(c)
	resp, err := d.run()
	if err != nil {
		return nil, c.endTrace(err)
	}
	c.trace = nil
	return resp, nil
}

// Transmit sends payload and waits for the answer.
func (c *Connection) Transmit(payload []byte) (*Response, error) {
	if err := c.Send(payload); err != nil {
		return nil, err
	}
	return c.Receive()
}
