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
	"time"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
)

// Connection is the state of one open reader slot: the serial line, its
// device path, the lookahead buffer and the descriptor record.
//
// A Connection is not safe for concurrent use. Callers must serialize
// exchanges on a slot themselves.
type Connection struct {
	desc     Descriptor
	onEvent  EventHandler
	trace    *TraceBuffer
	path     string
	firmware string
	caps     Capabilities
	slot     int
	// buf[consumed:valid] holds bytes read from the line but not yet
	// handed to the decoder.
	consumed int
	valid    int
	closed   bool
	buf      [frame.BufferSize]byte
}

func newConnection(slot int, desc Descriptor, path string, timeout time.Duration, onEvent EventHandler) *Connection {
	return &Connection{
		desc:    desc,
		path:    path,
		slot:    slot,
		caps:    GemPCTwinCapabilities(timeout),
		onEvent: onEvent,
	}
}

// Slot returns the registry slot the connection occupies.
func (c *Connection) Slot() int {
	return c.slot
}

// DevicePath returns the device identifier the connection was opened with.
func (c *Connection) DevicePath() string {
	return c.path
}

// Capabilities returns the slot's descriptor record for the command layer
// to read and populate.
func (c *Connection) Capabilities() *Capabilities {
	return &c.caps
}

// ReadTimeout returns the per-read readiness timeout.
func (c *Connection) ReadTimeout() time.Duration {
	return c.caps.ReadTimeout
}

// SetReadTimeout changes the per-read readiness timeout. A frame spread
// over several reads may take a multiple of it.
func (c *Connection) SetReadTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: read timeout %v", ErrInvalidParameter, timeout)
	}
	c.caps.ReadTimeout = timeout
	return nil
}

// Buffered returns how many received bytes are waiting in the lookahead
// buffer.
func (c *Connection) Buffered() int {
	return c.valid - c.consumed
}

// Firmware returns the firmware string reported during Handshake, if any.
func (c *Connection) Firmware() string {
	return c.firmware
}

// IsClosed reports whether the slot has been released.
func (c *Connection) IsClosed() bool {
	return c.closed
}

// slotHeader is the hex dump prefix used for wire traffic on this slot.
func (c *Connection) slotHeader(dir string) string {
	return fmt.Sprintf("%s %06X ", dir, c.slot)
}

// traceTX records a TX operation if trace buffer is active
func (c *Connection) traceTX(data []byte, note string) {
	if c.trace != nil {
		c.trace.RecordTX(data, note)
	}
}

// traceRX records an RX operation if trace buffer is active
func (c *Connection) traceRX(data []byte, note string) {
	if c.trace != nil {
		c.trace.RecordRX(data, note)
	}
}

// traceTimeout records a timeout if trace buffer is active
func (c *Connection) traceTimeout(note string) {
	if c.trace != nil {
		c.trace.RecordTimeout(note)
	}
}

// wrapTrace attaches the wire trace of the current exchange to err.
func (c *Connection) wrapTrace(err error) error {
	if c.trace == nil {
		return err
	}
	return c.trace.WrapError(err)
}

// endTrace wraps err with the current trace and ends the exchange.
func (c *Connection) endTrace(err error) error {
	err = c.wrapTrace(err)
	c.trace = nil
	return err
}

func (c *Connection) release() error {
	c.closed = true
	c.consumed, c.valid = 0, 0
	if err := c.desc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.path, err)
	}
	return nil
}
