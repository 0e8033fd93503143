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
	"errors"
	"io"
)

// readChunk reads at least minLen and at most len(buf) bytes from the line
// into buf, waiting up to the read timeout before every underlying read.
// It returns the number of bytes read, which may exceed minLen when the
// line had more pending.
func (c *Connection) readChunk(buf []byte, minLen int) (int, error) {
	timeout := c.caps.ReadTimeout
	read := 0

	for read < minLen {
		ready, err := c.desc.WaitReadable(timeout)
		if err != nil {
			Debugf("select: %v", err)
			return 0, NewTransportReadError("readChunk", c.path, err)
		}
		if !ready {
			Debugf("Timeout! (%v)", timeout)
			c.traceTimeout("waiting for reader")
			return 0, NewTimeoutError("readChunk", c.path)
		}

		n, err := c.desc.Read(buf[read:])
		if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
			Debugf("read error: %v", err)
			if errors.Is(err, io.EOF) {
				return 0, NewTransportError("readChunk", c.path, ErrTransportClosed, ErrorTypePermanent)
			}
			return 0, NewTransportReadError("readChunk", c.path, err)
		}
		if n == 0 {
			// Readable but empty: the line hung up.
			Debugln("read returned no data after select")
			return 0, NewTransportError("readChunk", c.path, ErrTransportClosed, ErrorTypePermanent)
		}

		debugXXD(c.slotHeader("<-"), buf[read:read+n])
		c.traceRX(buf[read:read+n], "")

		read += n
		Debugf("read: %d, to read: %d", read, minLen)
	}

	return read, nil
}
