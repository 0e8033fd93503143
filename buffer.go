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

import "fmt"

// getBytes fills dst from the lookahead buffer, pulling one fresh chunk from
// the line when the buffered bytes fall short. Bytes the chunk returns past
// the request stay buffered for the next call. The cursors only move once
// the chunk read succeeded. When the unread bytes sit at the very end of the
// buffer the chunk lands at offset 0, and a failed chunk there leaves the
// buffered bytes invalid.
func (c *Connection) getBytes(dst []byte) error {
	length := len(dst)
	if length > len(c.buf) {
		return NewTransportError("getBytes", c.path,
			fmt.Errorf("%w: %d > %d", ErrRequestTooLarge, length, len(c.buf)), ErrorTypePermanent)
	}

	Debugf("available: %d, needed: %d", c.valid-c.consumed, length)

	if c.consumed+length <= c.valid {
		copy(dst, c.buf[c.consumed:c.consumed+length])
		c.consumed += length
		return nil
	}

	present := c.valid - c.consumed
	if present > 0 {
		Debugf("some data available: %d", present)
		copy(dst, c.buf[c.consumed:c.valid])
	}

	shortfall := length - present
	Debugf("get more data: %d", shortfall)

	// Land the chunk past the unread span when it fits, so a chunk that
	// fails halfway leaves those bytes intact for the next call.
	at := 0
	if c.valid+shortfall <= len(c.buf) {
		at = c.valid
	}
	n, err := c.readChunk(c.buf[at:], shortfall)
	if err != nil {
		return err
	}

	copy(dst[present:], c.buf[at:at+shortfall])
	c.consumed = at + shortfall
	c.valid = at + n
	Debugf("offset: %d, last_offset: %d", c.consumed, c.valid)

	return nil
}
