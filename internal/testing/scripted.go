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
	"bytes"
	"errors"
	"time"
)

// ErrScriptClosed is returned by a ScriptedDescriptor after Close.
var ErrScriptClosed = errors.New("scripted descriptor closed")

// ScriptedDescriptor replays a fixed byte stream. Each queued chunk is what
// one underlying read can return at most, which lets tests control exactly
// how the operating system fragments the stream. When the script runs dry
// WaitReadable reports a timeout without sleeping.
type ScriptedDescriptor struct {
	WaitErr    error
	ReadErr    error
	WriteErr   error
	chunks     [][]byte
	written    bytes.Buffer
	WaitCalls  int
	ReadCalls  int
	ShortWrite int // when > 0, Write reports at most this many bytes
	closed     bool
}

// NewScriptedDescriptor queues chunks for reading.
func NewScriptedDescriptor(chunks ...[]byte) *ScriptedDescriptor {
	s := &ScriptedDescriptor{}
	s.Feed(chunks...)
	return s
}

// Feed appends chunks to the read script.
func (s *ScriptedDescriptor) Feed(chunks ...[]byte) {
	for _, c := range chunks {
		if len(c) > 0 {
			s.chunks = append(s.chunks, append([]byte(nil), c...))
		}
	}
}

// Remaining returns how many scripted bytes have not been read yet.
func (s *ScriptedDescriptor) Remaining() int {
	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

// Written returns everything the host wrote.
func (s *ScriptedDescriptor) Written() []byte {
	return s.written.Bytes()
}

// WaitReadable implements the descriptor readiness wait.
func (s *ScriptedDescriptor) WaitReadable(_ time.Duration) (bool, error) {
	s.WaitCalls++
	if s.closed {
		return false, ErrScriptClosed
	}
	if s.WaitErr != nil {
		return false, s.WaitErr
	}
	return len(s.chunks) > 0, nil
}

// Read returns bytes from the head chunk only.
func (s *ScriptedDescriptor) Read(p []byte) (int, error) {
	s.ReadCalls++
	if s.closed {
		return 0, ErrScriptClosed
	}
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	if len(s.chunks) == 0 {
		return 0, nil
	}

	n := copy(p, s.chunks[0])
	if n == len(s.chunks[0]) {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = s.chunks[0][n:]
	}
	return n, nil
}

// Write records p.
func (s *ScriptedDescriptor) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrScriptClosed
	}
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	n := len(p)
	if s.ShortWrite > 0 && s.ShortWrite < n {
		n = s.ShortWrite
	}
	s.written.Write(p[:n])
	return n, nil
}

// Close marks the descriptor closed.
func (s *ScriptedDescriptor) Close() error {
	s.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (s *ScriptedDescriptor) IsClosed() bool {
	return s.closed
}
