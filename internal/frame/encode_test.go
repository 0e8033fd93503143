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

package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{
			name:    "empty payload",
			payload: nil,
			want:    []byte{Sync, Ack, Sync ^ Ack},
		},
		{
			name:    "single byte",
			payload: []byte{0x65},
			want:    []byte{Sync, Ack, 0x65, Sync ^ Ack ^ 0x65},
		},
		{
			name:    "power off message",
			payload: []byte{0x63, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00},
			want: []byte{
				Sync, Ack, 0x63, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00,
				Sync ^ Ack ^ 0x63 ^ 0x07,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dst := make([]byte, BufferSize)
			n, ok := Encode(dst, tt.payload)
			require.True(t, ok)
			assert.Equal(t, tt.want, dst[:n])
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 10, 271, MaxPayload} {
		payload := bytes.Repeat([]byte{byte(size)}, size)
		for i := range payload {
			payload[i] ^= byte(i)
		}

		dst := make([]byte, BufferSize)
		n, ok := Encode(dst, payload)
		require.True(t, ok, "size %d", size)
		require.Equal(t, size+Framing, n)

		assert.Equal(t, byte(Sync), dst[0])
		assert.Equal(t, byte(Ack), dst[1])
		assert.Equal(t, payload, dst[2:n-1], "size %d", size)
		assert.Equal(t, LRC(dst[:n-1]), dst[n-1], "size %d", size)
		assert.Zero(t, LRC(dst[:n]), "whole packet must fold to zero")
	}
}

func TestEncode_TooLarge(t *testing.T) {
	t.Parallel()

	dst := make([]byte, BufferSize+1)
	dst[0] = 0xAA

	_, ok := Encode(dst, make([]byte, MaxPayload+1))
	assert.False(t, ok)
	assert.Equal(t, byte(0xAA), dst[0], "dst must be untouched on rejection")
}

func TestEncode_ShortDestination(t *testing.T) {
	t.Parallel()

	_, ok := Encode(make([]byte, 4), []byte{0x01, 0x02})
	assert.False(t, ok)
}

func TestMessageLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header []byte
		want   int
		wantOK bool
	}{
		{name: "empty message", header: []byte{0x80, 0x00, 0x00, 0x00, 0x00}, want: 10, wantOK: true},
		{name: "little endian", header: []byte{0x80, 0x02, 0x01, 0x00, 0x00}, want: 10 + 0x0102, wantOK: true},
		{name: "exactly fits", header: []byte{0x80, 0x1A, 0x02, 0x00, 0x00}, want: BufferSize, wantOK: true},
		{name: "one over", header: []byte{0x80, 0x1B, 0x02, 0x00, 0x00}, wantOK: false},
		{name: "garbage length", header: []byte{0x80, 0xFF, 0xFF, 0xFF, 0xFF}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := MessageLength(tt.header)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
