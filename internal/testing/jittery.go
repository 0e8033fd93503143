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
	"math/rand/v2"
	"time"
)

// Backend is the descriptor shape a JitteryDescriptor wraps.
type Backend interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	WaitReadable(timeout time.Duration) (bool, error)
}

// JitterConfig configures the behavior of JitteryDescriptor.
type JitterConfig struct {
	MaxLatencyMs     int
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
	FragmentReads    bool

	// FIFOBoundaryStress splits reads at 16 byte boundaries, the receive
	// FIFO depth of a 16550 compatible UART.
	FIFOBoundaryStress bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatencyMs:     5,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

const fifoDepth = 16

// JitteryDescriptor wraps a descriptor to simulate a serial line that
// delivers data late and in unpredictable pieces. Data read from the
// backend is buffered so fragmentation never loses bytes.
type JitteryDescriptor struct {
	backend         Backend
	rng             *rand.Rand
	readBuf         []byte
	config          JitterConfig
	bytesSinceStall int
	stallTriggered  bool
}

// NewJitteryDescriptor wraps backend with jitter simulation.
func NewJitteryDescriptor(backend Backend, config JitterConfig) *JitteryDescriptor {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryDescriptor{
		backend: backend,
		config:  config,
		rng:     rng,
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryDescriptor) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Close closes the backend and drops buffered data.
func (j *JitteryDescriptor) Close() error {
	j.readBuf = j.readBuf[:0]
	return j.backend.Close() //nolint:wrapcheck // Pass-through wrapper
}

// WaitReadable reports buffered data as ready, otherwise asks the backend.
func (j *JitteryDescriptor) WaitReadable(timeout time.Duration) (bool, error) {
	if len(j.readBuf) > 0 {
		return true, nil
	}
	return j.backend.WaitReadable(timeout) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns a random slice of the pending data after a random delay.
//
//nolint:gocognit,cyclop,revive // Jitter simulation inherently requires multiple conditions
func (j *JitteryDescriptor) Read(buf []byte) (int, error) {
	if j.config.MaxLatencyMs > 0 {
		delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	toReturn := min(len(j.readBuf), len(buf))

	// Limit data before the stall point, then stall once
	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.bytesSinceStall >= j.config.StallAfterBytes {
			j.stallTriggered = true
			if j.config.StallDuration > 0 {
				time.Sleep(j.config.StallDuration)
			}
		} else if remaining := j.config.StallAfterBytes - j.bytesSinceStall; toReturn > remaining {
			toReturn = remaining
		}
	}

	if j.config.FIFOBoundaryStress && toReturn > 0 {
		untilBoundary := fifoDepth - j.bytesSinceStall%fifoDepth
		if untilBoundary < toReturn {
			toReturn = untilBoundary
		}
	}

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		minReturn := j.config.FragmentMinBytes
		toReturn = minReturn + j.rng.IntN(toReturn-minReturn+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	j.bytesSinceStall += toReturn

	return toReturn, nil
}

// ResetStallState resets the stall tracking state.
func (j *JitteryDescriptor) ResetStallState() {
	j.bytesSinceStall = 0
	j.stallTriggered = false
}
