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

// Package uart opens GemPC Twin serial readers through go.bug.st/serial.
//
// A Port satisfies the ccidserial descriptor contract, so it can be handed
// straight to Registry.Open. The readiness wait is emulated with a timed
// read whose bytes are kept as lookahead for the next Read.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// BaudRate is the fixed line speed of the serial GemPC Twin.
const BaudRate = 115200

const lookaheadSize = 64

// ErrPortClosed is returned after Close.
var ErrPortClosed = errors.New("uart: port closed")

// Port is an open serial line to a reader.
type Port struct {
	port        serial.Port
	path        string
	pending     []byte
	lookahead   [lookaheadSize]byte
	lastTimeout time.Duration
	closed      bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// windowsPostWriteDelay gives the Windows serial driver time to flush
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// Mode returns the line settings the reader expects: 8 data bits, no
// parity and two stop bits.
func Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
}

// Open opens the serial device at path and discards anything left in the
// driver buffers.
func Open(path string) (*Port, error) {
	port, err := serial.Open(path, Mode())
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", path, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to flush UART input %s: %w", path, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to flush UART output %s: %w", path, err)
	}

	return New(port, path), nil
}

// New wraps an already open serial port.
func New(port serial.Port, path string) *Port {
	return &Port{port: port, path: path}
}

// Path returns the device path the port was opened with.
func (p *Port) Path() string {
	return p.path
}

// WaitReadable blocks until at least one byte is available or timeout
// elapses. Bytes consumed by the wait are returned by the next Read.
func (p *Port) WaitReadable(timeout time.Duration) (bool, error) {
	if p.closed {
		return false, ErrPortClosed
	}
	if len(p.pending) > 0 {
		return true, nil
	}

	if timeout != p.lastTimeout {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			return false, fmt.Errorf("UART set timeout failed: %w", err)
		}
		p.lastTimeout = timeout
	}

	n, err := p.port.Read(p.lookahead[:])
	if err != nil {
		return false, fmt.Errorf("UART read failed: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	p.pending = p.lookahead[:n]
	return true, nil
}

// Read returns lookahead bytes first, then reads from the line.
func (p *Port) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, ErrPortClosed
	}
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	n, err := p.port.Read(buf)
	if err != nil {
		return n, fmt.Errorf("UART read failed: %w", err)
	}
	return n, nil
}

// Write sends buf and waits for the driver to put it on the line.
func (p *Port) Write(buf []byte) (int, error) {
	if p.closed {
		return 0, ErrPortClosed
	}

	n, err := p.port.Write(buf)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	}
	if err := p.drainWithRetry("write"); err != nil {
		return n, err
	}
	windowsPostWriteDelay()
	return n, nil
}

// Close closes the serial port. Closing twice is a no-op.
func (p *Port) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.pending = nil
	if err := p.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (p *Port) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := p.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	VID          string
	PID          string
	SerialNumber string
	Product      string
	IsUSB        bool
}

// ListPorts enumerates serial ports. USB details are filled in when the
// platform can report them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			out = append(out, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return out, nil
	}

	names, listErr := serial.GetPortsList()
	if listErr != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", listErr)
	}
	out := make([]PortInfo, 0, len(names))
	for _, name := range names {
		out = append(out, PortInfo{Name: name})
	}
	return out, nil
}
