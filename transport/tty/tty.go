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

//go:build linux || darwin

// Package tty drives a reader through a raw file descriptor, using poll(2)
// for the readiness wait. It avoids the extra timed read that a portable
// serial library needs to emulate WaitReadable.
package tty

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("tty: descriptor closed")

// FD is an open terminal, pipe or socket descriptor.
type FD struct {
	path string
	fd   int
}

// New wraps an already open descriptor. FD takes ownership of fd.
func New(fd int, path string) *FD {
	return &FD{fd: fd, path: path}
}

// Path returns the device path.
func (f *FD) Path() string {
	return f.path
}

// Fd returns the raw descriptor, or -1 once closed.
func (f *FD) Fd() int {
	return f.fd
}

// pollTimeout converts a duration to poll(2) milliseconds, rounding up so a
// sub-millisecond wait does not turn into a busy poll.
func pollTimeout(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// WaitReadable waits until the descriptor is readable or timeout elapses.
// A hang-up counts as readable: the following Read returns zero bytes.
func (f *FD) WaitReadable(timeout time.Duration) (bool, error) {
	if f.fd < 0 {
		return false, ErrClosed
	}

	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(f.fd), Events: unix.POLLIN}} //nolint:gosec // descriptors fit in int32
	for {
		n, err := unix.Poll(fds, pollTimeout(time.Until(deadline)))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll %s: %w", f.path, err)
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return false, fmt.Errorf("poll %s: %w", f.path, unix.EBADF)
		}
		return true, nil
	}
}

// Read reads once from the descriptor.
func (f *FD) Read(buf []byte) (int, error) {
	if f.fd < 0 {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(f.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", f.path, err)
		}
		return n, nil
	}
}

// Write writes buf once. A short count is returned as is.
func (f *FD) Write(buf []byte) (int, error) {
	if f.fd < 0 {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(f.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return max(n, 0), fmt.Errorf("write %s: %w", f.path, err)
		}
		return n, nil
	}
}

// Close closes the descriptor. Closing twice is a no-op.
func (f *FD) Close() error {
	if f.fd < 0 {
		return nil
	}
	fd := f.fd
	f.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s: %w", f.path, err)
	}
	return nil
}
