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

package main

import (
	"fmt"

	ccidserial "github.com/ZaparooProject/go-ccidserial"
	"github.com/ZaparooProject/go-ccidserial/transport/tty"
)

func openRawTTY(path string) (ccidserial.Descriptor, error) {
	fd, err := tty.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw tty %s: %w", path, err)
	}
	return fd, nil
}
