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

// Package ccidserial carries CCID messages between a host driver and a
// GemPC Twin style smart card reader attached to a serial line.
//
// Every message is wrapped as SYNC(0x03) ACK(0x06) <message> LRC, where the
// LRC is the XOR of all preceding bytes. The reader echoes each command
// before answering it, may send NAK packets (SYNC NAK 0x16), single byte
// time extension requests (0x80-0xFF), and card movement notifications
// (0x50 followed by 0x02 absent or 0x03 present) between them.
//
// A Registry owns a fixed number of reader slots. Open attaches an already
// configured Descriptor (see transport/uart and transport/tty) to a slot;
// Send, Receive and Transmit then exchange messages on it:
//
//	reg, _ := ccidserial.NewRegistry()
//	port, _ := uart.Open("/dev/ttyUSB0")
//	conn, err := reg.Open(0, port, port.Path())
//	...
//	resp, err := conn.Transmit(msg)
//	for _, ev := range resp.Events {
//	    log.Println(ev)
//	}
//
// The detection package finds readers by probing serial ports with the
// same handshake Open runs under WithHandshake.
//
// Reads wait at most the connection's read timeout for each chunk of
// data. Timeouts, I/O failures and unexpected control bytes end the
// exchange; a wrong response checksum is only logged and reported in
// Response.ChecksumMismatch.
package ccidserial
