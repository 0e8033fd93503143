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

// Package testing provides test utilities including a wire-level GemPC Twin
// simulator.
//
// VirtualReader implements the descriptor contract (Read, Write, Close,
// WaitReadable) and answers SYNC ACK framed CCID commands the way the
// serial reader does: it echoes every command, then optionally interleaves
// card movement notifications, time extension bytes and NAK packets, and
// finally sends the answer.
package testing

import (
	"bytes"
	"errors"
	"time"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
	"github.com/ZaparooProject/go-ccidserial/internal/syncutil"
)

// ErrReaderClosed is returned by a VirtualReader after Close.
var ErrReaderClosed = errors.New("virtual reader closed")

// DefaultFirmware is what the simulator reports to the get firmware escape.
const DefaultFirmware = "GemTwin V1.00"

// Responder builds the answer message for a received command message.
// Returning nil sends no answer at all.
type Responder func(cmd []byte) []byte

// VirtualReader simulates a serial GemPC Twin at the byte level.
type VirtualReader struct {
	responder      Responder
	firmware       string
	rxBuffer       bytes.Buffer
	txBuffer       bytes.Buffer
	commands       [][]byte
	interleave     []byte
	mu             syncutil.Mutex
	maxRead        int
	nakCount       int
	corruptNext    bool
	mute           bool
	closed         bool
	syncNotify     bool
	badPackets     int
	timeExtensions int
}

// NewVirtualReader creates a simulator with the default firmware string.
func NewVirtualReader() *VirtualReader {
	return &VirtualReader{firmware: DefaultFirmware}
}

// SetFirmware changes the firmware string.
func (v *VirtualReader) SetFirmware(fw string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = fw
}

// SetResponder overrides the built-in command handling.
func (v *VirtualReader) SetResponder(r Responder) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.responder = r
}

// SetMaxRead limits how many bytes a single Read returns, mimicking a UART
// that delivers data in small pieces. Zero means unlimited.
func (v *VirtualReader) SetMaxRead(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxRead = n
}

// InsertCard queues a card present notification after the next echo.
func (v *VirtualReader) InsertCard() {
	v.queueInterleave(SlotChange(frame.CardPresent))
}

// RemoveCard queues a card absent notification after the next echo.
func (v *VirtualReader) RemoveCard() {
	v.queueInterleave(SlotChange(frame.CardAbsent))
}

// InjectTimeExtensions queues n time extension request bytes before the
// next answer.
func (v *VirtualReader) InjectTimeExtensions(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.timeExtensions += n
}

// InjectNAK queues a NAK packet before the next answer.
func (v *VirtualReader) InjectNAK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nakCount++
}

// InjectChecksumError corrupts the LRC of the next answer.
func (v *VirtualReader) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = true
}

// Mute makes the reader stop sending anything, including echoes, as if it
// had been unplugged from the line.
func (v *VirtualReader) Mute() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mute = true
}

// Commands returns every well-formed command message received so far.
func (v *VirtualReader) Commands() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.commands))
	copy(out, v.commands)
	return out
}

// BadPackets returns how many received packets failed their LRC.
func (v *VirtualReader) BadPackets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.badPackets
}

// SyncNotification reports whether the host switched card movement
// notification to synchronous mode.
func (v *VirtualReader) SyncNotification() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.syncNotify
}

func (v *VirtualReader) queueInterleave(b []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.interleave = append(v.interleave, b...)
}

// WaitReadable reports whether answer bytes are pending. The simulator only
// produces data in response to Write, so an empty queue is an immediate
// timeout.
func (v *VirtualReader) WaitReadable(_ time.Duration) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, ErrReaderClosed
	}
	return v.txBuffer.Len() > 0, nil
}

// Read returns pending bytes to the host.
func (v *VirtualReader) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrReaderClosed
	}
	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	if v.maxRead > 0 && len(buf) > v.maxRead {
		buf = buf[:v.maxRead]
	}
	return v.txBuffer.Read(buf) //nolint:wrapcheck // bytes.Buffer only fails on empty
}

// Write receives bytes from the host and answers every complete packet.
func (v *VirtualReader) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrReaderClosed
	}

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Close shuts the simulator down.
func (v *VirtualReader) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// processReceivedData consumes complete SYNC ACK packets from the receive
// buffer.
func (v *VirtualReader) processReceivedData() {
	for {
		data := v.rxBuffer.Bytes()
		if len(data) < 2+frame.HeaderSize {
			return
		}
		if data[0] != frame.Sync || data[1] != frame.Ack {
			// Resynchronize on the next SYNC
			v.rxBuffer.Next(1)
			continue
		}

		total, ok := frame.MessageLength(data[2 : 2+frame.HeaderSize])
		if !ok {
			v.rxBuffer.Reset()
			return
		}
		pktLen := total + frame.Framing
		if len(data) < pktLen {
			return
		}

		pkt := append([]byte(nil), data[:pktLen]...)
		v.rxBuffer.Next(pktLen)
		v.handlePacket(pkt)
	}
}

func (v *VirtualReader) handlePacket(pkt []byte) {
	if v.mute {
		return
	}

	// The line echoes whatever arrived, good or bad.
	v.txBuffer.Write(pkt)

	if frame.LRC(pkt) != 0 {
		v.badPackets++
		v.txBuffer.Write(NakPacket())
		return
	}

	msg := pkt[2 : len(pkt)-1]
	v.commands = append(v.commands, msg)

	v.txBuffer.Write(v.interleave)
	v.interleave = nil
	for range v.timeExtensions {
		v.txBuffer.WriteByte(frame.TimeRequestMin)
	}
	v.timeExtensions = 0
	for range v.nakCount {
		v.txBuffer.Write(NakPacket())
	}
	v.nakCount = 0

	var answer []byte
	if v.responder != nil {
		answer = v.responder(msg)
	} else {
		answer = v.defaultAnswer(msg)
	}
	if answer == nil {
		return
	}

	out := BuildPacket(answer)
	if v.corruptNext {
		out = CorruptLRC(out)
		v.corruptNext = false
	}
	v.txBuffer.Write(out)
}

// defaultAnswer implements the few commands a driver sends while opening a
// reader plus basic card access.
func (v *VirtualReader) defaultAnswer(cmd []byte) []byte {
	slot, seq := cmd[5], cmd[6]
	data := cmd[frame.FrameOverhead:]

	switch cmd[0] {
	case PCToRDREscape:
		switch {
		case bytes.Equal(data, []byte{0x02}):
			return statusMessage(RDRToPCEscape, slot, seq, defaultResponseStatus, append([]byte(v.firmware), 0x00))
		case bytes.Equal(data, []byte{0x01, 0x01, 0x01}):
			v.syncNotify = true
			return statusMessage(RDRToPCEscape, slot, seq, defaultResponseStatus, nil)
		default:
			return statusMessage(RDRToPCEscape, slot, seq, statusCommandFailed, nil)
		}
	case PCToRDRIccPowerOn:
		atr := []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06}
		return statusMessage(RDRToPCDataBlock, slot, seq, defaultResponseStatus, atr)
	case PCToRDRXfrBlock:
		return statusMessage(RDRToPCDataBlock, slot, seq, defaultResponseStatus, []byte{0x90, 0x00})
	case PCToRDRIccPowerOff, PCToRDRGetSlotStatus:
		return statusMessage(RDRToPCSlotStatus, slot, seq, defaultResponseStatus, nil)
	default:
		return statusMessage(RDRToPCSlotStatus, slot, seq, statusCommandFailed, nil)
	}
}

// statusMessage builds an RDR_to_PC message with bStatus set; bError is
// "command not supported" when the status flags a failure.
func statusMessage(msgType, slot, seq, status byte, data []byte) []byte {
	msg := BuildMessage(msgType, slot, seq, data)
	msg[7] = status
	if status&statusCommandFailed != 0 {
		msg[8] = errCmdNotSupported
	}
	return msg
}
