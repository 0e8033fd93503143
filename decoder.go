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
	"fmt"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
)

// decodeState is a position in the receive state machine. Every state
// consumes its bytes and names the next one:
//
//	start       -> slotChange | sync | start (time request)
//	slotChange  -> start
//	sync        -> ack | nak
//	nak         -> start
//	ack         -> start (echo) | done (response)
type decodeState int

const (
	stateStart decodeState = iota
	stateSlotChange
	stateSync
	stateNak
	stateAck
	stateDone
)

func (s decodeState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateSlotChange:
		return "slot change"
	case stateSync:
		return "sync"
	case stateNak:
		return "nak"
	case stateAck:
		return "ack"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("decodeState(%d)", int(s))
	}
}

// decoder turns the byte stream of one Receive into a Response. It is
// discarded afterwards; nothing carries over between calls except the
// connection's lookahead buffer.
type decoder struct {
	conn *Connection
	resp Response
	// echo is true until the copy of the sent command has been consumed.
	echo bool
	one  [1]byte
	msg  [frame.BufferSize]byte
}

func newDecoder(c *Connection) *decoder {
	return &decoder{conn: c, echo: true}
}

// run drives the state machine until the response frame is complete. The
// ack state is reached at most twice: once for the echo, once for the
// answer.
func (d *decoder) run() (*Response, error) {
	state := stateStart
	for state != stateDone {
		next, ev, err := d.step(state)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			d.resp.Events = append(d.resp.Events, *ev)
			if d.conn.onEvent != nil {
				d.conn.onEvent(d.conn.slot, *ev)
			}
		}
		state = next
	}
	return &d.resp, nil
}

// step runs one transition.
func (d *decoder) step(state decodeState) (decodeState, *LinkEvent, error) {
	switch state {
	case stateStart:
		return d.start()
	case stateSlotChange:
		return d.slotChange()
	case stateSync:
		return d.sync()
	case stateNak:
		return d.nak()
	case stateAck:
		return d.ack()
	default:
		return stateDone, nil, nil
	}
}

// read fills dst from the connection, turning any failure into a
// communication error for the whole decode.
func (d *decoder) read(dst []byte) error {
	if err := d.conn.getBytes(dst); err != nil {
		return NewCommunicationError("Receive", d.conn.path, err)
	}
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if err := d.read(d.one[:]); err != nil {
		return 0, err
	}
	return d.one[0], nil
}

func (d *decoder) start() (decodeState, *LinkEvent, error) {
	Debugln("start")
	c, err := d.readByte()
	if err != nil {
		return stateStart, nil, err
	}

	switch {
	case c == frame.NotifySlotChange:
		return stateSlotChange, nil, nil
	case c == frame.Sync:
		return stateSync, nil, nil
	case c >= frame.TimeRequestMin:
		Debugf("time request: 0x%02X", c)
		return stateStart, nil, nil
	default:
		Debugf("Got 0x%02X", c)
		return stateStart, nil, NewProtocolError("Receive", d.conn.path, c, stateStart.String())
	}
}

func (d *decoder) slotChange() (decodeState, *LinkEvent, error) {
	Debugln("slot change")
	c, err := d.readByte()
	if err != nil {
		return stateSlotChange, nil, err
	}

	ev := &LinkEvent{Code: c}
	switch c {
	case frame.CardAbsent:
		Debugln("Card removed")
		ev.Type = EventCardRemoved
	case frame.CardPresent:
		Debugln("Card inserted")
		ev.Type = EventCardInserted
	default:
		Debugf("Unknown card movement: %d", c)
		ev.Type = EventUnknownMovement
	}
	return stateStart, ev, nil
}

func (d *decoder) sync() (decodeState, *LinkEvent, error) {
	Debugln("sync")
	c, err := d.readByte()
	if err != nil {
		return stateSync, nil, err
	}

	switch c {
	case frame.Ack:
		return stateAck, nil, nil
	case frame.Nak:
		return stateNak, nil, nil
	default:
		Debugf("Got 0x%02X instead of ACK/NAK", c)
		return stateSync, nil, NewProtocolError("Receive", d.conn.path, c, stateSync.String())
	}
}

// nak drains the LRC of a NAK packet. A wrong LRC is only logged.
func (d *decoder) nak() (decodeState, *LinkEvent, error) {
	Debugln("nak")
	c, err := d.readByte()
	if err != nil {
		return stateNak, nil, err
	}

	if c != frame.NakLRC {
		Debugf("Wrong NAK LRC: 0x%02X", c)
		d.conn.traceRX([]byte{c}, "bad NAK LRC")
	}
	return stateStart, nil, nil
}

// ack reads one CCID message in two stages, fixed header then the rest,
// followed by its LRC. A checksum mismatch is logged and the frame kept.
func (d *decoder) ack() (decodeState, *LinkEvent, error) {
	Debugln("ack")
	header := d.msg[:frame.HeaderSize]
	if err := d.read(header); err != nil {
		return stateAck, nil, err
	}

	total, ok := frame.MessageLength(header)
	if !ok {
		Debugf("frame too large, header: %s", hexString(header))
		return stateAck, nil, NewTransportError("Receive", d.conn.path,
			fmt.Errorf("%w: header %s", ErrFrameTooLarge, hexString(header)), ErrorTypePermanent)
	}

	Debugf("frame size: %d", total)
	if err := d.read(d.msg[frame.HeaderSize:total]); err != nil {
		return stateAck, nil, err
	}
	debugXXD("frame: ", d.msg[:total])

	Debugln("lrc")
	lrc, err := d.readByte()
	if err != nil {
		return stateAck, nil, err
	}
	Debugf("lrc: 0x%02X", lrc)

	checksumOK := frame.VerifyAck(d.msg[:total], lrc)
	if !checksumOK {
		Debugf("Wrong LRC: 0x%02X", lrc^frame.LRC(d.msg[:total]))
		d.conn.traceRX([]byte{lrc}, ErrChecksumMismatch.Error())
	}

	if d.echo {
		d.echo = false
		return stateStart, nil, nil
	}

	d.resp.Frame = append(Frame(nil), d.msg[:total]...)
	d.resp.ChecksumMismatch = !checksumOK
	return stateDone, nil, nil
}
