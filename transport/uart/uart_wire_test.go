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

//nolint:paralleltest // Test file - parallel tests add complexity
package uart

import (
	"errors"
	"fmt"
	"testing"
	"time"

	ccidserial "github.com/ZaparooProject/go-ccidserial"
	virt "github.com/ZaparooProject/go-ccidserial/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// errPortClosed is returned when operations are attempted on a closed port
var errPortClosed = errors.New("port is closed")

// reader is the byte-level side of a mock port
type reader interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// MockSerialPort wraps a simulated reader to implement serial.Port
type MockSerialPort struct {
	sim         reader
	drainErrs   []error
	readTimeout time.Duration
	drains      int
	resets      int
	closed      bool
}

// NewMockSerialPort creates a mock serial port backed by the wire simulator
func NewMockSerialPort(sim reader) *MockSerialPort {
	return &MockSerialPort{
		sim:         sim,
		readTimeout: serial.NoTimeout,
	}
}

func (*MockSerialPort) SetMode(_ *serial.Mode) error {
	return nil
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	if m.closed {
		return 0, errPortClosed
	}
	n, err = m.sim.Read(p)
	if err != nil {
		return n, fmt.Errorf("mock read: %w", err)
	}
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	if m.closed {
		return 0, errPortClosed
	}
	n, err = m.sim.Write(p)
	if err != nil {
		return n, fmt.Errorf("mock write: %w", err)
	}
	return n, nil
}

func (m *MockSerialPort) Drain() error {
	m.drains++
	if len(m.drainErrs) > 0 {
		err := m.drainErrs[0]
		m.drainErrs = m.drainErrs[1:]
		return err
	}
	return nil
}

func (m *MockSerialPort) ResetInputBuffer() error {
	m.resets++
	return nil
}

func (*MockSerialPort) ResetOutputBuffer() error {
	return nil
}

func (*MockSerialPort) SetDTR(_ bool) error {
	return nil
}

func (*MockSerialPort) SetRTS(_ bool) error {
	return nil
}

func (*MockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.readTimeout = t
	return nil
}

func (m *MockSerialPort) Close() error {
	m.closed = true
	return nil
}

func (*MockSerialPort) Break(_ time.Duration) error {
	return nil
}

// Verify interface implementation
var _ serial.Port = (*MockSerialPort)(nil)

// newTestPort opens a registry connection through a Port backed by sim
func newTestPort(t *testing.T, sim reader, opts ...ccidserial.Option) (*ccidserial.Registry, *MockSerialPort) {
	t.Helper()
	mock := NewMockSerialPort(sim)
	reg, err := ccidserial.NewRegistry(opts...)
	require.NoError(t, err)
	_, err = reg.Open(0, New(mock, "mock://gempc"), "mock://gempc")
	require.NoError(t, err)
	return reg, mock
}

func getSlotStatus(seq byte) []byte {
	return virt.BuildMessage(virt.PCToRDRGetSlotStatus, 0, seq, nil)
}

func TestUART_Transmit(t *testing.T) {
	sim := virt.NewVirtualReader()
	reg, mock := newTestPort(t, sim)

	resp, err := reg.Transmit(0, getSlotStatus(1))
	require.NoError(t, err)
	assert.Equal(t, byte(virt.RDRToPCSlotStatus), resp.Frame.MessageType())
	assert.Equal(t, byte(1), resp.Frame.Seq())
	assert.False(t, resp.ChecksumMismatch)
	assert.Positive(t, mock.drains, "writes must be drained")
	assert.Equal(t, ccidserial.DefaultReadTimeout, mock.readTimeout)
}

func TestUART_Handshake(t *testing.T) {
	sim := virt.NewVirtualReader()
	sim.SetFirmware("GemTwin V4.20")
	reg, _ := newTestPort(t, sim, ccidserial.WithHandshake())

	conn, err := reg.Connection(0)
	require.NoError(t, err)
	assert.Equal(t, "GemTwin V4.20", conn.Firmware())
	assert.True(t, sim.SyncNotification())
}

func TestUART_CardInsertedDuringExchange(t *testing.T) {
	sim := virt.NewVirtualReader()
	var seen []ccidserial.LinkEvent
	reg, _ := newTestPort(t, sim, ccidserial.WithEventHandler(func(_ int, ev ccidserial.LinkEvent) {
		seen = append(seen, ev)
	}))

	sim.InsertCard()
	resp, err := reg.Transmit(0, virt.BuildMessage(virt.PCToRDRIccPowerOn, 0, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, byte(virt.RDRToPCDataBlock), resp.Frame.MessageType())
	require.Len(t, resp.Events, 1)
	assert.Equal(t, ccidserial.EventCardInserted, resp.Events[0].Type)
	assert.Equal(t, resp.Events, seen)
}

func TestUART_MutedReaderTimesOut(t *testing.T) {
	sim := virt.NewVirtualReader()
	reg, _ := newTestPort(t, sim)
	sim.Mute()

	_, err := reg.Transmit(0, getSlotStatus(3))
	require.Error(t, err)
	assert.True(t, ccidserial.IsTimeout(err))
}

func TestUART_FragmentedLine(t *testing.T) {
	sim := virt.NewVirtualReader()
	sim.SetMaxRead(3)
	reg, _ := newTestPort(t, sim)

	for seq := byte(1); seq <= 5; seq++ {
		resp, err := reg.Transmit(0, virt.BuildMessage(virt.PCToRDRXfrBlock, 0, seq, []byte{0x00, 0xA4, 0x04, 0x00}))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x90, 0x00}, resp.Frame.Payload())
		assert.Equal(t, seq, resp.Frame.Seq())
	}
}

func TestUART_Jittery_MultipleCommands(t *testing.T) {
	sim := virt.NewVirtualReader()
	jittery := virt.NewJitteryDescriptor(sim, virt.JitterConfig{
		MaxLatencyMs:       2,
		FragmentReads:      true,
		FragmentMinBytes:   1,
		FIFOBoundaryStress: true,
		Seed:               424242,
	})
	reg, _ := newTestPort(t, jittery)

	for seq := byte(1); seq <= 10; seq++ {
		sim.InjectTimeExtensions(int(seq % 3))
		resp, err := reg.Transmit(0, getSlotStatus(seq))
		require.NoError(t, err, "command %d", seq)
		assert.Equal(t, seq, resp.Frame.Seq())
	}
}

func TestUART_ChecksumErrorStillDelivered(t *testing.T) {
	sim := virt.NewVirtualReader()
	reg, _ := newTestPort(t, sim)

	sim.InjectChecksumError()
	resp, err := reg.Transmit(0, getSlotStatus(4))
	require.NoError(t, err)
	assert.True(t, resp.ChecksumMismatch)
	assert.Equal(t, byte(virt.RDRToPCSlotStatus), resp.Frame.MessageType())
}

func TestPort_WaitReadableKeepsLookahead(t *testing.T) {
	sim := virt.NewVirtualReader()
	port := New(NewMockSerialPort(sim), "mock://lookahead")

	ok, err := port.WaitReadable(10 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "nothing sent yet")

	pkt := virt.BuildPacket(getSlotStatus(1))
	_, err = port.Write(pkt)
	require.NoError(t, err)

	ok, err = port.WaitReadable(10 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	buf := make([]byte, len(pkt))
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, pkt[:n], buf[:n], "lookahead bytes come first")
}

func TestPort_Close(t *testing.T) {
	mock := NewMockSerialPort(virt.NewVirtualReader())
	port := New(mock, "mock://close")

	require.NoError(t, port.Close())
	require.NoError(t, port.Close(), "second close is a no-op")
	assert.True(t, mock.closed)

	_, err := port.Write([]byte{0x00})
	require.ErrorIs(t, err, ErrPortClosed)
	_, err = port.WaitReadable(time.Millisecond)
	require.ErrorIs(t, err, ErrPortClosed)
	_, err = port.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrPortClosed)
}

func TestPort_Path(t *testing.T) {
	port := New(NewMockSerialPort(virt.NewVirtualReader()), "/dev/ttyS0")
	assert.Equal(t, "/dev/ttyS0", port.Path())
}

func TestPort_DrainRetriesInterruptedCall(t *testing.T) {
	mock := NewMockSerialPort(virt.NewVirtualReader())
	mock.drainErrs = []error{errors.New("interrupted system call"), nil}
	port := New(mock, "mock://eintr")

	_, err := port.Write(virt.BuildPacket(getSlotStatus(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, mock.drains)
}

func TestPort_DrainGivesUpOnOtherErrors(t *testing.T) {
	mock := NewMockSerialPort(virt.NewVirtualReader())
	mock.drainErrs = []error{errors.New("input/output error")}
	port := New(mock, "mock://eio")

	_, err := port.Write([]byte{0x03})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain failed")
	assert.Equal(t, 1, mock.drains)
}

func TestIsInterruptedSystemCall(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "message", err: errors.New("read: Interrupted System Call"), want: true},
		{name: "errno name", err: errors.New("EINTR"), want: true},
		{name: "other", err: errors.New("no such device"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInterruptedSystemCall(tt.err))
		})
	}
}

func TestMode(t *testing.T) {
	mode := Mode()
	assert.Equal(t, BaudRate, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
}
