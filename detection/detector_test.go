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

package detection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccidserial "github.com/ZaparooProject/go-ccidserial"
	virt "github.com/ZaparooProject/go-ccidserial/internal/testing"
	"github.com/ZaparooProject/go-ccidserial/transport/uart"
)

var errNoSuchPort = errors.New("no such port")

// fakeHost serves a fixed port list and opens a simulated reader for every
// path present in readers.
type fakeHost struct {
	readers map[string]*virt.VirtualReader
	ports   []uart.PortInfo
	opens   atomic.Int32
}

func (h *fakeHost) list() ([]uart.PortInfo, error) {
	return h.ports, nil
}

func (h *fakeHost) open(path string) (ccidserial.Descriptor, error) {
	h.opens.Add(1)
	if r, ok := h.readers[path]; ok {
		return r, nil
	}
	return nil, errNoSuchPort
}

func (h *fakeHost) detector() *Detector {
	return NewWithBackend(h.list, h.open)
}

func uncachedOptions(mode Mode) *Options {
	opts := DefaultOptions()
	opts.Mode = mode
	opts.EnableCache = false
	opts.Blocklist = nil
	return &opts
}

func TestConfidence_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "unknown", Confidence(99).String())
}

func TestDeviceInfo_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
		device   DeviceInfo
	}{
		{
			name:     "probed reader",
			device:   DeviceInfo{Path: "/dev/ttyUSB0", Firmware: "GemTwin V1.00", Confidence: High},
			expected: "GemTwin V1.00 at /dev/ttyUSB0 (confidence: high)",
		},
		{
			name:     "unprobed port",
			device:   DeviceInfo{Path: "COM3", Confidence: Medium},
			expected: "serial port COM3 (confidence: medium)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.device.String())
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, Safe, opts.Mode)
	assert.True(t, opts.EnableCache)
	assert.Positive(t, opts.Timeout)
	assert.Positive(t, opts.ProbeTimeout)
	assert.Equal(t, DefaultBlocklist(), opts.Blocklist)
}

func TestIsLikelyReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		port uart.PortInfo
		want bool
	}{
		{name: "gemalto vendor", port: uart.PortInfo{Name: "/dev/ttyACM0", VID: "08e6", PID: "3437"}, want: true},
		{name: "product string", port: uart.PortInfo{Name: "COM4", Product: "GemPC Twin"}, want: true},
		{name: "usb serial adapter", port: uart.PortInfo{Name: "/dev/ttyUSB0", IsUSB: true}, want: true},
		{name: "macos adapter", port: uart.PortInfo{Name: "/dev/cu.usbserial-1410", IsUSB: true}, want: true},
		{name: "builtin port", port: uart.PortInfo{Name: "/dev/ttyS0"}, want: false},
		{name: "usb modem", port: uart.PortInfo{Name: "/dev/ttyACM0", IsUSB: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isLikelyReader(tt.port))
		})
	}
}

func TestDetect_SafeModeConfirmsReader(t *testing.T) {
	t.Parallel()

	reader := virt.NewVirtualReader()
	reader.SetFirmware("GemTwin V2.11")
	host := &fakeHost{
		ports: []uart.PortInfo{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1"},
		},
		readers: map[string]*virt.VirtualReader{"/dev/ttyS0": reader},
	}

	devices, err := host.detector().Detect(context.Background(), uncachedOptions(Safe))
	require.NoError(t, err)
	require.Len(t, devices, 2)

	byPath := map[string]DeviceInfo{}
	for _, d := range devices {
		byPath[d.Path] = d
	}

	confirmed := byPath["/dev/ttyS0"]
	assert.Equal(t, High, confirmed.Confidence)
	assert.Equal(t, "GemTwin V2.11", confirmed.Firmware)

	// The adapter did not open but its metadata still points at a reader
	adapter := byPath["/dev/ttyUSB0"]
	assert.Equal(t, Medium, adapter.Confidence)
	assert.Empty(t, adapter.Firmware)
	assert.Equal(t, "0403:6001", adapter.Metadata["vidpid"])
	assert.Equal(t, "A1", adapter.Metadata["serial"])

	assert.True(t, reader.SyncNotification(), "probe should run the full handshake")
	_, err = reader.Write([]byte{0x03})
	assert.ErrorIs(t, err, virt.ErrReaderClosed, "probe must close the port")
}

func TestDetect_SafeModeDropsSilentBuiltinPort(t *testing.T) {
	t.Parallel()

	muted := virt.NewVirtualReader()
	muted.Mute()
	host := &fakeHost{
		ports:   []uart.PortInfo{{Name: "/dev/ttyS1"}},
		readers: map[string]*virt.VirtualReader{"/dev/ttyS1": muted},
	}

	devices, err := host.detector().Detect(context.Background(), uncachedOptions(Safe))
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Empty(t, devices)

	_, err = muted.Write([]byte{0x03})
	assert.ErrorIs(t, err, virt.ErrReaderClosed, "failed handshake must close the port")
}

func TestDetect_PassiveModeDoesNotOpen(t *testing.T) {
	t.Parallel()

	host := &fakeHost{
		ports: []uart.PortInfo{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB3", IsUSB: true},
		},
	}

	devices, err := host.detector().Detect(context.Background(), uncachedOptions(Passive))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB3", devices[0].Path)
	assert.Equal(t, Medium, devices[0].Confidence)
	assert.Zero(t, host.opens.Load())
}

func TestDetect_FiltersBlockedAndIgnored(t *testing.T) {
	t.Parallel()

	host := &fakeHost{
		ports: []uart.PortInfo{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "2341", PID: "0043"},
			{Name: "/dev/ttyUSB1", IsUSB: true},
			{Name: "/dev/ttyUSB2", IsUSB: true},
		},
	}

	opts := uncachedOptions(Passive)
	opts.Blocklist = DefaultBlocklist()
	opts.IgnorePaths = []string{"/dev/ttyUSB1"}

	devices, err := host.detector().Detect(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB2", devices[0].Path)
}

func TestDetect_ListError(t *testing.T) {
	t.Parallel()

	listErr := errors.New("enumeration failed")
	d := NewWithBackend(func() ([]uart.PortInfo, error) { return nil, listErr }, nil)

	_, err := d.Detect(context.Background(), uncachedOptions(Safe))
	require.ErrorIs(t, err, listErr)
}

func TestDetect_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	d := NewWithBackend(
		func() ([]uart.PortInfo, error) { return []uart.PortInfo{{Name: "/dev/ttyS0"}}, nil },
		func(string) (ccidserial.Descriptor, error) {
			<-release
			return nil, errNoSuchPort
		},
	)

	opts := uncachedOptions(Safe)
	opts.Timeout = 20 * time.Millisecond

	_, err := d.Detect(context.Background(), opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

//nolint:paralleltest // uses the package-level detection cache
func TestDetect_CacheReusesResults(t *testing.T) {
	ClearDetectionCache()
	t.Cleanup(ClearDetectionCache)

	host := &fakeHost{
		ports: []uart.PortInfo{
			{Name: "/dev/ttyUSB0", IsUSB: true},
			{Name: "/dev/ttyUSB1", IsUSB: true},
		},
	}
	opts := uncachedOptions(Passive)
	opts.EnableCache = true

	first, err := host.detector().Detect(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Ports disappearing is not noticed until the entry expires
	host.ports = nil
	cached, err := host.detector().Detect(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	// Cached results still honour the ignore list
	opts.IgnorePaths = []string{"/dev/ttyUSB0"}
	filtered, err := host.detector().Detect(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/dev/ttyUSB1", filtered[0].Path)
}

//nolint:paralleltest // uses the package-level detection cache
func TestDetect_EmptyResultClearsCache(t *testing.T) {
	ClearDetectionCache()
	t.Cleanup(ClearDetectionCache)

	setCached(cacheKey(Passive), []DeviceInfo{{Path: "/dev/ttyUSB9", Confidence: Medium}})

	host := &fakeHost{}
	opts := uncachedOptions(Passive)
	opts.EnableCache = true
	opts.CacheTTL = 0

	_, err := host.detector().Detect(context.Background(), opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	_, found := getCached(cacheKey(Passive), time.Hour)
	assert.False(t, found)
}

//nolint:paralleltest // uses the package-level detection cache
func TestCache_Expiry(t *testing.T) {
	ClearDetectionCache()
	t.Cleanup(ClearDetectionCache)

	devices := []DeviceInfo{{Path: "/dev/ttyUSB0"}}
	setCached("safe", devices)

	got, found := getCached("safe", time.Minute)
	require.True(t, found)
	assert.Equal(t, devices, got)

	got[0].Path = "changed"
	again, _ := getCached("safe", time.Minute)
	assert.Equal(t, "/dev/ttyUSB0", again[0].Path, "callers get a copy")

	time.Sleep(5 * time.Millisecond)
	_, found = getCached("safe", time.Millisecond)
	assert.False(t, found)

	clearCacheForKey("safe")
	_, found = getCached("safe", time.Minute)
	assert.False(t, found)
}
