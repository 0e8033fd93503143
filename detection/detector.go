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
	"fmt"
	"strings"
	"time"

	ccidserial "github.com/ZaparooProject/go-ccidserial"
	"github.com/ZaparooProject/go-ccidserial/transport/uart"
)

// Mode represents the level of invasiveness for reader detection
type Mode int

const (
	// Passive mode only looks at port metadata without opening anything
	Passive Mode = iota
	// Safe mode opens each candidate port and sends the firmware escape
	Safe
)

// Confidence represents the confidence level of reader detection
type Confidence int

const (
	// Low confidence - a serial port with nothing pointing at a reader
	Low Confidence = iota
	// Medium confidence - a USB serial adapter or a reader-like name
	Medium
	// High confidence - the port answered the firmware escape
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo represents a detected reader
type DeviceInfo struct {
	// Additional metadata (vidpid, serial, product)
	Metadata map[string]string
	// Serial device path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Firmware string reported by the reader, empty unless probed
	Firmware string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	if d.Firmware != "" {
		return fmt.Sprintf("%s at %s (confidence: %s)", d.Firmware, d.Path, d.Confidence)
	}
	return fmt.Sprintf("serial port %s (confidence: %s)", d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// Read timeout used while probing a single port
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Timeout:      5 * time.Second,
		ProbeTimeout: 500 * time.Millisecond,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Errors
var (
	// ErrNoDevicesFound indicates no readers were detected
	ErrNoDevicesFound = errors.New("no readers found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
)

// PortLister enumerates candidate serial ports.
type PortLister func() ([]uart.PortInfo, error)

// Opener opens and configures the serial line at path.
type Opener func(path string) (ccidserial.Descriptor, error)

// Detector finds GemPC Twin readers on the serial ports of the host.
type Detector struct {
	list PortLister
	open Opener
}

// New returns a detector backed by the serial library.
func New() *Detector {
	return NewWithBackend(uart.ListPorts, func(path string) (ccidserial.Descriptor, error) {
		return uart.Open(path)
	})
}

// NewWithBackend returns a detector using the given port lister and opener.
func NewWithBackend(list PortLister, open Opener) *Detector {
	return &Detector{list: list, open: open}
}

type probeResult struct {
	device DeviceInfo
	keep   bool
}

// Detect searches for readers. Ports are probed in parallel in Safe mode.
func (d *Detector) Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.EnableCache {
		if cached, found := getCached(cacheKey(opts.Mode), opts.CacheTTL); found {
			// Cached results bypass port filtering, so filter them again
			return finish(filterDevices(cached, opts))
		}
	}

	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports = filterPorts(ports, opts)

	results := make(chan probeResult, len(ports))
	for i := range ports {
		go func(port uart.PortInfo) {
			results <- d.processPort(port, opts)
		}(ports[i])
	}

	var devices []DeviceInfo
	for range ports {
		select {
		case res := <-results:
			if res.keep {
				devices = append(devices, res.device)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(cacheKey(opts.Mode), devices)
		} else {
			// Drop stale entries for readers that have gone away
			clearCacheForKey(cacheKey(opts.Mode))
		}
	}

	return finish(devices)
}

func finish(devices []DeviceInfo) ([]DeviceInfo, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

func cacheKey(mode Mode) string {
	if mode == Passive {
		return "passive"
	}
	return "safe"
}

// filterPorts removes blocked and ignored ports
func filterPorts(ports []uart.PortInfo, opts *Options) []uart.PortInfo {
	var filtered []uart.PortInfo
	for _, port := range ports {
		if port.VID != "" && IsBlocked(port.VID+":"+port.PID, opts.Blocklist) {
			continue
		}
		if IsPathIgnored(port.Name, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort handles a single port's detection logic
func (d *Detector) processPort(port uart.PortInfo, opts *Options) probeResult {
	device := newDeviceInfo(port)
	likely := device.Confidence == Medium

	if opts.Mode == Passive {
		return probeResult{device: device, keep: likely}
	}

	firmware, err := d.probe(port.Name, opts.ProbeTimeout)
	if err != nil {
		ccidserial.Debugf("probe %s: %v", port.Name, err)
		// Keep unanswered ports only when the metadata points at a reader
		return probeResult{device: device, keep: likely}
	}

	device.Firmware = firmware
	device.Confidence = High
	return probeResult{device: device, keep: true}
}

// probe opens path in a private registry with the handshake enabled and
// returns the firmware string.
func (d *Detector) probe(path string, timeout time.Duration) (string, error) {
	opts := []ccidserial.Option{ccidserial.WithMaxReaders(1), ccidserial.WithHandshake()}
	if timeout > 0 {
		opts = append(opts, ccidserial.WithReadTimeout(timeout))
	}
	reg, err := ccidserial.NewRegistry(opts...)
	if err != nil {
		return "", err
	}

	desc, err := d.open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}

	// A failed handshake releases the slot and closes desc
	conn, err := reg.Open(0, desc, path)
	if err != nil {
		return "", err
	}
	firmware := conn.Firmware()

	if err := reg.Close(0); err != nil {
		ccidserial.Debugf("close %s after probe: %v", path, err)
	}
	return firmware, nil
}

func newDeviceInfo(port uart.PortInfo) DeviceInfo {
	device := DeviceInfo{
		Path:       port.Name,
		Confidence: Low,
		Metadata:   make(map[string]string),
	}
	if port.VID != "" {
		device.Metadata["vidpid"] = strings.ToUpper(port.VID + ":" + port.PID)
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if isLikelyReader(port) {
		device.Confidence = Medium
	}
	return device
}

// isLikelyReader checks port metadata for a Gemalto device or a USB serial
// adapter the reader is commonly attached through.
func isLikelyReader(port uart.PortInfo) bool {
	if strings.EqualFold(port.VID, gemaltoVID) {
		return true
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, name := range []string{"gempc", "gemalto", "gemplus"} {
		if strings.Contains(lowerProduct, name) {
			return true
		}
	}

	if !port.IsUSB {
		return false
	}
	lowerPath := strings.ToLower(port.Name)
	for _, pattern := range []string{"ttyusb", "usbserial", "cu.usb", "tty.usb"} {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}
