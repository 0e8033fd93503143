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
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ccidserial "github.com/ZaparooProject/go-ccidserial"
	"github.com/ZaparooProject/go-ccidserial/detection"
	"github.com/ZaparooProject/go-ccidserial/transport/uart"
)

// CCID messages the probe sends
const (
	pcToRdrGetSlotStatus = 0x65
	pcToRdrXfrBlock      = 0x6F
	rdrToPcSlotStatus    = 0x81
)

type config struct {
	devicePath string
	escapeHex  string
	timeout    time.Duration
	channel    int
	stress     int
	debug      bool
	list       bool
	detect     bool
	rawTTY     bool
	noHello    bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagEscapeHex  string
	flagTimeout    time.Duration
	flagChannel    int
	flagStress     int
	flagDebug      bool
	flagList       bool
	flagDetect     bool
	flagRawTTY     bool
	flagSessionLog bool
	flagLogDir     string
	flagNoHello    bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "Serial device path of the reader")
	flag.IntVar(&flagChannel, "channel", -1, "PC/SC channel number, used when -device is empty")
	flag.StringVar(&flagEscapeHex, "escape", "", "Hex bytes to send as a reader escape command")
	flag.DurationVar(&flagTimeout, "timeout", ccidserial.DefaultReadTimeout, "Wait for each read")
	flag.IntVar(&flagStress, "stress", 0, "Run this many random exchanges and report link errors")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagSessionLog, "log", false, "Write debug output to a session log file")
	flag.StringVar(&flagLogDir, "log-dir", "", "Directory for the session log (default: current directory)")
	flag.BoolVar(&flagList, "list", false, "List serial ports and exit")
	flag.BoolVar(&flagDetect, "detect", false, "Probe serial ports for readers and exit")
	flag.BoolVar(&flagRawTTY, "tty", false, "Use the raw termios transport instead of the serial library")
	flag.BoolVar(&flagNoHello, "no-handshake", false, "Skip the firmware query on open")
}

func parseConfig() *config {
	cfg := &config{
		devicePath: flagDevicePath,
		escapeHex:  flagEscapeHex,
		timeout:    flagTimeout,
		channel:    flagChannel,
		stress:     flagStress,
		debug:      flagDebug,
		list:       flagList,
		detect:     flagDetect,
		rawTTY:     flagRawTTY,
		noHello:    flagNoHello,
	}

	if cfg.debug {
		ccidserial.SetDebugEnabled(true)
	}

	return cfg
}

// resolveDevicePath picks -device, falling back to the PC/SC channel.
func resolveDevicePath(cfg *config) (string, error) {
	if cfg.devicePath != "" {
		return cfg.devicePath, nil
	}
	if cfg.channel < 0 {
		return "", errors.New("no device given: use -device or -channel")
	}
	path, err := ccidserial.ChannelDevicePath(cfg.channel)
	if err != nil {
		return "", fmt.Errorf("channel %d: %w", cfg.channel, err)
	}
	return path, nil
}

// openDescriptor opens path with the selected transport.
func openDescriptor(cfg *config, path string) (ccidserial.Descriptor, error) {
	if cfg.rawTTY {
		return openRawTTY(path)
	}
	port, err := uart.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return port, nil
}

// parseEscape accepts "0x02", "02" or "01 01 01".
func parseEscape(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid escape bytes: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty escape command")
	}
	return data, nil
}

// buildMessage assembles a PC_to_RDR command for slot 0.
func buildMessage(msgType, seq byte, data []byte) []byte {
	msg := make([]byte, 10+len(data))
	msg[0] = msgType
	binary.LittleEndian.PutUint32(msg[1:5], uint32(len(data))) //nolint:gosec // bounded by the caller
	msg[6] = seq
	copy(msg[10:], data)
	return msg
}

// iccPresence decodes bmICCStatus from a slot status answer.
func iccPresence(status byte) string {
	switch status & 0x03 {
	case 0:
		return "card present, powered"
	case 1:
		return "card present, not powered"
	case 2:
		return "no card"
	default:
		return "unknown slot state"
	}
}

func printEvent(slot int, ev ccidserial.LinkEvent) {
	_, _ = fmt.Printf("Slot %d: %s\n", slot, ev)
}

func listPorts() error {
	ports, err := uart.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			_, _ = fmt.Printf("%s  USB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			_, _ = fmt.Println(p.Name)
		}
	}
	return nil
}

// detectReaders probes the host's serial ports. Only ports that answered
// the firmware escape are returned.
func detectReaders(ctx context.Context, d *detection.Detector, cfg *config) ([]detection.DeviceInfo, error) {
	opts := detection.DefaultOptions()
	opts.EnableCache = false
	opts.ProbeTimeout = cfg.timeout

	devices, err := d.Detect(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("reader detection failed: %w", err)
	}

	var confirmed []detection.DeviceInfo
	for _, dev := range devices {
		if dev.Confidence == detection.High {
			confirmed = append(confirmed, dev)
		}
	}
	if len(confirmed) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return confirmed, nil
}

// probe runs the requested exchanges on an open descriptor.
func probe(ctx context.Context, cfg *config, desc ccidserial.Descriptor, path string) error {
	opts := []ccidserial.Option{
		ccidserial.WithReadTimeout(cfg.timeout),
		ccidserial.WithEventHandler(printEvent),
	}
	if !cfg.noHello {
		opts = append(opts, ccidserial.WithHandshake())
	}

	reg, err := ccidserial.NewRegistry(opts...)
	if err != nil {
		_ = desc.Close()
		return fmt.Errorf("invalid options: %w", err)
	}

	conn, err := reg.Open(0, desc, path)
	if err != nil {
		return fmt.Errorf("failed to open reader on %s: %w", path, err)
	}
	defer func() {
		if err := reg.CloseAll(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close reader: %v\n", err)
		}
	}()

	if fw := conn.Firmware(); fw != "" {
		_, _ = fmt.Printf("Firmware: %s\n", fw)
	}

	if cfg.escapeHex != "" {
		cmd, err := parseEscape(cfg.escapeHex)
		if err != nil {
			return err
		}
		data, err := conn.Escape(cmd)
		if err != nil {
			return fmt.Errorf("escape failed: %w", err)
		}
		_, _ = fmt.Printf("Escape answer: % X\n", data)
	}

	resp, err := conn.Transmit(buildMessage(pcToRdrGetSlotStatus, conn.Capabilities().NextSeq(), nil))
	if err != nil {
		return fmt.Errorf("slot status failed: %w", err)
	}
	if resp.Frame.MessageType() != rdrToPcSlotStatus || len(resp.Frame) < 10 {
		return fmt.Errorf("unexpected slot status answer: % X", []byte(resp.Frame))
	}
	_, _ = fmt.Printf("Slot status: %s\n", iccPresence(resp.Frame[7]))

	if cfg.stress > 0 {
		return runStressMode(ctx, conn, cfg)
	}
	return nil
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return listPorts()
	}

	if cfg.detect {
		devices, err := detectReaders(ctx, detection.New(), cfg)
		if err != nil {
			return err
		}
		for _, dev := range devices {
			_, _ = fmt.Println(dev)
		}
		return nil
	}

	path, err := resolveDevicePath(cfg)
	if err != nil {
		return err
	}
	if cfg.debug {
		_, _ = fmt.Printf("Opening device: %s\n", path)
	}

	desc, err := openDescriptor(cfg, path)
	if err != nil {
		return err
	}
	return probe(ctx, cfg, desc, path)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	if flagSessionLog {
		logPath, err := ccidserial.InitSessionLog(flagLogDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to create session log: %v\n", err)
			return 1
		}
		_, _ = fmt.Printf("Session log: %s\n", logPath)
		defer func() { _ = ccidserial.CloseSessionLog() }()
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if te := ccidserial.GetTrace(err); te != nil {
			_, _ = fmt.Fprint(os.Stderr, te.FormatTrace())
		}
		return 1
	}
	return 0
}
