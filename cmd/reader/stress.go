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
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	ccidserial "github.com/ZaparooProject/go-ccidserial"
)

// maxStressData keeps XfrBlock commands within the reader's 271 byte
// message limit.
const maxStressData = 261

// StressResult summarizes a stress run.
type StressResult struct {
	Duration          time.Duration
	Exchanges         int
	Passed            int
	Timeouts          int
	ChecksumMismatch  int
	ProtocolErrors    int
	OtherErrors       int
	CardEvents        int
	CrashFile         string
	BytesSent         int
	BytesReceived     int
	AbortedOnProtocol bool
}

// CrashReport contains all information for debugging a failed exchange.
type CrashReport struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Error     string    `json:"error"`
	Command   string    `json:"command"`
	WireTrace []string  `json:"wire_trace,omitempty"`
	Exchange  int       `json:"exchange"`
}

func printStressBanner(n int) {
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                       GemPC Twin Serial Link Stress Test")
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Printf("Exchanges: %d, XfrBlock payloads of 0-%d bytes\n", n, maxStressData)
}

// randomPayload returns up to maxStressData random bytes.
func randomPayload() ([]byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxStressData+1))
	if err != nil {
		return nil, fmt.Errorf("random length: %w", err)
	}
	data := make([]byte, n.Int64())
	if _, err := rand.Read(data); err != nil {
		return nil, fmt.Errorf("random data: %w", err)
	}
	return data, nil
}

// runStress sends n XfrBlock commands and classifies every outcome. The
// reader may refuse the command when no card is present; only the link
// matters here. A protocol error ends the run since the stream can no
// longer be trusted.
func runStress(ctx context.Context, conn *ccidserial.Connection, n int) (*StressResult, error) {
	result := &StressResult{}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for i := range n {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data, err := randomPayload()
		if err != nil {
			return result, err
		}
		cmd := buildMessage(pcToRdrXfrBlock, conn.Capabilities().NextSeq(), data)

		result.Exchanges++
		result.BytesSent += len(cmd)
		resp, err := conn.Transmit(cmd)
		if err != nil {
			classifyFailure(result, err)
			if result.CrashFile == "" {
				if name, werr := writeCrashReport(newCrashReport(conn.DevicePath(), i, cmd, err)); werr == nil {
					result.CrashFile = name
				}
			}
			if ccidserial.IsProtocolError(err) || ccidserial.IsFatal(err) {
				result.AbortedOnProtocol = ccidserial.IsProtocolError(err)
				return result, err
			}
			continue
		}

		result.BytesReceived += len(resp.Frame)
		result.CardEvents += len(resp.Events)
		if resp.ChecksumMismatch {
			result.ChecksumMismatch++
			continue
		}
		result.Passed++
	}

	return result, nil
}

func classifyFailure(result *StressResult, err error) {
	switch {
	case ccidserial.IsTimeout(err):
		result.Timeouts++
	case ccidserial.IsProtocolError(err):
		result.ProtocolErrors++
	default:
		result.OtherErrors++
	}
}

func newCrashReport(device string, exchange int, cmd []byte, err error) *CrashReport {
	report := &CrashReport{
		Timestamp: time.Now(),
		Device:    device,
		Exchange:  exchange,
		Command:   formatHexString(cmd),
		Error:     err.Error(),
	}
	if te := ccidserial.GetTrace(err); te != nil {
		for _, entry := range te.Trace {
			report.WireTrace = append(report.WireTrace, entry.String())
		}
	}
	return report
}

func writeCrashReport(report *CrashReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}

	filename := fmt.Sprintf("ccid_crash_%s.json", report.Timestamp.Format("20060102_150405"))
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}

	return filename, nil
}

func formatHexString(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func printStressSummary(result *StressResult) {
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                              STRESS TEST SUMMARY")
	_, _ = fmt.Println("================================================================================")

	status := "PASS"
	if result.Passed != result.Exchanges {
		status = "FAIL"
	}
	_, _ = fmt.Printf("[%s] %d/%d exchanges clean - %s\n",
		status, result.Passed, result.Exchanges, result.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Printf("Timeouts: %d, checksum mismatches: %d, protocol errors: %d, other: %d\n",
		result.Timeouts, result.ChecksumMismatch, result.ProtocolErrors, result.OtherErrors)
	_, _ = fmt.Printf("Bytes sent: %d, received: %d, card events: %d\n",
		result.BytesSent, result.BytesReceived, result.CardEvents)
	if result.CrashFile != "" {
		_, _ = fmt.Printf("Crash report written: %s\n", result.CrashFile)
	}
	_, _ = fmt.Println("================================================================================")
}

func runStressMode(ctx context.Context, conn *ccidserial.Connection, cfg *config) error {
	printStressBanner(cfg.stress)
	result, err := runStress(ctx, conn, cfg.stress)
	printStressSummary(result)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stress run stopped: %w", err)
	}
	return err
}
