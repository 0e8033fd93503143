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

import "time"

// GemPCTwin is the reader identifier (vendor 0x08E6, product 0x3437)
// reported for serial GemPC Twin readers.
const GemPCTwin = 0x08E63437

// DefaultReadTimeout bounds each wait for the line to become readable.
const DefaultReadTimeout = 2 * time.Second

// SerialDataRates lists the data rates (bps) a serial GemPC Twin supports.
var SerialDataRates = []int{
	10753, 14337, 15625, 17204, 20833, 21505, 23438, 25806, 28674, 31250,
	32258, 34409, 39063, 41667, 43011, 46875, 52083, 53763, 57348, 62500,
	64516, 68817, 71685, 78125, 83333, 86022, 93750, 104667, 107527, 114695,
	125000, 129032, 143369, 156250, 166667, 172043, 215054, 229391, 250000, 344086,
}

// Capabilities is the per-slot reader descriptor record. The link layer
// stores and forwards it for the command layer; only ReadTimeout and the
// sequence counter are used here.
type Capabilities struct {
	DataRates        []int
	ReadTimeout      time.Duration
	ReaderID         uint32
	MaxMessageLength uint32
	MaxIFSD          uint32
	Features         uint32
	DefaultClock     uint32 // kHz
	MaxDataRate      uint32 // bps
	PINSupport       byte
	MaxSlotIndex     byte
	CurrentSlotIndex byte
	Seq              byte
}

// NextSeq returns the current bSeq value and advances the counter.
func (c *Capabilities) NextSeq() byte {
	seq := c.Seq
	c.Seq++
	return seq
}

// GemPCTwinCapabilities returns the descriptor record of a serial GemPC
// Twin with a fresh sequence counter.
func GemPCTwinCapabilities(readTimeout time.Duration) Capabilities {
	rates := make([]int, len(SerialDataRates))
	copy(rates, SerialDataRates)

	return Capabilities{
		ReaderID:         GemPCTwin,
		MaxMessageLength: 271,
		MaxIFSD:          254,
		Features:         0x00010230,
		PINSupport:       0x00,
		DefaultClock:     4000,
		MaxDataRate:      344086,
		MaxSlotIndex:     0,
		CurrentSlotIndex: 0,
		DataRates:        rates,
		ReadTimeout:      readTimeout,
	}
}
