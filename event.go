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

import "fmt"

// EventType tags a LinkEvent.
type EventType uint8

const (
	// EventCardInserted is a slot change notification with the card present.
	EventCardInserted EventType = iota + 1
	// EventCardRemoved is a slot change notification with the card absent.
	EventCardRemoved
	// EventUnknownMovement is a slot change notification with an
	// unrecognized slot state code.
	EventUnknownMovement
)

func (t EventType) String() string {
	switch t {
	case EventCardInserted:
		return "card inserted"
	case EventCardRemoved:
		return "card removed"
	case EventUnknownMovement:
		return "unknown card movement"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
}

// LinkEvent is a card movement notification seen while scanning the
// stream for a response. Code is the raw bmSlotICCState byte.
type LinkEvent struct {
	Type EventType
	Code byte
}

func (e LinkEvent) String() string {
	if e.Type == EventUnknownMovement {
		return fmt.Sprintf("%s: 0x%02X", e.Type, e.Code)
	}
	return e.Type.String()
}

// EventHandler is called synchronously for every LinkEvent a decode emits.
type EventHandler func(slot int, ev LinkEvent)
