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

	"github.com/ZaparooProject/go-ccidserial/internal/syncutil"
)

// Registry is the bounded pool of reader slots owned by the process. Slot
// bookkeeping is locked; I/O on a slot is not, so each slot must be used by
// one caller at a time.
type Registry struct {
	slots []*Connection
	cfg   registryConfig
	mu    syncutil.Mutex
}

// NewRegistry creates a registry with every slot empty.
func NewRegistry(opts ...Option) (*Registry, error) {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Registry{
		slots: make([]*Connection, cfg.maxReaders),
		cfg:   cfg,
	}, nil
}

// Size returns the number of slots.
func (r *Registry) Size() int {
	return len(r.slots)
}

// Open registers desc under slot. deviceID must not belong to another live
// connection. The returned connection starts with an empty lookahead
// buffer and the GemPC Twin descriptor record.
func (r *Registry) Open(slot int, desc Descriptor, deviceID string) (*Connection, error) {
	Debugf("Reader index: %X, Device: %s", slot, deviceID)

	if desc == nil || deviceID == "" {
		return nil, fmt.Errorf("%w: descriptor and device identifier are required", ErrInvalidParameter)
	}

	conn, err := r.register(slot, desc, deviceID)
	if err != nil {
		return nil, err
	}

	if !r.cfg.handshake {
		return conn, nil
	}

	if _, err := conn.Handshake(); err != nil {
		if closeErr := r.Close(slot); closeErr != nil {
			Debugf("close after failed handshake: %v", closeErr)
		}
		return nil, err
	}
	return conn, nil
}

func (r *Registry) register(slot int, desc Descriptor, deviceID string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkSlot(slot); err != nil {
		return nil, err
	}
	if r.slots[slot] != nil {
		return nil, fmt.Errorf("%w: %d", ErrSlotInUse, slot)
	}

	for _, other := range r.slots {
		if other != nil && other.path == deviceID {
			Debugf("Device %s already in use", deviceID)
			return nil, fmt.Errorf("%w: %s", ErrDeviceInUse, deviceID)
		}
	}

	conn := newConnection(slot, desc, deviceID, r.cfg.readTimeout, r.cfg.onEvent)
	r.slots[slot] = conn
	return conn, nil
}

// Close releases slot and closes its descriptor. The slot is freed even if
// closing the descriptor fails.
func (r *Registry) Close(slot int) error {
	r.mu.Lock()
	if err := r.checkSlot(slot); err != nil {
		r.mu.Unlock()
		return err
	}
	conn := r.slots[slot]
	r.slots[slot] = nil
	r.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%w: %d", ErrSlotNotOpen, slot)
	}
	return conn.release()
}

// CloseAll releases every open slot and returns the first close error.
func (r *Registry) CloseAll() error {
	var firstErr error
	for slot := range r.Size() {
		if _, err := r.Connection(slot); err != nil {
			continue
		}
		if err := r.Close(slot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Connection returns the live connection in slot.
func (r *Registry) Connection(slot int) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkSlot(slot); err != nil {
		return nil, err
	}
	conn := r.slots[slot]
	if conn == nil {
		return nil, fmt.Errorf("%w: %d", ErrSlotNotOpen, slot)
	}
	return conn, nil
}

// Capabilities returns the descriptor record of slot for the command layer
// to populate.
func (r *Registry) Capabilities(slot int) (*Capabilities, error) {
	conn, err := r.Connection(slot)
	if err != nil {
		return nil, err
	}
	return conn.Capabilities(), nil
}

// Send frames and writes payload on slot.
func (r *Registry) Send(slot int, payload []byte) error {
	conn, err := r.Connection(slot)
	if err != nil {
		return err
	}
	return conn.Send(payload)
}

// Receive reads the answer to the last command sent on slot.
func (r *Registry) Receive(slot int) (*Response, error) {
	conn, err := r.Connection(slot)
	if err != nil {
		return nil, err
	}
	return conn.Receive()
}

// Transmit sends payload on slot and waits for the answer.
func (r *Registry) Transmit(slot int, payload []byte) (*Response, error) {
	conn, err := r.Connection(slot)
	if err != nil {
		return nil, err
	}
	return conn.Transmit(payload)
}

func (r *Registry) checkSlot(slot int) error {
	if slot < 0 || slot >= len(r.slots) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidSlot, slot, len(r.slots))
	}
	return nil
}
