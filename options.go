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
	"time"
)

// DefaultMaxReaders is the number of slots a registry holds by default.
const DefaultMaxReaders = 16

// Option configures a Registry.
type Option func(*registryConfig) error

type registryConfig struct {
	onEvent     EventHandler
	readTimeout time.Duration
	maxReaders  int
	handshake   bool
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		maxReaders:  DefaultMaxReaders,
		readTimeout: DefaultReadTimeout,
	}
}

// WithMaxReaders sets the number of reader slots.
func WithMaxReaders(n int) Option {
	return func(c *registryConfig) error {
		if n <= 0 {
			return fmt.Errorf("%w: max readers %d", ErrInvalidParameter, n)
		}
		c.maxReaders = n
		return nil
	}
}

// WithReadTimeout sets the readiness timeout new connections start with.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *registryConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: read timeout %v", ErrInvalidParameter, timeout)
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithEventHandler installs a callback for card movement notifications on
// every slot.
func WithEventHandler(handler EventHandler) Option {
	return func(c *registryConfig) error {
		c.onEvent = handler
		return nil
	}
}

// WithHandshake makes Open query the reader firmware and switch card
// movement notification to synchronous mode before returning. A reader
// that does not answer fails the Open.
func WithHandshake() Option {
	return func(c *registryConfig) error {
		c.handshake = true
		return nil
	}
}
