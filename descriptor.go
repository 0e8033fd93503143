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
	"io"
	"time"
)

// Descriptor is the already-opened, already-configured serial line a
// Connection talks through. Port discovery and line settings belong to
// whoever creates it (see transport/uart and transport/tty).
type Descriptor interface {
	io.Reader
	io.Writer
	io.Closer

	// WaitReadable blocks until at least one byte can be read or timeout
	// elapses. It returns false with a nil error on timeout. A Read issued
	// after a true result must not block.
	WaitReadable(timeout time.Duration) (bool, error)
}
