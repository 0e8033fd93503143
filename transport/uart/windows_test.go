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

package uart

import (
	"runtime"
	"testing"
	"time"
)

// TestWindowsPlatformDetection tests Windows platform detection utility
func TestWindowsPlatformDetection(t *testing.T) {
	t.Parallel()

	if isWindows() != (runtime.GOOS == "windows") {
		t.Errorf("isWindows() = %v, want %v", isWindows(), runtime.GOOS == "windows")
	}
}

// TestWindowsPostWriteDelay tests Windows-specific post-write delay
func TestWindowsPostWriteDelay(t *testing.T) {
	t.Parallel()

	start := time.Now()
	windowsPostWriteDelay()
	elapsed := time.Since(start)

	if runtime.GOOS == "windows" {
		if elapsed < 15*time.Millisecond {
			t.Errorf("windowsPostWriteDelay() on Windows took %v, expected at least 15ms", elapsed)
		}
	} else if elapsed > 5*time.Millisecond {
		t.Errorf("windowsPostWriteDelay() on non-Windows took %v, expected less than 5ms", elapsed)
	}
}
