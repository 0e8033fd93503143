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
	"io"
	"os"
	"time"
)

// debugEnabled controls whether debug output also goes to the console
var debugEnabled = false

// debugOutput is the console side of debug logging.
var debugOutput io.Writer = os.Stderr

func init() {
	if os.Getenv("CCID_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf prints debug information.
// Always writes to the session log (if initialized) with a timestamp.
// Only prints to the console when debug mode is enabled.
func Debugf(format string, args ...any) {
	logDebug(fmt.Sprintf(format, args...))
}

// Debugln prints debug information, formatting args like fmt.Sprint.
func Debugln(args ...any) {
	logDebug(fmt.Sprint(args...))
}

func logDebug(message string) {
	session.writeLine(time.Now(), "DEBUG: "+message)

	if debugEnabled {
		_, _ = fmt.Fprintf(debugOutput, "DEBUG: %s\n", message)
	}
}

// debugXXD logs a hex dump of wire traffic. header carries the direction
// and slot, as in "-> 000000 " or "<- 000001 ".
func debugXXD(header string, data []byte) {
	if !debugEnabled && !session.active() {
		return
	}
	logDebug(header + hexString(data))
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetDebugOutput redirects console debug output. A nil writer restores
// standard error.
func SetDebugOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	debugOutput = w
}
