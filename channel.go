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

// Channel identifiers from the IFD handler 1.0 API, mapped to port numbers.
var legacyChannels = map[int]int{
	0x0103F8: 1,
	0x0102F8: 2,
	0x0103E8: 3,
	0x0102E8: 4,
}

// ChannelDevicePath returns the device path for a PC/SC channel number,
// /dev/pcsc/<n>, accepting the old I/O base address identifiers.
func ChannelDevicePath(channel int) (string, error) {
	if port, ok := legacyChannels[channel]; ok {
		channel = port
	}

	if channel < 0 {
		Debugf("wrong port number: %d", channel)
		return "", fmt.Errorf("%w: port number %d", ErrInvalidParameter, channel)
	}

	return fmt.Sprintf("/dev/pcsc/%d", channel), nil
}
