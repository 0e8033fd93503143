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

package frame

// LRC computes the longitudinal redundancy check of data: the XOR of every
// byte.
func LRC(data []byte) byte {
	lrc := byte(0)
	for _, b := range data {
		lrc ^= b
	}
	return lrc
}

// VerifyAck reports whether lrc is the correct trailing checksum for an
// ACK packet carrying msg.
func VerifyAck(msg []byte, lrc byte) bool {
	return lrc^LRC(msg) == AckLRCSeed
}
