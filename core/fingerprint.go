// Copyright 2025 Poiesic Systems
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

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FingerprintLength is the length of a hex encoded fingerprint.
const FingerprintLength = sha256.Size * 2

// Fingerprint is the lowercase hex SHA-256 digest of raw document bytes.
// It is the primary key for all processing state.
type Fingerprint string

// FingerprintOf computes the fingerprint of data.
func FingerprintOf(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// ParseFingerprint validates s as a fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) != FingerprintLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidFingerprint, len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidFingerprint, c)
		}
	}
	return Fingerprint(s), nil
}

// String returns the full hex digest.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns an abbreviated form for log lines and messages.
func (f Fingerprint) Short() string {
	if len(f) <= 16 {
		return string(f)
	}
	return string(f[:16])
}
