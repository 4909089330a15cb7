// Copyright 2025 Peanut Labs
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

package gateway

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	scryptSalt   = 32

	minPasswordLength = 12
)

// hashPassword derives a scrypt hash for pw and renders it as
// "salt_hex:derived_hex".
func hashPassword(pw string) (string, error) {
	salt := make([]byte, scryptSalt)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	derived, err := scrypt.Key([]byte(pw), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(derived), nil
}

// verifyPassword checks pw against a "salt_hex:derived_hex" hash using a
// constant-time comparison. Malformed hashes or length mismatches fail
// closed.
func verifyPassword(pw, hash string) bool {
	saltHex, derivedHex, ok := splitHash(hash)
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(derivedHex)
	if err != nil {
		return false
	}
	got, err := scrypt.Key([]byte(pw), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

func splitHash(hash string) (salt, derived string, ok bool) {
	for i := 0; i < len(hash); i++ {
		if hash[i] == ':' {
			return hash[:i], hash[i+1:], true
		}
	}
	return "", "", false
}

// validatePasswordPolicy enforces the spec's one password rule: at least
// minPasswordLength characters.
func validatePasswordPolicy(pw string) error {
	if len(pw) < minPasswordLength {
		return ValidationErrorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}
