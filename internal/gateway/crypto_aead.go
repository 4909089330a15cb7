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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	aeadIVLen  = 16
	aeadTagLen = 16
)

// vaultCipher wraps AES-256-GCM for the single credential the vault holds
// at rest, adapted from the terraform-registry-backend token cipher to the
// gateway's "iv_hex:tag_hex:ciphertext_hex" storage format (spec.md §4.E)
// rather than a single base64 blob.
type vaultCipher struct {
	key []byte
}

func newVaultCipher(keyHex string) (*vaultCipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("vault key: not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key: must decode to 32 bytes for AES-256, got %d", len(key))
	}
	return &vaultCipher{key: key}, nil
}

// seal encrypts plaintext and returns "iv_hex:tag_hex:ciphertext_hex".
func (c *vaultCipher) seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, aeadIVLen)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aeadIVLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the authentication tag after the ciphertext.
	tagStart := len(sealed) - aeadTagLen
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// open decrypts a "iv_hex:tag_hex:ciphertext_hex" blob. Any failure
// (malformed encoding or a failed tag check) is reported as an
// ExternalService error per spec.md §4.E so the boundary never leaks
// decryption internals.
func (c *vaultCipher) open(blob string) (string, error) {
	parts := splitThree(blob)
	if parts == nil {
		return "", ExternalServiceError("vault", "malformed ciphertext", nil)
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aeadIVLen {
		return "", ExternalServiceError("vault", "malformed IV", err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != aeadTagLen {
		return "", ExternalServiceError("vault", "malformed tag", err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ExternalServiceError("vault", "malformed ciphertext", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", ExternalServiceError("vault", "cipher init failed", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, aeadIVLen)
	if err != nil {
		return "", ExternalServiceError("vault", "gcm init failed", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ExternalServiceError("vault", "decryption failed", err)
	}
	return string(plaintext), nil
}

func splitThree(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	if len(parts) != 3 {
		return nil
	}
	return parts
}
