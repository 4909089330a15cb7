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
	"encoding/hex"
	"strings"
	"testing"
)

func testVaultKeyHex(fill byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	return hex.EncodeToString(key)
}

func TestVaultCipherSealThenOpenRoundTrips(t *testing.T) {
	c, err := newVaultCipher(testVaultKeyHex(0x42))
	if err != nil {
		t.Fatalf("newVaultCipher: %v", err)
	}

	blob, err := c.seal("sk-ant-super-secret-key")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Count(blob, ":") != 2 {
		t.Fatalf("seal() = %q, want iv_hex:tag_hex:ciphertext_hex shape", blob)
	}

	plaintext, err := c.open(blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plaintext != "sk-ant-super-secret-key" {
		t.Errorf("open() = %q, want original plaintext", plaintext)
	}
}

func TestVaultCipherOpenWithWrongKeyFails(t *testing.T) {
	c1, err := newVaultCipher(testVaultKeyHex(0x01))
	if err != nil {
		t.Fatalf("newVaultCipher: %v", err)
	}
	c2, err := newVaultCipher(testVaultKeyHex(0x02))
	if err != nil {
		t.Fatalf("newVaultCipher: %v", err)
	}

	blob, err := c1.seal("top-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := c2.open(blob); err == nil {
		t.Error("open() with the wrong key succeeded, want authentication failure")
	}
}

func TestVaultCipherOpenTamperedCiphertextFails(t *testing.T) {
	c, err := newVaultCipher(testVaultKeyHex(0x99))
	if err != nil {
		t.Fatalf("newVaultCipher: %v", err)
	}

	blob, err := c.seal("do-not-tamper")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		t.Fatalf("seal() = %q, want 3 parts", blob)
	}
	// Flip the last hex character of the ciphertext.
	lastChar := parts[2][len(parts[2])-1]
	flipped := byte('0')
	if lastChar == '0' {
		flipped = '1'
	}
	parts[2] = parts[2][:len(parts[2])-1] + string(flipped)
	tampered := strings.Join(parts, ":")

	if _, err := c.open(tampered); err == nil {
		t.Error("open() of tampered ciphertext succeeded, want authentication failure")
	}
}

func TestNewVaultCipherRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"not hex", "not-hex-at-all"},
		{"too short", "deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newVaultCipher(tt.key); err == nil {
				t.Errorf("newVaultCipher(%q) succeeded, want error", tt.key)
			}
		})
	}
}
