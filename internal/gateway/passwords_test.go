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

import "testing"

func TestHashPasswordThenVerify(t *testing.T) {
	hash, err := hashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	if !verifyPassword("correct-horse-battery", hash) {
		t.Error("verifyPassword(correct password) = false, want true")
	}
	if verifyPassword("wrong-password", hash) {
		t.Error("verifyPassword(wrong password) = true, want false")
	}
}

func TestHashPasswordDistinctSalts(t *testing.T) {
	h1, err := hashPassword("same-input-twice")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	h2, err := hashPassword("same-input-twice")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password were identical; salts should differ")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"no separator", "deadbeef"},
		{"non-hex salt", "zz:deadbeef"},
		{"non-hex derived", "deadbeef:zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if verifyPassword("anything", tt.hash) {
				t.Errorf("verifyPassword with malformed hash %q returned true, want false", tt.hash)
			}
		})
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	tests := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{"too short", "short123456", true},
		{"exactly minimum", "123456789012", false},
		{"well over minimum", "a-much-longer-passphrase", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePasswordPolicy(tt.pw)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePasswordPolicy(%q) error = %v, wantErr %v", tt.pw, err, tt.wantErr)
			}
		})
	}
}
