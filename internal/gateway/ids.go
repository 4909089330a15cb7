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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newID returns a fresh 128-bit random identifier rendered as lowercase hex
// (no dashes), used for every entity's primary key (users, agents, audit
// entries, ...). The value is opaque to callers; the fact that it happens
// to be a UUIDv4 under the hood is an implementation detail.
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// newBackupCode returns one 8-hex-char uppercase single-use backup code.
func newBackupCode() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("gateway: failed to read random bytes: %v", err))
	}
	return strings.ToUpper(hex.EncodeToString(b))
}
