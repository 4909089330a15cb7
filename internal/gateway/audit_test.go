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
	"context"
	"testing"
)

func TestAuditChainLinksFingerprints(t *testing.T) {
	store := newFakeStore()
	chain := NewAuditChain(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := chain.Append(ctx, "agent.request", "agent", "a1", AuditActor{UserID: "u1"}, nil); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if store.audit[0].PreviousFingerprint != genesisFingerprint {
		t.Errorf("first entry's previous_fingerprint = %q, want %q", store.audit[0].PreviousFingerprint, genesisFingerprint)
	}
	for k := 1; k < len(store.audit); k++ {
		if store.audit[k].PreviousFingerprint != store.audit[k-1].Fingerprint {
			t.Errorf("entry %d's previous_fingerprint = %q, want entry %d's fingerprint %q",
				k, store.audit[k].PreviousFingerprint, k-1, store.audit[k-1].Fingerprint)
		}
	}
}

func TestComputeFingerprintDeterministic(t *testing.T) {
	store := newFakeStore()
	chain := NewAuditChain(store)
	ctx := context.Background()

	if err := chain.Append(ctx, "auth.login", "user", "u1", AuditActor{UserID: "u1"}, map[string]interface{}{"method": "password"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entry := store.audit[0]
	recomputed, err := computeFingerprint(entry)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	if recomputed != entry.Fingerprint {
		t.Errorf("recomputed fingerprint %q != stored fingerprint %q for an untampered entry", recomputed, entry.Fingerprint)
	}

	tampered := entry
	tampered.Details = map[string]interface{}{"method": "totp"}
	recomputedTampered, err := computeFingerprint(tampered)
	if err != nil {
		t.Fatalf("computeFingerprint: %v", err)
	}
	if recomputedTampered == entry.Fingerprint {
		t.Error("recomputed fingerprint of a tampered entry matched the stored fingerprint, want mismatch")
	}
}

func TestQueryFlagsTamperedIntegrity(t *testing.T) {
	store := newFakeStore()
	chain := NewAuditChain(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := chain.Append(ctx, "agent.request", "agent", "a1", AuditActor{UserID: "u1"}, map[string]interface{}{"i": i}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	result, err := chain.Query(ctx, AuditFilters{}, 1, 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.IntegrityOK {
		t.Fatal("IntegrityOK = false before any tampering, want true")
	}

	// Directly mutate entry 3's details in the backing store, bypassing
	// the chain, as the tamper-detection scenario requires.
	store.audit[2].Details = map[string]interface{}{"tampered": true}

	result, err = chain.Query(ctx, AuditFilters{}, 1, 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.IntegrityOK {
		t.Error("IntegrityOK = true after tampering with a stored entry's details, want false")
	}
	if len(result.Entries) != 5 {
		t.Errorf("tampered query still returned %d entries, want all 5 visible", len(result.Entries))
	}
}
