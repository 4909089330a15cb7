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
	"math"
	"testing"
)

func seedHealthyAgent(s *fakeStore, id string, weight int) {
	s.agents[id] = Agent{ID: id, Name: id, Type: AgentTypeLocalInference, Weight: weight}
	s.health[id] = AgentHealth{AgentID: id, Status: HealthOnline, SuccessRate: 1.0}
}

func TestSelectAgentConvergesToWeightRatios(t *testing.T) {
	store := newFakeStore()
	seedHealthyAgent(store, "A", 5)
	seedHealthyAgent(store, "B", 3)
	seedHealthyAgent(store, "C", 2)

	d := NewDispatcher(store, NewAuditChain(store))
	ctx := context.Background()

	counts := map[string]int{}
	const n = 1000
	for i := 0; i < n; i++ {
		a, err := d.selectAgent(ctx)
		if err != nil {
			t.Fatalf("selectAgent %d: %v", i, err)
		}
		counts[a.ID]++
	}

	want := map[string]float64{"A": 0.5, "B": 0.3, "C": 0.2}
	for id, wantShare := range want {
		gotShare := float64(counts[id]) / float64(n)
		if math.Abs(gotShare-wantShare) >= 0.02 {
			t.Errorf("agent %s share = %.4f, want within 0.02 of %.4f", id, gotShare, wantShare)
		}
	}
}

func TestSelectAgentEverySelectionIsARegisteredHealthyAgent(t *testing.T) {
	store := newFakeStore()
	seedHealthyAgent(store, "A", 5)
	seedHealthyAgent(store, "B", 1)

	d := NewDispatcher(store, NewAuditChain(store))
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		a, err := d.selectAgent(ctx)
		if err != nil {
			t.Fatalf("selectAgent %d: %v", i, err)
		}
		if a.ID != "A" && a.ID != "B" {
			t.Fatalf("selectAgent returned unregistered agent %q", a.ID)
		}
		seen[a.ID] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Errorf("selections = %v, want both agents selected at least once over 200 rounds", seen)
	}
}

func TestSelectAgentNoHealthyAgents(t *testing.T) {
	store := newFakeStore()
	d := NewDispatcher(store, NewAuditChain(store))

	if _, err := d.selectAgent(context.Background()); err == nil {
		t.Error("selectAgent with no healthy agents succeeded, want ExternalService error")
	}
}

func TestInvalidateCacheForcesReload(t *testing.T) {
	store := newFakeStore()
	seedHealthyAgent(store, "A", 5)

	d := NewDispatcher(store, NewAuditChain(store))
	ctx := context.Background()

	if _, err := d.selectAgent(ctx); err != nil {
		t.Fatalf("selectAgent: %v", err)
	}

	seedHealthyAgent(store, "B", 5)
	d.InvalidateCache()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		a, err := d.selectAgent(ctx)
		if err != nil {
			t.Fatalf("selectAgent %d: %v", i, err)
		}
		seen[a.ID] = true
	}
	if !seen["B"] {
		t.Error("newly-added agent B was never selected after InvalidateCache, want the cache to have reloaded")
	}
}
