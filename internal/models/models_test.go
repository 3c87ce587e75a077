package models

import "testing"

func TestCanTransitionPool(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{PoolStatusActive, PoolStatusFull, true},
		{PoolStatusActive, PoolStatusDraining, true},
		{PoolStatusActive, PoolStatusStopped, true},
		{PoolStatusFull, PoolStatusActive, true},
		{PoolStatusFull, PoolStatusDraining, true},
		{PoolStatusFull, PoolStatusStopped, false},
		{PoolStatusDraining, PoolStatusStopped, true},
		{PoolStatusDraining, PoolStatusActive, false},
		{PoolStatusStopped, PoolStatusActive, false},
		{"unknown", PoolStatusActive, false},
	}

	for _, tt := range tests {
		if got := CanTransitionPool(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionPool(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPoolAcceptsPlacements(t *testing.T) {
	p := &Pool{ID: "pool-1", Capacity: 2, Status: PoolStatusActive}

	if !PoolAcceptsPlacements(p) {
		t.Error("empty active pool should accept placements")
	}

	p.Instances = []string{"a", "b"}
	if PoolAcceptsPlacements(p) {
		t.Error("pool at capacity should not accept placements")
	}

	p.Instances = []string{"a"}
	p.Status = PoolStatusDraining
	if PoolAcceptsPlacements(p) {
		t.Error("draining pool should not accept placements")
	}
}

func TestPlacementStateClone(t *testing.T) {
	s := NewPlacementState()
	s.Pools["pool-1"] = &Pool{ID: "pool-1", Capacity: 5, Instances: []string{"a"}, Status: PoolStatusActive}
	s.BotMapping["a"] = "pool-1"

	clone := s.Clone()
	clone.Pools["pool-1"].Instances = append(clone.Pools["pool-1"].Instances, "b")
	clone.BotMapping["b"] = "pool-1"

	if len(s.Pools["pool-1"].Instances) != 1 {
		t.Error("mutating clone leaked into original pool")
	}
	if _, ok := s.BotMapping["b"]; ok {
		t.Error("mutating clone leaked into original mapping")
	}
}

func TestPositionStateTierTriggered(t *testing.T) {
	ps := &PositionState{TriggeredTiers: []float64{5}}

	if !ps.TierTriggered(5) {
		t.Error("tier 5 should be marked triggered")
	}
	if ps.TierTriggered(10) {
		t.Error("tier 10 should not be marked triggered")
	}
}
