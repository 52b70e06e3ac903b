package scheduler

import "testing"

func TestSlotTracker_AcquireRespectsMax(t *testing.T) {
	s := newSlotTracker(2)

	if got := s.acquire(3); got != 2 {
		t.Fatalf("expected to acquire at most 2 slots, got %d", got)
	}
	if s.available() != 0 {
		t.Fatalf("expected 0 available slots, got %d", s.available())
	}

	s.release(1)
	if s.available() != 1 {
		t.Fatalf("expected 1 available slot after release, got %d", s.available())
	}
}

func TestSlotTracker_ReleaseNeverGoesNegative(t *testing.T) {
	s := newSlotTracker(1)
	s.release(5)
	if s.inUse() != 0 {
		t.Fatalf("expected inUse to clamp at 0, got %d", s.inUse())
	}
}
