package pipeline

import (
	"testing"
	"time"
)

func TestDedupSuppressesWithinCooldown(t *testing.T) {
	d := NewAlertDeduplicator(60 * time.Second)
	base := time.Now()

	if !d.ShouldEmit("safety_glasses", base) {
		t.Fatal("first violation must emit")
	}
	if d.ShouldEmit("safety_glasses", base.Add(30*time.Second)) {
		t.Error("same signature inside cooldown must be suppressed")
	}
	if !d.ShouldEmit("safety_glasses", base.Add(61*time.Second)) {
		t.Error("same signature after cooldown must emit again")
	}
}

func TestDedupNewSignatureEmitsImmediately(t *testing.T) {
	d := NewAlertDeduplicator(60 * time.Second)
	base := time.Now()

	if !d.ShouldEmit("safety_glasses", base) {
		t.Fatal("first violation must emit")
	}
	if !d.ShouldEmit("safety_glasses,safety_shoes", base.Add(time.Second)) {
		t.Error("a different signature is a new violation and must emit")
	}

	// The shape changed, so the old signature's cooldown no longer applies.
	if !d.ShouldEmit("safety_glasses", base.Add(2*time.Second)) {
		t.Error("reverting to a prior signature after a change must emit")
	}
}
