package common

import (
	"errors"
	"testing"
)

func TestGuardRespectsStaticPauses(t *testing.T) {
	pauses := NewStaticPauses([]string{" Rewards ", ""})

	if err := Guard(pauses, "rewards"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "token"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "rewards"); err != nil {
		t.Fatalf("nil pause view must allow: %v", err)
	}
}
