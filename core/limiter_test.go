package core

import (
	"errors"
	"testing"
)

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	for i := 0; i < 2; i++ {
		if err := l.Acquire(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := l.Acquire(); !errors.Is(err, ErrStepLimitExceeded) {
		t.Fatalf("expected ErrStepLimitExceeded, got %v", err)
	}
	if l.Steps() != 2 || l.Remaining() != 0 {
		t.Fatalf("steps=%d remaining=%d", l.Steps(), l.Remaining())
	}
}

func TestStepLimiter_Unlimited(t *testing.T) {
	l := NewStepLimiter(0)
	for i := 0; i < 100; i++ {
		if err := l.Acquire(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if l.Remaining() != -1 {
		t.Fatalf("expected -1 remaining, got %d", l.Remaining())
	}
}
