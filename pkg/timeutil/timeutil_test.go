package timeutil

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if !f.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, f.Now())
	}
	f.Advance(3 * time.Second)
	if got := f.Now().Sub(start); got != 3*time.Second {
		t.Fatalf("expected 3s elapsed, got %v", got)
	}
	f.Set(start)
	if !f.Now().Equal(start) {
		t.Fatalf("set did not rewind clock")
	}
}

func TestOrDefaultsToSystem(t *testing.T) {
	if Or(nil) == nil {
		t.Fatalf("expected system clock")
	}
	f := NewFake(time.Unix(0, 0))
	if Or(f) != Clock(f) {
		t.Fatalf("expected provided clock to be returned")
	}
}
