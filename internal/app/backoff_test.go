package app

import (
	"testing"
	"time"
)

func TestBackoff_Series(t *testing.T) {
	b := newBackoff(DefaultBackoffStep, DefaultBackoffMax)

	want := []time.Duration{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30, 30, 30}
	for i, w := range want {
		if got := b.Next(); got != w*time.Second {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w*time.Second)
		}
	}
	if b.Failures() != len(want) {
		t.Errorf("Failures() = %d, want %d", b.Failures(), len(want))
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := newBackoff(DefaultBackoffStep, DefaultBackoffMax)
	b.Next()
	b.Next()
	b.Reset()

	if b.Failures() != 0 {
		t.Errorf("Failures() after Reset = %d, want 0", b.Failures())
	}
	if got := b.Next(); got != 2*time.Second {
		t.Errorf("Next() after Reset = %v, want 2s", got)
	}
}

func TestBackoff_StaysCappedAfterManyFailures(t *testing.T) {
	b := newBackoff(DefaultBackoffStep, DefaultBackoffMax)
	var last time.Duration
	for i := 0; i < 100000; i++ {
		last = b.Next()
	}
	if last != DefaultBackoffMax {
		t.Errorf("Next() after many failures = %v, want %v", last, DefaultBackoffMax)
	}
}
