package utils

import (
	"testing"
	"time"
)

func TestNewBackoffAppliesOptionsWithinBounds(t *testing.T) {
	tests := []struct {
		name    string
		opts    []BackoffOption
		wantMin float64
		wantMax float64
	}{
		{name: "defaults", opts: nil, wantMin: 100, wantMax: 10000},
		{name: "custom bounds", opts: []BackoffOption{WithMin(200), WithMax(5000), WithFactor(1.5)}, wantMin: 200, wantMax: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(tt.opts...)
			if got := b.Duration(); got < int64(tt.wantMin) || got > int64(tt.wantMax) {
				t.Errorf("first duration = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestBackoffDurationGrowsMonotonically(t *testing.T) {
	b := NewBackoff()
	var prev int64
	for range 5 {
		curr := b.Duration()
		if curr < prev {
			t.Errorf("duration decreased: prev=%v, curr=%v", prev, curr)
		}
		prev = curr
		time.Sleep(time.Millisecond)
	}
}

func TestBackoffResetRestartsSequence(t *testing.T) {
	b := NewBackoff()

	initial := b.Duration()
	b.Duration()
	b.Duration()

	b.Reset()
	if after := b.Duration(); after != initial {
		t.Errorf("reset failed: initial=%v, after reset=%v", initial, after)
	}
}

func TestBackoffRespectsMaxAcrossManyAttempts(t *testing.T) {
	b := NewBackoff(WithMax(2000))
	for range 20 {
		if got := b.Duration(); got > 2000 {
			t.Errorf("duration %v exceeds configured max 2000", got)
		}
	}
}

func TestBackoffJitterVariesDelay(t *testing.T) {
	b := NewBackoff(WithJitter(0.5))
	prev := b.Duration()
	found := false
	for range 10 {
		curr := b.Duration()
		if curr != prev {
			found = true
			break
		}
		prev = curr
	}
	if !found {
		t.Error("expected jitter to vary successive durations")
	}
}
