package main

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	cases := []struct {
		p    int
		want time.Duration
	}{
		{0, 1},
		{50, 5},
		{99, 9},
		{100, 10},
	}
	for _, tc := range cases {
		if got := percentile(samples, tc.p); got != tc.want {
			t.Fatalf("percentile(%d) = %d, want %d", tc.p, got, tc.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("percentile(nil) = %d", got)
	}
}

func TestComputeStatsSortsSamples(t *testing.T) {
	s := computeStats(time.Second, []time.Duration{30, 10, 20}, 1)
	if s.ops != 3 || s.failures != 1 {
		t.Fatalf("ops=%d failures=%d", s.ops, s.failures)
	}
	if s.p50 != 20 || s.p99 != 20 {
		t.Fatalf("p50=%d p99=%d", s.p50, s.p99)
	}
	if s.opsPerS != 3 {
		t.Fatalf("ops/sec = %v", s.opsPerS)
	}

	if empty := computeStats(time.Second, nil, 0); empty.ops != 0 {
		t.Fatalf("empty ops = %d", empty.ops)
	}
}
