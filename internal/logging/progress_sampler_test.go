package logging

import "testing"

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "analysis") {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		stage   string
		want    bool
	}{
		{5, "queued", true},
		{8, "queued", false},
		{10, "resolving", true},
		{12, "resolving", false},
		{15, "analysis", true},
		{19, "analysis", false},
		{21, "analysis", true},
		{-1, "analysis", false},
		{150, "analysis", true},
		{100, "analysis", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.stage); got != step.want {
			t.Fatalf("step %d (%v, %q): got %v, want %v", i, step.percent, step.stage, got, step.want)
		}
	}
}

func TestProgressSamplerStageChangeResetsBucket(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 10 {
		t.Fatalf("default bucket = %v, want 10", s.bucketSize)
	}
	s.ShouldLog(50, " zones ")
	if s.ShouldLog(50, "zones") {
		t.Fatal("trimmed stage should not count as a change")
	}
	if !s.ShouldLog(30, "persist") {
		t.Fatal("stage change should emit")
	}
	s.Reset()
	if !s.ShouldLog(30, "persist") {
		t.Fatal("reset should forget the previous stage")
	}
}
