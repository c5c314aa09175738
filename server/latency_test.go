package main

import "testing"

func TestRTTEstimatorSmoothing(t *testing.T) {
	var e RTTEstimator
	if e.RTT() != 0 {
		t.Error("fresh estimator should report 0")
	}
	e.AddSample(100)
	if e.RTT() != 100 {
		t.Errorf("first sample taken verbatim, got %v", e.RTT())
	}
	e.AddSample(200)
	if e.RTT() <= 100 || e.RTT() >= 200 {
		t.Errorf("expected smoothed value between samples, got %v", e.RTT())
	}
	if e.OneWay() != e.RTT()/2 {
		t.Error("one-way should be half the round trip")
	}
	// A spike moves the estimate only a little
	before := e.RTT()
	e.AddSample(1000)
	if e.RTT()-before > (1000-before)*rttSmoothing+1e-9 {
		t.Errorf("spike moved estimate too far: %v -> %v", before, e.RTT())
	}
	// Negative samples are dropped
	e.AddSample(-5)
	if e.RTT() < 0 {
		t.Error("negative sample accepted")
	}
}

func TestRTTEstimatorOnPong(t *testing.T) {
	var e RTTEstimator
	e.OnPong(PongMsg{ClientTimestamp: 1000, ServerTimestamp: 1025}, 1050)
	if e.RTT() != 50 {
		t.Errorf("expected 50ms, got %v", e.RTT())
	}
}
