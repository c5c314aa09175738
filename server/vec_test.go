package main

import (
	"math"
	"testing"
)

func TestWrapPosition(t *testing.T) {
	p := WrapPosition(Vec2{850, -20}, 800, 600)
	if p.X != 50 || p.Y != 580 {
		t.Errorf("expected (50,580), got (%v,%v)", p.X, p.Y)
	}
	p = WrapPosition(Vec2{799.9, 0}, 800, 600)
	if p.X >= 800 || p.X < 0 || p.Y < 0 || p.Y >= 600 {
		t.Errorf("wrapped position out of bounds: %v", p)
	}
}

func TestUnwrapToward(t *testing.T) {
	// Server wrapped to x=5, predictor sits at x=795: nearest image is 805
	target := UnwrapToward(Vec2{5, 300}, Vec2{795, 300}, 800, 600)
	if target.X != 805 {
		t.Errorf("expected unwrapped x=805, got %v", target.X)
	}
	// Already nearest: unchanged
	target = UnwrapToward(Vec2{400, 300}, Vec2{410, 300}, 800, 600)
	if target.X != 400 {
		t.Errorf("expected x=400, got %v", target.X)
	}
	// Multiple laps of drift
	target = UnwrapToward(Vec2{10, 10}, Vec2{2410, 10}, 800, 600)
	if target.X != 2410 {
		t.Errorf("expected x=2410, got %v", target.X)
	}
}

func TestNormalizeAngle(t *testing.T) {
	if got := NormalizeAngle(3 * math.Pi); math.Abs(got-math.Pi) > 1e-9 {
		t.Errorf("expected pi, got %v", got)
	}
	if got := NormalizeAngle(-3 * math.Pi); math.Abs(got+math.Pi) > 1e-9 {
		t.Errorf("expected -pi, got %v", got)
	}
}

func TestLerpAngleShortPath(t *testing.T) {
	// From just below +pi to just above -pi should go through pi, not zero
	from := math.Pi - 0.1
	to := -math.Pi + 0.1
	got := LerpAngle(from, to, 0.5)
	if math.Abs(NormalizeAngle(got-math.Pi)) > 0.11 {
		t.Errorf("lerp took the long way: %v", got)
	}
}

func TestForwardConvention(t *testing.T) {
	// Rotation 0 points up (negative Y)
	f := Forward(0)
	if math.Abs(f.X) > 1e-9 || math.Abs(f.Y+1) > 1e-9 {
		t.Errorf("expected (0,-1), got %v", f)
	}
	// Rotation pi/2 points right
	f = Forward(math.Pi / 2)
	if math.Abs(f.X-1) > 1e-9 || math.Abs(f.Y) > 1e-9 {
		t.Errorf("expected (1,0), got %v", f)
	}
}

func TestVec2IsFinite(t *testing.T) {
	if !(Vec2{1, 2}).IsFinite() {
		t.Error("finite vector reported non-finite")
	}
	if (Vec2{math.NaN(), 0}).IsFinite() {
		t.Error("NaN vector reported finite")
	}
	if (Vec2{0, math.Inf(1)}).IsFinite() {
		t.Error("Inf vector reported finite")
	}
}
