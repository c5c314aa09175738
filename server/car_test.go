package main

import (
	"math"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestCarSnapshotRoundTrip(t *testing.T) {
	c := &Car{
		ID:           "c1",
		PlayerID:     "p1",
		Pos:          Vec2{123.456789, 9.87123},
		Rotation:     2.718281,
		Vel:          Vec2{-3.14159, 0.00125},
		AngularVel:   -0.054321,
		SteerAngle:   0.123456,
		Speed:        17.77,
		Nitro:        42.4,
		Damage:       2,
		Lap:          3,
		Checkpoint:   1,
		Rank:         4,
		Finished:     true,
		Layer:        1,
		LastInputSeq: 991,
	}
	s := c.Snapshot()

	if math.Abs(s.Position().X-c.Pos.X) > 0.02 || math.Abs(s.Position().Y-c.Pos.Y) > 0.02 {
		t.Errorf("position tolerance exceeded: %v vs %v", s.Position(), c.Pos)
	}
	if math.Abs(s.RotationRad()-c.Rotation) > 0.002 {
		t.Errorf("rotation tolerance exceeded: %v vs %v", s.RotationRad(), c.Rotation)
	}
	if math.Abs(s.Velocity().X-c.Vel.X) > 0.02 || math.Abs(s.Velocity().Y-c.Vel.Y) > 0.02 {
		t.Errorf("velocity tolerance exceeded: %v vs %v", s.Velocity(), c.Vel)
	}
	if math.Abs(s.AngularVelRad()-c.AngularVel) > 0.002 {
		t.Errorf("angular tolerance exceeded: %v vs %v", s.AngularVelRad(), c.AngularVel)
	}

	// Integer fields are exact
	if s.Lap != 3 || s.Checkpoint != 1 || s.PositionRank != 4 || !s.Finished ||
		s.Layer != 1 || s.LastInputSeq != 991 || s.Damage != 2 {
		t.Errorf("integer fields mangled: %+v", s)
	}
	if s.Nitro != 42 {
		t.Errorf("nitro should round to 42, got %d", s.Nitro)
	}
}

func TestCarSnapshotMsgpackStable(t *testing.T) {
	c := &Car{ID: "c1", PlayerID: "p1", Pos: Vec2{55.55, 66.66}, LastInputSeq: 7}
	s := c.Snapshot()
	raw, err := msgpack.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back CarStateSnapshot
	if err := msgpack.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != s {
		t.Errorf("msgpack round trip changed the record: %+v vs %+v", back, s)
	}
}

func TestCarCheckFinite(t *testing.T) {
	c := &Car{Pos: Vec2{10, 10}, LastPos: Vec2{5, 5}}
	if !c.CheckFinite() {
		t.Error("finite car flagged")
	}
	c.Pos = Vec2{math.NaN(), 10}
	c.Vel = Vec2{3, 3}
	if c.CheckFinite() {
		t.Error("NaN position not caught")
	}
	if c.Pos != (Vec2{5, 5}) || c.Vel.Len() != 0 {
		t.Errorf("repair should restore last good position, got %+v", c)
	}
}

func TestResolveCarCollision(t *testing.T) {
	a := &Car{PlayerID: "a", Pos: Vec2{100, 100}, Vel: Vec2{5, 0}}
	b := &Car{PlayerID: "b", Pos: Vec2{100 + CarRadius, 100}, Vel: Vec2{-5, 0}}
	if !ResolveCarCollision(a, b) {
		t.Fatal("overlapping cars did not collide")
	}
	// Separated
	if a.Pos.DistanceTo(b.Pos) < 2*CarRadius-0.01 {
		t.Errorf("cars still overlap: %v", a.Pos.DistanceTo(b.Pos))
	}
	// Velocities reversed along the normal, damped
	if a.Vel.X >= 0 || b.Vel.X <= 0 {
		t.Errorf("collision did not exchange momentum: %v %v", a.Vel, b.Vel)
	}
	if a.Damage != 1 || b.Damage != 1 {
		t.Error("collision should add damage")
	}

	// Restitution bound: outgoing speed never exceeds incoming
	if a.Vel.Len() > 5 || b.Vel.Len() > 5 {
		t.Errorf("collision added energy: %v %v", a.Vel.Len(), b.Vel.Len())
	}

	far := &Car{PlayerID: "c", Pos: Vec2{500, 500}}
	if ResolveCarCollision(a, far) {
		t.Error("distant cars collided")
	}
}

func TestCollisionDamageCap(t *testing.T) {
	a := &Car{PlayerID: "a", Pos: Vec2{100, 100}}
	b := &Car{PlayerID: "b", Pos: Vec2{101, 100}}
	for i := 0; i < 10; i++ {
		a.Pos = Vec2{100, 100}
		b.Pos = Vec2{101, 100}
		a.Vel = Vec2{1, 0}
		b.Vel = Vec2{-1, 0}
		ResolveCarCollision(a, b)
	}
	if a.Damage > maxCarDamage || b.Damage > maxCarDamage {
		t.Errorf("damage exceeded cap: %d %d", a.Damage, b.Damage)
	}
}
