package main

const (
	// CarRadius approximates the car body (30x20 rect) for pairwise tests
	CarRadius = 16.0

	// CollisionRestitution bounds the energy kept by a car-car bounce.
	// Car-car response is intentionally soft; the snapshot remains the
	// only authority the client trusts.
	CollisionRestitution = 0.5

	collisionDamping = 0.8
	maxCarDamage     = 3
)

// CheckCollision returns true if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	rr := r1 + r2
	return dx*dx+dy*dy < rr*rr
}

// ResolveCarCollision separates two overlapping cars and exchanges a damped
// elastic impulse along the center line. Returns true when a collision was
// resolved this tick.
func ResolveCarCollision(a, b *Car) bool {
	delta := b.Pos.Sub(a.Pos)
	dist := delta.Len()
	if dist >= 2*CarRadius || dist == 0 {
		return false
	}
	n := delta.Scale(1 / dist)

	// Positional separation, split evenly
	overlap := 2*CarRadius - dist
	a.Pos = a.Pos.Sub(n.Scale(overlap / 2))
	b.Pos = b.Pos.Add(n.Scale(overlap / 2))

	// Relative velocity along the normal; ignore if already separating
	relVel := b.Vel.Sub(a.Vel).Dot(n)
	if relVel > 0 {
		return true
	}

	// Equal masses: swap the normal components, scaled by restitution
	impulse := n.Scale(-(1 + CollisionRestitution) / 2 * relVel)
	a.Vel = a.Vel.Sub(impulse).Scale(collisionDamping)
	b.Vel = b.Vel.Add(impulse).Scale(collisionDamping)

	if a.Damage < maxCarDamage {
		a.Damage++
	}
	if b.Damage < maxCarDamage {
		b.Damage++
	}
	return true
}
