package main

import "math"

// Physics constants. Server and client predictor share this exact set and
// the step order below; changing either breaks reconciliation.
const (
	PhysicsTickRate    = 60
	StateBroadcastRate = 20
	BroadcastEvery     = PhysicsTickRate / StateBroadcastRate

	// PhysicsDT matches the reference backend: forces are per-ms-squared
	PhysicsDT   = 1000.0 / 60.0 // ms
	CarMass     = 1.2           // density * area = 0.002 * 30 * 20
	FrictionAir = 0.01

	EngineForce          = 2.0
	ReverseForce         = 1.2
	MaxSpeed             = 20.0 // px per tick
	MaxReverseSpeed      = 8.0
	NitroBoostMultiplier = 1.5
	MaxSteeringAngle     = 0.6  // radians
	MaxAngularVelocity   = 0.12 // radians per tick
	DragCoefficient      = 0.0003
	RollingResistance    = 0.002

	NitroMax         = 100.0
	NitroBurnPerTick = 0.8
)

// StepCar advances one car by one fixed tick given one input snapshot.
// It is deterministic and never fails: with a zero input the car coasts
// under drag. Position is left unbounded; the server wraps afterwards on
// toroidal tracks, the client predictor never does.
func StepCar(c *Car, in InputState) {
	fwd := Forward(c.Rotation)
	speed := c.Vel.Len()
	fwdSpeed := c.Vel.Dot(fwd)

	// Accumulate forces, applied at integration below
	var force Vec2
	if in.Accelerate && speed < MaxSpeed {
		force = force.Add(fwd.Scale(EngineForce * 0.001))
	}
	nitroActive := in.Nitro && c.Nitro > 0
	if nitroActive {
		force = force.Add(fwd.Scale(EngineForce * 0.0015))
		c.Nitro -= NitroBurnPerTick
		if c.Nitro < 0 {
			c.Nitro = 0
		}
	}

	// Braking acts on velocity directly while rolling forward, and as a
	// reverse force once slow
	if in.Brake {
		if fwdSpeed > 1 {
			c.Vel = c.Vel.Scale(0.95)
		} else if fwdSpeed > -MaxReverseSpeed {
			force = force.Sub(fwd.Scale(ReverseForce * 0.001))
		}
	}

	// Steering: authority ramps up to speed 3, full to 15, fades above
	steer := in.Steer()
	if speed > 0.5 && steer != 0 {
		var speedFactor float64
		switch {
		case speed < 3:
			speedFactor = speed / 3
		case speed <= 15:
			speedFactor = 1.0
		default:
			speedFactor = math.Max(0.5, 15/speed)
		}
		c.AngularVel = steer * MaxSteeringAngle * 0.18 * speedFactor
		if fwdSpeed < 0 {
			c.AngularVel = -c.AngularVel
		}
	} else {
		c.AngularVel *= 0.85
	}
	c.AngularVel = Clamp(c.AngularVel, -MaxAngularVelocity, MaxAngularVelocity)
	c.SteerAngle = steer * MaxSteeringAngle

	// Drag, using the pre-drag speed
	speed = c.Vel.Len()
	c.Vel = c.Vel.Scale(1 - DragCoefficient*speed - RollingResistance)

	// Speed clamp
	limit := MaxSpeed
	if nitroActive {
		limit = NitroBoostMultiplier * MaxSpeed
	}
	speed = c.Vel.Len()
	if speed > limit {
		c.Vel = c.Vel.Scale(limit / speed)
	}

	// Verlet-style integration matching the reference backend: air
	// friction damps velocity, force enters as F/m * DT^2. Torque is
	// ignored (infinite rotational inertia).
	c.Vel = c.Vel.Scale(1 - FrictionAir).Add(force.Scale(PhysicsDT * PhysicsDT / CarMass))
	c.AngularVel *= 1 - FrictionAir
	c.Rotation += c.AngularVel

	c.Pos = c.Pos.Add(c.Vel)
	c.Speed = c.Vel.Len()
}
