package main

import "log"

const (
	// SnapThreshold hard-snaps the predicted position when the server
	// disagrees by more than this (respawns, teleports)
	SnapThreshold = 150.0

	// MaxPendingInputs bounds the unconfirmed-input FIFO
	MaxPendingInputs = 120

	velBlendFactor = 0.15
	angBlendFactor = 0.15
	rotBlendFactor = 0.3
	posBlendFactor = 0.1
	posDeadZone    = 0.5

	predictorTickDT = 1.0 / PhysicsTickRate // seconds
)

// Predictor mirrors the server physics for the local car. It works in
// unbounded continuous coordinates and never wraps, even on toroidal
// tracks: server positions are unwrapped into the predictor's frame at
// reconciliation time.
//
// One Predictor belongs to one session. It holds no server state.
type Predictor struct {
	car     Car
	pending []InputState
	current InputState

	lastConfirmed uint32
	accumulator   float64

	trackW, trackH float64
	wrap           bool

	// LastCorrectionDist is the distance between the predicted position and
	// the server target at the last blended reconcile; a hard snap resets it
	// to 0. Surfaced for the debug overlay
	LastCorrectionDist float64
}

// NewPredictor seeds the predicted state from the initial car snapshot
func NewPredictor(track *Track, initial CarStateSnapshot) *Predictor {
	p := &Predictor{
		trackW: float64(track.Width),
		trackH: float64(track.Height),
		wrap:   track.WrapAround,
	}
	p.car = Car{
		ID:         initial.ID,
		PlayerID:   initial.PlayerID,
		Pos:        initial.Position(),
		Rotation:   initial.RotationRad(),
		Vel:        initial.Velocity(),
		AngularVel: initial.AngularVelRad(),
		Nitro:      float64(initial.Nitro),
	}
	return p
}

// State returns the current predicted car state
func (p *Predictor) State() Car { return p.car }

// PendingCount returns the number of unconfirmed inputs
func (p *Predictor) PendingCount() int { return len(p.pending) }

// ApplyLocalInput records an input event and applies one immediate step
// for perceived responsiveness. The input also becomes the held input for
// continuous ticks until the next event.
func (p *Predictor) ApplyLocalInput(in InputState) {
	in.Sanitize()
	p.pending = append(p.pending, in)
	if len(p.pending) > MaxPendingInputs {
		p.pending = p.pending[len(p.pending)-MaxPendingInputs:]
	}
	p.current = in
	StepCar(&p.car, in)
}

// Advance feeds elapsed real time into the fixed-timestep accumulator and
// runs whole ticks with the held input, keeping physics independent of the
// display refresh rate.
func (p *Predictor) Advance(dt float64) {
	p.accumulator += dt
	for p.accumulator >= predictorTickDT {
		StepCar(&p.car, p.current)
		p.accumulator -= predictorTickDT
	}
}

// Reconcile blends the predicted state toward an authoritative car record.
// Acknowledged inputs are dropped from the FIFO first.
func (p *Predictor) Reconcile(s CarStateSnapshot) {
	p.lastConfirmed = s.LastInputSeq
	kept := p.pending[:0]
	for _, in := range p.pending {
		if in.Sequence > s.LastInputSeq {
			kept = append(kept, in)
		}
	}
	p.pending = kept

	// A non-finite prediction is unrecoverable: warn and take the server
	// state wholesale
	if !p.car.Pos.IsFinite() || !p.car.Vel.IsFinite() {
		log.Printf("predictor: non-finite state, hard snap")
		p.snapTo(s, s.Position())
		return
	}

	// Choose the wrap-count offset that puts the server target nearest
	// the predicted position
	target := s.Position()
	if p.wrap {
		target = UnwrapToward(target, p.car.Pos, p.trackW, p.trackH)
	}

	sv := s.Velocity()
	p.car.Vel.X += (sv.X - p.car.Vel.X) * velBlendFactor
	p.car.Vel.Y += (sv.Y - p.car.Vel.Y) * velBlendFactor
	p.car.AngularVel += (s.AngularVelRad() - p.car.AngularVel) * angBlendFactor
	p.car.Rotation = LerpAngle(p.car.Rotation, s.RotationRad(), rotBlendFactor)

	dist := p.car.Pos.DistanceTo(target)
	p.LastCorrectionDist = dist
	switch {
	case dist > SnapThreshold:
		p.snapTo(s, target)
	case dist > posDeadZone:
		p.car.Pos.X += (target.X - p.car.Pos.X) * posBlendFactor
		p.car.Pos.Y += (target.Y - p.car.Pos.Y) * posBlendFactor
	}

	p.car.Nitro = float64(s.Nitro)
	p.car.Lap = s.Lap
	p.car.Checkpoint = s.Checkpoint
	p.car.Rank = s.PositionRank
	p.car.Finished = s.Finished
}

func (p *Predictor) snapTo(s CarStateSnapshot, target Vec2) {
	p.car.Pos = target
	p.car.Rotation = s.RotationRad()
	p.car.Vel = s.Velocity()
	p.car.AngularVel = s.AngularVelRad()
	p.LastCorrectionDist = 0
}

// OnRespawn zeroes the local velocity and clears the unconfirmed FIFO; the
// next snapshot supplies the authoritative position.
func (p *Predictor) OnRespawn() {
	p.car.Vel = Vec2{}
	p.car.AngularVel = 0
	p.car.Speed = 0
	p.pending = p.pending[:0]
	p.current = InputState{}
}
