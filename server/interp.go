package main

import (
	"log"
	"math"
)

const (
	// TeleportThreshold snaps a remote car's display instead of lerping
	TeleportThreshold = 200.0

	remotePosLerp = 0.25
	remoteRotLerp = 0.3

	// worldBound is a sanity clamp for display coordinates
	worldBound = 1e7
)

// RemoteCarView is the interpolation state for one remote car
type RemoteCarView struct {
	TargetPos   Vec2
	TargetRot   float64
	DisplayPos  Vec2
	DisplayRot  float64
	Lap         int
	Checkpoint  int
	Rank        int
	Finished    bool
	Speed       float64
	initialized bool
}

// ClientStateStore holds everything the renderer reads each frame: remote
// cars interpolating toward snapshot targets, and the local car driven
// directly by the predictor (no interpolation for the local player).
type ClientStateStore struct {
	localID   string
	predictor *Predictor
	remotes   map[string]*RemoteCarView

	trackW, trackH float64
	wrap           bool

	// HUD-facing race state
	GameState string
	Elapsed   float64
	LastSeq   uint64
}

// NewClientStateStore binds the store to a track and the local player
func NewClientStateStore(track *Track, localID string, predictor *Predictor) *ClientStateStore {
	return &ClientStateStore{
		localID:   localID,
		predictor: predictor,
		remotes:   make(map[string]*RemoteCarView),
		trackW:    float64(track.Width),
		trackH:    float64(track.Height),
		wrap:      track.WrapAround,
	}
}

// OnSnapshot retargets remote cars and reconciles the local predictor
func (cs *ClientStateStore) OnSnapshot(snap GameStateSnapshot) {
	cs.GameState = snap.GameState
	cs.Elapsed = snap.Elapsed
	cs.LastSeq = snap.Sequence

	seen := make(map[string]bool, len(snap.Cars))
	for _, car := range snap.Cars {
		seen[car.PlayerID] = true
		if car.PlayerID == cs.localID {
			if cs.predictor != nil {
				cs.predictor.Reconcile(car)
			}
			continue
		}
		cs.retargetRemote(car)
	}
	for id := range cs.remotes {
		if !seen[id] {
			delete(cs.remotes, id)
		}
	}

	for _, ev := range snap.Events {
		if ev.Type == EvRaceRespawn && ev.PlayerID == cs.localID && cs.predictor != nil {
			cs.predictor.OnRespawn()
		}
	}
}

func (cs *ClientStateStore) retargetRemote(car CarStateSnapshot) {
	v, ok := cs.remotes[car.PlayerID]
	if !ok {
		v = &RemoteCarView{}
		cs.remotes[car.PlayerID] = v
	}
	target := car.Position()
	if v.initialized {
		// Unwrap the server position into the display's frame so a car
		// crossing the seam keeps moving instead of jumping across
		if cs.wrap {
			target = UnwrapToward(target, v.DisplayPos, cs.trackW, cs.trackH)
		}
		if v.DisplayPos.DistanceTo(target) > TeleportThreshold {
			v.DisplayPos = target
			v.DisplayRot = car.RotationRad()
		}
	} else {
		v.DisplayPos = target
		v.DisplayRot = car.RotationRad()
		v.initialized = true
	}
	v.TargetPos = target
	v.TargetRot = car.RotationRad()
	v.Lap = car.Lap
	v.Checkpoint = car.Checkpoint
	v.Rank = car.PositionRank
	v.Finished = car.Finished
	v.Speed = float64(car.Speed) / 10
}

// Advance moves displays toward targets and runs the predictor's fixed
// steps. dt is real frame time in seconds.
func (cs *ClientStateStore) Advance(dt float64) {
	if cs.predictor != nil {
		cs.predictor.Advance(dt)
	}
	factor := math.Min(1, remotePosLerp*dt*60)
	rotFactor := math.Min(1, remoteRotLerp*dt*60)
	for id, v := range cs.remotes {
		v.DisplayPos.X += (v.TargetPos.X - v.DisplayPos.X) * factor
		v.DisplayPos.Y += (v.TargetPos.Y - v.DisplayPos.Y) * factor
		v.DisplayRot = LerpAngle(v.DisplayRot, v.TargetRot, rotFactor)

		if !v.DisplayPos.IsFinite() {
			log.Printf("state store: non-finite display for %s, snapping", id)
			v.DisplayPos = v.TargetPos
			v.DisplayRot = v.TargetRot
		}
		v.DisplayPos.X = Clamp(v.DisplayPos.X, -worldBound, worldBound)
		v.DisplayPos.Y = Clamp(v.DisplayPos.Y, -worldBound, worldBound)
	}
}

// Remote returns the view for one remote player, or nil
func (cs *ClientStateStore) Remote(playerID string) *RemoteCarView {
	return cs.remotes[playerID]
}

// LocalCar returns the predictor-driven local state
func (cs *ClientStateStore) LocalCar() Car {
	if cs.predictor == nil {
		return Car{}
	}
	return cs.predictor.State()
}
