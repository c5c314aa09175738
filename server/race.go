package main

import (
	"sort"
	"time"
)

// Race event types, bundled into snapshots and also sent as dedicated
// messages where the protocol defines one
const (
	EvRaceCheckpoint = "checkpoint"
	EvRaceLap        = "lap"
	EvRaceFinish     = "finish"
	EvRaceRespawn    = "respawn"
	EvRaceCollision  = "collision"
)

// RaceEvent is one arbitration event fired during a tick
type RaceEvent struct {
	Type       string  `json:"type" msgpack:"t"`
	PlayerID   string  `json:"playerId" msgpack:"pid"`
	Checkpoint int     `json:"checkpoint,omitempty" msgpack:"c,omitempty"`
	Lap        int     `json:"lap,omitempty" msgpack:"l,omitempty"`
	LapTime    float64 `json:"lapTime,omitempty" msgpack:"lt,omitempty"`
	Rank       int     `json:"rank,omitempty" msgpack:"rk,omitempty"`
	TotalTime  float64 `json:"totalTime,omitempty" msgpack:"tt,omitempty"`
	OtherID    string  `json:"otherId,omitempty" msgpack:"o,omitempty"`
	Time       float64 `json:"time" msgpack:"ts"`
}

// stuckSpeedFloor is the speed below which a car can be considered stuck
const stuckSpeedFloor = 0.3

// stuckMoveRadius is how far a car must move to reset its stuck baseline
const stuckMoveRadius = 25.0

// RaceArbiter applies checkpoint ordering, lap counting, finish detection
// and respawn for one room. It never blocks and never errors; it produces
// events.
type RaceArbiter struct {
	track       *Track
	checkpoints []TrackElement
	finish      *TrackElement
	spawns      []TrackElement
	lapTarget   int

	finishedCount int
	firstFinish   float64 // race elapsed of the first finisher, -1 if none
}

// NewRaceArbiter builds an arbiter for a validated track
func NewRaceArbiter(track *Track, lapTarget int) *RaceArbiter {
	return &RaceArbiter{
		track:       track,
		checkpoints: track.Checkpoints(),
		finish:      track.Finish(),
		spawns:      track.Spawns(),
		lapTarget:   lapTarget,
		firstFinish: -1,
	}
}

// near reports whether the car position lies within the element's trigger
// circle. On wrap-around tracks the shortest toroidal distance is used.
func (a *RaceArbiter) near(pos Vec2, e *TrackElement) bool {
	center := e.Center()
	if a.track.WrapAround {
		center = UnwrapToward(center, pos, float64(a.track.Width), float64(a.track.Height))
	}
	return pos.DistanceTo(center) <= e.Radius()
}

// Step arbitrates one car for one tick. elapsed is the race clock in
// seconds. Returned events preserve emit order.
func (a *RaceArbiter) Step(c *Car, elapsed float64) []RaceEvent {
	if c.Finished {
		return nil
	}
	var events []RaceEvent

	// Next expected checkpoint
	if c.Checkpoint < len(a.checkpoints) {
		cp := &a.checkpoints[c.Checkpoint]
		if a.near(c.Pos, cp) {
			events = append(events, RaceEvent{
				Type:       EvRaceCheckpoint,
				PlayerID:   c.PlayerID,
				Checkpoint: c.Checkpoint,
				Time:       elapsed,
			})
			c.Checkpoint++
		}
	}

	// Lap completion requires all checkpoints plus a rising edge on the
	// finish line, so sitting on the line cannot re-trigger
	if a.finish != nil {
		onFinish := a.near(c.Pos, a.finish)
		if c.Checkpoint >= len(a.checkpoints) && onFinish && !c.PassedFinishLine {
			lapTime := elapsed
			for _, t := range c.LapTimes {
				lapTime -= t
			}
			c.Lap++
			c.LapTimes = append(c.LapTimes, lapTime)
			c.Checkpoint = 0
			events = append(events, RaceEvent{
				Type:     EvRaceLap,
				PlayerID: c.PlayerID,
				Lap:      c.Lap,
				LapTime:  lapTime,
				Time:     elapsed,
			})

			if c.Lap >= a.lapTarget {
				c.Finished = true
				c.FinishTime = elapsed
				a.finishedCount++
				c.Rank = a.finishedCount
				if a.firstFinish < 0 {
					a.firstFinish = elapsed
				}
				events = append(events, RaceEvent{
					Type:      EvRaceFinish,
					PlayerID:  c.PlayerID,
					Rank:      c.Rank,
					TotalTime: elapsed,
					Time:      elapsed,
				})
			}
		}
		c.PassedFinishLine = onFinish
	}

	return events
}

// Respawn teleports the car to its last fully-passed checkpoint, or to the
// finish line after a completed lap, or to a spawn when nothing has been
// passed yet.
func (a *RaceArbiter) Respawn(c *Car, spawnIdx int, elapsed float64) RaceEvent {
	var target TrackElement
	switch {
	case c.Checkpoint > 0 && c.Checkpoint <= len(a.checkpoints):
		target = a.checkpoints[c.Checkpoint-1]
	case c.Lap > 0 && a.finish != nil:
		target = *a.finish
	case len(a.spawns) > 0:
		target = a.spawns[spawnIdx%len(a.spawns)]
	}
	c.TeleportTo(target.Center(), target.Rotation)
	c.PassedFinishLine = false
	return RaceEvent{Type: EvRaceRespawn, PlayerID: c.PlayerID, Time: elapsed}
}

// UpdateStuck maintains the car's last-position baseline and stuck timer.
// Returns true once the car has been stuck longer than threshold.
func (a *RaceArbiter) UpdateStuck(c *Car, now time.Time, threshold time.Duration) bool {
	if c.Pos.DistanceTo(c.LastPos) > stuckMoveRadius {
		c.LastPos = c.Pos
		c.LastPosTime = now
		c.StuckSince = time.Time{}
		return false
	}
	if c.Speed > stuckSpeedFloor {
		c.StuckSince = time.Time{}
		return false
	}
	if c.StuckSince.IsZero() {
		c.StuckSince = now
		return false
	}
	return now.Sub(c.StuckSince) >= threshold
}

// Rank recomputes the total order across all cars: finished first by
// ascending finish time, then unfinished by descending lap and descending
// checkpoint progress. Finish ranks assigned at the line are preserved.
func (a *RaceArbiter) Rank(cars []*Car) {
	sorted := make([]*Car, len(cars))
	copy(sorted, cars)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i], sorted[j]
		if ci.Finished != cj.Finished {
			return ci.Finished
		}
		if ci.Finished {
			return ci.FinishTime < cj.FinishTime
		}
		if ci.Lap != cj.Lap {
			return ci.Lap > cj.Lap
		}
		return ci.Checkpoint > cj.Checkpoint
	})
	for i, c := range sorted {
		c.Rank = i + 1
	}
}

// AllFinished reports whether every car has crossed the line
func (a *RaceArbiter) AllFinished(cars []*Car) bool {
	if len(cars) == 0 {
		return false
	}
	for _, c := range cars {
		if !c.Finished {
			return false
		}
	}
	return true
}

// GraceExpired reports whether the finish grace period has elapsed since
// the first finisher
func (a *RaceArbiter) GraceExpired(elapsed, grace float64) bool {
	return a.firstFinish >= 0 && elapsed-a.firstFinish >= grace
}
