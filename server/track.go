package main

import (
	"fmt"
	"sort"
)

// Track element types recognized by the simulation and the editor format
const (
	ElemRoad       = "road"
	ElemRoadCurve  = "road_curve"
	ElemWall       = "wall"
	ElemCheckpoint = "checkpoint"
	ElemFinish     = "finish"
	ElemBoost      = "boost"
	ElemOil        = "oil"
	ElemSpawn      = "spawn"
	ElemRamp       = "ramp"
	ElemRampUp     = "ramp_up"
	ElemRampDown   = "ramp_down"
	ElemBridge     = "bridge"
	ElemBarrier    = "barrier"
	ElemTireStack  = "tire_stack"
	ElemPitStop    = "pit_stop"
)

// minSpawnSpacing is the minimum distance between two spawn points
const minSpawnSpacing = 30.0

// TrackElement is one placed piece of a track. The bounding rect is
// axis-aligned in track coordinates; Rotation only affects rendering
// except for spawn elements, where it sets the car's starting heading, and
// for the checkpoint or finish element a car respawns on, where it sets the
// heading after the respawn.
type TrackElement struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	X               float64                `json:"x"`
	Y               float64                `json:"y"`
	Position        Vec2                   `json:"position"` // mirrors X/Y, the editor format carries both
	Width           float64                `json:"width"`
	Height          float64                `json:"height"`
	Rotation        float64                `json:"rotation"`
	Layer           int                    `json:"layer,omitempty"`
	CheckpointIndex int                    `json:"checkpointIndex,omitempty"`
	Properties      map[string]interface{} `json:"properties,omitempty"`
}

// Center returns the center point of the element's bounding rect
func (e *TrackElement) Center() Vec2 {
	return Vec2{e.X + e.Width/2, e.Y + e.Height/2}
}

// Radius returns the proximity-trigger radius for checkpoint/finish tests
func (e *TrackElement) Radius() float64 {
	if e.Width > e.Height {
		return e.Width / 2
	}
	return e.Height / 2
}

// Track is the static description of a racing circuit. Immutable while a
// race is running.
type Track struct {
	ID              string         `json:"id"`
	Version         int            `json:"version"`
	Name            string         `json:"name"`
	Author          string         `json:"author,omitempty"`
	CreatedAt       int64          `json:"createdAt,omitempty"`
	UpdatedAt       int64          `json:"updatedAt,omitempty"`
	Difficulty      string         `json:"difficulty,omitempty"`
	DefaultLapCount int            `json:"defaultLapCount,omitempty"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	WrapAround      bool           `json:"wrapAround,omitempty"`
	Elements        []TrackElement `json:"elements"`
	Scenery         []TrackElement `json:"scenery,omitempty"`
}

// editorOnlyTypes never survive persistence
var editorOnlyTypes = map[string]bool{"select": true, "car": true}

// validDifficulties for the track file format
var validDifficulties = map[string]bool{
	"": true, "easy": true, "medium": true, "hard": true, "extreme": true,
}

// elementTypeAliases maps legacy editor type names to canonical ones
var elementTypeAliases = map[string]string{
	"boost_pad": ElemBoost,
	"oil_slick": ElemOil,
}

var knownElementTypes = map[string]bool{
	ElemRoad: true, ElemRoadCurve: true, ElemWall: true, ElemCheckpoint: true,
	ElemFinish: true, ElemBoost: true, ElemOil: true, ElemSpawn: true,
	ElemRamp: true, ElemRampUp: true, ElemRampDown: true, ElemBridge: true,
	ElemBarrier: true, ElemTireStack: true, ElemPitStop: true,
}

// Normalize strips editor-only elements, resolves type aliases, mirrors
// X/Y into Position, and fills in a default version and lap count. It does
// not reorder elements; Checkpoints() sorts by index when read. Call before
// validating or persisting.
func (t *Track) Normalize() {
	kept := t.Elements[:0]
	for _, e := range t.Elements {
		if editorOnlyTypes[e.Type] {
			continue
		}
		if canonical, ok := elementTypeAliases[e.Type]; ok {
			e.Type = canonical
		}
		// Reconcile the duplicated coordinate fields, x/y winning when
		// both are set
		if e.X == 0 && e.Y == 0 && (e.Position.X != 0 || e.Position.Y != 0) {
			e.X, e.Y = e.Position.X, e.Position.Y
		}
		e.Position = Vec2{e.X, e.Y}
		kept = append(kept, e)
	}
	t.Elements = kept
	if t.Version < 1 {
		t.Version = 1
	}
	if t.DefaultLapCount < 1 {
		t.DefaultLapCount = 3
	}
}

// Validate checks the invariants a race depends on: a finish element, at
// least one spawn, a contiguous checkpoint sequence, and sane dimensions.
func (t *Track) Validate() []string {
	var errs []string
	if t.ID == "" {
		errs = append(errs, "track id is required")
	}
	if t.Name == "" {
		errs = append(errs, "track name is required")
	}
	if t.Width <= 0 || t.Height <= 0 {
		errs = append(errs, "track dimensions must be positive")
	}
	if !validDifficulties[t.Difficulty] {
		errs = append(errs, fmt.Sprintf("unknown difficulty %q", t.Difficulty))
	}

	var spawns []TrackElement
	var checkpoints []int
	finishCount := 0
	for _, e := range t.Elements {
		if !knownElementTypes[e.Type] {
			errs = append(errs, fmt.Sprintf("element %s: unknown type %q", e.ID, e.Type))
			continue
		}
		if e.Layer < -1 || e.Layer > 2 {
			errs = append(errs, fmt.Sprintf("element %s: layer out of range", e.ID))
		}
		switch e.Type {
		case ElemSpawn:
			spawns = append(spawns, e)
		case ElemCheckpoint:
			checkpoints = append(checkpoints, e.CheckpointIndex)
		case ElemFinish:
			finishCount++
		}
	}

	if finishCount == 0 {
		errs = append(errs, "track has no finish line")
	}
	if len(spawns) == 0 {
		errs = append(errs, "track has no spawn points")
	}
	for i := 0; i < len(spawns); i++ {
		for j := i + 1; j < len(spawns); j++ {
			if spawns[i].Center().DistanceTo(spawns[j].Center()) < minSpawnSpacing {
				errs = append(errs, "spawn points are too close together")
				i = len(spawns)
				break
			}
		}
	}

	sort.Ints(checkpoints)
	for i, idx := range checkpoints {
		if idx != i {
			errs = append(errs, "checkpoint indexes must form a contiguous sequence 0..N-1")
			break
		}
	}
	return errs
}

// Checkpoints returns the track's checkpoints ordered by checkpointIndex
func (t *Track) Checkpoints() []TrackElement {
	var cps []TrackElement
	for _, e := range t.Elements {
		if e.Type == ElemCheckpoint {
			cps = append(cps, e)
		}
	}
	sort.Slice(cps, func(i, j int) bool {
		return cps[i].CheckpointIndex < cps[j].CheckpointIndex
	})
	return cps
}

// Finish returns the finish element, or nil for an invalid track
func (t *Track) Finish() *TrackElement {
	for i := range t.Elements {
		if t.Elements[i].Type == ElemFinish {
			return &t.Elements[i]
		}
	}
	return nil
}

// Spawns returns the spawn elements in placement order
func (t *Track) Spawns() []TrackElement {
	var sp []TrackElement
	for _, e := range t.Elements {
		if e.Type == ElemSpawn {
			sp = append(sp, e)
		}
	}
	return sp
}

// DefaultTrackID is assigned to rooms that request a missing track
const DefaultTrackID = "figure-oval"

// BuiltinTracks returns the tracks shipped with the server. These are
// protected from deletion through the HTTP API.
func BuiltinTracks() []*Track {
	oval := &Track{
		ID:              DefaultTrackID,
		Version:         1,
		Name:            "Figure Oval",
		Author:          "nitro-grid",
		Difficulty:      "easy",
		DefaultLapCount: 3,
		Width:           1600,
		Height:          1000,
		Elements: []TrackElement{
			{ID: "fin", Type: ElemFinish, X: 740, Y: 780, Width: 120, Height: 24},
			{ID: "cp0", Type: ElemCheckpoint, X: 1380, Y: 440, Width: 120, Height: 24, CheckpointIndex: 0},
			{ID: "cp1", Type: ElemCheckpoint, X: 740, Y: 120, Width: 120, Height: 24, CheckpointIndex: 1},
			{ID: "cp2", Type: ElemCheckpoint, X: 100, Y: 440, Width: 120, Height: 24, CheckpointIndex: 2},
			{ID: "sp0", Type: ElemSpawn, X: 760, Y: 830, Width: 20, Height: 34, Rotation: 1.5707963267948966},
			{ID: "sp1", Type: ElemSpawn, X: 720, Y: 880, Width: 20, Height: 34, Rotation: 1.5707963267948966},
			{ID: "sp2", Type: ElemSpawn, X: 800, Y: 880, Width: 20, Height: 34, Rotation: 1.5707963267948966},
			{ID: "sp3", Type: ElemSpawn, X: 680, Y: 830, Width: 20, Height: 34, Rotation: 1.5707963267948966},
			{ID: "bp0", Type: ElemBoost, X: 1350, Y: 700, Width: 60, Height: 60},
			{ID: "oil0", Type: ElemOil, X: 300, Y: 200, Width: 50, Height: 50},
		},
	}
	torus := &Track{
		ID:              "torus-sprint",
		Version:         1,
		Name:            "Torus Sprint",
		Author:          "nitro-grid",
		Difficulty:      "medium",
		DefaultLapCount: 5,
		Width:           800,
		Height:          600,
		WrapAround:      true,
		Elements: []TrackElement{
			{ID: "fin", Type: ElemFinish, X: 120, Y: 400, Width: 120, Height: 20},
			{ID: "cp0", Type: ElemCheckpoint, X: 620, Y: 400, Width: 100, Height: 20, CheckpointIndex: 0},
			{ID: "cp1", Type: ElemCheckpoint, X: 620, Y: 100, Width: 100, Height: 20, CheckpointIndex: 1},
			{ID: "cp2", Type: ElemCheckpoint, X: 120, Y: 100, Width: 100, Height: 20, CheckpointIndex: 2},
			{ID: "sp0", Type: ElemSpawn, X: 170, Y: 460, Width: 20, Height: 34},
			{ID: "sp1", Type: ElemSpawn, X: 130, Y: 510, Width: 20, Height: 34},
			{ID: "sp2", Type: ElemSpawn, X: 210, Y: 510, Width: 20, Height: 34},
			{ID: "ramp0", Type: ElemRamp, X: 400, Y: 250, Width: 80, Height: 40},
		},
	}
	return []*Track{oval, torus}
}
