package main

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	return s
}

func TestStorageRoundTrip(t *testing.T) {
	s := tempStorage(t)
	in := testRaceTrack()
	if err := s.Write(ColTracks, in.ID, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out Track
	if err := s.Read(ColTracks, in.ID, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.ID != in.ID || out.Width != in.Width || len(out.Elements) != len(in.Elements) {
		t.Errorf("round trip mismatch: %+v", out)
	}

	ids, err := s.List(ColTracks)
	if err != nil || len(ids) != 1 || ids[0] != in.ID {
		t.Errorf("list: %v %v", ids, err)
	}

	if err := s.Delete(ColTracks, in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Read(ColTracks, in.ID, &out); err == nil {
		t.Error("deleted entity still readable")
	}
	// Deleting again is not an error
	if err := s.Delete(ColTracks, in.ID); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

func TestStorageNoTempLeftovers(t *testing.T) {
	s := tempStorage(t)
	for i := 0; i < 10; i++ {
		if err := s.Write(ColLeaderboards, "board", &Leaderboard{TrackID: "board"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	entries, _ := os.ReadDir(filepath.Join(s.dir, ColLeaderboards))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStorageRejectsPathEscape(t *testing.T) {
	s := tempStorage(t)
	if err := s.Write(ColTracks, "../evil", map[string]int{"x": 1}); err == nil {
		t.Error("path escape accepted")
	}
	var v map[string]int
	if err := s.Read(ColTracks, "..", &v); err == nil {
		t.Error("dot-dot read accepted")
	}
}

func TestReplayRoundTrip(t *testing.T) {
	s := tempStorage(t)
	events := []RaceEvent{
		{Type: EvRaceCheckpoint, PlayerID: "p1", Checkpoint: 0, Time: 1.5},
		{Type: EvRaceLap, PlayerID: "p1", Lap: 1, LapTime: 12.25, Time: 12.25},
	}
	results := []RaceResult{{PlayerID: "p1", Nickname: "Ace", Rank: 1, Finished: true, TotalTime: 12.25}}

	id := SaveReplay(s, "room1", "test", 1, events, results)
	if id == "" {
		t.Fatal("replay not saved")
	}
	var rec ReplayRecord
	if err := s.Read(ColReplays, id, &rec); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	back, err := DecodeReplayEvents(&rec)
	if err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(back) != 2 || back[1].Type != EvRaceLap || back[1].LapTime != 12.25 {
		t.Errorf("replay events mangled: %+v", back)
	}
	if rec.TrackID != "test" || len(rec.Results) != 1 {
		t.Errorf("replay meta mangled: %+v", rec)
	}
}
