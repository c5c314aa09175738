package main

import (
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ReplayRecord is the persisted summary of one finished race. The event
// stream is msgpack-encoded; the JSON store base64s it transparently.
type ReplayRecord struct {
	ID        string       `json:"id"`
	RoomID    string       `json:"roomId"`
	TrackID   string       `json:"trackId"`
	LapCount  int          `json:"lapCount"`
	CreatedAt int64        `json:"createdAt"`
	Results   []RaceResult `json:"results"`
	Events    []byte       `json:"events"`
}

// SaveReplay serializes a finished race into the replays collection.
// Returns the replay id, or "" on failure. Safe to call off the room
// goroutine: it only touches its arguments.
func SaveReplay(store *Storage, roomID, trackID string, lapCount int, events []RaceEvent, results []RaceResult) string {
	if store == nil {
		return ""
	}
	encoded, err := msgpack.Marshal(events)
	if err != nil {
		log.Printf("replay: encode events: %v", err)
		return ""
	}
	rec := ReplayRecord{
		ID:        GenerateID(8),
		RoomID:    roomID,
		TrackID:   trackID,
		LapCount:  lapCount,
		CreatedAt: time.Now().UnixMilli(),
		Results:   results,
		Events:    encoded,
	}
	if err := store.Write(ColReplays, rec.ID, &rec); err != nil {
		log.Printf("replay: persist %s: %v", rec.ID, err)
		return ""
	}
	return rec.ID
}

// DecodeReplayEvents restores the event stream of a replay record
func DecodeReplayEvents(rec *ReplayRecord) ([]RaceEvent, error) {
	var events []RaceEvent
	if err := msgpack.Unmarshal(rec.Events, &events); err != nil {
		return nil, err
	}
	return events, nil
}
